package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// CSVSource streams data rows from a CSV buffer using a pre-sniffed
// delimiter. It is BOM-aware and tolerant of ragged column counts.
type CSVSource struct {
	reader  *csv.Reader
	headers []string
	line    int
}

// NewCSVSource prepares a streaming reader over the buffer. The header
// row is consumed eagerly so Headers is available before any data row
// is read.
func NewCSVSource(data []byte, delimiter rune) (*CSVSource, error) {
	if delimiter == 0 {
		delimiter = ','
	}

	r := csv.NewReader(bytes.NewReader(normalizeEncoding(data)))
	r.Comma = delimiter
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("file has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = CleanHeader(h)
	}

	return &CSVSource{reader: r, headers: headers, line: 1}, nil
}

// Headers returns the cleaned header row.
func (s *CSVSource) Headers() []string {
	return s.headers
}

// Next returns the next data row. Ragged rows are padded or truncated
// against the header width by keying cells on header names only.
func (s *CSVSource) Next() (Row, error) {
	for {
		record, err := s.reader.Read()
		if err == io.EOF {
			return Row{}, io.EOF
		}
		s.line++
		if err != nil {
			return Row{Index: s.line}, fmt.Errorf("malformed row: %w", err)
		}

		if isBlankRecord(record) {
			continue
		}

		cells := make(map[string]Cell, len(s.headers))
		for i, h := range s.headers {
			if i < len(record) {
				cells[h] = StringCell(record[i])
			} else {
				cells[h] = Cell{Kind: CellEmpty}
			}
		}
		return Row{Index: s.line, Cells: cells}, nil
	}
}

// CleanHeader trims whitespace, a UTF-8 BOM, and stray surrounding
// quotes from a header cell.
func CleanHeader(h string) string {
	h = strings.TrimPrefix(h, "\uFEFF")
	h = strings.TrimSpace(h)
	h = strings.Trim(h, `"'`)
	return strings.TrimSpace(h)
}

func isBlankRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// normalizeEncoding strips a UTF-8 BOM and falls back to a Latin-1
// reinterpretation for byte sequences that are not valid UTF-8, which
// some legacy bank exports still use.
func normalizeEncoding(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		data = data[3:]
	}
	if utf8.Valid(data) {
		return data
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return []byte(string(runes))
}
