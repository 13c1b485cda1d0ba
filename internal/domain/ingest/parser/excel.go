package parser

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXSource reads data rows from an OOXML spreadsheet. Row 0 of the
// target sheet is treated as the header; subsequent rows are mapped
// positionally against it. Cells whose raw value is numeric are
// surfaced as number cells so serial dates survive normalization.
type XLSXSource struct {
	file     *excelize.File
	rows     *excelize.Rows
	headers  []string
	index    int
	date1904 bool
}

// NewXLSXSource opens the named sheet, or the first sheet when name is
// empty.
func NewXLSXSource(data []byte, sheet string) (*XLSXSource, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		f.Close()
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	if !rows.Next() {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("sheet %q has no header row", sheet)
	}
	header, err := rows.Columns()
	if err != nil {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	headers := make([]string, len(header))
	for i, h := range header {
		headers[i] = CleanHeader(h)
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	return &XLSXSource{file: f, rows: rows, headers: headers, index: 1, date1904: date1904}, nil
}

// Headers returns the cleaned header row of the target sheet.
func (s *XLSXSource) Headers() []string {
	return s.headers
}

// Uses1904 reports whether the workbook uses the 1904 date system.
func (s *XLSXSource) Uses1904() bool {
	return s.date1904
}

// Next returns the next data row, classifying numeric-looking raw
// values as number cells.
func (s *XLSXSource) Next() (Row, error) {
	for s.rows.Next() {
		s.index++
		record, err := s.rows.Columns()
		if err != nil {
			return Row{Index: s.index}, fmt.Errorf("malformed row: %w", err)
		}
		if allBlank(record) {
			continue
		}
		return Row{Index: s.index, Cells: classifyCells(s.headers, record)}, nil
	}
	return Row{}, io.EOF
}

// Close releases the underlying workbook.
func (s *XLSXSource) Close() error {
	s.rows.Close()
	return s.file.Close()
}

// XLSXSheetNames lists the sheets of a workbook without reading rows.
func XLSXSheetNames(data []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

func classifyCells(headers, record []string) map[string]Cell {
	cells := make(map[string]Cell, len(headers))
	for i, h := range headers {
		if i >= len(record) {
			cells[h] = Cell{Kind: CellEmpty}
			continue
		}
		cells[h] = classifyCell(record[i])
	}
	return cells
}

// classifyCell turns a raw spreadsheet value into a typed cell. Raw
// numeric values (including date serials) come through as plain
// numbers when RawCellValue is set.
func classifyCell(raw string) Cell {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Cell{Kind: CellEmpty}
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return NumberCell(f)
	}
	return StringCell(raw)
}

func allBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
