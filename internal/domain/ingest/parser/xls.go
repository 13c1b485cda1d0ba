package parser

import (
	"bytes"
	"fmt"
	"io"

	"github.com/shakinm/xlsReader/xls"
)

// XLSSource reads data rows from a legacy BIFF workbook. The xls
// format is bulk-loaded (the library materializes sheets up front), so
// rows are served from memory.
type XLSSource struct {
	headers []string
	rows    [][]string
	pos     int
	index   int
}

// NewXLSSource opens the named sheet, or the first sheet when name is
// empty.
func NewXLSSource(data []byte, sheet string) (*XLSSource, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open xls workbook: %w", err)
	}

	target := 0
	if sheet != "" {
		target = -1
		for i := 0; i < wb.GetNumberSheets(); i++ {
			s, err := wb.GetSheet(i)
			if err != nil || s == nil {
				continue
			}
			if s.GetName() == sheet {
				target = i
				break
			}
		}
		if target < 0 {
			return nil, fmt.Errorf("sheet %q not found", sheet)
		}
	}

	s, err := wb.GetSheet(target)
	if err != nil || s == nil {
		return nil, fmt.Errorf("xls workbook has no sheets")
	}

	var rows [][]string
	for _, r := range s.GetRows() {
		var record []string
		for _, col := range r.GetCols() {
			record = append(record, col.GetString())
		}
		rows = append(rows, record)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q has no header row", s.GetName())
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = CleanHeader(h)
	}

	return &XLSSource{headers: headers, rows: rows[1:], index: 1}, nil
}

// Headers returns the cleaned header row.
func (s *XLSSource) Headers() []string {
	return s.headers
}

// Next returns the next data row.
func (s *XLSSource) Next() (Row, error) {
	for s.pos < len(s.rows) {
		record := s.rows[s.pos]
		s.pos++
		s.index++
		if allBlank(record) {
			continue
		}
		return Row{Index: s.index, Cells: classifyCells(s.headers, record)}, nil
	}
	return Row{}, io.EOF
}

// XLSSheetNames lists the sheets of a legacy workbook.
func XLSSheetNames(data []byte) ([]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open xls workbook: %w", err)
	}
	var names []string
	for i := 0; i < wb.GetNumberSheets(); i++ {
		s, err := wb.GetSheet(i)
		if err != nil || s == nil {
			continue
		}
		names = append(names, s.GetName())
	}
	return names, nil
}
