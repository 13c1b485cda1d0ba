// Package parser converts uploaded statement files into normalized
// transactions under a user-confirmed column mapping. CSV and
// spreadsheet inputs are unified behind the RowSource iterator so the
// mapping and error-collection logic is written once.
package parser

// Row is a single data row keyed by source column name. It is
// ephemeral: rows are consumed immediately by the row mapper.
type Row struct {
	// Index is the user-facing row number: 1-based, counting the
	// header row, so the first data row is 2.
	Index int
	Cells map[string]Cell
}

// Cell returns the cell for a source column, or an empty cell when the
// row is ragged and the column is missing.
func (r Row) Cell(column string) Cell {
	if c, ok := r.Cells[column]; ok {
		return c
	}
	return Cell{Kind: CellEmpty}
}

// RowSource iterates data rows of one statement file. Implementations
// return io.EOF from Next when exhausted.
type RowSource interface {
	// Headers returns the trimmed header row.
	Headers() []string
	// Next returns the next data row, or io.EOF.
	Next() (Row, error)
}
