package parser

import (
	"strconv"
	"strings"
	"time"
)

// CellKind discriminates the value held by a Cell.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellString
	CellNumber
	CellTime
)

// Cell is a single source cell. CSV sources only ever produce string
// cells; spreadsheet sources may carry typed numeric or date values,
// which matters for serial dates and pre-parsed amounts.
type Cell struct {
	Kind CellKind
	Str  string
	Num  float64
	Time time.Time
}

// StringCell builds a string cell, collapsing pure whitespace to empty.
func StringCell(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Cell{Kind: CellEmpty}
	}
	return Cell{Kind: CellString, Str: s}
}

// NumberCell builds a numeric cell.
func NumberCell(f float64) Cell {
	return Cell{Kind: CellNumber, Num: f}
}

// TimeCell builds a date cell.
func TimeCell(t time.Time) Cell {
	return Cell{Kind: CellTime, Time: t}
}

// IsEmpty reports whether the cell holds no value.
func (c Cell) IsEmpty() bool {
	return c.Kind == CellEmpty
}

// Text renders the raw value as a string, for error messages and for
// normalizers that operate on text.
func (c Cell) Text() string {
	switch c.Kind {
	case CellString:
		return c.Str
	case CellNumber:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	case CellTime:
		return c.Time.Format("2006-01-02")
	default:
		return ""
	}
}
