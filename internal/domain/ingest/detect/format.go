// Package detect classifies uploaded statement files and inspects
// their structure: file kind, CSV delimiter, header set, suggested
// column mapping, and a mapping-independent header signature.
package detect

import (
	"errors"
	"path/filepath"
	"strings"
)

// FileKind is the recognized statement container format.
type FileKind string

const (
	KindCSV  FileKind = "csv"
	KindXLSX FileKind = "xlsx"
	KindXLS  FileKind = "xls"
)

// ErrUnsupportedFormat rejects files outside the fixed CSV/XLSX/XLS
// set. Callers must surface this as a client error, never attempt a
// best-effort parse.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// DetectKind classifies an upload. A recognized filename extension is
// authoritative; otherwise the declared content type is consulted via
// substring matching.
func DetectKind(filename, contentType string) (FileKind, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return KindCSV, nil
	case ".xlsx":
		return KindXLSX, nil
	case ".xls":
		return KindXLS, nil
	}

	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "csv"):
		return KindCSV, nil
	case strings.Contains(ct, "spreadsheetml"), strings.Contains(ct, "spreadsheet"):
		return KindXLSX, nil
	case strings.Contains(ct, "ms-excel"), strings.Contains(ct, "msexcel"):
		return KindXLS, nil
	}

	return "", ErrUnsupportedFormat
}
