package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/normalizer"
)

// ColumnMapping assigns semantic roles to source column names. Date,
// Description and Amount are required; the rest are optional.
type ColumnMapping struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Type        string `json:"type,omitempty"`
	Category    string `json:"category,omitempty"`
	Note        string `json:"note,omitempty"`

	// Polarity is the sign-inference fallback policy for this
	// mapping. Empty means negative-is-expense.
	Polarity normalizer.PolarityPolicy `json:"polarity,omitempty"`

	// IssuerProfile names a recognized export shape. When set, the
	// profile's polarity applies unconditionally and an explicit
	// type column is ignored.
	IssuerProfile string `json:"issuerProfile,omitempty"`
}

// Validate fails closed when a required role is unset or refers to a
// column absent from the detected header set. Parsing must never start
// from an unresolved mapping.
func (m ColumnMapping) Validate(headers []string) error {
	set := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		set[h] = struct{}{}
	}

	required := map[string]string{
		"date":        m.Date,
		"description": m.Description,
		"amount":      m.Amount,
	}
	for role, col := range required {
		if strings.TrimSpace(col) == "" {
			return fmt.Errorf("%w: role %q is not mapped", ErrMappingIncomplete, role)
		}
		if _, ok := set[col]; !ok {
			return fmt.Errorf("%w: role %q maps to unknown column %q", ErrMappingIncomplete, role, col)
		}
	}

	for role, col := range map[string]string{"type": m.Type, "category": m.Category, "note": m.Note} {
		if col == "" {
			continue
		}
		if _, ok := set[col]; !ok {
			return fmt.Errorf("%w: role %q maps to unknown column %q", ErrMappingIncomplete, role, col)
		}
	}
	return nil
}

// ErrMappingIncomplete is the rejection for unresolved mappings.
var ErrMappingIncomplete = fmt.Errorf("column mapping incomplete")

// ImportableTransaction is a normalized, pipeline-internal record. The
// amount is always non-negative; polarity is carried by Type.
type ImportableTransaction struct {
	Date        string            `json:"date"`
	Description string            `json:"description"`
	Amount      decimal.Decimal   `json:"amount"`
	Type        normalizer.TxType `json:"type"`
	Category    string            `json:"category,omitempty"`
	Note        string            `json:"note,omitempty"`
	Tags        []string          `json:"tags,omitempty"`

	// Enrichment fields, populated best-effort by the external
	// classifier; empty when enrichment is disabled or failed.
	MerchantCanonical  string  `json:"merchantCanonical,omitempty"`
	CategorySuggested  string  `json:"categorySuggested,omitempty"`
	CategoryConfidence float64 `json:"categoryConfidence,omitempty"`

	// DedupeHash is filled in by the commit coordinator.
	DedupeHash string `json:"dedupeHash,omitempty"`
	SourceRow  int    `json:"sourceRow"`
}

// ImportError records one row-level failure. Row errors never abort
// the batch; the row is simply excluded from the normalized set.
type ImportError struct {
	// Row is the file line number counting the header, so the first
	// data row reports Row 2. It matches what a user sees opening the
	// file in an editor.
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ImportError) Error() string {
	return fmt.Sprintf("row %d, field %s: %s", e.Row, e.Field, e.Message)
}

// Result is the outcome of one parse pass.
type Result struct {
	Rows []ImportableTransaction
	// TotalRows is the number of data rows scanned. When a preview
	// limit short-circuits the pass this is the count scanned so
	// far, not the file's full length.
	TotalRows int
	Errors    []ImportError
	Truncated bool
}

// ParseOptions tunes one parse pass.
type ParseOptions struct {
	// PreviewLimit stops the pass once this many normalized rows
	// have been produced. Zero means no cap. The limit counts
	// successful rows, not raw input lines.
	PreviewLimit int
	// Use1904 selects the 1904 spreadsheet date system for serial
	// conversion.
	Use1904 bool
	// Categorize supplies a fallback category for rows without an
	// explicit category column value. Optional.
	Categorize func(description string) string
}

// Parse drains the source through the row mapper, collecting row-level
// failures without aborting. The mapping must have been validated
// against the source's headers.
func Parse(src RowSource, mapping ColumnMapping, opts ParseOptions) (*Result, error) {
	result := &Result{}

	for {
		if opts.PreviewLimit > 0 && len(result.Rows) >= opts.PreviewLimit {
			result.Truncated = true
			break
		}

		row, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.TotalRows++
			result.Errors = append(result.Errors, ImportError{
				Row:     row.Index,
				Field:   "row",
				Message: err.Error(),
			})
			continue
		}

		result.TotalRows++
		tx, rowErr := MapRow(row, mapping, opts)
		if rowErr != nil {
			result.Errors = append(result.Errors, *rowErr)
			continue
		}
		result.Rows = append(result.Rows, tx)
	}

	return result, nil
}

// MapRow normalizes one raw row under the mapping. Date and amount
// failures are hard per-row errors.
func MapRow(row Row, mapping ColumnMapping, opts ParseOptions) (ImportableTransaction, *ImportError) {
	var tx ImportableTransaction
	tx.SourceRow = row.Index

	date, err := normalizeDate(row.Cell(mapping.Date), opts.Use1904)
	if err != nil {
		return tx, &ImportError{Row: row.Index, Field: "date", Message: err.Error()}
	}
	tx.Date = date

	desc := normalizer.CleanDescription(row.Cell(mapping.Description).Text())
	if desc == "" {
		return tx, &ImportError{Row: row.Index, Field: "description", Message: "missing description"}
	}
	tx.Description = desc

	signed, err := normalizeAmount(row.Cell(mapping.Amount))
	if err != nil {
		return tx, &ImportError{Row: row.Index, Field: "amount", Message: err.Error()}
	}

	rawType := ""
	if mapping.Type != "" {
		rawType = row.Cell(mapping.Type).Text()
	}
	tx.Type = normalizer.InferType(signed, rawType, mapping.Polarity, mapping.IssuerProfile != "")
	tx.Amount = signed.Abs()

	if mapping.Category != "" {
		tx.Category = normalizer.CleanDescription(row.Cell(mapping.Category).Text())
	}
	if tx.Category == "" && opts.Categorize != nil {
		tx.Category = opts.Categorize(desc)
	}

	if mapping.Note != "" {
		tx.Note = normalizer.CleanDescription(row.Cell(mapping.Note).Text())
	}

	return tx, nil
}

func normalizeDate(c Cell, use1904 bool) (string, error) {
	switch c.Kind {
	case CellEmpty:
		return "", fmt.Errorf("empty date")
	case CellNumber:
		return normalizer.FromSerial(c.Num, use1904)
	case CellTime:
		return c.Time.Format(normalizer.CanonicalDateLayout), nil
	default:
		return normalizer.ParseDate(c.Str)
	}
}

func normalizeAmount(c Cell) (decimal.Decimal, error) {
	switch c.Kind {
	case CellEmpty:
		return decimal.Zero, fmt.Errorf("empty amount")
	case CellNumber:
		return decimal.NewFromFloat(c.Num), nil
	default:
		return normalizer.ParseAmount(c.Text())
	}
}
