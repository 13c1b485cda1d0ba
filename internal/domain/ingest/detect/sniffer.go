package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/parser"
)

// sniffPrefixBytes bounds how much of the buffer the delimiter sniffer
// examines, so huge files are never scanned line-hunting.
const sniffPrefixBytes = 4096

// SniffDelimiter infers the CSV field delimiter from character
// frequency on the first non-empty line. Comma wins ties. This must
// run before header extraction: a mis-sniffed delimiter silently
// yields a single giant column.
func SniffDelimiter(data []byte) rune {
	prefix := data
	if len(prefix) > sniffPrefixBytes {
		prefix = prefix[:sniffPrefixBytes]
	}

	var line string
	for _, l := range strings.Split(string(prefix), "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) != "" {
			line = l
			break
		}
	}

	best := ','
	bestCount := strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if c := strings.Count(line, string(d)); c > bestCount {
			best = d
			bestCount = c
		}
	}
	return best
}

// Inspection is the structural summary of an uploaded file: enough for
// a client to confirm or edit a mapping, without materializing rows.
type Inspection struct {
	Kind      FileKind             `json:"kind"`
	Delimiter string               `json:"delimiter,omitempty"`
	Columns   []string             `json:"columns"`
	Sheets    []string             `json:"sheets,omitempty"`
	Suggested parser.ColumnMapping `json:"suggestedMapping"`
	Signature string               `json:"signature"`
}

// Inspect extracts the header row (and sheet list for spreadsheets),
// produces a suggested mapping and the header-set signature. Only the
// header is read: CSV peeks one line, spreadsheets the first row of
// the target sheet.
func Inspect(data []byte, kind FileKind, sheet string) (*Inspection, error) {
	insp := &Inspection{Kind: kind}

	switch kind {
	case KindCSV:
		delim := SniffDelimiter(data)
		insp.Delimiter = string(delim)
		src, err := parser.NewCSVSource(data, delim)
		if err != nil {
			return nil, err
		}
		insp.Columns = src.Headers()

	case KindXLSX:
		sheets, err := parser.XLSXSheetNames(data)
		if err != nil {
			return nil, err
		}
		insp.Sheets = sheets
		src, err := parser.NewXLSXSource(data, sheet)
		if err != nil {
			return nil, err
		}
		defer src.Close()
		insp.Columns = src.Headers()

	case KindXLS:
		sheets, err := parser.XLSSheetNames(data)
		if err != nil {
			return nil, err
		}
		insp.Sheets = sheets
		src, err := parser.NewXLSSource(data, sheet)
		if err != nil {
			return nil, err
		}
		insp.Columns = src.Headers()

	default:
		return nil, ErrUnsupportedFormat
	}

	insp.Suggested = SuggestMapping(insp.Columns)
	insp.Signature = Signature(insp.Columns)
	return insp, nil
}

// roleKeywords are ranked per role: the first header containing a
// keyword, scanned in keyword-priority order, wins. The tables are
// data so format quirks are a table edit, not a control-flow change.
var roleKeywords = map[string][]string{
	"date":        {"transaction date", "trans. date", "trans date", "posted date", "post date", "date"},
	"description": {"description", "payee", "merchant", "memo", "details", "narrative"},
	"amount":      {"amount", "debit", "credit", "value", "total"},
	"type":        {"transaction type", "type", "cr/dr", "dr/cr"},
	"category":    {"category"},
	"note":        {"note", "notes", "reference", "remarks"},
}

// SuggestMapping fuzzy-matches headers to roles by case-insensitive
// substring search against the ranked keyword tables. Unmatched roles
// stay unset and must be supplied by the caller before parsing.
func SuggestMapping(headers []string) parser.ColumnMapping {
	find := func(role string) string {
		for _, kw := range roleKeywords[role] {
			for _, h := range headers {
				if strings.Contains(strings.ToLower(h), kw) {
					return h
				}
			}
		}
		return ""
	}

	m := parser.ColumnMapping{
		Date:        find("date"),
		Description: find("description"),
		Amount:      find("amount"),
		Type:        find("type"),
		Category:    find("category"),
		Note:        find("note"),
	}

	if p := MatchIssuerProfile(headers); p != nil {
		m.IssuerProfile = p.Name
		m.Polarity = p.Polarity
	}
	return m
}

// Signature fingerprints the header SET: sorted, lower-cased, hashed.
// It is independent of column order and of the mapping, so a caller
// can persist a user's mapping keyed by source format and recall it on
// the next upload of the same statement shape.
func Signature(headers []string) string {
	normalized := make([]string, 0, len(headers))
	for _, h := range headers {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			normalized = append(normalized, h)
		}
	}
	sort.Strings(normalized)

	sum := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(sum[:])
}

// headerSetContains reports whether every wanted header appears in the
// header list, case-insensitively.
func headerSetContains(headers []string, wanted []string) bool {
	set := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		set[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	for _, w := range wanted {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}
