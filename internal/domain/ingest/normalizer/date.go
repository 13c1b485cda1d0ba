// Package normalizer provides the pure field normalizers of the import
// pipeline: dates, amounts, transaction polarity, and description
// cleanup. All functions are deterministic and side-effect free.
package normalizer

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// CanonicalDateLayout is the wire format for normalized dates.
const CanonicalDateLayout = "2006-01-02"

// dateLayouts are tried in order against a trimmed date string.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"01-02-2006",
	"2006/01/02",
}

// ParseDate coerces a textual date into its canonical YYYY-MM-DD form.
// Timestamp-prefixed strings (e.g. "2024-01-05 13:22:01") are
// truncated to the date. Unrecognized shapes are an error; defaulting
// to the current day would silently corrupt financial history, so it
// is never done.
func ParseDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty date")
	}

	// Truncate a trailing timestamp: "YYYY-MM-DD HH:MM:SS" and the
	// ISO "T" variant both reduce to the leading date token.
	if len(s) > len(CanonicalDateLayout) {
		if cut := strings.IndexAny(s, " T"); cut == len(CanonicalDateLayout) {
			if t, err := time.Parse(CanonicalDateLayout, s[:cut]); err == nil {
				return t.Format(CanonicalDateLayout), nil
			}
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(CanonicalDateLayout), nil
		}
	}

	return "", fmt.Errorf("unrecognized date format: %q", raw)
}

// excelEpoch1900 is December 30, 1899: serial 1 is January 1, 1900,
// and the off-by-two accounts for Excel's phantom Feb 29, 1900.
var excelEpoch1900 = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// excelEpoch1904 is the Mac-era alternative epoch.
var excelEpoch1904 = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)

// FromSerial converts a spreadsheet serial day number to a canonical
// date under the workbook's date system.
func FromSerial(serial float64, use1904 bool) (string, error) {
	if serial <= 0 || serial > 2958465 { // 9999-12-31 in the 1900 system
		return "", fmt.Errorf("serial date out of range: %v", serial)
	}
	epoch := excelEpoch1900
	if use1904 {
		epoch = excelEpoch1904
	}
	days := int(math.Floor(serial))
	return epoch.AddDate(0, 0, days).Format(CanonicalDateLayout), nil
}
