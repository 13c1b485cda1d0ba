package normalizer

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// currencySymbols are stripped before numeric parsing. Multi-rune
// symbols must precede their single-rune prefixes.
var currencySymbols = []string{"R$", "US$", "$", "€", "£", "¥", "₹", "CHF", "USD", "EUR", "GBP", "BRL"}

// ParseAmount coerces a textual amount into a signed decimal. It
// strips currency symbols, thousands separators and whitespace, and
// treats parenthesized values, a leading ASCII minus, or a Unicode
// minus as negative. A value that still fails to parse is an error;
// it is never coerced to zero.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	negative := false

	// Parenthesized negatives: "(1234.56)".
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, sym := range currencySymbols {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.TrimSpace(s)

	s = strings.ReplaceAll(s, "−", "-") // Unicode minus
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimPrefix(s, "-")
	} else if strings.HasPrefix(s, "+") {
		s = strings.TrimPrefix(s, "+")
	}

	// Thousands separators and embedded spaces.
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")

	if s == "" {
		return decimal.Zero, fmt.Errorf("invalid amount: %q", raw)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}

	if negative {
		d = d.Neg()
	}
	return d, nil
}
