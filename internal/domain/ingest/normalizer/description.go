package normalizer

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	trailingRef  = regexp.MustCompile(`\s+\d{4,}$`)
	trailingDate = regexp.MustCompile(`\s+\d{1,2}/\d{1,2}/?$`)
)

// noisePrefixes are stripped from the front of raw statement
// descriptions before they are used as a merchant hint.
var noisePrefixes = []string{
	"POS ", "PURCHASE ", "PAYMENT ", "DEBIT CARD ", "CHECKCARD ",
	"VISA ", "MASTERCARD ", "SQ *", "TST* ", "PAYPAL *",
}

// CleanDescription trims a description and collapses internal
// whitespace. This is also the normalization used by the dedupe hash,
// so it must stay stable across releases.
func CleanDescription(raw string) string {
	s := strings.TrimSpace(raw)
	return whitespaceRe.ReplaceAllString(s, " ")
}

// CanonicalMerchant derives a best-effort merchant name from a raw
// description: processor prefixes, trailing terminal references and
// trailing short dates are removed. Used only as the heuristic hint
// handed to the enrichment collaborator, never for hashing.
func CanonicalMerchant(raw string) string {
	s := CleanDescription(raw)
	upper := strings.ToUpper(s)
	for _, p := range noisePrefixes {
		if strings.HasPrefix(upper, p) {
			s = s[len(p):]
			break
		}
	}
	s = trailingRef.ReplaceAllString(s, "")
	s = trailingDate.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
