// Package dedupe derives the idempotency key for imported
// transactions. Re-importing the same statement, in whole or in part,
// after re-download or re-mapping, must always produce the same hash
// for the same logical transaction.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Hash fingerprints a transaction's logical content:
// accountID|date|amount(2dp)|normalized description. The amount is the
// stored non-negative value; polarity is not part of identity because
// it is derived, not source content. Any change to this shape breaks
// idempotent re-import, so it is frozen.
func Hash(accountID, date string, amount decimal.Decimal, description string) string {
	payload := strings.Join([]string{
		accountID,
		date,
		amount.StringFixed(2),
		Normalize(description),
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Normalize lower-cases and collapses internal whitespace so cosmetic
// differences between downloads of the same statement do not change
// identity.
func Normalize(description string) string {
	s := strings.ToLower(strings.TrimSpace(description))
	return whitespaceRe.ReplaceAllString(s, " ")
}
