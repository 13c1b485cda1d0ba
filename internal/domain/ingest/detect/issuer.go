package detect

import (
	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/normalizer"
)

// IssuerProfile describes a known export shape whose polarity
// convention overrides both the type column and the sign fallback.
// Card issuers commonly export charges as positive numbers and
// payments/credits as negatives.
type IssuerProfile struct {
	Name     string
	Headers  []string // lower-cased header set that identifies the shape
	Polarity normalizer.PolarityPolicy
}

// issuerProfiles is ordered: the first profile whose header set is
// fully present wins. Kept as data so a new issuer is a table entry.
var issuerProfiles = []IssuerProfile{
	{
		Name:     "card-trans-post",
		Headers:  []string{"trans. date", "post date", "description", "amount"},
		Polarity: normalizer.PolarityNegativeIsIncome,
	},
	{
		Name:     "card-trans-desc-amount",
		Headers:  []string{"trans. date", "description", "amount"},
		Polarity: normalizer.PolarityNegativeIsIncome,
	},
	{
		Name:     "bank-debit-negative",
		Headers:  []string{"posted date", "payee", "amount", "balance"},
		Polarity: normalizer.PolarityNegativeIsExpense,
	},
}

// MatchIssuerProfile returns the first profile whose identifying
// headers are all present, or nil.
func MatchIssuerProfile(headers []string) *IssuerProfile {
	for i := range issuerProfiles {
		if headerSetContains(headers, issuerProfiles[i].Headers) {
			return &issuerProfiles[i]
		}
	}
	return nil
}
