package normalizer

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TxType is the polarity of a transaction. The stored amount is always
// the absolute value; polarity is carried only here.
type TxType string

const (
	TypeExpense TxType = "expense"
	TypeIncome  TxType = "income"
)

// PolarityPolicy controls how a signed amount maps to a transaction
// type when nothing more specific is known. Plain bank exports list
// debits as negatives, so negative-is-expense is the default; card
// issuer exports that list charges as positives carry
// negative-is-income on their mapping.
type PolarityPolicy string

const (
	PolarityNegativeIsIncome  PolarityPolicy = "negative_is_income"
	PolarityNegativeIsExpense PolarityPolicy = "negative_is_expense"
)

// incomeWords and expenseWords are matched against an explicit type
// column, in order, first hit wins.
var incomeWords = []string{"income", "credit", "deposit", "refund", "reimbursement", "received"}
var expenseWords = []string{"expense", "debit", "withdrawal", "purchase", "payment", "charge"}

// InferType resolves transaction polarity in priority order: an issuer
// profile pins the sign policy outright; an explicit type column is
// matched against the income/expense vocabulary; otherwise the
// mapping's polarity policy decides from the amount sign.
func InferType(amount decimal.Decimal, rawType string, policy PolarityPolicy, issuerPinned bool) TxType {
	if policy == "" {
		policy = PolarityNegativeIsExpense
	}

	if !issuerPinned {
		if t, ok := typeFromColumn(rawType); ok {
			return t
		}
	}

	neg := amount.Sign() < 0
	if policy == PolarityNegativeIsExpense {
		if neg {
			return TypeExpense
		}
		return TypeIncome
	}
	if neg {
		return TypeIncome
	}
	return TypeExpense
}

func typeFromColumn(raw string) (TxType, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "", false
	}
	switch v {
	case "in", "cr", "c":
		return TypeIncome, true
	case "out", "dr", "d":
		return TypeExpense, true
	}
	for _, w := range incomeWords {
		if strings.Contains(v, w) {
			return TypeIncome, true
		}
	}
	for _, w := range expenseWords {
		if strings.Contains(v, w) {
			return TypeExpense, true
		}
	}
	return "", false
}
