// Package categorizer assigns a fallback category to transactions
// whose source file carries none. It is a fixed, ordered
// keyword→category table compiled into an Aho-Corasick matcher, so a
// batch of descriptions is categorized in a single multi-pattern pass
// per row regardless of table size.
package categorizer

import (
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
)

// DefaultCategory is returned when no keyword matches.
const DefaultCategory = "Other"

// KeywordRule maps one lower-case keyword to a category. Table order
// is priority order: the earliest matching entry wins.
type KeywordRule struct {
	Keyword  string
	Category string
}

// DefaultTable is the built-in ordered keyword table. More specific
// keywords must precede generic ones.
var DefaultTable = []KeywordRule{
	{"netflix", "Subscriptions"},
	{"spotify", "Subscriptions"},
	{"hulu", "Subscriptions"},
	{"disney+", "Subscriptions"},
	{"prime video", "Subscriptions"},
	{"uber eats", "Dining"},
	{"doordash", "Dining"},
	{"grubhub", "Dining"},
	{"restaurant", "Dining"},
	{"coffee", "Dining"},
	{"cafe", "Dining"},
	{"starbucks", "Dining"},
	{"mcdonald", "Dining"},
	{"grocery", "Groceries"},
	{"supermarket", "Groceries"},
	{"whole foods", "Groceries"},
	{"trader joe", "Groceries"},
	{"safeway", "Groceries"},
	{"kroger", "Groceries"},
	{"uber", "Transport"},
	{"lyft", "Transport"},
	{"shell", "Transport"},
	{"chevron", "Transport"},
	{"gas station", "Transport"},
	{"parking", "Transport"},
	{"transit", "Transport"},
	{"airline", "Travel"},
	{"hotel", "Travel"},
	{"airbnb", "Travel"},
	{"amazon", "Shopping"},
	{"walmart", "Shopping"},
	{"target", "Shopping"},
	{"pharmacy", "Health"},
	{"cvs", "Health"},
	{"walgreens", "Health"},
	{"gym", "Health"},
	{"electric", "Utilities"},
	{"water", "Utilities"},
	{"internet", "Utilities"},
	{"comcast", "Utilities"},
	{"verizon", "Utilities"},
	{"t-mobile", "Utilities"},
	{"rent", "Housing"},
	{"mortgage", "Housing"},
	{"insurance", "Insurance"},
	{"payroll", "Income"},
	{"salary", "Income"},
	{"direct deposit", "Income"},
	{"interest", "Income"},
	{"transfer", "Transfers"},
	{"atm", "Cash"},
}

// Engine is a compiled keyword table. Safe for concurrent use; Build
// may be called to swap the table at runtime.
type Engine struct {
	mu      sync.RWMutex
	matcher *ahocorasick.Matcher
	table   []KeywordRule
}

// NewEngine compiles the given table, or DefaultTable when nil.
func NewEngine(table []KeywordRule) *Engine {
	e := &Engine{}
	if table == nil {
		table = DefaultTable
	}
	e.Build(table)
	return e
}

// Build recompiles the matcher from a new table.
func (e *Engine) Build(table []KeywordRule) {
	patterns := make([][]byte, len(table))
	for i, r := range table {
		patterns[i] = []byte(strings.ToLower(r.Keyword))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.table = table
	if len(patterns) > 0 {
		e.matcher = ahocorasick.NewMatcher(patterns)
	} else {
		e.matcher = nil
	}
}

// Categorize returns the category of the earliest table entry whose
// keyword occurs in the description, or DefaultCategory.
func (e *Engine) Categorize(description string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.matcher == nil {
		return DefaultCategory
	}

	hits := e.matcher.Match([]byte(strings.ToLower(description)))
	if len(hits) == 0 {
		return DefaultCategory
	}

	// Match returns pattern indices in hit order; priority is table
	// order, so take the lowest index.
	best := hits[0]
	for _, idx := range hits[1:] {
		if idx < best {
			best = idx
		}
	}
	if best < 0 || best >= len(e.table) {
		return DefaultCategory
	}
	return e.table[best].Category
}
