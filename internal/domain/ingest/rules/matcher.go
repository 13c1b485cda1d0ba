// Package rules applies user-defined predicate→mutation rules to
// transactions: substring or regex match on a field, rewriting the
// category and merging tags. Rules run over newly imported records on
// the commit path and can be replayed over existing records.
package rules

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/parser"
)

// MatchKind selects the predicate flavor.
type MatchKind string

const (
	MatchContains MatchKind = "contains"
	MatchRegex    MatchKind = "regex"
)

// MaxTags caps the accumulated tag set per record.
const MaxTags = 20

// Rule is one ordered predicate→mutation pair.
type Rule struct {
	ID          uuid.UUID
	Order       int
	CreatedAt   time.Time
	Field       string // "description", "category" or "note"
	MatchKind   MatchKind
	Value       string
	SetCategory *string
	SetTags     []string
	Enabled     bool
}

// Matcher holds an ordered, pre-compiled rule set. Regex patterns are
// compiled once; a malformed pattern is remembered as never-matching
// rather than surfacing an error mid-batch.
type Matcher struct {
	rules    []Rule
	compiled []*regexp.Regexp // parallel to rules; nil for contains or broken regex
}

// NewMatcher sorts rules by ascending order then creation time and
// compiles regex predicates.
func NewMatcher(rules []Rule) *Matcher {
	sorted := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	compiled := make([]*regexp.Regexp, len(sorted))
	for i, r := range sorted {
		if r.MatchKind != MatchRegex {
			continue
		}
		re, err := regexp.Compile("(?i)" + r.Value)
		if err != nil {
			continue // malformed pattern: never matches
		}
		compiled[i] = re
	}

	return &Matcher{rules: sorted, compiled: compiled}
}

// Len returns the number of active rules.
func (m *Matcher) Len() int { return len(m.rules) }

// Apply evaluates rules in order and mutates the record on the FIRST
// match: the rule's category (if any) overwrites, its tags merge into
// the existing set (union, insertion order, capped), and evaluation
// stops. Matching is not cumulative across rules.
func (m *Matcher) Apply(tx *parser.ImportableTransaction) bool {
	for i, r := range m.rules {
		if !m.matches(i, fieldValue(tx, r.Field)) {
			continue
		}
		if r.SetCategory != nil && *r.SetCategory != "" {
			tx.Category = *r.SetCategory
		}
		tx.Tags = mergeTags(tx.Tags, r.SetTags)
		return true
	}
	return false
}

func (m *Matcher) matches(i int, value string) bool {
	if value == "" {
		return false
	}
	r := m.rules[i]
	switch r.MatchKind {
	case MatchContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(r.Value))
	case MatchRegex:
		re := m.compiled[i]
		return re != nil && re.MatchString(value)
	default:
		return false
	}
}

func fieldValue(tx *parser.ImportableTransaction, field string) string {
	switch field {
	case "category":
		return tx.Category
	case "note":
		return tx.Note
	default:
		return tx.Description
	}
}

func mergeTags(existing, add []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(add))
	merged := make([]string, 0, len(existing)+len(add))
	for _, t := range existing {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		merged = append(merged, t)
	}
	for _, t := range add {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		if len(merged) >= MaxTags {
			break
		}
		seen[t] = struct{}{}
		merged = append(merged, t)
	}
	return merged
}
