package rules

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/parser"
)

func strPtr(s string) *string { return &s }

func rule(order int, kind MatchKind, value string, category *string, tags ...string) Rule {
	return Rule{
		ID:          uuid.New(),
		Order:       order,
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(order) * time.Minute),
		Field:       "description",
		MatchKind:   kind,
		Value:       value,
		SetCategory: category,
		SetTags:     tags,
		Enabled:     true,
	}
}

func TestMatcher(t *testing.T) {
	t.Run("first match wins in rule order", func(t *testing.T) {
		m := NewMatcher([]Rule{
			rule(2, MatchContains, "net", strPtr("Internet")),
			rule(1, MatchContains, "netflix", strPtr("Subscriptions")),
		})

		tx := parser.ImportableTransaction{Description: "NETFLIX.COM"}
		assert.True(t, m.Apply(&tx))
		assert.Equal(t, "Subscriptions", tx.Category)
	})

	t.Run("contains is case insensitive", func(t *testing.T) {
		m := NewMatcher([]Rule{rule(1, MatchContains, "Spotify", strPtr("Music"))})
		tx := parser.ImportableTransaction{Description: "spotify ab"}
		assert.True(t, m.Apply(&tx))
	})

	t.Run("regex matching", func(t *testing.T) {
		m := NewMatcher([]Rule{rule(1, MatchRegex, `uber\s+(trip|eats)`, strPtr("Transport"))})
		tx := parser.ImportableTransaction{Description: "UBER TRIP HELSINKI"}
		assert.True(t, m.Apply(&tx))
		assert.Equal(t, "Transport", tx.Category)
	})

	t.Run("malformed regex never matches and never errors", func(t *testing.T) {
		m := NewMatcher([]Rule{
			rule(1, MatchRegex, `uber(`, strPtr("Broken")),
			rule(2, MatchContains, "uber", strPtr("Transport")),
		})
		tx := parser.ImportableTransaction{Description: "uber trip"}
		assert.True(t, m.Apply(&tx))
		assert.Equal(t, "Transport", tx.Category)
	})

	t.Run("matched rule overwrites existing category", func(t *testing.T) {
		m := NewMatcher([]Rule{rule(1, MatchContains, "gym", strPtr("Health"))})
		tx := parser.ImportableTransaction{Description: "GYM MEMBERSHIP", Category: "Other"}
		assert.True(t, m.Apply(&tx))
		assert.Equal(t, "Health", tx.Category)
	})

	t.Run("nil category keeps the existing one", func(t *testing.T) {
		m := NewMatcher([]Rule{rule(1, MatchContains, "gym", nil, "fitness")})
		tx := parser.ImportableTransaction{Description: "GYM MEMBERSHIP", Category: "Other"}
		assert.True(t, m.Apply(&tx))
		assert.Equal(t, "Other", tx.Category)
		assert.Equal(t, []string{"fitness"}, tx.Tags)
	})

	t.Run("tags union without duplicates", func(t *testing.T) {
		m := NewMatcher([]Rule{rule(1, MatchContains, "gym", nil, "fitness", "monthly")})
		tx := parser.ImportableTransaction{Description: "gym", Tags: []string{"monthly"}}
		assert.True(t, m.Apply(&tx))
		assert.Equal(t, []string{"monthly", "fitness"}, tx.Tags)
	})

	t.Run("tag count is capped", func(t *testing.T) {
		var tags []string
		for i := 0; i < MaxTags+10; i++ {
			tags = append(tags, fmt.Sprintf("tag-%d", i))
		}
		m := NewMatcher([]Rule{rule(1, MatchContains, "gym", nil, tags...)})
		tx := parser.ImportableTransaction{Description: "gym"}
		assert.True(t, m.Apply(&tx))
		assert.Len(t, tx.Tags, MaxTags)
	})

	t.Run("disabled rules are ignored", func(t *testing.T) {
		r := rule(1, MatchContains, "gym", strPtr("Health"))
		r.Enabled = false
		m := NewMatcher([]Rule{r})
		tx := parser.ImportableTransaction{Description: "gym"}
		assert.False(t, m.Apply(&tx))
		assert.Equal(t, 0, m.Len())
	})

	t.Run("no rules no match", func(t *testing.T) {
		m := NewMatcher(nil)
		tx := parser.ImportableTransaction{Description: "anything"}
		require.False(t, m.Apply(&tx))
	})
}
