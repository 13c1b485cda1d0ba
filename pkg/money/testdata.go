package money

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// TestDataGenerator produces realistic statement-style fixtures for
// tests: merchants, descriptions and bounded amounts.
type TestDataGenerator struct {
	faker *gofakeit.Faker
}

// NewTestDataGenerator creates a generator with a random seed.
func NewTestDataGenerator() *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(0)}
}

// NewTestDataGeneratorWithSeed creates a reproducible generator.
func NewTestDataGeneratorWithSeed(seed int64) *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(seed)}
}

// RandomAmount returns an amount between minCents and maxCents.
func (g *TestDataGenerator) RandomAmount(currency string, minCents, maxCents int64) *Money {
	if maxCents <= minCents {
		return New(minCents, currency)
	}
	cents := minCents + int64(g.faker.Number(0, int(maxCents-minCents)))
	return New(cents, currency)
}

// RandomDecimal returns a two-place decimal between the bounds.
func (g *TestDataGenerator) RandomDecimal(minCents, maxCents int64) decimal.Decimal {
	return FromCents(g.RandomAmount(USD, minCents, maxCents).Amount())
}

// Merchant returns a company name as it might appear on a statement.
func (g *TestDataGenerator) Merchant() string {
	return g.faker.Company()
}

// StatementDescription returns a raw bank-style description with the
// processor noise real exports carry.
func (g *TestDataGenerator) StatementDescription() string {
	merchant := g.faker.Company()
	switch g.faker.Number(0, 3) {
	case 0:
		return fmt.Sprintf("POS %s %d", merchant, g.faker.Number(10000, 99999))
	case 1:
		return fmt.Sprintf("SQ *%s", merchant)
	case 2:
		return fmt.Sprintf("PAYPAL *%s", merchant)
	default:
		return merchant
	}
}

// Date returns a day within the past year, formatted ISO.
func (g *TestDataGenerator) Date() string {
	end := time.Now()
	start := end.AddDate(-1, 0, 0)
	return g.faker.DateRange(start, end).Format("2006-01-02")
}

// CSVRow renders one statement line under a Date,Description,Amount
// header. The description is quoted so merchant punctuation cannot
// break the record.
func (g *TestDataGenerator) CSVRow() string {
	amount := g.RandomDecimal(100, 50000)
	if g.faker.Bool() {
		amount = amount.Neg()
	}
	desc := strings.ReplaceAll(g.StatementDescription(), `"`, `""`)
	return fmt.Sprintf(`%s,"%s",%s`, g.Date(), desc, amount.StringFixed(2))
}
