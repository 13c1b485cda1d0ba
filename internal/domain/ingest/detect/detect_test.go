package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/normalizer"
)

func TestDetectKind(t *testing.T) {
	t.Run("extension is authoritative", func(t *testing.T) {
		cases := map[string]FileKind{
			"statement.csv":  KindCSV,
			"Statement.CSV":  KindCSV,
			"statement.xlsx": KindXLSX,
			"statement.xls":  KindXLS,
		}
		for name, want := range cases {
			got, err := DetectKind(name, "application/octet-stream")
			require.NoError(t, err, name)
			assert.Equal(t, want, got, name)
		}
	})

	t.Run("content type fallback", func(t *testing.T) {
		got, err := DetectKind("upload", "text/csv; charset=utf-8")
		require.NoError(t, err)
		assert.Equal(t, KindCSV, got)

		got, err = DetectKind("upload", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		require.NoError(t, err)
		assert.Equal(t, KindXLSX, got)

		got, err = DetectKind("upload", "application/vnd.ms-excel")
		require.NoError(t, err)
		assert.Equal(t, KindXLS, got)
	})

	t.Run("unknown format is rejected", func(t *testing.T) {
		_, err := DetectKind("statement.pdf", "application/pdf")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestSniffDelimiter(t *testing.T) {
	cases := []struct {
		name string
		data string
		want rune
	}{
		{"comma", "date,description,amount\n", ','},
		{"semicolon", "date;description;amount\n", ';'},
		{"tab", "date\tdescription\tamount\n", '\t'},
		{"comma wins ties", "a,b;c,d;e\n", ','},
		{"defaults to comma", "singlecolumn\n", ','},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SniffDelimiter([]byte(tc.data)))
		})
	}
}

func TestSuggestMapping(t *testing.T) {
	t.Run("prefers specific date headers over plain date", func(t *testing.T) {
		headers := []string{"Trans. Date", "Post Date", "Description", "Amount"}
		m := SuggestMapping(headers)
		assert.Equal(t, "Trans. Date", m.Date)
		assert.Equal(t, "Description", m.Description)
		assert.Equal(t, "Amount", m.Amount)
	})

	t.Run("recognizes issuer shape and pins polarity", func(t *testing.T) {
		headers := []string{"Trans. Date", "Post Date", "Description", "Amount"}
		m := SuggestMapping(headers)
		assert.NotEmpty(t, m.IssuerProfile)
		assert.Equal(t, normalizer.PolarityNegativeIsIncome, m.Polarity)
	})

	t.Run("bank style headers map to negative is expense", func(t *testing.T) {
		headers := []string{"Posted Date", "Payee", "Amount", "Balance"}
		m := SuggestMapping(headers)
		assert.NotEmpty(t, m.IssuerProfile)
		assert.Equal(t, normalizer.PolarityNegativeIsExpense, m.Polarity)
		assert.Equal(t, "Payee", m.Description)
	})

	t.Run("unmatched roles stay unset", func(t *testing.T) {
		m := SuggestMapping([]string{"Column A", "Column B"})
		assert.Empty(t, m.Date)
		assert.Empty(t, m.Description)
		assert.Empty(t, m.Amount)
	})
}

func TestSignature(t *testing.T) {
	t.Run("independent of column order and case", func(t *testing.T) {
		a := Signature([]string{"Date", "Description", "Amount"})
		b := Signature([]string{"amount", "DATE", "description"})
		assert.Equal(t, a, b)
	})

	t.Run("sensitive to the header set", func(t *testing.T) {
		a := Signature([]string{"Date", "Description", "Amount"})
		b := Signature([]string{"Date", "Description", "Amount", "Balance"})
		assert.NotEqual(t, a, b)
	})
}

func TestInspect(t *testing.T) {
	t.Run("csv inspection", func(t *testing.T) {
		data := []byte("Trans. Date;Post Date;Description;Amount\n2024-01-15;2024-01-16;Coffee;4.50\n")
		insp, err := Inspect(data, KindCSV, "")
		require.NoError(t, err)

		assert.Equal(t, ";", insp.Delimiter)
		assert.Equal(t, []string{"Trans. Date", "Post Date", "Description", "Amount"}, insp.Columns)
		assert.Equal(t, "Trans. Date", insp.Suggested.Date)
		assert.NotEmpty(t, insp.Signature)
	})
}
