package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHeader(t *testing.T) {
	for _, h := range []string{"Book Value", "book_value", "Book_Value", "BOOK-VALUE", "  book   value "} {
		assert.Equal(t, "book_value", NormalizeHeader(h), "header %q", h)
	}
}

func TestParse_ValidRows(t *testing.T) {
	headers := []string{"Ticker", "CUSIP", "Shares", "Book Value", "Market Value", "Security Type"}
	rows := []map[string]string{
		{"Ticker": "aapl-us", "CUSIP": "", "Shares": "100", "Book Value": "$19,000.00", "Market Value": "", "Security Type": "Common Stock"},
		{"Ticker": "N/A", "CUSIP": "037833aa5", "Shares": "500", "Book Value": "", "Market Value": "50,000", "Security Type": "Corporate Bond"},
	}

	res, err := Parse(headers, rows)
	require.NoError(t, err)
	require.Len(t, res.Positions, 2)
	assert.Empty(t, res.Errors)

	aapl := res.Positions[0]
	assert.Equal(t, 2, aapl.Row)
	assert.Equal(t, "AAPL-US", aapl.Ticker)
	assert.Equal(t, 100.0, aapl.Quantity)
	assert.Equal(t, 19000.0, aapl.BookValue)
	require.NotNil(t, aapl.CostBasis)
	assert.Nil(t, aapl.CurrentValue)

	bond := res.Positions[1]
	assert.Equal(t, 3, bond.Row)
	assert.Equal(t, "", bond.Ticker)
	assert.Equal(t, "037833AA5", bond.CUSIP)
	assert.Equal(t, 50000.0, bond.BookValue, "current value stands in when cost basis is absent")
	assert.Nil(t, bond.CostBasis)
}

func TestParse_CostBasisAuthoritative(t *testing.T) {
	headers := []string{"ticker", "quantity", "cost_basis", "current_value"}
	rows := []map[string]string{
		{"ticker": "BHP.AU", "quantity": "10", "cost_basis": "400", "current_value": "450"},
	}
	res, err := Parse(headers, rows)
	require.NoError(t, err)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, 400.0, res.Positions[0].BookValue)
	require.NotNil(t, res.Positions[0].CurrentValue)
	assert.Equal(t, 450.0, *res.Positions[0].CurrentValue)
}

func TestParse_RowErrors(t *testing.T) {
	headers := []string{"ticker", "isin", "quantity", "book_value"}
	rows := []map[string]string{
		{"ticker": "", "isin": "null", "quantity": "10", "book_value": "100"},
		{"ticker": "MSFT-US", "isin": "", "quantity": "ten", "book_value": "100"},
		{"ticker": "MSFT-US", "isin": "", "quantity": "0", "book_value": "100"},
		{"ticker": "MSFT-US", "isin": "", "quantity": "5", "book_value": "-1"},
		{"ticker": "MSFT-US", "isin": "", "quantity": "5", "book_value": ""},
		{"ticker": "MSFT-US", "isin": "", "quantity": "5", "book_value": "500"},
	}

	res, err := Parse(headers, rows)
	require.NoError(t, err)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, 7, res.Positions[0].Row)
	require.Len(t, res.Errors, 5)

	missing := res.Errors[0]
	assert.Equal(t, 2, missing.Row)
	assert.Equal(t, KindMissingIdentifier, missing.Kind)
	assert.True(t, errors.Is(missing, ErrMissingIdentifier))
	assert.Contains(t, missing.Error(), "row 2")

	malformed := res.Errors[1]
	assert.Equal(t, 3, malformed.Row)
	assert.Equal(t, FieldQuantity, malformed.Field)
	assert.True(t, errors.Is(malformed, ErrMalformedNumber))
	assert.False(t, errors.Is(malformed, ErrValidation))

	for _, e := range res.Errors[2:] {
		assert.Equal(t, KindValidation, e.Kind, "row %d", e.Row)
		assert.True(t, errors.Is(e, ErrValidation))
	}
}

func TestParse_HeaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		missing string
	}{
		{"no quantity", []string{"ticker", "book_value"}, "quantity"},
		{"no value", []string{"ticker", "quantity"}, "book_value or market_value"},
		{"no identifier", []string{"quantity", "market_value"}, "ticker, isin or cusip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse(tt.headers, nil)
			assert.Nil(t, res)
			var he *HeaderError
			require.True(t, errors.As(err, &he))
			assert.Contains(t, he.Missing, tt.missing)
		})
	}
}

func TestParse_Warnings(t *testing.T) {
	headers := []string{"Symbol", "ISIN", "Units", "Current Value", "Notes"}
	rows := []map[string]string{
		{"Symbol": "AAPL", "ISIN": "", "Units": "1", "Current Value": "190", "Notes": "x"},
		{"Symbol": "", "ISIN": "US0378331006", "Units": "1", "Current Value": "190", "Notes": ""},
	}
	res, err := Parse(headers, rows)
	require.NoError(t, err)
	require.Len(t, res.Positions, 2)

	kinds := map[string]int{}
	for _, w := range res.Warnings {
		kinds[w.Kind]++
	}
	assert.Equal(t, 1, kinds["unknown_column"])
	assert.Equal(t, 1, kinds["ticker_suffix"])
	assert.Equal(t, 1, kinds["check_digit"])
}

func TestParse_SkipsBlankRowsKeepingRowNumbers(t *testing.T) {
	headers := []string{"ticker", "quantity", "book_value"}
	rows := []map[string]string{
		{"ticker": "", "quantity": "", "book_value": ""},
		{"ticker": "BHP.AU", "quantity": "1", "book_value": "45"},
	}
	res, err := Parse(headers, rows)
	require.NoError(t, err)
	require.Len(t, res.Positions, 1)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 3, res.Positions[0].Row)
}

func TestParseNumber(t *testing.T) {
	tests := map[string]float64{
		"1,234.50":  1234.5,
		"$19,000":   19000,
		"€ 12":      12,
		"-£3.25":    -3.25,
		" 42 ":      42,
		"1.5e3":     1500,
	}
	for in, want := range tests {
		got, err := ParseNumber(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "abc", "$", "NaN", "12abc"} {
		_, err := ParseNumber(bad)
		assert.Error(t, err, bad)
	}
}

func TestReadCSV(t *testing.T) {
	input := "\ufeffTicker,CUSIP,Quantity,Book Value\n" +
		"AAPL-US,,100,\"19,000\"\n" +
		",037833AA5,500,50000\n" +
		"MSFT-US,,5\n"

	headers, rows, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"Ticker", "CUSIP", "Quantity", "Book Value"}, headers)
	require.Len(t, rows, 3)
	assert.Equal(t, "19,000", rows[0]["Book Value"])
	assert.Equal(t, "037833AA5", rows[1]["CUSIP"])
	assert.Equal(t, "", rows[2]["Book Value"])

	res, err := Parse(headers, rows)
	require.NoError(t, err)
	assert.Len(t, res.Positions, 2)
	assert.Len(t, res.Errors, 1)
}

func TestReadCSV_Empty(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}
