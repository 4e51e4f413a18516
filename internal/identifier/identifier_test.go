package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bobmcallan/pagr/internal/models"
)

func TestResolve_Priority(t *testing.T) {
	tests := []struct {
		name     string
		pos      models.Position
		wantType models.IdentifierType
		wantVal  string
	}{
		{"cusip beats isin", models.Position{CUSIP: "037833100", ISIN: "US0378331005"}, models.IDTypeCUSIP, "037833100"},
		{"cusip beats ticker", models.Position{CUSIP: "037833100", Ticker: "AAPL-US"}, models.IDTypeCUSIP, "037833100"},
		{"isin beats ticker", models.Position{ISIN: "US0378331005", Ticker: "AAPL-US"}, models.IDTypeISIN, "US0378331005"},
		{"ticker alone", models.Position{Ticker: "bhp.au"}, models.IDTypeTicker, "BHP.AU"},
		{"placeholder cusip ignored", models.Position{CUSIP: "N/A", Ticker: "AAPL-US"}, models.IDTypeTicker, "AAPL-US"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := Resolve(&tt.pos)
			assert.Equal(t, tt.wantType, id.Type)
			assert.Equal(t, tt.wantVal, id.Value)
		})
	}
}

func TestResolve_Classification(t *testing.T) {
	tests := []struct {
		name string
		pos  models.Position
		want models.SecurityClass
	}{
		{"ticker resolved", models.Position{Ticker: "AAPL-US"}, models.ClassEquity},
		{"ticker resolved ignores bond label", models.Position{Ticker: "TLT-US", SecurityType: "Treasury Bond ETF"}, models.ClassEquity},
		{"cusip without ticker", models.Position{CUSIP: "037833AA5"}, models.ClassFixedIncome},
		{"isin without ticker", models.Position{ISIN: "US037833AA52"}, models.ClassFixedIncome},
		{"cusip with ticker, no bond signal", models.Position{CUSIP: "037833100", Ticker: "AAPL-US", SecurityType: "Common Stock"}, models.ClassEquity},
		{"cusip with ticker and bond signal", models.Position{CUSIP: "037833AA5", Ticker: "AAPL-US", SecurityType: "Corporate Note"}, models.ClassUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(&tt.pos).Class)
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	p := &models.Position{CUSIP: "037833aa5 ", Ticker: "aapl-us"}
	first := Resolve(p)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Resolve(p))
	}
	assert.Equal(t, "cusip:037833AA5", first.Key())
}

func TestResolveAll_AssignsOccurrenceKeys(t *testing.T) {
	positions := []*models.Position{
		{Ticker: "AAPL-US"},
		{CUSIP: "037833AA5"},
		{Ticker: "AAPL-US"},
	}
	ResolveAll(positions)

	assert.Equal(t, "ticker:AAPL-US#1", positions[0].Key)
	assert.Equal(t, "cusip:037833AA5#1", positions[1].Key)
	assert.Equal(t, "ticker:AAPL-US#2", positions[2].Key)

	ids := Distinct(positions)
	assert.Len(t, ids, 2)
	assert.Equal(t, "ticker:AAPL-US", ids[0].Key())
}

func TestNormalizeCountryCode(t *testing.T) {
	assert.Equal(t, "US", NormalizeCountryCode("US-DE"))
	assert.Equal(t, "GB", NormalizeCountryCode("GB"))
	assert.Equal(t, "", NormalizeCountryCode("null"))
}

func TestCheckDigits(t *testing.T) {
	assert.True(t, ValidCUSIP("037833100"))
	assert.True(t, ValidCUSIP("38141GXZ2"))
	assert.False(t, ValidCUSIP("037833AA5"))
	assert.False(t, ValidCUSIP("03783310"))

	assert.True(t, ValidISIN("US0378331005"))
	assert.True(t, ValidISIN("AU000000BHP4"))
	assert.True(t, ValidISIN("GB0002634946"))
	assert.False(t, ValidISIN("US0378331006"))
	assert.False(t, ValidISIN("0378331005US"))
}
