package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one validated row of portfolio input
type Position struct {
	Key          string     `json:"key"` // <security key>#<occurrence>
	Row          int        `json:"row"` // source row, header is row 1
	Ticker       string     `json:"ticker,omitempty"`
	ISIN         string     `json:"isin,omitempty"`
	CUSIP        string     `json:"cusip,omitempty"`
	SecurityType string     `json:"security_type,omitempty"`
	Quantity     float64    `json:"quantity"`
	CostBasis    *float64   `json:"cost_basis,omitempty"`
	CurrentValue *float64   `json:"current_value,omitempty"`
	BookValue    float64    `json:"book_value"`
	PurchaseDate *time.Time `json:"purchase_date,omitempty"`
	Identifier   Identifier `json:"identifier"`
	Weight       float64    `json:"weight"`

	// Set by valuation after enrichment. Nil means data unavailable.
	MarketValue *float64 `json:"market_value,omitempty"`
	Price       *float64 `json:"price,omitempty"`
}

// SecurityKey returns the identity key of the security the position holds
func (p *Position) SecurityKey() string {
	return p.Identifier.Key()
}

// Portfolio is a named set of positions
type Portfolio struct {
	Name           string      `json:"name"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Positions      []*Position `json:"positions"`
	TotalBookValue float64     `json:"total_book_value"`
	RunID          string      `json:"run_id,omitempty"` // load that produced this version
}

// ComputeWeights sets TotalBookValue and each position's Weight as its share
// of the total book value in percent. Sums use decimal arithmetic so the
// weights of a portfolio add up to 100.
func (p *Portfolio) ComputeWeights() {
	total := decimal.Zero
	for _, pos := range p.Positions {
		total = total.Add(decimal.NewFromFloat(pos.BookValue))
	}
	p.TotalBookValue = total.InexactFloat64()

	hundred := decimal.NewFromInt(100)
	for _, pos := range p.Positions {
		if total.IsZero() {
			pos.Weight = 0
			continue
		}
		pos.Weight = decimal.NewFromFloat(pos.BookValue).Div(total).Mul(hundred).InexactFloat64()
	}
}

// PortfolioSummary is a listing row for a stored portfolio
type PortfolioSummary struct {
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	PositionCount  int       `json:"position_count"`
	TotalBookValue float64   `json:"total_book_value"`
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}
