package models

import "time"

// Dimension is an exposure grouping
type Dimension string

const (
	DimSector        Dimension = "sector"
	DimCountry       Dimension = "country" // country of operations
	DimCountryOfRisk Dimension = "country_of_risk"
	DimIssuer        Dimension = "issuer"
	DimRegion        Dimension = "region" // region of the country of operations
)

// ParseDimension validates a dimension name
func ParseDimension(s string) (Dimension, bool) {
	switch d := Dimension(s); d {
	case DimSector, DimCountry, DimCountryOfRisk, DimIssuer, DimRegion:
		return d, true
	}
	return "", false
}

// UnknownGroup is the bucket for positions without data for a dimension
const UnknownGroup = "Unknown"

// ExposureRow is one group of an exposure breakdown
type ExposureRow struct {
	GroupKey      string  `json:"group_key"`
	GroupLabel    string  `json:"group_label"`
	TotalValue    float64 `json:"total_value"`
	TotalWeight   float64 `json:"total_weight"`
	PositionCount int     `json:"position_count"`
	UnpricedCount int     `json:"unpriced_count"`
}

// PositionView is a stored position with its resolved attributes
type PositionView struct {
	Portfolio         string        `json:"portfolio"`
	Key               string        `json:"key"`
	Row               int           `json:"row"`
	SecurityKey       string        `json:"security_key"`
	Class             SecurityClass `json:"class"`
	SecurityName      string        `json:"security_name,omitempty"`
	Quantity          float64       `json:"quantity"`
	BookValue         float64       `json:"book_value"`
	MarketValue       *float64      `json:"market_value"` // nil = data unavailable
	Price             *float64      `json:"price,omitempty"`
	Weight            float64       `json:"weight"`
	Sector            string        `json:"sector,omitempty"`
	IssuerID          string        `json:"issuer_id,omitempty"`
	Issuer            string        `json:"issuer,omitempty"`
	OperationsCountry string        `json:"operations_country,omitempty"`
	DomicileCountry   string        `json:"domicile_country,omitempty"`
	Region            string        `json:"region,omitempty"`
	CEO               string        `json:"ceo,omitempty"`
	CEOTitle          string        `json:"ceo_title,omitempty"`
}

// ExecutiveRow is the chief executive of a held company with the value
// held in that company
type ExecutiveRow struct {
	IssuerID      string  `json:"issuer_id"`
	Company       string  `json:"company"`
	Executive     string  `json:"executive"`
	Title         string  `json:"title,omitempty"`
	TotalValue    float64 `json:"total_value"`
	PositionCount int     `json:"position_count"`
}

// StressRow is one company hit by a sector slowdown in a region
type StressRow struct {
	IssuerID       string  `json:"issuer_id"`
	Company        string  `json:"company"`
	Sector         string  `json:"sector"`
	Country        string  `json:"country"`
	ExposureAtRisk float64 `json:"exposure_at_risk"`
	Weight         float64 `json:"weight"` // share of the selection's market value
	PositionCount  int     `json:"position_count"`
}

// RowIssue is a rejected row or a warning reported by a load
type RowIssue struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// IncompleteSecurity is a security whose enrichment left data unavailable
type IncompleteSecurity struct {
	Key     string            `json:"key"`
	Stages  []EnrichmentStage `json:"stages"`
	Message string            `json:"message"`
}

// LoadSummary reports the outcome of a portfolio load
type LoadSummary struct {
	Portfolio       string               `json:"portfolio"`
	RunID           string               `json:"run_id"`
	RowsLoaded      int                  `json:"rows_loaded"`
	RowsRejected    int                  `json:"rows_rejected"`
	RowErrors       []RowIssue           `json:"row_errors,omitempty"`
	Warnings        []RowIssue           `json:"warnings,omitempty"`
	Incomplete      []IncompleteSecurity `json:"incomplete,omitempty"`
	Failures        []EnrichmentFailure  `json:"failures,omitempty"`
	CompanyFailures []EnrichmentFailure  `json:"company_failures,omitempty"` // officer lookups, by issuer id
	Graph           *UpsertStats         `json:"graph,omitempty"`
	Duration        time.Duration        `json:"duration"`
}
