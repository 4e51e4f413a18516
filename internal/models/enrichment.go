package models

import (
	"sort"
	"time"
)

// Profile is the reference data the provider returns for one identifier
type Profile struct {
	Identifier        Identifier `json:"identifier"`
	SecurityName      string     `json:"security_name,omitempty"`
	SecurityType      string     `json:"security_type,omitempty"`
	IssuerID          string     `json:"issuer_id,omitempty"`
	IssuerName        string     `json:"issuer_name,omitempty"`
	Sector            string     `json:"sector,omitempty"`
	Industry          string     `json:"industry,omitempty"`
	OperationsCountry string     `json:"operations_country,omitempty"`
	DomicileCountry   string     `json:"domicile_country,omitempty"`
	Ticker            string     `json:"ticker,omitempty"`
	ISIN              string     `json:"isin,omitempty"`
	CUSIP             string     `json:"cusip,omitempty"`
	CouponRate        *float64   `json:"coupon_rate,omitempty"`
	Currency          string     `json:"currency,omitempty"`
	Maturity          *time.Time `json:"maturity,omitempty"`
}

// Quote is a price for one identifier key
type Quote struct {
	Key   string    `json:"key"`
	Price float64   `json:"price"`
	Date  time.Time `json:"date"`
}

// PriceResponse is either complete, with quotes keyed by identifier key, or
// pending, with a job id to poll.
type PriceResponse struct {
	Pending         bool              `json:"pending"`
	JobID           string            `json:"job_id,omitempty"`
	MinPollInterval time.Duration     `json:"min_poll_interval,omitempty"` // provider-suggested, zero if none
	Quotes          map[string]Quote  `json:"quotes,omitempty"`
	Errors          map[string]string `json:"errors,omitempty"` // per-key reasons for unpriced identifiers
}

// EnrichmentStage names the lookup that failed
type EnrichmentStage string

const (
	StageProfile  EnrichmentStage = "profile"
	StagePrice    EnrichmentStage = "price"
	StageOfficers EnrichmentStage = "officers"
)

// EnrichmentFailure records a lookup that did not produce data
type EnrichmentFailure struct {
	Key      string          `json:"key"`
	Stage    EnrichmentStage `json:"stage"`
	Reason   string          `json:"reason"`
	Attempts int             `json:"attempts"`
}

// EnrichmentResult is everything learned about the securities of a load
type EnrichmentResult struct {
	Securities map[string]*Security `json:"securities"` // by security key
	Companies  map[string]*Company  `json:"companies"`  // by issuer id
	Countries  map[string]*Country  `json:"countries"`  // by ISO code
	Issuers    map[string]string    `json:"issuers"`    // security key -> issuer id
	Failures   []EnrichmentFailure  `json:"failures,omitempty"`

	// CompanyFailures are officer lookups that failed, keyed by issuer id.
	// They leave the company without a CEO but every security complete.
	CompanyFailures []EnrichmentFailure `json:"company_failures,omitempty"`
}

// NewEnrichmentResult returns an empty result with initialised maps
func NewEnrichmentResult() *EnrichmentResult {
	return &EnrichmentResult{
		Securities: make(map[string]*Security),
		Companies:  make(map[string]*Company),
		Countries:  make(map[string]*Country),
		Issuers:    make(map[string]string),
	}
}

// FailuresFor returns the failures recorded for a security key
func (r *EnrichmentResult) FailuresFor(key string) []EnrichmentFailure {
	var out []EnrichmentFailure
	for _, f := range r.Failures {
		if f.Key == key {
			out = append(out, f)
		}
	}
	return out
}

// SortFailures orders failures by key then stage
func (r *EnrichmentResult) SortFailures() {
	sortFailures(r.Failures)
	sortFailures(r.CompanyFailures)
}

func sortFailures(fs []EnrichmentFailure) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].Key != fs[j].Key {
			return fs[i].Key < fs[j].Key
		}
		return fs[i].Stage < fs[j].Stage
	})
}
