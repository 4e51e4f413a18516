package models

import (
	"strings"
	"time"
)

// SecurityVariant holds the attributes specific to one kind of security.
// Implemented by Stock and Bond.
type SecurityVariant interface {
	VariantName() string
}

// Stock carries the identifiers known for an equity
type Stock struct {
	Ticker string `json:"ticker,omitempty"`
	ISIN   string `json:"isin,omitempty"`
	CUSIP  string `json:"cusip,omitempty"`
}

func (Stock) VariantName() string { return "stock" }

// Bond carries fixed income terms
type Bond struct {
	CouponRate *float64   `json:"coupon_rate,omitempty"`
	Currency   string     `json:"currency,omitempty"`
	Maturity   *time.Time `json:"maturity,omitempty"`
}

func (Bond) VariantName() string { return "bond" }

// Security is shared by every position that holds it, across portfolios
type Security struct {
	Key        string          `json:"key"`
	Identifier Identifier      `json:"identifier"`
	Name       string          `json:"name,omitempty"`
	Price      *float64        `json:"price,omitempty"`
	PriceDate  *time.Time      `json:"price_date,omitempty"`
	IssuerID   string          `json:"issuer_id,omitempty"`
	Variant    SecurityVariant `json:"-"`
}

// Class returns the security class of the identity
func (s *Security) Class() SecurityClass {
	return s.Identifier.Class
}

// bondSignals are security-type words that only describe fixed income
var bondSignals = []string{"bond", "note", "bill", "debenture", "treasury", "fixed income"}

// HasBondSignal reports whether a security-type label describes fixed income
func HasBondSignal(label string) bool {
	l := strings.ToLower(strings.NewReplacer("_", " ", "-", " ").Replace(label))
	for _, s := range bondSignals {
		if strings.Contains(l, s) {
			return true
		}
	}
	return false
}

// Company is an issuer of securities
type Company struct {
	IssuerID          string   `json:"issuer_id"`
	Name              string   `json:"name"`
	Sector            string   `json:"sector,omitempty"`
	Industry          string   `json:"industry,omitempty"`
	OperationsCountry string   `json:"operations_country,omitempty"`
	DomicileCountry   string   `json:"domicile_country,omitempty"`
	CEO               *Officer `json:"ceo,omitempty"`
}

// Officer is a company officer as reported by the provider
type Officer struct {
	Name      string `json:"name"`
	Title     string `json:"title,omitempty"`
	StartDate string `json:"start_date,omitempty"`
}

// CEOOf returns the first officer titled chief executive, nil if none
func CEOOf(officers []Officer) *Officer {
	for i := range officers {
		o := officers[i]
		if strings.TrimSpace(o.Name) == "" {
			continue
		}
		title := strings.ToLower(o.Title)
		if strings.Contains(title, "chief executive") || hasWord(title, "ceo") {
			return &o
		}
	}
	return nil
}

func hasWord(s, word string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r < 'a' || r > 'z' }) {
		if f == word {
			return true
		}
	}
	return false
}
