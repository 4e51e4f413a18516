package surrealdb

import (
	"reflect"
	"strings"
)

// nodeRecord is the stored shape of every node table. Each kind uses a
// subset of the fields; unset fields stay nil.
type nodeRecord struct {
	Key string `json:"key"`

	Name      *string  `json:"name,omitempty"`
	Class     *string  `json:"class,omitempty"`
	Ticker    *string  `json:"ticker,omitempty"`
	ISIN      *string  `json:"isin,omitempty"`
	CUSIP     *string  `json:"cusip,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	IssuerID  *string  `json:"issuer_id,omitempty"`
	CreatedAt *string  `json:"created_at,omitempty"`
	UpdatedAt *string  `json:"updated_at,omitempty"`
	LastRunID *string  `json:"last_run_id,omitempty"`

	TotalBookValue *float64 `json:"total_book_value,omitempty"`
	PositionCount  *float64 `json:"position_count,omitempty"`

	Portfolio    *string  `json:"portfolio,omitempty"`
	PositionKey  *string  `json:"position_key,omitempty"`
	Row          *float64 `json:"row,omitempty"`
	SecurityKey  *string  `json:"security_key,omitempty"`
	SecurityType *string  `json:"security_type,omitempty"`
	Quantity     *float64 `json:"quantity,omitempty"`
	CostBasis    *float64 `json:"cost_basis,omitempty"`
	CurrentValue *float64 `json:"current_value,omitempty"`
	BookValue    *float64 `json:"book_value,omitempty"`
	MarketValue  *float64 `json:"market_value,omitempty"`
	Weight       *float64 `json:"weight,omitempty"`
	PurchaseDate *string  `json:"purchase_date,omitempty"`

	IdentifierType  *string  `json:"identifier_type,omitempty"`
	IdentifierValue *string  `json:"identifier_value,omitempty"`
	Variant         *string  `json:"variant,omitempty"`
	PriceDate       *string  `json:"price_date,omitempty"`
	CouponRate      *float64 `json:"coupon_rate,omitempty"`
	Currency        *string  `json:"currency,omitempty"`
	Maturity        *string  `json:"maturity,omitempty"`

	Sector            *string `json:"sector,omitempty"`
	Industry          *string `json:"industry,omitempty"`
	OperationsCountry *string `json:"operations_country,omitempty"`
	DomicileCountry   *string `json:"domicile_country,omitempty"`

	Code   *string `json:"code,omitempty"`
	Region *string `json:"region,omitempty"`

	Title     *string `json:"title,omitempty"`
	StartDate *string `json:"start_date,omitempty"`
}

// fields flattens the set fields of a record into a map keyed by the
// stored field name
func (r *nodeRecord) fields() map[string]any {
	out := make(map[string]any)
	v := reflect.ValueOf(r).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() != reflect.Ptr || f.IsNil() {
			continue
		}
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		out[name] = f.Elem().Interface()
	}
	return out
}

// edgeRecord is the stored shape of every edge table besides in/out
type edgeRecord struct {
	FromKey  string `json:"from_key"`
	ToKey    string `json:"to_key"`
	FromKind string `json:"from_kind"`
	ToKind   string `json:"to_kind"`
}

type countResult struct {
	Cnt int `json:"cnt"`
}
