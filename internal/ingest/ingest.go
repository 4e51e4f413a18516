// Package ingest parses raw portfolio records into validated positions
package ingest

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/pagr/internal/identifier"
	"github.com/bobmcallan/pagr/internal/models"
)

// Canonical field names after header normalization and aliasing
const (
	FieldQuantity     = "quantity"
	FieldCostBasis    = "cost_basis"
	FieldCurrentValue = "current_value"
	FieldTicker       = "ticker"
	FieldISIN         = "isin"
	FieldCUSIP        = "cusip"
	FieldSecurityType = "security_type"
	FieldPurchaseDate = "purchase_date"
)

// aliases maps normalized header names to canonical fields
var aliases = map[string]string{
	"quantity":      FieldQuantity,
	"shares":        FieldQuantity,
	"units":         FieldQuantity,
	"book_value":    FieldCostBasis,
	"cost_basis":    FieldCostBasis,
	"market_value":  FieldCurrentValue,
	"current_value": FieldCurrentValue,
	"ticker":        FieldTicker,
	"symbol":        FieldTicker,
	"isin":          FieldISIN,
	"cusip":         FieldCUSIP,
	"security_type": FieldSecurityType,
	"type":          FieldSecurityType,
	"asset_type":    FieldSecurityType,
	"purchase_date": FieldPurchaseDate,
}

var separatorRun = regexp.MustCompile(`[\s_\-]+`)

// NormalizeHeader folds case and treats runs of whitespace, underscores and
// hyphens as a single underscore: "Book Value", "book_value" and
// "Book_Value" all become "book_value".
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = separatorRun.ReplaceAllString(h, "_")
	return strings.Trim(h, "_")
}

// Result is the outcome of parsing a batch
type Result struct {
	Positions []*models.Position
	Errors    []*RowError
	Warnings  []models.RowIssue
}

// Parse validates a batch of rows keyed by raw header text. Header problems
// are fatal and returned as *HeaderError. Row problems reject only that row.
func Parse(headers []string, rows []map[string]string) (*Result, error) {
	columns, warnings, err := mapHeaders(headers)
	if err != nil {
		return nil, err
	}

	result := &Result{Warnings: warnings}
	for i, raw := range rows {
		rowNum := i + 2 // header is row 1
		fields := make(map[string]string, len(columns))
		blank := true
		for _, col := range columns {
			field := col.field
			v := strings.TrimSpace(raw[col.header])
			if v != "" {
				blank = false
			}
			// first non-empty value wins when two headers alias one field
			if fields[field] == "" {
				fields[field] = v
			}
		}
		if blank {
			continue
		}

		pos, rowWarnings, rowErr := parseRow(rowNum, fields)
		if rowErr != nil {
			result.Errors = append(result.Errors, rowErr)
			continue
		}
		result.Warnings = append(result.Warnings, rowWarnings...)
		result.Positions = append(result.Positions, pos)
	}
	return result, nil
}

type column struct {
	header string
	field  string
}

// mapHeaders maps raw headers to canonical fields, in header order, and
// checks that the required columns exist
func mapHeaders(headers []string) ([]column, []models.RowIssue, error) {
	var columns []column
	present := make(map[string]bool)
	var warnings []models.RowIssue

	for _, h := range headers {
		norm := NormalizeHeader(h)
		field, ok := aliases[norm]
		if !ok {
			if norm != "" {
				warnings = append(warnings, models.RowIssue{
					Row:     1,
					Field:   h,
					Kind:    "unknown_column",
					Message: "column ignored",
				})
			}
			continue
		}
		columns = append(columns, column{header: h, field: field})
		present[field] = true
	}

	var missing []string
	if !present[FieldQuantity] {
		missing = append(missing, "quantity")
	}
	if !present[FieldCostBasis] && !present[FieldCurrentValue] {
		missing = append(missing, "book_value or market_value")
	}
	if !present[FieldTicker] && !present[FieldISIN] && !present[FieldCUSIP] {
		missing = append(missing, "ticker, isin or cusip")
	}
	if len(missing) > 0 {
		return nil, nil, &HeaderError{Missing: missing, Headers: headers}
	}

	sort.SliceStable(warnings, func(i, j int) bool { return warnings[i].Field < warnings[j].Field })
	return columns, warnings, nil
}

func parseRow(row int, fields map[string]string) (*models.Position, []models.RowIssue, *RowError) {
	pos := &models.Position{
		Row:          row,
		Ticker:       models.CleanIdentifier(fields[FieldTicker]),
		ISIN:         models.CleanIdentifier(fields[FieldISIN]),
		CUSIP:        models.CleanIdentifier(fields[FieldCUSIP]),
		SecurityType: strings.TrimSpace(fields[FieldSecurityType]),
	}

	if pos.Ticker == "" && pos.ISIN == "" && pos.CUSIP == "" {
		return nil, nil, &RowError{
			Row:     row,
			Field:   "identifier",
			Kind:    KindMissingIdentifier,
			Message: "one of ticker, isin or cusip is required",
		}
	}

	qtyRaw := fields[FieldQuantity]
	if qtyRaw == "" {
		return nil, nil, &RowError{Row: row, Field: FieldQuantity, Kind: KindValidation, Message: "quantity is required"}
	}
	qty, err := ParseNumber(qtyRaw)
	if err != nil {
		return nil, nil, &RowError{Row: row, Field: FieldQuantity, Kind: KindMalformedNumber, Value: qtyRaw, Message: "not a number"}
	}
	if qty <= 0 {
		return nil, nil, &RowError{Row: row, Field: FieldQuantity, Kind: KindValidation, Value: qtyRaw, Message: "quantity must be greater than zero"}
	}
	pos.Quantity = qty

	for _, f := range []string{FieldCostBasis, FieldCurrentValue} {
		raw := fields[f]
		if raw == "" {
			continue
		}
		v, err := ParseNumber(raw)
		if err != nil {
			return nil, nil, &RowError{Row: row, Field: f, Kind: KindMalformedNumber, Value: raw, Message: "not a number"}
		}
		if v < 0 {
			return nil, nil, &RowError{Row: row, Field: f, Kind: KindValidation, Value: raw, Message: "value must not be negative"}
		}
		if f == FieldCostBasis {
			pos.CostBasis = models.Float(v)
		} else {
			pos.CurrentValue = models.Float(v)
		}
	}
	switch {
	case pos.CostBasis != nil:
		pos.BookValue = *pos.CostBasis
	case pos.CurrentValue != nil:
		pos.BookValue = *pos.CurrentValue
	default:
		return nil, nil, &RowError{Row: row, Field: "value", Kind: KindValidation, Message: "book_value or market_value is required"}
	}

	var warnings []models.RowIssue
	if raw := fields[FieldPurchaseDate]; raw != "" {
		if d, ok := parseDate(raw); ok {
			pos.PurchaseDate = &d
		} else {
			warnings = append(warnings, models.RowIssue{Row: row, Field: FieldPurchaseDate, Kind: "invalid_date", Message: fmt.Sprintf("unrecognised date %q ignored", raw)})
		}
	}
	if pos.Ticker != "" && !HasExchangeSuffix(pos.Ticker) {
		warnings = append(warnings, models.RowIssue{Row: row, Field: FieldTicker, Kind: "ticker_suffix", Message: fmt.Sprintf("ticker %q has no exchange suffix (e.g. AAPL-US)", pos.Ticker)})
	}
	if pos.ISIN != "" && !identifier.ValidISIN(pos.ISIN) {
		warnings = append(warnings, models.RowIssue{Row: row, Field: FieldISIN, Kind: "check_digit", Message: fmt.Sprintf("ISIN %q fails length or check digit validation", pos.ISIN)})
	}
	if pos.CUSIP != "" && !identifier.ValidCUSIP(pos.CUSIP) {
		warnings = append(warnings, models.RowIssue{Row: row, Field: FieldCUSIP, Kind: "check_digit", Message: fmt.Sprintf("CUSIP %q fails length or check digit validation", pos.CUSIP)})
	}
	return pos, warnings, nil
}

var exchangeSuffix = regexp.MustCompile(`[-.][A-Z]{2}$`)

// HasExchangeSuffix reports whether a ticker carries a market suffix such as
// "-US" or ".AU"
func HasExchangeSuffix(ticker string) bool {
	return exchangeSuffix.MatchString(strings.ToUpper(ticker))
}

// ParseNumber parses a numeric field, accepting thousands separators and a
// leading currency symbol
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(s[1:])
	}
	for _, sym := range []string{"$", "€", "£", "¥"} {
		if strings.HasPrefix(s, sym) {
			s = strings.TrimSpace(strings.TrimPrefix(s, sym))
			break
		}
	}
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %s", s)
	}
	if neg {
		v = -v
	}
	return v, nil
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006", "1/2/2006", time.RFC3339}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
