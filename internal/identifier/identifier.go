// Package identifier assigns canonical identities and classes to positions
package identifier

import (
	"fmt"

	"github.com/bobmcallan/pagr/internal/models"
)

// Resolve picks the position's primary identifier, CUSIP before ISIN before
// ticker, and classifies the security. It is pure: the result depends only
// on the position's own fields.
func Resolve(p *models.Position) models.Identifier {
	cusip := models.CleanIdentifier(p.CUSIP)
	isin := models.CleanIdentifier(p.ISIN)
	ticker := models.CleanIdentifier(p.Ticker)

	var id models.Identifier
	switch {
	case cusip != "":
		id = models.Identifier{Type: models.IDTypeCUSIP, Value: cusip}
	case isin != "":
		id = models.Identifier{Type: models.IDTypeISIN, Value: isin}
	case ticker != "":
		id = models.Identifier{Type: models.IDTypeTicker, Value: ticker}
	default:
		return models.Identifier{Class: models.ClassUnknown}
	}
	id.Class = classify(id.Type, ticker != "", p.SecurityType)
	return id
}

func classify(resolved models.IdentifierType, hasTicker bool, securityType string) models.SecurityClass {
	bond := models.HasBondSignal(securityType)
	switch {
	case resolved == models.IDTypeTicker:
		return models.ClassEquity
	case !hasTicker:
		return models.ClassFixedIncome
	case !bond:
		return models.ClassEquity
	default:
		return models.ClassUnknown
	}
}

// ResolveAll resolves every position and assigns row-derived keys of the
// form "<security key>#<n>", n counting occurrences of the security key in
// row order. Identical input always yields identical keys.
func ResolveAll(positions []*models.Position) {
	seen := make(map[string]int)
	for _, p := range positions {
		p.Identifier = Resolve(p)
		sk := p.Identifier.Key()
		seen[sk]++
		p.Key = fmt.Sprintf("%s#%d", sk, seen[sk])
	}
}

// Distinct returns the unique identifiers of the positions in first-seen order
func Distinct(positions []*models.Position) []models.Identifier {
	seen := make(map[string]bool)
	var ids []models.Identifier
	for _, p := range positions {
		k := p.Identifier.Key()
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		ids = append(ids, p.Identifier)
	}
	return ids
}

// NormalizeCountryCode trims, upper-cases and truncates a jurisdiction code
// to ISO 3166-1 alpha-2. Blank and placeholder values become "".
func NormalizeCountryCode(s string) string {
	return models.NormalizeCountryCode(s)
}
