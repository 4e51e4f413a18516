package enrichment

import (
	"strings"
	"sync"

	"github.com/bobmcallan/pagr/internal/models"
)

// collector gathers lookup outcomes from concurrent goroutines. Once
// sealed it ignores late arrivals, so abandoned lookups cannot change a
// returned result.
type collector struct {
	mu       sync.Mutex
	sealed   bool
	ids      []models.Identifier
	profiles map[string]*models.Profile
	quotes   map[string]models.Quote
	done     map[models.EnrichmentStage]map[string]bool
	failures []models.EnrichmentFailure

	issuers         map[string]bool // issuers whose officers were requested
	officerLists    map[string][]models.Officer
	companyFailures []models.EnrichmentFailure
}

func newCollector(ids []models.Identifier) *collector {
	return &collector{
		ids:      ids,
		profiles: make(map[string]*models.Profile),
		quotes:   make(map[string]models.Quote),
		done: map[models.EnrichmentStage]map[string]bool{
			models.StageProfile: {},
			models.StagePrice:   {},
		},
		issuers:      make(map[string]bool),
		officerLists: make(map[string][]models.Officer),
	}
}

// claimIssuer reports whether the caller is the first to ask for the
// issuer's officers
func (c *collector) claimIssuer(issuerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed || c.issuers[issuerID] {
		return false
	}
	c.issuers[issuerID] = true
	return true
}

func (c *collector) officers(issuerID string, officers []models.Officer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return
	}
	if officers == nil {
		officers = []models.Officer{}
	}
	c.officerLists[issuerID] = officers
}

func (c *collector) failCompany(f models.EnrichmentFailure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return
	}
	c.companyFailures = append(c.companyFailures, f)
	c.officerLists[f.Key] = nil
}

func (c *collector) profile(key string, p *models.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return
	}
	c.profiles[key] = p
	c.done[models.StageProfile][key] = true
}

func (c *collector) quote(key string, q models.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return
	}
	c.quotes[key] = q
	c.done[models.StagePrice][key] = true
}

func (c *collector) fail(f models.EnrichmentFailure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed || c.done[f.Stage][f.Key] {
		return
	}
	c.failures = append(c.failures, f)
	c.done[f.Stage][f.Key] = true
}

// seal stops accepting outcomes, records a failure for every unfinished
// lookup and assembles the result
func (c *collector) seal(unfinishedReason string) *models.EnrichmentResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true

	for _, id := range c.ids {
		for _, stage := range []models.EnrichmentStage{models.StageProfile, models.StagePrice} {
			if !c.done[stage][id.Key()] {
				c.failures = append(c.failures, models.EnrichmentFailure{Key: id.Key(), Stage: stage, Reason: unfinishedReason})
			}
		}
	}

	result := models.NewEnrichmentResult()
	for _, id := range c.ids {
		key := id.Key()
		p := c.profiles[key]

		sec := &models.Security{
			Key:        key,
			Identifier: id,
			Variant:    variantFor(id, p),
		}
		if q, ok := c.quotes[key]; ok {
			price := q.Price
			sec.Price = &price
			if !q.Date.IsZero() {
				d := q.Date
				sec.PriceDate = &d
			}
		}
		result.Securities[key] = sec

		if p == nil {
			continue
		}
		sec.Name = p.SecurityName
		if p.IssuerID == "" {
			continue
		}
		sec.IssuerID = p.IssuerID
		result.Issuers[key] = p.IssuerID
		mergeCompany(result, p)
	}

	for issuerID := range c.issuers {
		list, finished := c.officerLists[issuerID]
		if !finished {
			c.companyFailures = append(c.companyFailures, models.EnrichmentFailure{Key: issuerID, Stage: models.StageOfficers, Reason: unfinishedReason})
			continue
		}
		if co := result.Companies[issuerID]; co != nil {
			co.CEO = models.CEOOf(list)
		}
	}

	result.Failures = append(result.Failures, c.failures...)
	result.CompanyFailures = append(result.CompanyFailures, c.companyFailures...)
	result.SortFailures()
	return result
}

// mergeCompany adds the profile's issuer and countries. Several securities
// can share an issuer; the first non-empty value of each field wins.
func mergeCompany(result *models.EnrichmentResult, p *models.Profile) {
	ops := models.NormalizeCountryCode(p.OperationsCountry)
	dom := models.NormalizeCountryCode(p.DomicileCountry)

	co, ok := result.Companies[p.IssuerID]
	if !ok {
		co = &models.Company{IssuerID: p.IssuerID}
		result.Companies[p.IssuerID] = co
	}
	fill(&co.Name, strings.TrimSpace(p.IssuerName))
	fill(&co.Sector, strings.TrimSpace(p.Sector))
	fill(&co.Industry, strings.TrimSpace(p.Industry))
	fill(&co.OperationsCountry, ops)
	fill(&co.DomicileCountry, dom)

	for _, code := range []string{ops, dom} {
		if code == "" {
			continue
		}
		if _, ok := result.Countries[code]; !ok {
			country := models.NewCountry(code)
			result.Countries[code] = &country
		}
	}
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// variantFor picks the security variant: fixed income is a bond, equity a
// stock, and an unknown class follows the provider's security type.
func variantFor(id models.Identifier, p *models.Profile) models.SecurityVariant {
	bond := false
	switch id.Class {
	case models.ClassFixedIncome:
		bond = true
	case models.ClassUnknown:
		bond = p != nil && models.HasBondSignal(p.SecurityType)
	}

	if bond {
		b := models.Bond{}
		if p != nil {
			b.CouponRate = p.CouponRate
			b.Currency = p.Currency
			b.Maturity = p.Maturity
		}
		return b
	}

	st := models.Stock{}
	switch id.Type {
	case models.IDTypeTicker:
		st.Ticker = id.Value
	case models.IDTypeISIN:
		st.ISIN = id.Value
	case models.IDTypeCUSIP:
		st.CUSIP = id.Value
	}
	if p != nil {
		fill(&st.Ticker, p.Ticker)
		fill(&st.ISIN, p.ISIN)
		fill(&st.CUSIP, p.CUSIP)
	}
	return st
}
