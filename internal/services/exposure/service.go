// Package exposure answers aggregation queries over stored portfolios
package exposure

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/pagr/internal/common"
	"github.com/bobmcallan/pagr/internal/interfaces"
	"github.com/bobmcallan/pagr/internal/models"
)

// Service implements ExposureService. It only reads from the store.
type Service struct {
	store  interfaces.GraphStore
	logger *common.Logger
}

// NewService creates a new exposure service
func NewService(store interfaces.GraphStore, logger *common.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// GetExposure groups the combined positions of the named portfolios by one
// dimension. No names selects every stored portfolio.
func (s *Service) GetExposure(ctx context.Context, portfolios []string, dim models.Dimension) ([]models.ExposureRow, error) {
	if _, ok := models.ParseDimension(string(dim)); !ok {
		return nil, fmt.Errorf("unknown exposure dimension %q", dim)
	}

	views, err := s.GetPositions(ctx, portfolios)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		label    string
		value    decimal.Decimal
		count    int
		unpriced int
	}
	buckets := make(map[string]*bucket)
	total := decimal.Zero

	for _, v := range views {
		key, label := group(v, dim)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{label: label}
			buckets[key] = b
		}
		b.count++
		if v.MarketValue == nil {
			b.unpriced++
			continue
		}
		mv := decimal.NewFromFloat(*v.MarketValue)
		b.value = b.value.Add(mv)
		total = total.Add(mv)
	}

	hundred := decimal.NewFromInt(100)
	rows := make([]models.ExposureRow, 0, len(buckets))
	for key, b := range buckets {
		weight := decimal.Zero
		if !total.IsZero() {
			weight = b.value.Div(total).Mul(hundred)
		}
		rows = append(rows, models.ExposureRow{
			GroupKey:      key,
			GroupLabel:    b.label,
			TotalValue:    b.value.InexactFloat64(),
			TotalWeight:   weight.InexactFloat64(),
			PositionCount: b.count,
			UnpricedCount: b.unpriced,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalValue != rows[j].TotalValue {
			return rows[i].TotalValue > rows[j].TotalValue
		}
		return rows[i].GroupKey < rows[j].GroupKey
	})

	s.logger.Debug().
		Strs("portfolios", portfolios).
		Str("dimension", string(dim)).
		Int("groups", len(rows)).
		Int("positions", len(views)).
		Msg("Exposure computed")

	return rows, nil
}

// group returns the bucket key and label of a position for a dimension
func group(v models.PositionView, dim models.Dimension) (string, string) {
	var key, label string
	switch dim {
	case models.DimSector:
		key, label = v.Sector, v.Sector
	case models.DimCountry:
		key, label = v.OperationsCountry, countryLabel(v.OperationsCountry)
	case models.DimCountryOfRisk:
		key, label = v.DomicileCountry, countryLabel(v.DomicileCountry)
	case models.DimIssuer:
		key, label = v.IssuerID, v.Issuer
		if label == "" {
			label = key
		}
	case models.DimRegion:
		key, label = v.Region, v.Region
	}
	if strings.TrimSpace(key) == "" {
		return models.UnknownGroup, models.UnknownGroup
	}
	return key, label
}

func countryLabel(code string) string {
	if code == "" {
		return ""
	}
	return models.NewCountry(code).Name
}

// GetPositions lists the positions of the named portfolios with their
// resolved attributes, ordered by portfolio then source row
func (s *Service) GetPositions(ctx context.Context, portfolios []string) ([]models.PositionView, error) {
	names, err := s.resolveNames(ctx, portfolios)
	if err != nil {
		return nil, err
	}

	paths, err := s.store.PositionPaths(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	views := make([]models.PositionView, 0, len(paths))
	for _, p := range paths {
		views = append(views, view(p))
	}
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].Portfolio != views[j].Portfolio {
			return views[i].Portfolio < views[j].Portfolio
		}
		return views[i].Row < views[j].Row
	})
	return views, nil
}

func view(p models.PositionPath) models.PositionView {
	pos := p.Position
	v := models.PositionView{
		Portfolio:   p.Portfolio,
		Key:         pos.String(models.FPositionKey),
		SecurityKey: pos.String(models.FSecurityKey),
		MarketValue: pos.Float(models.FMarketValue),
		Price:       pos.Float(models.FPrice),
	}
	if v.Key == "" {
		v.Key = pos.Ref.Key
	}
	if row := pos.Float(models.FRow); row != nil {
		v.Row = int(*row)
	}
	if q := pos.Float(models.FQuantity); q != nil {
		v.Quantity = *q
	}
	if bv := pos.Float(models.FBookValue); bv != nil {
		v.BookValue = *bv
	}
	if w := pos.Float(models.FWeight); w != nil {
		v.Weight = *w
	}

	if sec := p.Security; sec != nil {
		v.SecurityName = sec.String(models.FName)
		v.Class = models.SecurityClass(sec.String(models.FClass))
		if v.SecurityKey == "" {
			v.SecurityKey = sec.Ref.Key
		}
	}
	if v.Class == "" {
		v.Class = models.ClassUnknown
	}

	if co := p.Company; co != nil {
		v.IssuerID = co.Ref.Key
		v.Issuer = co.String(models.FName)
		v.Sector = co.String(models.FSector)
	}
	if p.Operations != nil {
		v.OperationsCountry = p.Operations.Ref.Key
		v.Region = p.Operations.String(models.FRegion)
		if v.Region == "" {
			v.Region = models.NewCountry(v.OperationsCountry).Region
		}
	}
	if p.Domicile != nil {
		v.DomicileCountry = p.Domicile.Ref.Key
	}
	if p.CEO != nil {
		v.CEO = p.CEO.String(models.FName)
		v.CEOTitle = p.CEO.String(models.FTitle)
	}
	return v
}

// GetExecutives lists the chief executive of every held company that has
// one, with the value held in the company, largest first
func (s *Service) GetExecutives(ctx context.Context, portfolios []string) ([]models.ExecutiveRow, error) {
	views, err := s.GetPositions(ctx, portfolios)
	if err != nil {
		return nil, err
	}

	type holding struct {
		row   models.ExecutiveRow
		value decimal.Decimal
	}
	byIssuer := make(map[string]*holding)
	for _, v := range views {
		if v.CEO == "" || v.IssuerID == "" {
			continue
		}
		h, ok := byIssuer[v.IssuerID]
		if !ok {
			h = &holding{row: models.ExecutiveRow{
				IssuerID:  v.IssuerID,
				Company:   v.Issuer,
				Executive: v.CEO,
				Title:     v.CEOTitle,
			}}
			byIssuer[v.IssuerID] = h
		}
		h.row.PositionCount++
		if v.MarketValue != nil {
			h.value = h.value.Add(decimal.NewFromFloat(*v.MarketValue))
		}
	}

	rows := make([]models.ExecutiveRow, 0, len(byIssuer))
	for _, h := range byIssuer {
		h.row.TotalValue = h.value.InexactFloat64()
		rows = append(rows, h.row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalValue != rows[j].TotalValue {
			return rows[i].TotalValue > rows[j].TotalValue
		}
		return rows[i].IssuerID < rows[j].IssuerID
	})
	return rows, nil
}

// GetSectorRegionStress lists the held companies in a sector whose country
// of operations lies in a region: the positions a slowdown of that sector
// in that region would hit. Weight is each company's share of the whole
// selection's market value.
func (s *Service) GetSectorRegionStress(ctx context.Context, portfolios []string, sector, region string) ([]models.StressRow, error) {
	sector, region = strings.TrimSpace(sector), strings.TrimSpace(region)
	if sector == "" || region == "" {
		return nil, fmt.Errorf("stress test needs both a sector and a region")
	}

	views, err := s.GetPositions(ctx, portfolios)
	if err != nil {
		return nil, err
	}

	type hit struct {
		row   models.StressRow
		value decimal.Decimal
	}
	hits := make(map[string]*hit)
	total := decimal.Zero
	for _, v := range views {
		var mv decimal.Decimal
		if v.MarketValue != nil {
			mv = decimal.NewFromFloat(*v.MarketValue)
			total = total.Add(mv)
		}
		if v.IssuerID == "" || !strings.EqualFold(v.Sector, sector) || !strings.EqualFold(v.Region, region) {
			continue
		}
		h, ok := hits[v.IssuerID]
		if !ok {
			h = &hit{row: models.StressRow{
				IssuerID: v.IssuerID,
				Company:  v.Issuer,
				Sector:   v.Sector,
				Country:  v.OperationsCountry,
			}}
			hits[v.IssuerID] = h
		}
		h.row.PositionCount++
		h.value = h.value.Add(mv)
	}

	hundred := decimal.NewFromInt(100)
	rows := make([]models.StressRow, 0, len(hits))
	for _, h := range hits {
		h.row.ExposureAtRisk = h.value.InexactFloat64()
		if !total.IsZero() {
			h.row.Weight = h.value.Div(total).Mul(hundred).InexactFloat64()
		}
		rows = append(rows, h.row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ExposureAtRisk != rows[j].ExposureAtRisk {
			return rows[i].ExposureAtRisk > rows[j].ExposureAtRisk
		}
		return rows[i].IssuerID < rows[j].IssuerID
	})

	s.logger.Debug().
		Str("sector", sector).
		Str("region", region).
		Int("companies", len(rows)).
		Msg("Sector region stress computed")

	return rows, nil
}

// resolveNames checks every named portfolio exists. No names means all.
func (s *Service) resolveNames(ctx context.Context, portfolios []string) ([]string, error) {
	if len(portfolios) == 0 {
		nodes, err := s.store.ListNodes(ctx, models.KindPortfolio)
		if err != nil {
			return nil, fmt.Errorf("failed to list portfolios: %w", err)
		}
		names := make([]string, 0, len(nodes))
		for _, n := range nodes {
			names = append(names, n.Ref.Key)
		}
		return names, nil
	}

	seen := make(map[string]bool, len(portfolios))
	var names []string
	for _, name := range portfolios {
		ref := models.PortfolioRef(name)
		if seen[ref.Key] {
			continue
		}
		seen[ref.Key] = true

		node, err := s.store.GetNode(ctx, ref)
		if err != nil {
			return nil, err
		}
		if node == nil {
			return nil, fmt.Errorf("portfolio %q: %w", name, models.ErrNotFound)
		}
		names = append(names, ref.Key)
	}
	return names, nil
}

// ListPortfolios returns a summary row per stored portfolio, ordered by name
func (s *Service) ListPortfolios(ctx context.Context) ([]models.PortfolioSummary, error) {
	nodes, err := s.store.ListNodes(ctx, models.KindPortfolio)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}

	out := make([]models.PortfolioSummary, 0, len(nodes))
	for _, n := range nodes {
		summary := models.PortfolioSummary{Name: n.String(models.FName)}
		if summary.Name == "" {
			summary.Name = n.Ref.Key
		}
		if t := n.Time(models.FCreatedAt); t != nil {
			summary.CreatedAt = *t
		}
		if t := n.Time(models.FUpdatedAt); t != nil {
			summary.UpdatedAt = *t
		}
		if c := n.Float(models.FPositionCount); c != nil {
			summary.PositionCount = int(*c)
		}
		if v := n.Float(models.FTotalBookValue); v != nil {
			summary.TotalBookValue = *v
		}
		out = append(out, summary)
	}
	return out, nil
}

// Compile-time check
var _ interfaces.ExposureService = (*Service)(nil)
