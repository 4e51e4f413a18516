// Package pipeline loads portfolios end to end: ingest, resolve, enrich,
// value and upsert
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/pagr/internal/common"
	"github.com/bobmcallan/pagr/internal/identifier"
	"github.com/bobmcallan/pagr/internal/ingest"
	"github.com/bobmcallan/pagr/internal/interfaces"
	"github.com/bobmcallan/pagr/internal/models"
)

// ErrNoValidRows aborts a load in which every row was rejected
var ErrNoValidRows = errors.New("no valid rows")

// Service implements PipelineService
type Service struct {
	enricher   interfaces.EnrichmentService
	graph      interfaces.GraphService
	precedence string
	logger     *common.Logger
	now        func() time.Time
}

// NewService creates a new load pipeline
func NewService(
	enricher interfaces.EnrichmentService,
	graph interfaces.GraphService,
	config common.ValuationConfig,
	logger *common.Logger,
) *Service {
	precedence := config.PricePrecedence
	if precedence == "" {
		precedence = common.PricePrecedenceProvider
	}
	return &Service{
		enricher:   enricher,
		graph:      graph,
		precedence: precedence,
		logger:     logger,
		now:        time.Now,
	}
}

// LoadFile reads a CSV file and loads it as the named portfolio
func (s *Service) LoadFile(ctx context.Context, name, path string) (*models.LoadSummary, error) {
	headers, rows, err := ingest.ReadCSVFile(path)
	if err != nil {
		return nil, err
	}
	return s.Load(ctx, name, headers, rows)
}

// Load validates the rows, enriches their securities and merges the result
// into the graph. Rejected rows and failed lookups are reported in the
// summary; header errors, an empty load, schema mismatches and upsert
// conflicts abort it.
func (s *Service) Load(ctx context.Context, name string, headers []string, rows []map[string]string) (*models.LoadSummary, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("portfolio name is required")
	}

	start := s.now()
	runID := uuid.New().String()
	logger := s.logger.WithField("portfolio", name).WithField("run_id", runID)

	summary := &models.LoadSummary{Portfolio: name, RunID: runID}

	parsed, err := ingest.Parse(headers, rows)
	if err != nil {
		logger.Error().Err(err).Msg("Portfolio input rejected")
		return nil, err
	}
	summary.RowsLoaded = len(parsed.Positions)
	summary.RowsRejected = len(parsed.Errors)
	summary.Warnings = parsed.Warnings
	for _, rowErr := range parsed.Errors {
		summary.RowErrors = append(summary.RowErrors, models.RowIssue{
			Row:     rowErr.Row,
			Field:   rowErr.Field,
			Kind:    string(rowErr.Kind),
			Message: rowErr.Error(),
		})
		logger.Warn().Int("row", rowErr.Row).Str("kind", string(rowErr.Kind)).Msg(rowErr.Message)
	}

	if len(parsed.Positions) == 0 {
		logger.Error().Int("rejected", summary.RowsRejected).Msg("No valid rows to load")
		return summary, fmt.Errorf("portfolio %q: %w (%d rejected)", name, ErrNoValidRows, summary.RowsRejected)
	}

	identifier.ResolveAll(parsed.Positions)
	portfolio := &models.Portfolio{
		Name:      name,
		CreatedAt: start,
		UpdatedAt: start,
		Positions: parsed.Positions,
		RunID:     runID,
	}
	portfolio.ComputeWeights()

	ids := identifier.Distinct(parsed.Positions)
	logger.Info().
		Int("rows", summary.RowsLoaded).
		Int("rejected", summary.RowsRejected).
		Int("securities", len(ids)).
		Msg("Portfolio parsed, enriching securities")

	enrichment := s.enricher.Enrich(ctx, ids, start)
	summary.Failures = enrichment.Failures
	summary.CompanyFailures = enrichment.CompanyFailures
	summary.Incomplete = incomplete(enrichment)

	s.value(portfolio, enrichment)

	stats, err := s.graph.Upsert(ctx, portfolio, enrichment)
	if err != nil {
		summary.Duration = s.now().Sub(start)
		return summary, err
	}
	summary.Graph = stats
	summary.Duration = s.now().Sub(start)

	logger.Info().
		Int("rows", summary.RowsLoaded).
		Int("rejected", summary.RowsRejected).
		Int("incomplete", len(summary.Incomplete)).
		Dur("elapsed", summary.Duration).
		Msg("Portfolio loaded")

	return summary, nil
}

// value sets each position's price and market value. The enriched price
// and the supplied current value are tried in precedence order. Cost basis
// is never used as market value.
func (s *Service) value(p *models.Portfolio, r *models.EnrichmentResult) {
	for _, pos := range p.Positions {
		var fromPrice *float64
		if sec := r.Securities[pos.SecurityKey()]; sec != nil && sec.Price != nil {
			price := *sec.Price
			pos.Price = &price
			mv := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(pos.Quantity)).InexactFloat64()
			fromPrice = &mv
		}

		first, second := fromPrice, pos.CurrentValue
		if s.precedence == common.PricePrecedenceInput {
			first, second = pos.CurrentValue, fromPrice
		}
		switch {
		case first != nil:
			pos.MarketValue = models.Float(*first)
		case second != nil:
			pos.MarketValue = models.Float(*second)
		default:
			pos.MarketValue = nil
		}
	}
}

// incomplete lists the securities whose enrichment failed, one entry per
// security with every failed stage
func incomplete(r *models.EnrichmentResult) []models.IncompleteSecurity {
	byKey := make(map[string]*models.IncompleteSecurity)
	reasons := make(map[string][]string)
	for _, f := range r.Failures {
		inc, ok := byKey[f.Key]
		if !ok {
			inc = &models.IncompleteSecurity{Key: f.Key}
			byKey[f.Key] = inc
		}
		inc.Stages = append(inc.Stages, f.Stage)
		reasons[f.Key] = append(reasons[f.Key], fmt.Sprintf("%s: %s", f.Stage, f.Reason))
	}

	out := make([]models.IncompleteSecurity, 0, len(byKey))
	for key, inc := range byKey {
		inc.Message = "data unavailable (" + strings.Join(reasons[key], "; ") + ")"
		out = append(out, *inc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// DeletePortfolio removes a stored portfolio
func (s *Service) DeletePortfolio(ctx context.Context, name string) error {
	return s.graph.DeletePortfolio(ctx, strings.TrimSpace(name))
}

// Compile-time check
var _ interfaces.PipelineService = (*Service)(nil)
