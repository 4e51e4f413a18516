package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/pagr/internal/common"
	"github.com/bobmcallan/pagr/internal/ingest"
	"github.com/bobmcallan/pagr/internal/models"
	"github.com/bobmcallan/pagr/internal/services/exposure"
	"github.com/bobmcallan/pagr/internal/services/graph"
	"github.com/bobmcallan/pagr/internal/storage/memory"
)

// stubEnricher answers from a fixed result and records what it was asked
type stubEnricher struct {
	result *models.EnrichmentResult
	asked  []models.Identifier
}

func (s *stubEnricher) Enrich(ctx context.Context, ids []models.Identifier, asOf time.Time) *models.EnrichmentResult {
	s.asked = append(s.asked, ids...)
	out := models.NewEnrichmentResult()
	for _, id := range ids {
		if sec, ok := s.result.Securities[id.Key()]; ok {
			out.Securities[id.Key()] = sec
		}
		if issuer, ok := s.result.Issuers[id.Key()]; ok {
			out.Issuers[id.Key()] = issuer
			out.Companies[issuer] = s.result.Companies[issuer]
		}
		out.Failures = append(out.Failures, s.result.FailuresFor(id.Key())...)
	}
	return out
}

func appleResult() *models.EnrichmentResult {
	r := models.NewEnrichmentResult()
	r.Securities["ticker:AAPL-US"] = &models.Security{
		Key: "ticker:AAPL-US", Name: "Apple Inc.", Price: models.Float(190), IssuerID: "000C7F-E",
		Identifier: models.Identifier{Type: models.IDTypeTicker, Value: "AAPL-US", Class: models.ClassEquity},
	}
	r.Securities["cusip:037833AA5"] = &models.Security{
		Key: "cusip:037833AA5", Name: "Apple Inc. 2026", Price: models.Float(100), IssuerID: "000C7F-E",
		Identifier: models.Identifier{Type: models.IDTypeCUSIP, Value: "037833AA5", Class: models.ClassFixedIncome},
	}
	r.Companies["000C7F-E"] = &models.Company{IssuerID: "000C7F-E", Name: "Apple Inc.", Sector: "Technology", OperationsCountry: "US", DomicileCountry: "US"}
	r.Issuers["ticker:AAPL-US"] = "000C7F-E"
	r.Issuers["cusip:037833AA5"] = "000C7F-E"
	return r
}

var headers = []string{"Ticker", "CUSIP", "Quantity", "Book Value", "Market Value"}

func appleRows() []map[string]string {
	return []map[string]string{
		{"Ticker": "AAPL-US", "Quantity": "100", "Book Value": "19000"},
		{"CUSIP": "037833AA5", "Quantity": "500", "Book Value": "50,000"},
	}
}

type fixture struct {
	pipeline *Service
	exposure *exposure.Service
	engine   *graph.Engine
	enricher *stubEnricher
}

func newFixture(t *testing.T, precedence string) *fixture {
	t.Helper()
	logger := common.NewSilentLogger()
	store := memory.NewStore(logger)
	engine := graph.NewEngine(store, common.UpsertConfig{Workers: 2}, logger)
	enricher := &stubEnricher{result: appleResult()}
	return &fixture{
		pipeline: NewService(enricher, engine, common.ValuationConfig{PricePrecedence: precedence}, logger),
		exposure: exposure.NewService(store, logger),
		engine:   engine,
		enricher: enricher,
	}
}

func TestLoad_EndToEndExposure(t *testing.T) {
	f := newFixture(t, common.PricePrecedenceProvider)
	ctx := context.Background()

	summary, err := f.pipeline.Load(ctx, "Growth", headers, appleRows())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.RowsLoaded)
	assert.Equal(t, 0, summary.RowsRejected)
	assert.NotEmpty(t, summary.RunID)
	require.NotNil(t, summary.Graph)
	assert.Equal(t, 2, summary.Graph.Counts.Nodes[models.KindPosition])

	rows, err := f.exposure.GetExposure(ctx, []string{"Growth"}, models.DimSector)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Technology", rows[0].GroupKey)
	assert.InDelta(t, 69000, rows[0].TotalValue, 1e-9)
	assert.Equal(t, 2, rows[0].PositionCount)
}

func TestLoad_SecondIdenticalLoadAddsNothing(t *testing.T) {
	f := newFixture(t, common.PricePrecedenceProvider)
	ctx := context.Background()

	first, err := f.pipeline.Load(ctx, "Growth", headers, appleRows())
	require.NoError(t, err)
	second, err := f.pipeline.Load(ctx, "Growth", headers, appleRows())
	require.NoError(t, err)

	assert.Equal(t, first.Graph.Counts.TotalNodes(), second.Graph.Counts.TotalNodes())
	assert.Equal(t, first.Graph.Counts.TotalEdges(), second.Graph.Counts.TotalEdges())
	assert.Equal(t, 0, second.Graph.EdgesCreated)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestLoad_RejectedRowsReported(t *testing.T) {
	f := newFixture(t, common.PricePrecedenceProvider)
	ctx := context.Background()

	rows := append(appleRows(),
		map[string]string{"Ticker": "N/A", "Quantity": "5", "Book Value": "10"},
		map[string]string{"Ticker": "MSFT-US", "Quantity": "abc", "Book Value": "10"},
	)
	summary, err := f.pipeline.Load(ctx, "Growth", headers, rows)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.RowsLoaded)
	assert.Equal(t, 2, summary.RowsRejected)
	require.Len(t, summary.RowErrors, 2)
	assert.Equal(t, 4, summary.RowErrors[0].Row)
	assert.Equal(t, string(ingest.KindMissingIdentifier), summary.RowErrors[0].Kind)
	assert.Equal(t, 5, summary.RowErrors[1].Row)

	views, err := f.exposure.GetPositions(ctx, []string{"Growth"})
	require.NoError(t, err)
	assert.Len(t, views, 2)
}

func TestLoad_NoValidRows(t *testing.T) {
	f := newFixture(t, common.PricePrecedenceProvider)

	rows := []map[string]string{{"Ticker": "", "Quantity": "5", "Book Value": "10"}}
	summary, err := f.pipeline.Load(context.Background(), "Growth", headers, rows)
	assert.True(t, errors.Is(err, ErrNoValidRows), "got %v", err)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.RowsRejected)
	assert.Empty(t, f.enricher.asked)
}

func TestLoad_HeaderErrorAborts(t *testing.T) {
	f := newFixture(t, common.PricePrecedenceProvider)

	_, err := f.pipeline.Load(context.Background(), "Growth", []string{"Ticker", "Book Value"}, appleRows())
	var headerErr *ingest.HeaderError
	assert.True(t, errors.As(err, &headerErr), "got %v", err)
}

func TestLoad_DedupesSecurityRequests(t *testing.T) {
	f := newFixture(t, common.PricePrecedenceProvider)

	rows := append(appleRows(), map[string]string{"Ticker": "AAPL-US", "Quantity": "10", "Book Value": "1900"})
	summary, err := f.pipeline.Load(context.Background(), "Growth", headers, rows)
	require.NoError(t, err)

	assert.Len(t, f.enricher.asked, 2)
	assert.Equal(t, 3, summary.Graph.Counts.Nodes[models.KindPosition])
	assert.Equal(t, 2, summary.Graph.Counts.Nodes[models.KindSecurity])
}

func TestLoad_IncompleteSecurities(t *testing.T) {
	f := newFixture(t, common.PricePrecedenceProvider)
	delete(f.enricher.result.Securities, "cusip:037833AA5")
	f.enricher.result.Failures = []models.EnrichmentFailure{
		{Key: "cusip:037833AA5", Stage: models.StageProfile, Reason: "not found", Attempts: 1},
		{Key: "cusip:037833AA5", Stage: models.StagePrice, Reason: "giving up after 3 attempts", Attempts: 3},
	}
	ctx := context.Background()

	summary, err := f.pipeline.Load(ctx, "Growth", headers, appleRows())
	require.NoError(t, err, "enrichment failures never abort a load")

	require.Len(t, summary.Incomplete, 1)
	inc := summary.Incomplete[0]
	assert.Equal(t, "cusip:037833AA5", inc.Key)
	assert.Equal(t, []models.EnrichmentStage{models.StageProfile, models.StagePrice}, inc.Stages)
	assert.Contains(t, inc.Message, "data unavailable")

	views, err := f.exposure.GetPositions(ctx, []string{"Growth"})
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Nil(t, views[1].MarketValue, "market value is never substituted by cost basis")
}

func TestValue_Precedence(t *testing.T) {
	result := appleResult()
	newPortfolio := func() *models.Portfolio {
		return &models.Portfolio{Positions: []*models.Position{
			{Quantity: 100, CurrentValue: models.Float(20000), CostBasis: models.Float(19000),
				Identifier: models.Identifier{Type: models.IDTypeTicker, Value: "AAPL-US"}},
			{Quantity: 10, CostBasis: models.Float(500),
				Identifier: models.Identifier{Type: models.IDTypeTicker, Value: "ZZZ-XX"}},
			{Quantity: 10, CurrentValue: models.Float(700),
				Identifier: models.Identifier{Type: models.IDTypeTicker, Value: "YYY-XX"}},
		}}
	}

	provider := NewService(nil, nil, common.ValuationConfig{PricePrecedence: common.PricePrecedenceProvider}, common.NewSilentLogger())
	p := newPortfolio()
	provider.value(p, result)
	assert.InDelta(t, 19000, *p.Positions[0].MarketValue, 1e-9)
	assert.InDelta(t, 190, *p.Positions[0].Price, 1e-9)
	assert.Nil(t, p.Positions[1].MarketValue)
	assert.InDelta(t, 700, *p.Positions[2].MarketValue, 1e-9)

	input := NewService(nil, nil, common.ValuationConfig{PricePrecedence: common.PricePrecedenceInput}, common.NewSilentLogger())
	p = newPortfolio()
	input.value(p, result)
	assert.InDelta(t, 20000, *p.Positions[0].MarketValue, 1e-9)
	assert.Nil(t, p.Positions[1].MarketValue)
}

func TestLoadFile(t *testing.T) {
	f := newFixture(t, common.PricePrecedenceProvider)

	path := filepath.Join(t.TempDir(), "growth.csv")
	csv := "\ufeffTicker,CUSIP,Quantity,Book Value\nAAPL-US,,100,19000\n,037833AA5,500,\"50,000\"\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	summary, err := f.pipeline.LoadFile(context.Background(), "Growth", path)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.RowsLoaded)
}

func TestDeletePortfolio(t *testing.T) {
	f := newFixture(t, common.PricePrecedenceProvider)
	ctx := context.Background()

	_, err := f.pipeline.Load(ctx, "Growth", headers, appleRows())
	require.NoError(t, err)
	require.NoError(t, f.pipeline.DeletePortfolio(ctx, "Growth"))

	_, err = f.exposure.GetPositions(ctx, []string{"Growth"})
	assert.True(t, errors.Is(err, models.ErrNotFound))
}
