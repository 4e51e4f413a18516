package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/pagr/internal/common"
	"github.com/bobmcallan/pagr/internal/models"
	"github.com/bobmcallan/pagr/internal/storage/memory"
)

var (
	appleTicker = models.Identifier{Type: models.IDTypeTicker, Value: "AAPL-US", Class: models.ClassEquity}
	appleBond   = models.Identifier{Type: models.IDTypeCUSIP, Value: "037833AA5", Class: models.ClassFixedIncome}
)

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore(common.NewSilentLogger())
	return NewEngine(store, common.UpsertConfig{Workers: 4}, common.NewSilentLogger()), store
}

func testPortfolio(name string) *models.Portfolio {
	p := &models.Portfolio{
		Name: name,
		Positions: []*models.Position{
			{Key: appleTicker.Key() + "#1", Row: 2, Ticker: "AAPL-US", Quantity: 100, CostBasis: models.Float(19000), BookValue: 19000, Identifier: appleTicker, MarketValue: models.Float(19000), Price: models.Float(190)},
			{Key: appleBond.Key() + "#1", Row: 3, CUSIP: "037833AA5", Quantity: 500, CostBasis: models.Float(50000), BookValue: 50000, Identifier: appleBond, MarketValue: models.Float(50000), Price: models.Float(100)},
		},
	}
	p.ComputeWeights()
	return p
}

func testEnrichment() *models.EnrichmentResult {
	r := models.NewEnrichmentResult()
	asOf := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	r.Securities[appleTicker.Key()] = &models.Security{
		Key: appleTicker.Key(), Identifier: appleTicker, Name: "Apple Inc.",
		Price: models.Float(190), PriceDate: &asOf, IssuerID: "000C7F-E",
		Variant: models.Stock{Ticker: "AAPL-US"},
	}
	r.Securities[appleBond.Key()] = &models.Security{
		Key: appleBond.Key(), Identifier: appleBond, Name: "Apple Inc. 2.4% 2026",
		Price: models.Float(100), PriceDate: &asOf, IssuerID: "000C7F-E",
		Variant: models.Bond{CouponRate: models.Float(2.4), Currency: "USD"},
	}
	r.Companies["000C7F-E"] = &models.Company{
		IssuerID: "000C7F-E", Name: "Apple Inc.", Sector: "Technology",
		OperationsCountry: "US", DomicileCountry: "US-CA",
	}
	r.Issuers[appleTicker.Key()] = "000C7F-E"
	r.Issuers[appleBond.Key()] = "000C7F-E"
	return r
}

func TestUpsert_WritesHierarchy(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	stats, err := engine.Upsert(ctx, testPortfolio("Growth"), testEnrichment())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Counts.Nodes[models.KindPortfolio])
	assert.Equal(t, 2, stats.Counts.Nodes[models.KindPosition])
	assert.Equal(t, 2, stats.Counts.Nodes[models.KindSecurity])
	assert.Equal(t, 1, stats.Counts.Nodes[models.KindCompany])
	assert.Equal(t, 1, stats.Counts.Nodes[models.KindCountry], "US-CA normalizes to US")
	assert.Equal(t, 2, stats.Counts.Edges[models.RelContains])
	assert.Equal(t, 2, stats.Counts.Edges[models.RelInvestedIn])
	assert.Equal(t, 2, stats.Counts.Edges[models.RelIssuedBy])
	assert.Equal(t, 1, stats.Counts.Edges[models.RelOperatesIn])
	assert.Equal(t, 1, stats.Counts.Edges[models.RelDomiciledIn])
	assert.Equal(t, 8, stats.EdgesCreated)

	bond, err := store.GetNode(ctx, models.SecurityRef(appleBond))
	require.NoError(t, err)
	require.NotNil(t, bond)
	assert.Equal(t, "bond", bond.String(models.FVariant))
	assert.Equal(t, "USD", bond.String(models.FCurrency))
	assert.Equal(t, "fixed_income", bond.String(models.FClass))
}

func TestUpsert_SecondLoadAddsNothing(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.Upsert(ctx, testPortfolio("Growth"), testEnrichment())
	require.NoError(t, err)
	second, err := engine.Upsert(ctx, testPortfolio("Growth"), testEnrichment())
	require.NoError(t, err)

	assert.Equal(t, first.Counts.TotalNodes(), second.Counts.TotalNodes())
	assert.Equal(t, first.Counts.TotalEdges(), second.Counts.TotalEdges())
	assert.Equal(t, 0, second.EdgesCreated)
	assert.Equal(t, 8, second.EdgesExisting)
}

func TestUpsert_PreservesCreatedAt(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	p := testPortfolio("Growth")
	p.CreatedAt = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := engine.Upsert(ctx, p, testEnrichment())
	require.NoError(t, err)

	again := testPortfolio("Growth")
	again.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = engine.Upsert(ctx, again, testEnrichment())
	require.NoError(t, err)

	node, _ := store.GetNode(ctx, models.PortfolioRef("Growth"))
	created := node.Time(models.FCreatedAt)
	require.NotNil(t, created)
	assert.True(t, created.Equal(p.CreatedAt))
	assert.True(t, again.CreatedAt.Equal(p.CreatedAt), "caller sees the stored creation time")
}

func TestUpsert_RemovesStalePositions(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Upsert(ctx, testPortfolio("Growth"), testEnrichment())
	require.NoError(t, err)

	smaller := testPortfolio("Growth")
	smaller.Positions = smaller.Positions[:1]
	smaller.ComputeWeights()
	stats, err := engine.Upsert(ctx, smaller, testEnrichment())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.PositionsDeleted)
	assert.Equal(t, 1, stats.Counts.Nodes[models.KindPosition])
	assert.Equal(t, 2, stats.Counts.Nodes[models.KindSecurity], "securities are shared and kept")

	children, _ := store.Children(ctx, models.PortfolioRef("Growth"), models.RelContains)
	require.Len(t, children, 1)
	assert.Equal(t, models.PositionRef("Growth", appleTicker.Key()+"#1"), children[0])
}

func TestUpsert_SharedEntitiesAcrossPortfolios(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Upsert(ctx, testPortfolio("Growth"), testEnrichment())
	require.NoError(t, err)
	stats, err := engine.Upsert(ctx, testPortfolio("Income"), testEnrichment())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Counts.Nodes[models.KindPortfolio])
	assert.Equal(t, 4, stats.Counts.Nodes[models.KindPosition])
	assert.Equal(t, 2, stats.Counts.Nodes[models.KindSecurity])
	assert.Equal(t, 1, stats.Counts.Nodes[models.KindCompany])
	assert.Equal(t, 2, stats.Counts.Edges[models.RelIssuedBy])
}

func TestUpsert_KeepsLastKnownPrice(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Upsert(ctx, testPortfolio("Growth"), testEnrichment())
	require.NoError(t, err)

	// refresh where pricing failed
	failed := testEnrichment()
	failed.Securities[appleTicker.Key()].Price = nil
	p := testPortfolio("Growth")
	p.Positions[0].MarketValue = nil
	p.Positions[0].Price = nil
	_, err = engine.Upsert(ctx, p, failed)
	require.NoError(t, err)

	sec, _ := store.GetNode(ctx, models.SecurityRef(appleTicker))
	require.NotNil(t, sec.Float(models.FPrice))
	assert.Equal(t, 190.0, *sec.Float(models.FPrice))

	pos, _ := store.GetNode(ctx, models.PositionRef("Growth", appleTicker.Key()+"#1"))
	assert.Nil(t, pos.Float(models.FMarketValue), "position market value is cleared, not carried over")
	assert.Nil(t, pos.Float(models.FPrice))
}

func TestUpsert_UnenrichedSecurityStillLinked(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	stats, err := engine.Upsert(ctx, testPortfolio("Growth"), models.NewEnrichmentResult())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Counts.Nodes[models.KindSecurity])
	assert.Equal(t, 2, stats.Counts.Edges[models.RelInvestedIn])
	assert.Equal(t, 0, stats.Counts.Edges[models.RelIssuedBy])

	sec, _ := store.GetNode(ctx, models.SecurityRef(appleTicker))
	assert.Equal(t, "AAPL-US", sec.String(models.FTicker))
}

func TestUpsert_CountryChangeReplacesLink(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	company := models.CompanyRef("000C7F-E")

	var stats *models.UpsertStats
	for _, code := range []string{"US", "GB", "US"} {
		r := testEnrichment()
		r.Companies["000C7F-E"].OperationsCountry = code
		r.Companies["000C7F-E"].DomicileCountry = code
		var err error
		stats, err = engine.Upsert(ctx, testPortfolio("Growth"), r)
		require.NoError(t, err)
	}

	ops, err := store.Children(ctx, company, models.RelOperatesIn)
	require.NoError(t, err)
	assert.Equal(t, []models.NodeRef{models.CountryRef("US")}, ops)
	dom, err := store.Children(ctx, company, models.RelDomiciledIn)
	require.NoError(t, err)
	assert.Equal(t, []models.NodeRef{models.CountryRef("US")}, dom)

	assert.Equal(t, 2, stats.EdgesRemoved, "the GB links are replaced")
	assert.Equal(t, 1, stats.Counts.Edges[models.RelOperatesIn])
	assert.Equal(t, 1, stats.Counts.Edges[models.RelDomiciledIn])
	assert.Equal(t, 2, stats.Counts.Nodes[models.KindCountry], "countries are shared entities and kept")
}

func TestUpsert_MissingCountryKeepsLink(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Upsert(ctx, testPortfolio("Growth"), testEnrichment())
	require.NoError(t, err)

	r := testEnrichment()
	r.Companies["000C7F-E"].OperationsCountry = ""
	stats, err := engine.Upsert(ctx, testPortfolio("Growth"), r)
	require.NoError(t, err)

	assert.Equal(t, 0, stats.EdgesRemoved)
	ops, _ := store.Children(ctx, models.CompanyRef("000C7F-E"), models.RelOperatesIn)
	assert.Equal(t, []models.NodeRef{models.CountryRef("US")}, ops)
}

func TestUpsert_IssuerChangeReplacesLink(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Upsert(ctx, testPortfolio("Growth"), testEnrichment())
	require.NoError(t, err)

	r := testEnrichment()
	r.Companies["0FJ9ZP-E"] = &models.Company{IssuerID: "0FJ9ZP-E", Name: "Nestle SA", Sector: "Consumer Staples", OperationsCountry: "CH"}
	r.Securities[appleBond.Key()].IssuerID = "0FJ9ZP-E"
	r.Issuers[appleBond.Key()] = "0FJ9ZP-E"
	stats, err := engine.Upsert(ctx, testPortfolio("Growth"), r)
	require.NoError(t, err)

	issuers, err := store.Children(ctx, models.SecurityRef(appleBond), models.RelIssuedBy)
	require.NoError(t, err)
	assert.Equal(t, []models.NodeRef{models.CompanyRef("0FJ9ZP-E")}, issuers)
	assert.Equal(t, 1, stats.EdgesRemoved)
	assert.Equal(t, 2, stats.Counts.Edges[models.RelIssuedBy])

	paths, err := store.PositionPaths(ctx, []string{"Growth"})
	require.NoError(t, err)
	for _, path := range paths {
		if path.Security.Ref == models.SecurityRef(appleBond) {
			require.NotNil(t, path.Company)
			assert.Equal(t, "0FJ9ZP-E", path.Company.Ref.Key)
		}
	}
}

func TestUpsert_CEOIsReplaced(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	company := models.CompanyRef("000C7F-E")

	r := testEnrichment()
	r.Companies["000C7F-E"].CEO = &models.Officer{Name: "Steve Jobs", Title: "Chief Executive Officer"}
	_, err := engine.Upsert(ctx, testPortfolio("Growth"), r)
	require.NoError(t, err)

	r = testEnrichment()
	r.Companies["000C7F-E"].CEO = &models.Officer{Name: "Tim Cook", Title: "Chief Executive Officer", StartDate: "2011-08-24"}
	stats, err := engine.Upsert(ctx, testPortfolio("Growth"), r)
	require.NoError(t, err)

	ceos, err := store.Parents(ctx, company, models.RelCEOOf)
	require.NoError(t, err)
	assert.Equal(t, []models.NodeRef{models.ExecutiveRef("000C7F-E", "Tim Cook")}, ceos)
	assert.Equal(t, 1, stats.Counts.Edges[models.RelCEOOf])
	assert.Equal(t, 1, stats.EdgesRemoved)

	exec, err := store.GetNode(ctx, ceos[0])
	require.NoError(t, err)
	require.NotNil(t, exec)
	assert.Equal(t, "Tim Cook", exec.String(models.FName))
	assert.Equal(t, "2011-08-24", exec.String(models.FStartDate))

	paths, err := store.PositionPaths(ctx, []string{"Growth"})
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	require.NotNil(t, paths[0].CEO)
	assert.Equal(t, "Tim Cook", paths[0].CEO.String(models.FName))

	// a load without officer data leaves the CEO in place
	stats, err = engine.Upsert(ctx, testPortfolio("Growth"), testEnrichment())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.EdgesRemoved)
	assert.Equal(t, 1, stats.Counts.Edges[models.RelCEOOf])
}

func TestUpsert_ClassKeptAcrossPortfolios(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	equity := models.Identifier{Type: models.IDTypeCUSIP, Value: "037833100", Class: models.ClassEquity}
	asDebt := equity
	asDebt.Class = models.ClassFixedIncome

	load := func(name string, id models.Identifier) {
		p := &models.Portfolio{Name: name, Positions: []*models.Position{
			{Key: "cusip:037833100#1", Row: 2, CUSIP: "037833100", Quantity: 1, BookValue: 100, Identifier: id},
		}}
		p.ComputeWeights()
		_, err := engine.Upsert(ctx, p, models.NewEnrichmentResult())
		require.NoError(t, err)
	}

	load("Growth", equity)
	load("Income", asDebt)

	sec, err := store.GetNode(ctx, models.SecurityRef(equity))
	require.NoError(t, err)
	require.NotNil(t, sec)
	assert.Equal(t, string(models.ClassEquity), sec.String(models.FClass), "first classification wins")

	unknown := equity
	unknown.Class = models.ClassUnknown
	load("Other", unknown)
	sec, _ = store.GetNode(ctx, models.SecurityRef(equity))
	assert.Equal(t, string(models.ClassEquity), sec.String(models.FClass))
}

func TestUpsert_SchemaMismatch(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	pf := models.PortfolioRef("Legacy")
	sec := models.SecurityRef(appleTicker)
	require.NoError(t, store.UpsertNode(ctx, models.NodeWrite{Ref: pf}))
	require.NoError(t, store.UpsertNode(ctx, models.NodeWrite{Ref: sec}))
	store.AppendEdge(models.Edge{Relation: models.RelHoldsLegacy, From: pf, To: sec})

	_, err := engine.Upsert(ctx, testPortfolio("Growth"), testEnrichment())
	assert.True(t, errors.Is(err, models.ErrSchemaMismatch), "got %v", err)

	counts, _ := store.Counts(ctx)
	assert.Equal(t, 0, counts.Nodes[models.KindPosition], "nothing written after a mismatch")
}

func TestUpsert_ConflictIsFatal(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Upsert(ctx, testPortfolio("Growth"), testEnrichment())
	require.NoError(t, err)

	store.AppendEdge(models.Edge{
		Relation: models.RelIssuedBy,
		From:     models.SecurityRef(appleTicker),
		To:       models.CompanyRef("000C7F-E"),
	})

	_, err = engine.Upsert(ctx, testPortfolio("Growth"), testEnrichment())
	assert.True(t, errors.Is(err, models.ErrUpsertConflict), "got %v", err)
}

func TestDeletePortfolio(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Upsert(ctx, testPortfolio("Growth"), testEnrichment())
	require.NoError(t, err)
	_, err = engine.Upsert(ctx, testPortfolio("Income"), testEnrichment())
	require.NoError(t, err)

	require.NoError(t, engine.DeletePortfolio(ctx, "Growth"))

	counts, err := engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Nodes[models.KindPortfolio])
	assert.Equal(t, 2, counts.Nodes[models.KindPosition])
	assert.Equal(t, 2, counts.Nodes[models.KindSecurity])
	assert.Equal(t, 2, counts.Edges[models.RelContains])

	err = engine.DeletePortfolio(ctx, "Growth")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestKeyLock_SerializesSameKey(t *testing.T) {
	locks := newKeyLock()
	unlock := locks.Lock("a")

	acquired := make(chan struct{})
	go func() {
		locks.Lock("a")()
		close(acquired)
	}()

	// a different key is not blocked
	locks.Lock("b")()

	select {
	case <-acquired:
		t.Fatal("second lock on the same key acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired")
	}
	assert.Empty(t, locks.locks)
}

func TestRunPool_StopsOnFirstError(t *testing.T) {
	boom := errors.New("boom")
	ran := make(chan int, 10)
	var tasks []func(context.Context) error
	for i := 0; i < 10; i++ {
		tasks = append(tasks, func(ctx context.Context) error {
			ran <- i
			if i == 0 {
				return boom
			}
			return nil
		})
	}

	err := runPool(context.Background(), 1, tasks)
	assert.ErrorIs(t, err, boom)
	assert.Less(t, len(ran), 10)
}
