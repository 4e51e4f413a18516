// Package graph merges portfolios and their enrichment into the graph store
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bobmcallan/pagr/internal/common"
	"github.com/bobmcallan/pagr/internal/interfaces"
	"github.com/bobmcallan/pagr/internal/models"
)

// Engine implements GraphService. Writes to one node or edge key are
// serialized; different keys are written concurrently by a bounded pool.
type Engine struct {
	store   interfaces.GraphStore
	workers int
	locks   *keyLock
	logger  *common.Logger
}

// NewEngine creates a new graph upsert engine
func NewEngine(store interfaces.GraphStore, config common.UpsertConfig, logger *common.Logger) *Engine {
	workers := config.Workers
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		store:   store,
		workers: workers,
		locks:   newKeyLock(),
		logger:  logger,
	}
}

// statsRecorder accumulates UpsertStats across pool workers
type statsRecorder struct {
	mu    sync.Mutex
	stats models.UpsertStats
}

func (r *statsRecorder) node() {
	r.mu.Lock()
	r.stats.NodesWritten++
	r.mu.Unlock()
}

func (r *statsRecorder) edge(created bool) {
	r.mu.Lock()
	if created {
		r.stats.EdgesCreated++
	} else {
		r.stats.EdgesExisting++
	}
	r.mu.Unlock()
}

func (r *statsRecorder) removed() {
	r.mu.Lock()
	r.stats.EdgesRemoved++
	r.mu.Unlock()
}

func (r *statsRecorder) deleted() {
	r.mu.Lock()
	r.stats.PositionsDeleted++
	r.mu.Unlock()
}

// Upsert writes the portfolio, its positions and everything they resolve to.
// Shared entities are written first so every edge finds both endpoints.
func (e *Engine) Upsert(ctx context.Context, portfolio *models.Portfolio, enrichment *models.EnrichmentResult) (*models.UpsertStats, error) {
	if portfolio == nil || portfolio.Name == "" {
		return nil, fmt.Errorf("upsert: portfolio name is required")
	}
	if enrichment == nil {
		enrichment = models.NewEnrichmentResult()
	}

	start := time.Now()
	logger := e.logger.WithField("portfolio", portfolio.Name)
	if portfolio.RunID != "" {
		logger = logger.WithField("run_id", portfolio.RunID)
	}

	if err := e.store.EnsureSchema(ctx); err != nil {
		logger.Error().Err(err).Msg("Graph schema check failed")
		return nil, err
	}

	rec := &statsRecorder{}
	w := &writer{engine: e, rec: rec, runID: portfolio.RunID, now: models.FormatTime(time.Now())}

	phases := []struct {
		name  string
		tasks []func(context.Context) error
	}{
		{"countries", w.countryTasks(enrichment)},
		{"companies", w.companyTasks(enrichment)},
		{"securities", w.securityTasks(enrichment, portfolio)},
	}
	for _, phase := range phases {
		if err := runPool(ctx, e.workers, phase.tasks); err != nil {
			return nil, e.fail(logger, phase.name, err)
		}
	}

	if err := w.writePortfolio(ctx, portfolio); err != nil {
		return nil, e.fail(logger, "portfolio", err)
	}
	if err := runPool(ctx, e.workers, w.positionTasks(portfolio)); err != nil {
		return nil, e.fail(logger, "positions", err)
	}
	if err := w.deleteStale(ctx, portfolio); err != nil {
		return nil, e.fail(logger, "stale positions", err)
	}

	counts, err := e.store.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count graph: %w", err)
	}
	stats := rec.stats
	stats.Counts = counts

	logger.Info().
		Int("nodes_written", stats.NodesWritten).
		Int("edges_created", stats.EdgesCreated).
		Int("edges_existing", stats.EdgesExisting).
		Int("edges_removed", stats.EdgesRemoved).
		Int("positions_deleted", stats.PositionsDeleted).
		Dur("elapsed", time.Since(start)).
		Msg("Graph upsert complete")

	return &stats, nil
}

// fail logs an upsert failure. Conflicts are invariant violations and
// logged at error; anything else is returned for the caller to report.
func (e *Engine) fail(logger *common.Logger, phase string, err error) error {
	if errors.Is(err, models.ErrUpsertConflict) {
		logger.Error().Err(err).Str("phase", phase).Msg("Graph invariant violated")
	} else {
		logger.Warn().Err(err).Str("phase", phase).Msg("Graph upsert failed")
	}
	return fmt.Errorf("upsert %s: %w", phase, err)
}

// DeletePortfolio removes a portfolio and the positions it contains.
// Securities, companies and countries stay for other portfolios.
func (e *Engine) DeletePortfolio(ctx context.Context, name string) error {
	ref := models.PortfolioRef(name)
	unlock := e.locks.Lock(ref.String())
	defer unlock()

	node, err := e.store.GetNode(ctx, ref)
	if err != nil {
		return err
	}
	if node == nil {
		return fmt.Errorf("portfolio %q: %w", name, models.ErrNotFound)
	}

	positions, err := e.store.Children(ctx, ref, models.RelContains)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		if err := e.store.DeleteNode(ctx, pos); err != nil {
			return err
		}
	}
	if err := e.store.DeleteNode(ctx, ref); err != nil {
		return err
	}

	e.logger.Info().Str("portfolio", name).Int("positions", len(positions)).Msg("Portfolio deleted")
	return nil
}

// Stats returns node and edge counts per table
func (e *Engine) Stats(ctx context.Context) (*models.GraphCounts, error) {
	return e.store.Counts(ctx)
}

// Compile-time check
var _ interfaces.GraphService = (*Engine)(nil)

// writer performs the writes of one Upsert call
type writer struct {
	engine *Engine
	rec    *statsRecorder
	runID  string
	now    string
}

func (w *writer) put(ctx context.Context, nw models.NodeWrite) error {
	unlock := w.engine.locks.Lock(nw.Ref.String())
	defer unlock()
	return w.write(ctx, nw)
}

// write upserts a node. Caller holds the node's key lock.
func (w *writer) write(ctx context.Context, nw models.NodeWrite) error {
	if w.runID != "" {
		if nw.Set == nil {
			nw.Set = make(map[string]any)
		}
		nw.Set[models.FLastRunID] = w.runID
	}
	if err := w.engine.store.UpsertNode(ctx, nw); err != nil {
		return err
	}
	w.rec.node()
	return nil
}

func (w *writer) link(ctx context.Context, rel models.Relation, from, to models.NodeRef) error {
	edge := models.Edge{Relation: rel, From: from, To: to}
	unlock := w.engine.locks.Lock(edge.String())
	defer unlock()

	created, err := w.engine.store.UpsertEdge(ctx, edge)
	if err != nil {
		return err
	}
	w.rec.edge(created)
	return nil
}

// relink makes to the only target of from's rel edges. Targets from an
// earlier load are unlinked so a company keeps one country of operations
// and a security one issuer.
func (w *writer) relink(ctx context.Context, rel models.Relation, from, to models.NodeRef) error {
	unlock := w.engine.locks.Lock(string(rel) + ">" + from.String())
	defer unlock()

	targets, err := w.engine.store.Children(ctx, from, rel)
	if err != nil {
		return err
	}
	for _, t := range targets {
		if t == to {
			continue
		}
		if err := w.unlink(ctx, models.Edge{Relation: rel, From: from, To: t}); err != nil {
			return err
		}
	}
	return w.link(ctx, rel, from, to)
}

// relinkFrom makes from the only source of to's incoming rel edges
func (w *writer) relinkFrom(ctx context.Context, rel models.Relation, from, to models.NodeRef) error {
	unlock := w.engine.locks.Lock(string(rel) + "<" + to.String())
	defer unlock()

	sources, err := w.engine.store.Parents(ctx, to, rel)
	if err != nil {
		return err
	}
	for _, src := range sources {
		if src == from {
			continue
		}
		if err := w.unlink(ctx, models.Edge{Relation: rel, From: src, To: to}); err != nil {
			return err
		}
	}
	return w.link(ctx, rel, from, to)
}

func (w *writer) unlink(ctx context.Context, edge models.Edge) error {
	unlock := w.engine.locks.Lock(edge.String())
	defer unlock()

	removed, err := w.engine.store.DeleteEdge(ctx, edge)
	if err != nil {
		return err
	}
	if removed {
		w.rec.removed()
		w.engine.logger.Debug().Str("edge", edge.String()).Msg("Replaced link removed")
	}
	return nil
}

// countryTasks writes every country an enriched company refers to
func (w *writer) countryTasks(r *models.EnrichmentResult) []func(context.Context) error {
	codes := make(map[string]models.Country)
	for code, c := range r.Countries {
		if c != nil {
			codes[models.NormalizeCountryCode(code)] = *c
		}
	}
	for _, c := range r.Companies {
		for _, code := range []string{c.OperationsCountry, c.DomicileCountry} {
			code = models.NormalizeCountryCode(code)
			if code == "" {
				continue
			}
			if _, ok := codes[code]; !ok {
				codes[code] = models.NewCountry(code)
			}
		}
	}

	var tasks []func(context.Context) error
	for _, code := range sortedKeys(codes) {
		c := codes[code]
		tasks = append(tasks, func(ctx context.Context) error {
			set := map[string]any{models.FCode: code, models.FName: c.Name}
			if c.Region != "" {
				set[models.FRegion] = c.Region
			}
			return w.put(ctx, models.NodeWrite{Ref: models.CountryRef(code), Set: set})
		})
	}
	return tasks
}

func (w *writer) companyTasks(r *models.EnrichmentResult) []func(context.Context) error {
	var tasks []func(context.Context) error
	for _, id := range sortedKeys(r.Companies) {
		c := r.Companies[id]
		if c == nil || c.IssuerID == "" {
			continue
		}
		tasks = append(tasks, func(ctx context.Context) error {
			ref := models.CompanyRef(c.IssuerID)
			set := map[string]any{
				models.FIssuerID:          c.IssuerID,
				models.FName:              optional(c.Name),
				models.FSector:            optional(c.Sector),
				models.FIndustry:          optional(c.Industry),
				models.FOperationsCountry: optional(models.NormalizeCountryCode(c.OperationsCountry)),
				models.FDomicileCountry:   optional(models.NormalizeCountryCode(c.DomicileCountry)),
			}
			if err := w.put(ctx, models.NodeWrite{Ref: ref, Set: set}); err != nil {
				return err
			}
			if code := models.NormalizeCountryCode(c.OperationsCountry); code != "" {
				if err := w.relink(ctx, models.RelOperatesIn, ref, models.CountryRef(code)); err != nil {
					return err
				}
			}
			if code := models.NormalizeCountryCode(c.DomicileCountry); code != "" {
				if err := w.relink(ctx, models.RelDomiciledIn, ref, models.CountryRef(code)); err != nil {
					return err
				}
			}
			if c.CEO != nil {
				return w.writeCEO(ctx, ref, c.CEO)
			}
			return nil
		})
	}
	return tasks
}

// writeCEO writes the executive and makes them the company's only CEO
func (w *writer) writeCEO(ctx context.Context, company models.NodeRef, o *models.Officer) error {
	ref := models.ExecutiveRef(company.Key, o.Name)
	set := map[string]any{
		models.FName:      strings.TrimSpace(o.Name),
		models.FIssuerID:  company.Key,
		models.FTitle:     optional(o.Title),
		models.FStartDate: optional(o.StartDate),
	}
	if err := w.put(ctx, models.NodeWrite{Ref: ref, Set: set}); err != nil {
		return err
	}
	return w.relinkFrom(ctx, models.RelCEOOf, ref, company)
}

// securityTasks writes one node per distinct security held, enriched or
// not, so every position has a security to point at
func (w *writer) securityTasks(r *models.EnrichmentResult, p *models.Portfolio) []func(context.Context) error {
	held := make(map[string]*models.Position)
	for _, pos := range p.Positions {
		key := pos.SecurityKey()
		if _, ok := held[key]; !ok {
			held[key] = pos
		}
	}

	var tasks []func(context.Context) error
	for _, key := range sortedKeys(held) {
		pos := held[key]
		sec := r.Securities[key]
		issuer := r.Issuers[key]
		if sec != nil && sec.IssuerID != "" {
			issuer = sec.IssuerID
		}
		_, companyKnown := r.Companies[issuer]

		tasks = append(tasks, func(ctx context.Context) error {
			ref := models.SecurityKeyRef(key)
			if err := w.putSecurity(ctx, ref, securityFields(pos, sec)); err != nil {
				return err
			}
			if issuer != "" && companyKnown {
				return w.relink(ctx, models.RelIssuedBy, ref, models.CompanyRef(issuer))
			}
			return nil
		})
	}
	return tasks
}

// putSecurity writes a security node. The class is set by the first load
// that classifies the security and is not changed by portfolios holding it
// under a different identifier mix.
func (w *writer) putSecurity(ctx context.Context, ref models.NodeRef, set map[string]any) error {
	unlock := w.engine.locks.Lock(ref.String())
	defer unlock()

	existing, err := w.engine.store.GetNode(ctx, ref)
	if err != nil {
		return err
	}
	stored := models.SecurityClass(existing.String(models.FClass))
	if stored != "" && stored != models.ClassUnknown {
		delete(set, models.FClass)
	}
	return w.write(ctx, models.NodeWrite{Ref: ref, Set: set})
}

func securityFields(pos *models.Position, sec *models.Security) map[string]any {
	id := pos.Identifier
	set := map[string]any{
		models.FIdentifierType:  string(id.Type),
		models.FIdentifierValue: id.Value,
		models.FClass:           string(id.Class),
		models.FTicker:          optional(pos.Ticker),
		models.FISIN:            optional(pos.ISIN),
		models.FCUSIP:           optional(pos.CUSIP),
	}
	if sec == nil {
		return set
	}

	set[models.FName] = optional(sec.Name)
	set[models.FIssuerID] = optional(sec.IssuerID)
	if sec.Price != nil {
		set[models.FPrice] = *sec.Price
		if sec.PriceDate != nil {
			set[models.FPriceDate] = models.FormatTime(*sec.PriceDate)
		}
	}

	switch v := sec.Variant.(type) {
	case models.Stock:
		set[models.FVariant] = v.VariantName()
		if v.Ticker != "" {
			set[models.FTicker] = v.Ticker
		}
		if v.ISIN != "" {
			set[models.FISIN] = v.ISIN
		}
		if v.CUSIP != "" {
			set[models.FCUSIP] = v.CUSIP
		}
	case models.Bond:
		set[models.FVariant] = v.VariantName()
		if v.CouponRate != nil {
			set[models.FCouponRate] = *v.CouponRate
		}
		set[models.FCurrency] = optional(v.Currency)
		if v.Maturity != nil {
			set[models.FMaturity] = models.FormatTime(*v.Maturity)
		}
	}
	return set
}

// writePortfolio writes the portfolio node, keeping the creation time of
// an earlier load
func (w *writer) writePortfolio(ctx context.Context, p *models.Portfolio) error {
	ref := models.PortfolioRef(p.Name)

	unlock := w.engine.locks.Lock("created:" + ref.String())
	defer unlock()

	existing, err := w.engine.store.GetNode(ctx, ref)
	if err != nil {
		return err
	}

	set := map[string]any{
		models.FName:           p.Name,
		models.FTotalBookValue: p.TotalBookValue,
		models.FPositionCount:  float64(len(p.Positions)),
		models.FUpdatedAt:      w.now,
	}
	if created := existing.Time(models.FCreatedAt); created != nil {
		p.CreatedAt = *created
	} else {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now()
		}
		set[models.FCreatedAt] = models.FormatTime(p.CreatedAt)
	}
	return w.put(ctx, models.NodeWrite{Ref: ref, Set: set})
}

func (w *writer) positionTasks(p *models.Portfolio) []func(context.Context) error {
	pfRef := models.PortfolioRef(p.Name)
	tasks := make([]func(context.Context) error, 0, len(p.Positions))
	for _, pos := range p.Positions {
		tasks = append(tasks, func(ctx context.Context) error {
			ref := models.PositionRef(p.Name, pos.Key)
			set, clear := positionFields(p.Name, pos)
			set[models.FUpdatedAt] = w.now
			if err := w.put(ctx, models.NodeWrite{Ref: ref, Set: set, Clear: clear}); err != nil {
				return err
			}
			if err := w.link(ctx, models.RelContains, pfRef, ref); err != nil {
				return err
			}
			return w.link(ctx, models.RelInvestedIn, ref, models.SecurityKeyRef(pos.SecurityKey()))
		})
	}
	return tasks
}

// positionFields returns the fields to set and the optional fields this
// load has no value for, which are cleared rather than retained
func positionFields(portfolio string, pos *models.Position) (map[string]any, []string) {
	set := map[string]any{
		models.FPortfolio:   portfolio,
		models.FPositionKey: pos.Key,
		models.FRow:         float64(pos.Row),
		models.FSecurityKey: pos.SecurityKey(),
		models.FQuantity:    pos.Quantity,
		models.FBookValue:   pos.BookValue,
		models.FWeight:      pos.Weight,
	}
	var clear []string

	optionalFloats := []struct {
		field string
		value *float64
	}{
		{models.FCostBasis, pos.CostBasis},
		{models.FCurrentValue, pos.CurrentValue},
		{models.FMarketValue, pos.MarketValue},
		{models.FPrice, pos.Price},
	}
	for _, f := range optionalFloats {
		if f.value != nil {
			set[f.field] = *f.value
		} else {
			clear = append(clear, f.field)
		}
	}

	if pos.SecurityType != "" {
		set[models.FSecurityType] = pos.SecurityType
	} else {
		clear = append(clear, models.FSecurityType)
	}
	if pos.PurchaseDate != nil {
		set[models.FPurchaseDate] = models.FormatTime(*pos.PurchaseDate)
	} else {
		clear = append(clear, models.FPurchaseDate)
	}
	return set, clear
}

// deleteStale removes positions the portfolio owned before this load but
// not in it
func (w *writer) deleteStale(ctx context.Context, p *models.Portfolio) error {
	pfRef := models.PortfolioRef(p.Name)
	current := make(map[string]bool, len(p.Positions))
	for _, pos := range p.Positions {
		current[models.PositionRef(p.Name, pos.Key).Key] = true
	}

	children, err := w.engine.store.Children(ctx, pfRef, models.RelContains)
	if err != nil {
		return err
	}
	for _, child := range children {
		if current[child.Key] {
			continue
		}
		unlock := w.engine.locks.Lock(child.String())
		err := w.engine.store.DeleteNode(ctx, child)
		unlock()
		if err != nil {
			return err
		}
		w.rec.deleted()
	}
	return nil
}

// optional maps "" to nil so the store keeps the stored value
func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
