package surrealdb

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bobmcallan/pagr/internal/common"
	"github.com/bobmcallan/pagr/internal/interfaces"
	"github.com/bobmcallan/pagr/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// GraphStore implements interfaces.GraphStore using SurrealDB. Nodes are
// records keyed by their merge key, edges are RELATE records carrying the
// endpoint keys for indexed lookups.
type GraphStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewGraphStoreFromDB wraps an open connection
func NewGraphStoreFromDB(db *surrealdb.DB, logger *common.Logger) *GraphStore {
	return &GraphStore{db: db, logger: logger}
}

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ident validates a table or field name before it is spliced into SurrealQL
func ident(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return name, nil
}

func recordID(ref models.NodeRef) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(string(ref.Kind), ref.Key)
}

type schemaMarker struct {
	Hierarchy string `json:"hierarchy"`
}

func (s *GraphStore) EnsureSchema(ctx context.Context) error {
	tables, err := s.tableNames(ctx)
	if err != nil {
		return err
	}

	if tables[string(models.RelHoldsLegacy)] {
		n, err := s.count(ctx, "SELECT count() AS cnt FROM holds GROUP ALL", nil)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: store contains %d legacy %s edges", models.ErrSchemaMismatch, n, models.RelHoldsLegacy)
		}
	}
	if tables[string(models.RelIssuedBy)] {
		n, err := s.count(ctx, "SELECT count() AS cnt FROM issued_by WHERE string::starts_with(<string> in, 'position:') GROUP ALL", nil)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d %s edges start at positions", models.ErrSchemaMismatch, n, models.RelIssuedBy)
		}
	}

	if err := defineTables(ctx, s.db); err != nil {
		return err
	}

	rid := surrealmodels.NewRecordID(metaTable, "schema")
	res, err := surrealdb.Query[[]schemaMarker](ctx, s.db, "SELECT hierarchy FROM $rid", map[string]any{"rid": rid})
	if err != nil {
		return fmt.Errorf("failed to read schema marker: %w", err)
	}
	if res != nil && len(*res) > 0 && len((*res)[0].Result) > 0 {
		stored := (*res)[0].Result[0].Hierarchy
		if stored != models.GraphHierarchy {
			return fmt.Errorf("%w: stored hierarchy %q", models.ErrSchemaMismatch, stored)
		}
		return nil
	}

	sql := "UPSERT $rid CONTENT $marker"
	vars := map[string]any{"rid": rid, "marker": schemaMarker{Hierarchy: models.GraphHierarchy}}
	if _, err := surrealdb.Query[[]schemaMarker](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to write schema marker: %w", err)
	}
	s.logger.Debug().Str("hierarchy", models.GraphHierarchy).Msg("Graph schema marker written")
	return nil
}

// tableNames lists the tables defined in the current database
func (s *GraphStore) tableNames(ctx context.Context) (map[string]bool, error) {
	res, err := surrealdb.Query[map[string]any](ctx, s.db, "INFO FOR DB", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read database info: %w", err)
	}
	names := make(map[string]bool)
	if res == nil || len(*res) == 0 {
		return names, nil
	}
	if tables, ok := (*res)[0].Result["tables"].(map[string]any); ok {
		for name := range tables {
			names[name] = true
		}
	}
	return names, nil
}

func (s *GraphStore) count(ctx context.Context, sql string, vars map[string]any) (int, error) {
	res, err := surrealdb.Query[[]countResult](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	if res != nil && len(*res) > 0 && len((*res)[0].Result) > 0 {
		return (*res)[0].Result[0].Cnt, nil
	}
	return 0, nil
}

func (s *GraphStore) UpsertNode(ctx context.Context, w models.NodeWrite) error {
	if w.Ref.Key == "" {
		return fmt.Errorf("upsert %s node: empty key", w.Ref.Kind)
	}

	set := map[string]any{"key": w.Ref.Key}
	for k, v := range w.Set {
		if v == nil || k == "key" {
			continue
		}
		set[k] = v
	}

	sql := "UPSERT $rid MERGE $set"
	if len(w.Clear) > 0 {
		clear := make([]string, 0, len(w.Clear))
		for _, f := range w.Clear {
			name, err := ident(f)
			if err != nil {
				return fmt.Errorf("upsert %s: %w", w.Ref, err)
			}
			clear = append(clear, name)
		}
		sql += "; UPDATE $rid UNSET " + strings.Join(clear, ", ")
	}

	vars := map[string]any{"rid": recordID(w.Ref), "set": set}
	if _, err := surrealdb.Query[[]nodeRecord](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to upsert %s: %w", w.Ref, err)
	}
	return nil
}

func (s *GraphStore) GetNode(ctx context.Context, ref models.NodeRef) (*models.Node, error) {
	res, err := surrealdb.Query[[]nodeRecord](ctx, s.db, "SELECT * OMIT id FROM $rid", map[string]any{"rid": recordID(ref)})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", ref, err)
	}
	if res == nil || len(*res) == 0 || len((*res)[0].Result) == 0 {
		return nil, nil
	}
	rec := (*res)[0].Result[0]
	return &models.Node{Ref: ref, Fields: rec.fields()}, nil
}

func (s *GraphStore) UpsertEdge(ctx context.Context, e models.Edge) (bool, error) {
	rel, err := ident(string(e.Relation))
	if err != nil {
		return false, err
	}

	for _, end := range []models.NodeRef{e.From, e.To} {
		n, err := s.GetNode(ctx, end)
		if err != nil {
			return false, err
		}
		if n == nil {
			return false, fmt.Errorf("%w: edge %s endpoint %s does not exist", models.ErrUpsertConflict, e, end)
		}
	}

	vars := map[string]any{
		"from":      recordID(e.From),
		"to":        recordID(e.To),
		"from_key":  e.From.Key,
		"to_key":    e.To.Key,
		"from_kind": string(e.From.Kind),
		"to_kind":   string(e.To.Kind),
	}

	n, err := s.count(ctx, fmt.Sprintf("SELECT count() AS cnt FROM %s WHERE in = $from AND out = $to GROUP ALL", rel), vars)
	if err != nil {
		return false, fmt.Errorf("failed to check edge %s: %w", e, err)
	}
	switch {
	case n == 1:
		return false, nil
	case n > 1:
		return false, fmt.Errorf("%w: %d parallel edges %s", models.ErrUpsertConflict, n, e)
	}

	sql := fmt.Sprintf("RELATE $from->%s->$to SET from_key = $from_key, to_key = $to_key, from_kind = $from_kind, to_kind = $to_kind", rel)
	if _, err := surrealdb.Query[[]edgeRecord](ctx, s.db, sql, vars); err != nil {
		return false, fmt.Errorf("failed to relate %s: %w", e, err)
	}
	return true, nil
}

func (s *GraphStore) DeleteEdge(ctx context.Context, e models.Edge) (bool, error) {
	rel, err := ident(string(e.Relation))
	if err != nil {
		return false, err
	}
	sql := fmt.Sprintf("DELETE %s WHERE in = $from AND out = $to RETURN BEFORE", rel)
	res, err := surrealdb.Query[[]edgeRecord](ctx, s.db, sql, map[string]any{"from": recordID(e.From), "to": recordID(e.To)})
	if err != nil {
		return false, fmt.Errorf("failed to delete edge %s: %w", e, err)
	}
	return res != nil && len(*res) > 0 && len((*res)[0].Result) > 0, nil
}

func (s *GraphStore) DeleteNode(ctx context.Context, ref models.NodeRef) error {
	var stmts []string
	for _, r := range models.Relations {
		stmts = append(stmts, fmt.Sprintf("DELETE %s WHERE in = $rid OR out = $rid", r))
	}
	stmts = append(stmts, "DELETE $rid")

	if _, err := surrealdb.Query[any](ctx, s.db, strings.Join(stmts, "; "), map[string]any{"rid": recordID(ref)}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}
	return nil
}

func (s *GraphStore) Children(ctx context.Context, parent models.NodeRef, rel models.Relation) ([]models.NodeRef, error) {
	edges, err := s.edgesFrom(ctx, rel, parent.Kind, []string{parent.Key})
	if err != nil {
		return nil, err
	}
	out := make([]models.NodeRef, 0, len(edges))
	for _, e := range edges {
		out = append(out, models.NodeRef{Kind: models.NodeKind(e.ToKind), Key: e.ToKey})
	}
	return out, nil
}

func (s *GraphStore) Parents(ctx context.Context, child models.NodeRef, rel models.Relation) ([]models.NodeRef, error) {
	edges, err := s.edgesTo(ctx, rel, child.Kind, []string{child.Key})
	if err != nil {
		return nil, err
	}
	out := make([]models.NodeRef, 0, len(edges))
	for _, e := range edges {
		out = append(out, models.NodeRef{Kind: models.NodeKind(e.FromKind), Key: e.FromKey})
	}
	return out, nil
}

// edgesFrom returns edges of one relation leaving any of the given keys,
// ordered by source then target key
func (s *GraphStore) edgesFrom(ctx context.Context, rel models.Relation, kind models.NodeKind, keys []string) ([]edgeRecord, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	table, err := ident(string(rel))
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("SELECT from_key, to_key, from_kind, to_kind FROM %s WHERE from_kind = $kind AND from_key IN $keys", table)
	res, err := surrealdb.Query[[]edgeRecord](ctx, s.db, sql, map[string]any{"kind": string(kind), "keys": keys})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s edges: %w", rel, err)
	}
	var edges []edgeRecord
	if res != nil && len(*res) > 0 {
		edges = (*res)[0].Result
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].FromKey != edges[j].FromKey {
			return edges[i].FromKey < edges[j].FromKey
		}
		return edges[i].ToKey < edges[j].ToKey
	})
	return edges, nil
}

// edgesTo returns edges of one relation arriving at any of the given keys,
// ordered by target then source key
func (s *GraphStore) edgesTo(ctx context.Context, rel models.Relation, kind models.NodeKind, keys []string) ([]edgeRecord, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	table, err := ident(string(rel))
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("SELECT from_key, to_key, from_kind, to_kind FROM %s WHERE to_kind = $kind AND to_key IN $keys", table)
	res, err := surrealdb.Query[[]edgeRecord](ctx, s.db, sql, map[string]any{"kind": string(kind), "keys": keys})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s edges: %w", rel, err)
	}
	var edges []edgeRecord
	if res != nil && len(*res) > 0 {
		edges = (*res)[0].Result
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].ToKey != edges[j].ToKey {
			return edges[i].ToKey < edges[j].ToKey
		}
		return edges[i].FromKey < edges[j].FromKey
	})
	return edges, nil
}

// nodesByKey loads nodes of one kind by merge key
func (s *GraphStore) nodesByKey(ctx context.Context, kind models.NodeKind, keys []string) (map[string]*models.Node, error) {
	out := make(map[string]*models.Node, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	table, err := ident(string(kind))
	if err != nil {
		return nil, err
	}
	res, err := surrealdb.Query[[]nodeRecord](ctx, s.db, fmt.Sprintf("SELECT * OMIT id FROM %s WHERE key IN $keys", table), map[string]any{"keys": keys})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s nodes: %w", kind, err)
	}
	if res != nil && len(*res) > 0 {
		for i := range (*res)[0].Result {
			rec := &(*res)[0].Result[i]
			out[rec.Key] = &models.Node{Ref: models.NodeRef{Kind: kind, Key: rec.Key}, Fields: rec.fields()}
		}
	}
	return out, nil
}

// firstTargets maps each source key to its lowest target key
func firstTargets(edges []edgeRecord) map[string]string {
	out := make(map[string]string, len(edges))
	for _, e := range edges {
		if _, ok := out[e.FromKey]; !ok {
			out[e.FromKey] = e.ToKey
		}
	}
	return out
}

func values(m map[string]string) []string {
	seen := make(map[string]bool, len(m))
	var out []string
	for _, v := range m {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// PositionPaths walks portfolio -> position -> security -> company ->
// countries and executive one hop at a time, one query per hop
func (s *GraphStore) PositionPaths(ctx context.Context, portfolios []string) ([]models.PositionPath, error) {
	var pfKeys []string
	for _, name := range portfolios {
		pfKeys = append(pfKeys, models.PortfolioRef(name).Key)
	}
	contains, err := s.edgesFrom(ctx, models.RelContains, models.KindPortfolio, pfKeys)
	if err != nil {
		return nil, err
	}
	var posKeys []string
	for _, e := range contains {
		posKeys = append(posKeys, e.ToKey)
	}

	positions, err := s.nodesByKey(ctx, models.KindPosition, posKeys)
	if err != nil {
		return nil, err
	}

	invested, err := s.edgesFrom(ctx, models.RelInvestedIn, models.KindPosition, posKeys)
	if err != nil {
		return nil, err
	}
	posToSec := firstTargets(invested)
	securities, err := s.nodesByKey(ctx, models.KindSecurity, values(posToSec))
	if err != nil {
		return nil, err
	}

	issued, err := s.edgesFrom(ctx, models.RelIssuedBy, models.KindSecurity, values(posToSec))
	if err != nil {
		return nil, err
	}
	secToCo := firstTargets(issued)
	companies, err := s.nodesByKey(ctx, models.KindCompany, values(secToCo))
	if err != nil {
		return nil, err
	}

	ops, err := s.edgesFrom(ctx, models.RelOperatesIn, models.KindCompany, values(secToCo))
	if err != nil {
		return nil, err
	}
	dom, err := s.edgesFrom(ctx, models.RelDomiciledIn, models.KindCompany, values(secToCo))
	if err != nil {
		return nil, err
	}
	coToOps, coToDom := firstTargets(ops), firstTargets(dom)

	ceoEdges, err := s.edgesTo(ctx, models.RelCEOOf, models.KindCompany, values(secToCo))
	if err != nil {
		return nil, err
	}
	coToCEO := make(map[string]string, len(ceoEdges))
	for _, e := range ceoEdges {
		if _, ok := coToCEO[e.ToKey]; !ok {
			coToCEO[e.ToKey] = e.FromKey
		}
	}
	executives, err := s.nodesByKey(ctx, models.KindExecutive, values(coToCEO))
	if err != nil {
		return nil, err
	}

	countryKeys := values(coToOps)
	countryKeys = append(countryKeys, values(coToDom)...)
	countries, err := s.nodesByKey(ctx, models.KindCountry, countryKeys)
	if err != nil {
		return nil, err
	}

	pfNames := make(map[string]string, len(portfolios))
	for _, name := range portfolios {
		pfNames[models.PortfolioRef(name).Key] = name
	}

	var paths []models.PositionPath
	for _, e := range contains {
		pos := positions[e.ToKey]
		if pos == nil {
			continue
		}
		path := models.PositionPath{Portfolio: pfNames[e.FromKey], Position: pos}
		if secKey, ok := posToSec[e.ToKey]; ok {
			path.Security = securities[secKey]
			if coKey, ok := secToCo[secKey]; ok {
				path.Company = companies[coKey]
				if c, ok := coToOps[coKey]; ok {
					path.Operations = countries[c]
				}
				if c, ok := coToDom[coKey]; ok {
					path.Domicile = countries[c]
				}
				if x, ok := coToCEO[coKey]; ok {
					path.CEO = executives[x]
				}
			}
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (s *GraphStore) ListNodes(ctx context.Context, kind models.NodeKind) ([]*models.Node, error) {
	table, err := ident(string(kind))
	if err != nil {
		return nil, err
	}
	res, err := surrealdb.Query[[]nodeRecord](ctx, s.db, fmt.Sprintf("SELECT * OMIT id FROM %s ORDER BY key ASC", table), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s nodes: %w", kind, err)
	}
	var out []*models.Node
	if res != nil && len(*res) > 0 {
		for i := range (*res)[0].Result {
			rec := &(*res)[0].Result[i]
			out = append(out, &models.Node{Ref: models.NodeRef{Kind: kind, Key: rec.Key}, Fields: rec.fields()})
		}
	}
	return out, nil
}

func (s *GraphStore) Counts(ctx context.Context) (*models.GraphCounts, error) {
	counts := &models.GraphCounts{
		Nodes: make(map[models.NodeKind]int),
		Edges: make(map[models.Relation]int),
	}
	for _, k := range models.NodeKinds {
		n, err := s.count(ctx, fmt.Sprintf("SELECT count() AS cnt FROM %s GROUP ALL", k), nil)
		if err != nil {
			return nil, err
		}
		counts.Nodes[k] = n
	}
	for _, r := range models.Relations {
		n, err := s.count(ctx, fmt.Sprintf("SELECT count() AS cnt FROM %s GROUP ALL", r), nil)
		if err != nil {
			return nil, err
		}
		counts.Edges[r] = n
	}
	return counts, nil
}

func (s *GraphStore) Close() error {
	return s.db.Close(context.Background())
}

// Compile-time check
var _ interfaces.GraphStore = (*GraphStore)(nil)
