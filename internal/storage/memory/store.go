// Package memory provides an in-process graph store for tests and
// single-run CLI use
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bobmcallan/pagr/internal/common"
	"github.com/bobmcallan/pagr/internal/interfaces"
	"github.com/bobmcallan/pagr/internal/models"
)

type edgeRecord struct {
	from models.NodeRef
	to   models.NodeRef
}

// Store implements interfaces.GraphStore in memory
type Store struct {
	mu        sync.RWMutex
	nodes     map[models.NodeKind]map[string]map[string]any
	edges     map[models.Relation][]edgeRecord
	hierarchy string
	logger    *common.Logger
}

// NewStore creates an empty store
func NewStore(logger *common.Logger) *Store {
	return &Store{
		nodes:  make(map[models.NodeKind]map[string]map[string]any),
		edges:  make(map[models.Relation][]edgeRecord),
		logger: logger,
	}
}

// EnsureSchema records the graph hierarchy, refusing a store that already
// holds a different one
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.edges[models.RelHoldsLegacy]) > 0 {
		return fmt.Errorf("%w: store contains legacy %s edges", models.ErrSchemaMismatch, models.RelHoldsLegacy)
	}
	for _, e := range s.edges[models.RelIssuedBy] {
		if e.from.Kind == models.KindPosition {
			return fmt.Errorf("%w: %s edges start at positions", models.ErrSchemaMismatch, models.RelIssuedBy)
		}
	}
	if s.hierarchy != "" && s.hierarchy != models.GraphHierarchy {
		return fmt.Errorf("%w: stored hierarchy %q", models.ErrSchemaMismatch, s.hierarchy)
	}
	s.hierarchy = models.GraphHierarchy
	return nil
}

// SetHierarchy overwrites the recorded hierarchy marker
func (s *Store) SetHierarchy(h string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hierarchy = h
}

func (s *Store) UpsertNode(ctx context.Context, w models.NodeWrite) error {
	if w.Ref.Key == "" {
		return fmt.Errorf("upsert %s node: empty key", w.Ref.Kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.nodes[w.Ref.Kind]
	if !ok {
		table = make(map[string]map[string]any)
		s.nodes[w.Ref.Kind] = table
	}
	fields, ok := table[w.Ref.Key]
	if !ok {
		fields = make(map[string]any)
		table[w.Ref.Key] = fields
	}
	for k, v := range w.Set {
		if v == nil {
			continue
		}
		fields[k] = v
	}
	for _, k := range w.Clear {
		delete(fields, k)
	}
	return nil
}

func (s *Store) GetNode(ctx context.Context, ref models.NodeRef) (*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.node(ref), nil
}

// node returns a copy of the node, nil when absent. Caller holds the lock.
func (s *Store) node(ref models.NodeRef) *models.Node {
	fields, ok := s.nodes[ref.Kind][ref.Key]
	if !ok {
		return nil
	}
	cp := make(map[string]any, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return &models.Node{Ref: ref, Fields: cp}
}

func (s *Store) UpsertEdge(ctx context.Context, e models.Edge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, end := range []models.NodeRef{e.From, e.To} {
		if _, ok := s.nodes[end.Kind][end.Key]; !ok {
			return false, fmt.Errorf("%w: edge %s endpoint %s does not exist", models.ErrUpsertConflict, e, end)
		}
	}

	matches := 0
	for _, rec := range s.edges[e.Relation] {
		if rec.from == e.From && rec.to == e.To {
			matches++
		}
	}
	switch {
	case matches == 1:
		return false, nil
	case matches > 1:
		return false, fmt.Errorf("%w: %d parallel edges %s", models.ErrUpsertConflict, matches, e)
	}

	s.edges[e.Relation] = append(s.edges[e.Relation], edgeRecord{from: e.From, to: e.To})
	return true, nil
}

// AppendEdge writes an edge without the idempotence check. It exists to
// reproduce stores damaged by earlier writers.
func (s *Store) AppendEdge(e models.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[e.Relation] = append(s.edges[e.Relation], edgeRecord{from: e.From, to: e.To})
}

func (s *Store) DeleteEdge(ctx context.Context, e models.Edge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.edges[e.Relation]
	kept := recs[:0]
	for _, rec := range recs {
		if rec.from != e.From || rec.to != e.To {
			kept = append(kept, rec)
		}
	}
	removed := len(kept) < len(recs)
	s.edges[e.Relation] = kept
	return removed, nil
}

func (s *Store) DeleteNode(ctx context.Context, ref models.NodeRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for rel, recs := range s.edges {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.from != ref && rec.to != ref {
				kept = append(kept, rec)
			}
		}
		s.edges[rel] = kept
	}
	delete(s.nodes[ref.Kind], ref.Key)
	return nil
}

func (s *Store) Children(ctx context.Context, parent models.NodeRef, rel models.Relation) ([]models.NodeRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.children(parent, rel), nil
}

func (s *Store) children(parent models.NodeRef, rel models.Relation) []models.NodeRef {
	var out []models.NodeRef
	for _, rec := range s.edges[rel] {
		if rec.from == parent {
			out = append(out, rec.to)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *Store) Parents(ctx context.Context, child models.NodeRef, rel models.Relation) ([]models.NodeRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parents(child, rel), nil
}

func (s *Store) parents(child models.NodeRef, rel models.Relation) []models.NodeRef {
	var out []models.NodeRef
	for _, rec := range s.edges[rel] {
		if rec.to == child {
			out = append(out, rec.from)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// first follows one relation and returns its single target, nil if none
func (s *Store) first(from models.NodeRef, rel models.Relation) *models.Node {
	targets := s.children(from, rel)
	if len(targets) == 0 {
		return nil
	}
	return s.node(targets[0])
}

func (s *Store) PositionPaths(ctx context.Context, portfolios []string) ([]models.PositionPath, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var paths []models.PositionPath
	for _, name := range portfolios {
		for _, ref := range s.children(models.PortfolioRef(name), models.RelContains) {
			pos := s.node(ref)
			if pos == nil {
				continue
			}
			path := models.PositionPath{Portfolio: name, Position: pos}
			path.Security = s.first(ref, models.RelInvestedIn)
			if path.Security != nil {
				path.Company = s.first(path.Security.Ref, models.RelIssuedBy)
			}
			if path.Company != nil {
				path.Operations = s.first(path.Company.Ref, models.RelOperatesIn)
				path.Domicile = s.first(path.Company.Ref, models.RelDomiciledIn)
				if ceos := s.parents(path.Company.Ref, models.RelCEOOf); len(ceos) > 0 {
					path.CEO = s.node(ceos[0])
				}
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func (s *Store) ListNodes(ctx context.Context, kind models.NodeKind) ([]*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.nodes[kind]))
	for k := range s.nodes[kind] {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*models.Node, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.node(models.NodeRef{Kind: kind, Key: k}))
	}
	return out, nil
}

func (s *Store) Counts(ctx context.Context) (*models.GraphCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := &models.GraphCounts{
		Nodes: make(map[models.NodeKind]int),
		Edges: make(map[models.Relation]int),
	}
	for _, kind := range models.NodeKinds {
		counts.Nodes[kind] = len(s.nodes[kind])
	}
	for _, rel := range models.Relations {
		counts.Edges[rel] = len(s.edges[rel])
	}
	return counts, nil
}

func (s *Store) Close() error {
	return nil
}

// Compile-time check
var _ interfaces.GraphStore = (*Store)(nil)
