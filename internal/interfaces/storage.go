package interfaces

import (
	"context"

	"github.com/bobmcallan/pagr/internal/models"
)

// GraphStore persists the portfolio graph. Nodes are addressed only by
// models.NodeRef so merge keys come from the models constructors.
type GraphStore interface {
	// EnsureSchema prepares the store and returns models.ErrSchemaMismatch
	// when it holds an incompatible hierarchy
	EnsureSchema(ctx context.Context) error

	// UpsertNode merges a write into the node at w.Ref
	UpsertNode(ctx context.Context, w models.NodeWrite) error

	// GetNode returns the node, or nil when it does not exist
	GetNode(ctx context.Context, ref models.NodeRef) (*models.Node, error)

	// UpsertEdge creates the edge unless it already exists. created reports
	// whether a new edge was written. Duplicate edges or a missing endpoint
	// return models.ErrUpsertConflict.
	UpsertEdge(ctx context.Context, e models.Edge) (created bool, err error)

	// DeleteEdge removes the edge if it exists. removed reports whether an
	// edge was deleted.
	DeleteEdge(ctx context.Context, e models.Edge) (removed bool, err error)

	// DeleteNode removes a node and every edge touching it
	DeleteNode(ctx context.Context, ref models.NodeRef) error

	// Children returns the targets of the parent's outgoing edges of one relation
	Children(ctx context.Context, parent models.NodeRef, rel models.Relation) ([]models.NodeRef, error)

	// Parents returns the sources of the child's incoming edges of one relation
	Parents(ctx context.Context, child models.NodeRef, rel models.Relation) ([]models.NodeRef, error)

	// PositionPaths resolves every position of the named portfolios to its
	// security, company, countries and chief executive
	PositionPaths(ctx context.Context, portfolios []string) ([]models.PositionPath, error)

	// ListNodes returns all nodes of one kind
	ListNodes(ctx context.Context, kind models.NodeKind) ([]*models.Node, error)

	// Counts returns node and edge counts per table
	Counts(ctx context.Context) (*models.GraphCounts, error)

	Close() error
}
