package models

import (
	"fmt"
	"strings"
	"time"
)

// NodeKind is a node table in the graph
type NodeKind string

const (
	KindPortfolio NodeKind = "portfolio"
	KindPosition  NodeKind = "position"
	KindSecurity  NodeKind = "security"
	KindCompany   NodeKind = "company"
	KindCountry   NodeKind = "country"
	KindExecutive NodeKind = "executive"
)

// NodeKinds lists every node table
var NodeKinds = []NodeKind{KindPortfolio, KindPosition, KindSecurity, KindCompany, KindCountry, KindExecutive}

// Relation is an edge table in the graph
type Relation string

const (
	RelContains    Relation = "contains"     // portfolio -> position
	RelInvestedIn  Relation = "invested_in"  // position -> security
	RelIssuedBy    Relation = "issued_by"    // security -> company
	RelOperatesIn  Relation = "operates_in"  // company -> country
	RelDomiciledIn Relation = "domiciled_in" // company -> country
	RelCEOOf       Relation = "ceo_of"       // executive -> company
)

// Relations lists every edge table
var Relations = []Relation{RelContains, RelInvestedIn, RelIssuedBy, RelOperatesIn, RelDomiciledIn, RelCEOOf}

// RelHoldsLegacy is the portfolio-to-security edge of the earlier graph
// layout. Its presence means the store predates positions.
const RelHoldsLegacy Relation = "holds"

// Endpoints returns the node kinds a relation connects
func (r Relation) Endpoints() (from, to NodeKind, ok bool) {
	switch r {
	case RelContains:
		return KindPortfolio, KindPosition, true
	case RelInvestedIn:
		return KindPosition, KindSecurity, true
	case RelIssuedBy:
		return KindSecurity, KindCompany, true
	case RelOperatesIn, RelDomiciledIn:
		return KindCompany, KindCountry, true
	case RelCEOOf:
		return KindExecutive, KindCompany, true
	}
	return "", "", false
}

// GraphHierarchy describes the node/edge layout written by this version.
// Stores record it and refuse to merge into a different layout.
const GraphHierarchy = "portfolio-contains->position-invested_in->security-issued_by->company-operates_in|domiciled_in->country"

// NodeRef is the merge key of a node. Construct with the Ref functions so
// every call site derives keys the same way.
type NodeRef struct {
	Kind NodeKind `json:"kind"`
	Key  string   `json:"key"`
}

func (r NodeRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.Key)
}

// PortfolioRef keys a portfolio by name
func PortfolioRef(name string) NodeRef {
	return NodeRef{Kind: KindPortfolio, Key: strings.TrimSpace(name)}
}

// PositionRef keys a position by portfolio and row-derived position key
func PositionRef(portfolio, positionKey string) NodeRef {
	return NodeRef{Kind: KindPosition, Key: strings.TrimSpace(portfolio) + "/" + positionKey}
}

// SecurityRef keys a security by its identity key
func SecurityRef(id Identifier) NodeRef {
	return NodeRef{Kind: KindSecurity, Key: id.Key()}
}

// SecurityKeyRef keys a security by an already computed identity key
func SecurityKeyRef(key string) NodeRef {
	return NodeRef{Kind: KindSecurity, Key: key}
}

// CompanyRef keys a company by issuer id
func CompanyRef(issuerID string) NodeRef {
	return NodeRef{Kind: KindCompany, Key: strings.TrimSpace(issuerID)}
}

// CountryRef keys a country by its normalized ISO alpha-2 code
func CountryRef(code string) NodeRef {
	return NodeRef{Kind: KindCountry, Key: NormalizeCountryCode(code)}
}

// ExecutiveRef keys an executive by the company they serve and their name,
// so the same person at two companies is two nodes
func ExecutiveRef(issuerID, name string) NodeRef {
	slug := strings.Join(strings.Fields(strings.ToLower(name)), "-")
	return NodeRef{Kind: KindExecutive, Key: strings.TrimSpace(issuerID) + "/" + slug}
}

// NodeWrite merges Set into the node at Ref, creating it if needed.
// Fields absent from Set keep their stored values. Fields named in Clear
// are removed.
type NodeWrite struct {
	Ref   NodeRef
	Set   map[string]any
	Clear []string
}

// Edge connects two nodes through a relation
type Edge struct {
	Relation Relation
	From     NodeRef
	To       NodeRef
}

func (e Edge) String() string {
	return fmt.Sprintf("%s-%s->%s", e.From, e.Relation, e.To)
}

// Node is a stored node with its fields
type Node struct {
	Ref    NodeRef        `json:"ref"`
	Fields map[string]any `json:"fields"`
}

// String returns a string field, "" when absent
func (n *Node) String(field string) string {
	if n == nil {
		return ""
	}
	if s, ok := n.Fields[field].(string); ok {
		return s
	}
	return ""
}

// Float returns a numeric field, nil when absent
func (n *Node) Float(field string) *float64 {
	if n == nil {
		return nil
	}
	switch v := n.Fields[field].(type) {
	case float64:
		return &v
	case float32:
		f := float64(v)
		return &f
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	case uint64:
		f := float64(v)
		return &f
	}
	return nil
}

// Time returns a timestamp field stored as RFC3339 text, nil when absent
func (n *Node) Time(field string) *time.Time {
	s := n.String(field)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

// FormatTime renders a timestamp the way nodes store it
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// PositionPath is a position with everything it resolves to. Any node past
// the position may be nil when the data was unavailable.
type PositionPath struct {
	Portfolio  string `json:"portfolio"`
	Position   *Node  `json:"position"`
	Security   *Node  `json:"security,omitempty"`
	Company    *Node  `json:"company,omitempty"`
	Operations *Node  `json:"operations,omitempty"`
	Domicile   *Node  `json:"domicile,omitempty"`
	CEO        *Node  `json:"ceo,omitempty"`
}

// GraphCounts is the number of nodes and edges per table
type GraphCounts struct {
	Nodes map[NodeKind]int `json:"nodes"`
	Edges map[Relation]int `json:"edges"`
}

// TotalNodes sums node counts across tables
func (c *GraphCounts) TotalNodes() int {
	n := 0
	for _, v := range c.Nodes {
		n += v
	}
	return n
}

// TotalEdges sums edge counts across tables
func (c *GraphCounts) TotalEdges() int {
	n := 0
	for _, v := range c.Edges {
		n += v
	}
	return n
}

// UpsertStats summarises one graph upsert
type UpsertStats struct {
	NodesWritten     int          `json:"nodes_written"`
	EdgesCreated     int          `json:"edges_created"`
	EdgesExisting    int          `json:"edges_existing"`
	EdgesRemoved     int          `json:"edges_removed"` // replaced N:1 links
	PositionsDeleted int          `json:"positions_deleted"`
	Counts           *GraphCounts `json:"counts,omitempty"`
}
