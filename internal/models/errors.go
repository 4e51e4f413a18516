package models

import "errors"

var (
	// ErrSchemaMismatch means the graph store holds a hierarchy this
	// version cannot merge into. Fatal to the load.
	ErrSchemaMismatch = errors.New("graph schema mismatch")

	// ErrUpsertConflict means a merge key matched more than one node or
	// edge, or an edge pointed at a missing endpoint. It is an invariant
	// violation and fatal to the load.
	ErrUpsertConflict = errors.New("graph upsert conflict")

	// ErrNotFound is returned when a requested entity does not exist
	ErrNotFound = errors.New("not found")
)
