// Package storage selects the graph store backend.
package storage

import (
	"fmt"

	"github.com/bobmcallan/pagr/internal/common"
	"github.com/bobmcallan/pagr/internal/interfaces"
	"github.com/bobmcallan/pagr/internal/storage/memory"
	"github.com/bobmcallan/pagr/internal/storage/surrealdb"
)

// Backend type constants.
const (
	BackendSurrealDB = "surrealdb"
	BackendMemory    = "memory"
)

// NewGraphStore creates a graph store based on the configuration.
// Supported backends: "surrealdb" (default), "memory".
func NewGraphStore(logger *common.Logger, config *common.Config) (interfaces.GraphStore, error) {
	backend := config.Storage.Backend
	if backend == "" {
		backend = BackendSurrealDB
	}

	switch backend {
	case BackendSurrealDB:
		store, err := surrealdb.NewGraphStore(logger, config)
		if err != nil {
			return nil, err
		}
		return store, nil

	case BackendMemory:
		logger.Warn().Msg("Using in-memory graph store; data is lost when the process exits")
		return memory.NewStore(logger), nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: surrealdb, memory)", backend)
	}
}
