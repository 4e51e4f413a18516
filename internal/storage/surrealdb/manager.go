// Package surrealdb implements the graph store on SurrealDB
package surrealdb

import (
	"context"
	"fmt"

	"github.com/bobmcallan/pagr/internal/common"
	"github.com/bobmcallan/pagr/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// metaTable holds the schema marker record
const metaTable = "graph_meta"

// Connect opens, authenticates and selects the namespace and database
func Connect(ctx context.Context, config common.StorageConfig) (*surrealdb.DB, error) {
	db, err := surrealdb.New(config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Username,
		"pass": config.Password,
	}); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Namespace, config.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}
	return db, nil
}

// NewGraphStore connects to SurrealDB and returns a graph store. Tables are
// defined by EnsureSchema.
func NewGraphStore(logger *common.Logger, config *common.Config) (*GraphStore, error) {
	db, err := Connect(context.Background(), config.Storage)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB graph store initialized")

	return NewGraphStoreFromDB(db, logger), nil
}

// defineTables makes sure every node, edge and meta table exists, since
// SurrealDB v3 errors on querying a table that was never defined
func defineTables(ctx context.Context, db *surrealdb.DB) error {
	var tables []string
	for _, k := range models.NodeKinds {
		tables = append(tables, string(k))
	}
	for _, r := range models.Relations {
		tables = append(tables, string(r))
	}
	tables = append(tables, metaTable)

	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	for _, k := range models.NodeKinds {
		sql := fmt.Sprintf("DEFINE INDEX IF NOT EXISTS %s_key ON %s FIELDS key UNIQUE", k, k)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return fmt.Errorf("failed to define index on %s: %w", k, err)
		}
	}
	for _, r := range models.Relations {
		for _, side := range []string{"from", "to"} {
			sql := fmt.Sprintf("DEFINE INDEX IF NOT EXISTS %s_%s ON %s FIELDS %s_kind, %s_key", r, side, r, side, side)
			if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
				return fmt.Errorf("failed to define index on %s: %w", r, err)
			}
		}
	}
	return nil
}
