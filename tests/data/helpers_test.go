package data

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bobmcallan/pagr/internal/common"
	"github.com/bobmcallan/pagr/internal/services/exposure"
	"github.com/bobmcallan/pagr/internal/services/graph"
	surrealdb "github.com/bobmcallan/pagr/internal/storage/surrealdb"
	tcommon "github.com/bobmcallan/pagr/tests/common"
)

// testServices returns a graph engine and exposure service sharing a
// SurrealDB graph store with a database unique to the test
func testServices(t *testing.T) (*graph.Engine, *exposure.Service, *surrealdb.GraphStore) {
	t.Helper()

	sc := tcommon.StartSurrealDB(t)
	dbName := fmt.Sprintf("d_%s_%d", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()), time.Now().UnixNano()%100000)

	cfg := common.NewDefaultConfig()
	cfg.Environment = "test"
	cfg.Storage = sc.StorageConfig("pagr_data_test", dbName)

	logger := common.NewSilentLogger()
	store, err := surrealdb.NewGraphStore(logger, cfg)
	if err != nil {
		t.Fatalf("create graph store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})

	return graph.NewEngine(store, cfg.Upsert, logger), exposure.NewService(store, logger), store
}

// testContext returns a background context.
func testContext() context.Context {
	return context.Background()
}
