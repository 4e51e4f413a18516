package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bobmcallan/pagr/internal/common"
	tcommon "github.com/bobmcallan/pagr/tests/common"
	surreal "github.com/surrealdb/surrealdb.go"
)

// testDB connects to the shared SurrealDB container with a database
// unique to the test
func testDB(t *testing.T) *surreal.DB {
	t.Helper()

	sc := tcommon.StartSurrealDB(t)

	// SurrealDB rejects "/" in database names
	sanitized := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dbName := fmt.Sprintf("t_%s_%d", sanitized, time.Now().UnixNano()%100000)

	db, err := Connect(context.Background(), sc.StorageConfig("pagr_test", dbName))
	if err != nil {
		t.Fatalf("connect to SurrealDB: %v", err)
	}

	t.Cleanup(func() {
		db.Close(context.Background())
	})

	return db
}

// testStore returns a graph store with its schema in place
func testStore(t *testing.T) *GraphStore {
	t.Helper()
	s := NewGraphStoreFromDB(testDB(t), testLogger())
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return s
}

func testLogger() *common.Logger {
	return common.NewSilentLogger()
}
