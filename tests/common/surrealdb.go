// Package common provides shared test infrastructure
package common

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bobmcallan/pagr/internal/common"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const defaultSurrealImage = "surrealdb/surrealdb:v2.3.7"

var (
	surrealOnce      sync.Once
	surrealContainer *SurrealDBContainer
	surrealError     error
)

// SurrealDBContainer wraps a testcontainers SurrealDB instance.
type SurrealDBContainer struct {
	container testcontainers.Container
	host      string
	port      string
}

// StartSurrealDB starts a shared SurrealDB container for the test run.
// Only one container is created per process. Skipped under -short.
// PAGR_SURREALDB_IMAGE overrides the image.
func StartSurrealDB(t *testing.T) *SurrealDBContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping SurrealDB container test in short mode")
	}

	surrealOnce.Do(func() {
		ctx := context.Background()

		image := os.Getenv("PAGR_SURREALDB_IMAGE")
		if image == "" {
			image = defaultSurrealImage
		}

		req := testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--user", "root", "--pass", "root", "memory"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("8000/tcp"),
				wait.ForLog("Started web server"),
			).WithDeadline(60 * time.Second),
		}

		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			surrealError = fmt.Errorf("start SurrealDB container: %w", err)
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			container.Terminate(ctx)
			surrealError = fmt.Errorf("get SurrealDB host: %w", err)
			return
		}

		mappedPort, err := container.MappedPort(ctx, "8000/tcp")
		if err != nil {
			container.Terminate(ctx)
			surrealError = fmt.Errorf("get SurrealDB port: %w", err)
			return
		}

		surrealContainer = &SurrealDBContainer{
			container: container,
			host:      host,
			port:      mappedPort.Port(),
		}
	})

	if surrealError != nil {
		t.Fatalf("SurrealDB container failed: %v", surrealError)
	}

	return surrealContainer
}

// Address returns the WebSocket RPC address for SurrealDB.
func (c *SurrealDBContainer) Address() string {
	return fmt.Sprintf("ws://%s:%s/rpc", c.host, c.port)
}

// StorageConfig returns a storage section pointing at the container
func (c *SurrealDBContainer) StorageConfig(namespace, database string) common.StorageConfig {
	return common.StorageConfig{
		Backend:   "surrealdb",
		Address:   c.Address(),
		Namespace: namespace,
		Database:  database,
		Username:  "root",
		Password:  "root",
	}
}

// Cleanup terminates the container. Call from TestMain if needed.
func (c *SurrealDBContainer) Cleanup() {
	if c != nil && c.container != nil {
		c.container.Terminate(context.Background())
	}
}

// CleanupSurrealDB terminates the shared container if one was started.
// Call from TestMain after m.Run.
func CleanupSurrealDB() {
	surrealContainer.Cleanup()
}
