package testhelpers

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/downtime-engine/pkg/config"
	"github.com/ekaya-inc/downtime-engine/pkg/database"
)

// NewSQLiteStore returns a migrated SQLite store in a temporary directory.
// It is closed when the test ends.
func NewSQLiteStore(t *testing.T) *database.SQLStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "downtime.db")
	cfg := config.DatabaseConfig{Driver: config.DriverSQLite, DSN: path}
	if err := database.Migrate(cfg, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate sqlite store: %v", err)
	}

	store, err := database.OpenSQLStore(context.Background(), &database.SQLConfig{
		Driver: config.DriverSQLite,
		DSN:    path,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}
