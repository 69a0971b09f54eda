package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/onnwee/point-farmer/store"
)

// SetupTestDB opens a PGStore against TEST_PG_DSN and runs migrations.
// It skips the test when the variable is not set.
func SetupTestDB(t *testing.T) *store.PGStore {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	pg, err := store.Open(dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pg.Migrate(ctx); err != nil {
		_ = pg.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		_ = pg.Close()
	})
	return pg
}
