package testing

import (
	"context"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/teranos/civicload/warehouse"
)

// CreateTestWarehouse opens an in-memory SQLite warehouse with migrations applied.
// Automatically registers cleanup via t.Cleanup().
func CreateTestWarehouse(t *testing.T) *warehouse.Warehouse {
	t.Helper()

	ctx := context.Background()
	w, err := warehouse.Open(ctx, warehouse.DriverSQLite, ":memory:", zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("Failed to create test warehouse: %v", err)
	}
	t.Cleanup(func() {
		w.Close()
	})

	if err := w.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate test warehouse: %v", err)
	}
	return w
}
