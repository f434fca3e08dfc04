package db

import (
	"context"
	"path/filepath"
	"testing"

	dbfs "github.com/garnizeh/estate/db"
)

// NewTestDB opens a fresh SQLite database in a temp dir with all migrations applied.
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	ctx := context.Background()
	d, err := Open(ctx, filepath.Join(t.TempDir(), "estate-test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := Migrate(ctx, d, dbfs.Migrations); err != nil {
		d.Close()
		t.Fatalf("migrating test database: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}
