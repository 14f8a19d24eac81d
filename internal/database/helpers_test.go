package database

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

// setupTestDB opens a migrated SQLite database in a temp dir.
func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()
	ctx := context.Background()

	db, err := NewDB(ctx, Config{
		Type:       "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "pestscan_test.db"),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	migrations, err := Migrations("sqlite")
	if err != nil {
		t.Fatalf("Failed to load migrations: %v", err)
	}
	if err := NewMigrator(db, zap.NewNop()).Run(ctx, migrations); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return db, cleanup
}
