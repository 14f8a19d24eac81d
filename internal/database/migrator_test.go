package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"go.uber.org/zap"
)

func TestMigrator_LoadMigrationsOrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"README.md":      {Data: []byte("ignored")},
		"bad.sql":        {Data: []byte("ignored")},
	}

	m := &Migrator{logger: zap.NewNop()}
	migrations, err := m.LoadMigrations(fsys)
	if err != nil {
		t.Fatalf("Failed to load migrations: %v", err)
	}

	if len(migrations) != 2 {
		t.Fatalf("Expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != "001" || migrations[1].Version != "002" {
		t.Errorf("Expected versions [001 002], got [%s %s]", migrations[0].Version, migrations[1].Version)
	}
}

func TestMigrator_RunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := NewDB(ctx, Config{Type: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "m.db")})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	fsys, err := Migrations("sqlite")
	if err != nil {
		t.Fatalf("Failed to load migrations: %v", err)
	}

	m := NewMigrator(db, zap.NewNop())
	if err := m.Run(ctx, fsys); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if err := m.Run(ctx, fsys); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	pending, err := m.Pending(ctx, fsys)
	if err != nil {
		t.Fatalf("Failed to list pending migrations: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Expected no pending migrations, got %d", len(pending))
	}
}

func TestNewDB_UnsupportedType(t *testing.T) {
	if _, err := NewDB(context.Background(), Config{Type: "mysql"}); err == nil {
		t.Error("Expected error for unsupported database type")
	}
}
