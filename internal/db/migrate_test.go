package db_test

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	dbfs "github.com/garnizeh/contentcrm/db"
	"github.com/garnizeh/contentcrm/internal/db"
)

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()

	d, err := db.New(ctx, filepath.Join(t.TempDir(), "migrate.db"), nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer d.Close()

	if err := db.Migrate(ctx, d, dbfs.Migrations); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if err := db.Migrate(ctx, d, dbfs.Migrations); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	var count int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("scan schema_migrations count: %v", err)
	}
	if count < 1 {
		t.Fatalf("expected at least 1 migration recorded, got %d", count)
	}

	for _, table := range []string{"users", "jobs", "notifications", "background_tasks", "dead_letter_tasks"} {
		var name string
		if err := d.QueryRow(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("expected %s table exists: %v", table, err)
		}
	}
}

func TestMigrate_FailedFileIsNotRecorded(t *testing.T) {
	ctx := context.Background()

	d, err := db.New(ctx, filepath.Join(t.TempDir(), "bad.db"), nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer d.Close()

	fsys := fstest.MapFS{
		"migrations/0001_ok.sql":  {Data: []byte(`CREATE TABLE a (id INTEGER);`)},
		"migrations/0002_bad.sql": {Data: []byte(`CREATE TABLE b (id INTEGER); THIS IS NOT SQL;`)},
	}
	if err := db.Migrate(ctx, d, fsys); err == nil {
		t.Fatalf("expected migrate error for invalid SQL")
	}

	var count int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected only the valid migration recorded, got %d", count)
	}
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM sqlite_master WHERE name='b'`).Scan(&count); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected failed migration to be rolled back")
	}
}

func TestMigrationFiles_SortedAndFiltered(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_b.sql": {Data: []byte("")},
		"migrations/0001_a.SQL": {Data: []byte("")},
		"migrations/README.md":  {Data: []byte("")},
		"migrations/sub/x.sql":  {Data: []byte("")},
	}
	files, err := db.MigrationFiles(fsys, "migrations")
	if err != nil {
		t.Fatalf("MigrationFiles: %v", err)
	}
	if len(files) != 2 || files[0] != "0001_a.SQL" || files[1] != "0002_b.sql" {
		t.Fatalf("unexpected files: %v", files)
	}
}
