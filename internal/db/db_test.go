package db_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	dbpkg "github.com/garnizeh/contentcrm/internal/db"
)

func TestNew_Close_GetConn(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	d, err := dbpkg.New(ctx, "file::memory:?cache=shared", nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if err := d.Ping(ctx); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}

	if d.GetConn() == nil {
		t.Fatalf("expected non-nil sql.DB from GetConn")
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestExec_QueryRow_QueryRows(t *testing.T) {
	ctx := context.Background()
	d, err := dbpkg.New(ctx, filepath.Join(t.TempDir(), "items.db"), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer d.Close()

	if _, err := d.Exec(ctx, `CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`); err != nil {
		t.Fatalf("Exec create table returned error: %v", err)
	}

	res, err := d.Exec(ctx, `INSERT INTO items (name) VALUES (?)`, "foo")
	if err != nil {
		t.Fatalf("Exec insert returned error: %v", err)
	}
	lastID, err := res.LastInsertId()
	if err != nil || lastID == 0 {
		t.Fatalf("expected last insert id > 0, got %d (%v)", lastID, err)
	}
	if _, err := d.Exec(ctx, `INSERT INTO items (name) VALUES (?)`, "bar"); err != nil {
		t.Fatalf("Exec insert returned error: %v", err)
	}

	var name string
	if err := d.QueryRow(ctx, `SELECT name FROM items WHERE id = ?`, lastID).Scan(&name); err != nil {
		t.Fatalf("QueryRow scan returned error: %v", err)
	}
	if name != "foo" {
		t.Fatalf("expected name 'foo' got %q", name)
	}

	rows, err := d.QueryRows(ctx, `SELECT name FROM items ORDER BY id`)
	if err != nil {
		t.Fatalf("QueryRows: %v", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			t.Fatalf("scan: %v", err)
		}
		names = append(names, n)
	}
	if len(names) != 2 || names[1] != "bar" {
		t.Fatalf("unexpected rows: %v", names)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	d, err := dbpkg.New(ctx, filepath.Join(t.TempDir(), "tx.db"), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer d.Close()

	if _, err := d.Exec(ctx, `CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	boom := errors.New("boom")
	err = d.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO items (name) VALUES ('x')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var count int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM items`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to leave 0 rows, got %d", count)
	}

	if err := d.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO items (name) VALUES ('y')`)
		return err
	}); err != nil {
		t.Fatalf("WithTx commit: %v", err)
	}
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM items`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 committed row, got %d", count)
	}
}
