package store

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "subjects.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenAppliesMigrations(t *testing.T) {
	db := openTestDB(t)

	var version string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'version'`).Scan(&version); err != nil {
		t.Fatalf("query meta.version: %v", err)
	}
	if version != "1" {
		t.Fatalf("meta.version = %q, want 1", version)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM subjects`).Scan(&count); err != nil {
		t.Fatalf("subjects table missing: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty subjects table, got %d rows", count)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subjects.db")

	db1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db1.Close()

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	var version string
	if err := db2.QueryRow(`SELECT value FROM meta WHERE key = 'version'`).Scan(&version); err != nil {
		t.Fatalf("query meta.version after reopen: %v", err)
	}
	if version != "1" {
		t.Fatalf("meta.version = %q, want 1", version)
	}
}

func TestOpenRejectsUnwritableDir(t *testing.T) {
	dir := t.TempDir()
	bogus := filepath.Join(dir, "does-not-exist", "subjects.db")
	if _, err := Open(bogus); err == nil {
		t.Fatal("expected error opening db under nonexistent directory")
	}
	if _, err := os.Stat(filepath.Join(dir, "does-not-exist")); err == nil {
		t.Fatal("directory should not have been created")
	}
}
