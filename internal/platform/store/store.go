// Package store opens the SQLite-backed durable state shared by the
// detection runtime's subject registry (spec §4.6, §6). It follows the
// teacher's internal/db pattern: a thin *sql.DB wrapper plus
// golang-migrate/v4 schema management via an embedded migrations
// filesystem, so a fresh deployment and an upgraded one converge on the
// same schema.
package store

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a SQLite connection pool. The subject store (l6subject) is built
// on top of one DB; the job cache is a directory of JSON files and does not
// use it.
type DB struct {
	*sql.DB
}

// Open opens (creating if absent) the SQLite file at path and migrates it
// to the latest schema version. The version row of the meta table tracks
// the schema version the spec's external-interface section names.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// The modernc.org/sqlite driver is not safe for concurrent writers
	// across connections; cap the pool at 1 and rely on Go-level
	// synchronization above this package (subject registry's RWMutex).
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.migrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrateUp() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("store: migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.DB.Close()
}
