package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"dvsmart-go/internal/store/migrations"
)

// OpenSQLite opens a SQLite-backed store. path can be a file path or
// ":memory:" for an in-memory database. The schema is not migrated.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers; an in-memory database also
	// exists only per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return newSQLStore(db, migrations.SQLite), nil
}

// NewTestSQLite opens an in-memory SQLite store with the schema applied.
func NewTestSQLite() (*SQLStore, error) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return s, nil
}
