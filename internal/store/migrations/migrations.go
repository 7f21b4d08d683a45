// Package migrations embeds the record store schema for each SQL dialect and
// applies it with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Dialects with embedded migrations.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ErrSchemaOutdated means the database needs `dvsmart migrate` before the
// record store can use it.
var ErrSchemaOutdated = errors.New("record store schema is not up to date")

//go:embed files/sqlite/*.sql files/postgres/*.sql
var schemaFiles embed.FS

// Status describes where a database stands relative to the embedded schema.
type Status struct {
	Current uint // 0 when no migration was ever applied
	Latest  uint
	Dirty   bool
}

// Err returns nil when the schema is current, ErrSchemaOutdated (wrapped)
// when migrations are pending, and a plain error when the database is dirty
// or newer than this binary.
func (s Status) Err() error {
	switch {
	case s.Dirty:
		return fmt.Errorf("schema version %d is dirty: a previous migration failed", s.Current)
	case s.Current == 0:
		return fmt.Errorf("%w: no schema version recorded", ErrSchemaOutdated)
	case s.Current < s.Latest:
		return fmt.Errorf("%w: at version %d, latest is %d", ErrSchemaOutdated, s.Current, s.Latest)
	case s.Current > s.Latest:
		return fmt.Errorf("schema version %d is newer than this binary supports (%d)", s.Current, s.Latest)
	}
	return nil
}

// Inspect reads the applied version from db. The migrate instance is left
// open because closing it would close db, which the caller owns.
func Inspect(db *sql.DB, dialect string) (Status, error) {
	latest, err := LatestVersion(dialect)
	if err != nil {
		return Status{}, err
	}
	m, err := open(db, dialect)
	if err != nil {
		return Status{}, err
	}

	st := Status{Latest: latest}
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return st, nil
	case err != nil:
		return Status{}, fmt.Errorf("reading schema version: %w", err)
	}
	st.Current, st.Dirty = v, dirty
	return st, nil
}

// Check is Inspect followed by Status.Err.
func Check(db *sql.DB, dialect string) error {
	st, err := Inspect(db, dialect)
	if err != nil {
		return err
	}
	return st.Err()
}

// Up applies every pending migration. Running it on a current schema is a
// no-op.
func Up(db *sql.DB, dialect string) error {
	m, err := open(db, dialect)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying %s migrations: %w", dialect, err)
	}
	return nil
}

// LatestVersion returns the highest version embedded for dialect, taken from
// the numeric prefix of the *.up.sql file names.
func LatestVersion(dialect string) (uint, error) {
	names, err := fs.Glob(schemaFiles, path.Join("files", dialect, "*.up.sql"))
	if err != nil {
		return 0, fmt.Errorf("listing %s migrations: %w", dialect, err)
	}
	if len(names) == 0 {
		return 0, fmt.Errorf("unknown dialect: %s", dialect)
	}
	var latest uint
	for _, n := range names {
		prefix, _, _ := strings.Cut(path.Base(n), "_")
		v, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("migration %s has no version prefix", n)
		}
		latest = max(latest, uint(v))
	}
	return latest, nil
}

func open(db *sql.DB, dialect string) (*migrate.Migrate, error) {
	var (
		driver database.Driver
		name   string
		err    error
	)
	switch dialect {
	case SQLite:
		name = "sqlite3"
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case Postgres:
		name = "pgx5"
		driver, err = pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	default:
		return nil, fmt.Errorf("unknown dialect: %s", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s migration driver: %w", dialect, err)
	}

	src, err := iofs.New(schemaFiles, path.Join("files", dialect))
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, name, driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	return m, nil
}
