// Package checks persists which sub-checks are required for a board to pass.
//
// The selection is a key/value mapping from check name to a boolean, stored
// in SQLite. Checks without an entry are treated as required if they belong to
// the jig vocabulary, and as not required otherwise.
package checks

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/flashjig/flashjig/model"

	_ "modernc.org/sqlite"
)

// Config maps a check name to whether it is required for a pass verdict.
type Config map[string]bool

// Defaults returns a Config with every known check required.
func Defaults() Config {
	cfg := make(Config, len(model.KnownChecks))
	for _, name := range model.KnownChecks {
		cfg[name] = true
	}
	return cfg
}

// Required reports whether name is required. Unknown names are not.
func (c Config) Required(name string) bool {
	return c[name]
}

// Names returns the configured check names, known checks first in canonical
// order followed by any others sorted by name.
func (c Config) Names() []string {
	names := make([]string, 0, len(c))
	for _, name := range model.KnownChecks {
		if _, ok := c[name]; ok {
			names = append(names, name)
		}
	}
	var extra []string
	for name := range c {
		if !model.IsKnownCheck(name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// Store is the SQLite-backed RequiredCheckConfig.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("checks: create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("checks: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("checks: pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS required_checks (
			name     TEXT PRIMARY KEY,
			required INTEGER NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("checks: migration: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the stored selection merged over Defaults.
func (s *Store) Load(ctx context.Context) (Config, error) {
	cfg := Defaults()

	rows, err := s.db.QueryContext(ctx, `SELECT name, required FROM required_checks`)
	if err != nil {
		return nil, fmt.Errorf("checks: load: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var required bool
		if err := rows.Scan(&name, &required); err != nil {
			return nil, fmt.Errorf("checks: scan: %w", err)
		}
		cfg[name] = required
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checks: load: %w", err)
	}
	return cfg, nil
}

// Save replaces the stored selection with cfg.
func (s *Store) Save(ctx context.Context, cfg Config) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("checks: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM required_checks`); err != nil {
		return fmt.Errorf("checks: clear: %w", err)
	}
	for name, required := range cfg {
		if err := upsert(ctx, tx, name, required); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("checks: commit: %w", err)
	}
	return nil
}

// Set stores a single entry.
func (s *Store) Set(ctx context.Context, name string, required bool) error {
	return upsert(ctx, s.db, name, required)
}

// Toggle flips the required flag of name and returns the new value.
func (s *Store) Toggle(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("checks: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current := model.IsKnownCheck(name)
	err = tx.QueryRowContext(ctx, `SELECT required FROM required_checks WHERE name = ?`, name).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("checks: read %q: %w", name, err)
	}

	if err := upsert(ctx, tx, name, !current); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("checks: commit: %w", err)
	}
	return !current, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, name string, required bool) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO required_checks (name, required) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET required = excluded.required`,
		name, required)
	if err != nil {
		return fmt.Errorf("checks: store %q: %w", name, err)
	}
	return nil
}
