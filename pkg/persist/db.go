// Package persist stores mock and breakpoint rules in a local sqlite
// database so a gateway restart does not lose the operator's rule set.
// Traffic records are deliberately not persisted; the in-memory ring is
// their only home.
package persist

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/snarehq/snare/internal/errx"
)

// Migration is one versioned schema step. Versions must be contiguous
// starting at 1; each step runs in its own transaction.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

func defaultDBDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "snare")
}

// DefaultDBPath is where the CLI keeps its rule database.
func DefaultDBPath() string {
	return filepath.Join(defaultDBDir(), "rules.db")
}

// Open opens (creating if needed) the sqlite database at path and brings
// the schema up to date.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errx.Wrap(ErrOpenDB, err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errx.Wrap(ErrOpenDB, err)
	}
	// modernc sqlite is single-writer; a second connection would just
	// trade busy errors for lock contention.
	db.SetMaxOpenConns(1)
	if err := migrate(db, ruleMigrations()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *sql.DB, migrations []Migration) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  applied_at TEXT NOT NULL
)`); err != nil {
		return errx.Wrap(ErrMigrate, err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return errx.Wrap(ErrMigrate, err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return errx.Wrap(ErrMigrate, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return errx.Wrapf(ErrMigrate, "%s (v%d): %v", m.Name, m.Version, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_migrations(version, name, applied_at) VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))`,
			m.Version, m.Name,
		); err != nil {
			tx.Rollback()
			return errx.Wrap(ErrMigrate, err)
		}
		if err := tx.Commit(); err != nil {
			return errx.Wrap(ErrMigrate, err)
		}
	}
	return nil
}

func ruleMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_rules",
			SQL: `
CREATE TABLE IF NOT EXISTS mock_rules (
  id TEXT PRIMARY KEY,
  rank INTEGER NOT NULL,
  enabled INTEGER NOT NULL DEFAULT 1,
  priority INTEGER NOT NULL DEFAULT 0,
  rule_json TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mock_rules_rank ON mock_rules(rank);

CREATE TABLE IF NOT EXISTS breakpoint_rules (
  id TEXT PRIMARY KEY,
  rank INTEGER NOT NULL,
  enabled INTEGER NOT NULL DEFAULT 1,
  rule_json TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_breakpoint_rules_rank ON breakpoint_rules(rank);
`,
		},
	}
}
