// Package state implements the persistence layer behind spec.md §3's
// Cloud-Task claim table and the hot-reloadable RuntimeConfig: SQLite via
// modernc.org/sqlite, schema migration via golang-migrate, and a StateRepo
// whose writes are single SQL statements.
package state

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// OpenDB opens (or creates) a SQLite database at path with recommended
// pragmas: WAL journal mode, synchronous=NORMAL, foreign_keys=ON,
// busy_timeout=5000. Single-writer: only one connection is ever needed,
// since spec.md §3's claim invariants are enforced by the database itself.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q on %s: %w", p, path, err)
		}
	}

	return db, nil
}
