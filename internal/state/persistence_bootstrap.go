package state

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PersistenceBootstrap opens (creating if absent) the state database under
// stateDir, applies pending migrations, and returns a ready-to-use
// StateRepo plus an io.Closer for the DB handle.
func PersistenceBootstrap(stateDir string) (repo *StateRepo, closer io.Closer, err error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create state dir %s: %w", stateDir, err)
	}

	dbPath := filepath.Join(stateDir, "gridassign.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", dbPath, err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate %s: %w", dbPath, err)
	}

	return NewStateRepo(db), dbHandle{db}, nil
}

// dbHandle adapts *sql.DB to io.Closer without exposing it directly.
type dbHandle struct{ db *sql.DB }

func (h dbHandle) Close() error { return h.db.Close() }
