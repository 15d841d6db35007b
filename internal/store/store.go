// ABOUTME: SQLite-backed store using sqlx over modernc.org/sqlite (pure Go)
// ABOUTME: Owns the connection, migrations, and the per-cycle transaction wrapper

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"refeed/internal/store/migrations"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Fields is a partial-update record: only the named columns are written.
type Fields map[string]any

// Store provides source and entry persistence.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the database at dbPath and applies
// migrations. WAL mode keeps readers unblocked while a refresh cycle writes.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	// Owner-only: reading habits are personal data
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx bundles the writes of one refresh cycle. Entry upserts and the ledger
// write for a fetch commit together or not at all, so readers never see a
// half-applied feed.
type Tx struct {
	tx *sqlx.Tx
}

// WithTx runs fn inside a transaction, committing on nil and rolling back on
// error.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	dbtx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&Tx{tx: dbtx}); err != nil {
		if rbErr := dbtx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
