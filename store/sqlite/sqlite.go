/*
Package sqlite provides a SQLite-backed ledger.Backend.

PURPOSE:
  Persists the versioned documents behind the transaction runner in one
  table. The postgres package implements the same contract for
  production; only the SQL dialect and locking differ.

CONTRACT (ledger.Backend):
  Load:   Committed body + version of one document
  Commit: Validate every read version, then apply every write, all inside
          one SQL transaction. Any version drift returns
          *ledger.ConflictError and nothing is written.
  Scan:   Every committed document of a collection

VERSIONS:
  Versions are drawn from ledger_sequence, a single-row counter shared by
  all documents. A deleted then recreated document therefore never comes
  back with a version a reader may already have recorded. Version 0 is
  "absent".

KEY TABLES:
  documents:        (collection, id) -> JSON body, version, updated_at
  ledger_sequence:  the global version counter

CONCURRENCY:
  Uses sync.RWMutex plus a single open connection. SQLite allows one
  writer at a time anyway, and ":memory:" databases are per-connection.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  backend, err := sqlite.New("./data/sales.db")
  if err != nil {
      log.Fatal(err)
  }
  defer backend.Close()

  l := ledger.New(backend, ledger.Options{Logger: logger})

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - ledger/store.go: Backend interface
  - ledger/store/memory.go: In-memory implementation for testing
  - store/postgres: Same contract on PostgreSQL
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/sales-engine/ledger"
)

// Store implements ledger.Backend using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Versioned documents (products, sales, auditLogs)
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		body TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection
		ON documents(collection, id);

	-- Global version counter, exactly one row
	CREATE TABLE IF NOT EXISTS ledger_sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		value INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO ledger_sequence (id, value) VALUES (1, 0);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BACKEND (ledger.Backend interface)
// =============================================================================

// Load returns the committed document at ref.
func (s *Store) Load(ctx context.Context, ref ledger.Ref) (ledger.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		body    string
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT body, version FROM documents WHERE collection = ? AND id = ?",
		ref.Collection, ref.ID,
	).Scan(&body, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Document{}, fmt.Errorf("%s: %w", ref, ledger.ErrDocumentNotFound)
	}
	if err != nil {
		return ledger.Document{}, fmt.Errorf("failed to load %s: %w", ref, err)
	}

	return ledger.Document{Ref: ref, Body: []byte(body), Version: version}, nil
}

// Commit validates reads and applies writes in one SQL transaction.
func (s *Store) Commit(ctx context.Context, reads map[ledger.Ref]int64, writes []ledger.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for ref, want := range reads {
		got, err := currentVersion(ctx, sqlTx, ref)
		if err != nil {
			return err
		}
		if got != want {
			return &ledger.ConflictError{Ref: ref, Expected: want, Actual: got}
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, w := range writes {
		switch w.Kind {
		case ledger.MutationDelete:
			if _, err := sqlTx.ExecContext(ctx,
				"DELETE FROM documents WHERE collection = ? AND id = ?",
				w.Ref.Collection, w.Ref.ID,
			); err != nil {
				return fmt.Errorf("failed to delete %s: %w", w.Ref, err)
			}

		case ledger.MutationPut:
			version, err := nextVersion(ctx, sqlTx)
			if err != nil {
				return err
			}
			query := `
				INSERT INTO documents (collection, id, body, version, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(collection, id) DO UPDATE SET
					body = excluded.body,
					version = excluded.version,
					updated_at = excluded.updated_at
			`
			if _, err := sqlTx.ExecContext(ctx, query,
				w.Ref.Collection, w.Ref.ID, string(w.Body), version, now,
			); err != nil {
				return fmt.Errorf("failed to write %s: %w", w.Ref, err)
			}

		default:
			return fmt.Errorf("unknown mutation kind %d for %s", w.Kind, w.Ref)
		}
	}

	return sqlTx.Commit()
}

// Scan returns every document of a collection, ordered by id.
func (s *Store) Scan(ctx context.Context, collection string) ([]ledger.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, body, version FROM documents WHERE collection = ? ORDER BY id",
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []ledger.Document
	for rows.Next() {
		var (
			id   string
			body string
			doc  ledger.Document
		)
		if err := rows.Scan(&id, &body, &doc.Version); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.Ref = ledger.Doc(collection, id)
		doc.Body = []byte(body)
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all documents (for testing/demo). The version counter is
// kept so versions stay unique across resets.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM documents")
	return err
}

// Helper functions

func currentVersion(ctx context.Context, tx *sql.Tx, ref ledger.Ref) (int64, error) {
	var version int64
	err := tx.QueryRowContext(ctx,
		"SELECT version FROM documents WHERE collection = ? AND id = ?",
		ref.Collection, ref.ID,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read version of %s: %w", ref, err)
	}
	return version, nil
}

func nextVersion(ctx context.Context, tx *sql.Tx) (int64, error) {
	if _, err := tx.ExecContext(ctx, "UPDATE ledger_sequence SET value = value + 1 WHERE id = 1"); err != nil {
		return 0, fmt.Errorf("failed to advance version sequence: %w", err)
	}
	var version int64
	if err := tx.QueryRowContext(ctx, "SELECT value FROM ledger_sequence WHERE id = 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read version sequence: %w", err)
	}
	return version, nil
}
