/*
Package postgres provides a PostgreSQL-backed ledger.Backend.

PURPOSE:
  Production storage for the transaction runner. Same contract as the
  sqlite package, with the database doing the locking instead of a
  process mutex, so several server instances can share one database.

COMMIT PROTOCOL:
  1. BEGIN ISOLATION LEVEL SERIALIZABLE
  2. SELECT version ... FOR UPDATE for every read; absent rows are version 0
  3. Any mismatch: ROLLBACK, *ledger.ConflictError
  4. Apply deletes and upserts; each upsert takes nextval(ledger_version_seq)
  5. COMMIT

  Two commits that both saw a document as absent cannot both create it:
  the loser fails with a serialization or unique violation, which is
  reported as a conflict so the runner re-executes it.

KEY TABLES:
  documents:           (collection, id) -> JSONB body, version, updated_at
  ledger_version_seq:  global version sequence

USAGE:
  backend, err := postgres.Open(ctx, os.Getenv("DATABASE_URL"))
  if err != nil {
      log.Fatal(err)
  }
  defer backend.Close()

SEE ALSO:
  - store/sqlite: Single-process implementation of the same contract
  - ledger/store.go: Backend interface
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/sales-engine/ledger"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// Store implements ledger.Backend on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Options tune the connection pool. Zero values keep pgxpool defaults.
type Options struct {
	MaxConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	// ConnectAttempts is how many times Open pings before giving up. The
	// database container often starts after the service.
	ConnectAttempts int
}

var DefaultOptions = Options{
	MaxConns:        20,
	MaxConnLifetime: time.Hour,
	MaxConnIdleTime: 30 * time.Minute,
	ConnectAttempts: 30,
}

// Open connects to databaseURL, waits for the database to answer and
// migrates the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	return OpenWithOptions(ctx, databaseURL, DefaultOptions)
}

func OpenWithOptions(ctx context.Context, databaseURL string, opts Options) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if opts.MaxConnLifetime > 0 {
		config.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	attempts := max(opts.ConnectAttempts, 1)
	for i := 1; ; i++ {
		if err = pool.Ping(ctx); err == nil {
			break
		}
		if i >= attempts {
			pool.Close()
			return nil, fmt.Errorf("database not reachable after %d attempts: %w", attempts, err)
		}
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	store := &Store{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE SEQUENCE IF NOT EXISTS ledger_version_seq;

		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			body JSONB NOT NULL,
			version BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		);
	`)
	return err
}

// =============================================================================
// BACKEND (ledger.Backend interface)
// =============================================================================

func (s *Store) Load(ctx context.Context, ref ledger.Ref) (ledger.Document, error) {
	doc := ledger.Document{Ref: ref}
	err := s.pool.QueryRow(ctx,
		`SELECT body, version FROM documents WHERE collection = $1 AND id = $2`,
		ref.Collection, ref.ID,
	).Scan(&doc.Body, &doc.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Document{}, fmt.Errorf("%s: %w", ref, ledger.ErrDocumentNotFound)
	}
	if err != nil {
		return ledger.Document{}, fmt.Errorf("failed to load %s: %w", ref, err)
	}
	return doc, nil
}

func (s *Store) Commit(ctx context.Context, reads map[ledger.Ref]int64, writes []ledger.Mutation) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for ref, want := range reads {
		var got int64
		err := tx.QueryRow(ctx,
			`SELECT version FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
			ref.Collection, ref.ID,
		).Scan(&got)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return asConflict(ref, want, fmt.Errorf("failed to read version of %s: %w", ref, err))
		}
		if got != want {
			return &ledger.ConflictError{Ref: ref, Expected: want, Actual: got}
		}
	}

	for _, w := range writes {
		switch w.Kind {
		case ledger.MutationDelete:
			_, err = tx.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, w.Ref.Collection, w.Ref.ID)
		case ledger.MutationPut:
			_, err = tx.Exec(ctx, `
				INSERT INTO documents (collection, id, body, version, updated_at)
				VALUES ($1, $2, $3, nextval('ledger_version_seq'), NOW())
				ON CONFLICT (collection, id) DO UPDATE SET
					body = EXCLUDED.body,
					version = EXCLUDED.version,
					updated_at = EXCLUDED.updated_at
			`, w.Ref.Collection, w.Ref.ID, json.RawMessage(w.Body))
		default:
			return fmt.Errorf("unknown mutation kind %d for %s", w.Kind, w.Ref)
		}
		if err != nil {
			return asConflict(w.Ref, reads[w.Ref], fmt.Errorf("failed to write %s: %w", w.Ref, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return asConflict(ledger.Ref{}, 0, fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, collection string) ([]ledger.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, body, version FROM documents WHERE collection = $1 ORDER BY id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []ledger.Document
	for rows.Next() {
		var (
			id  string
			doc ledger.Document
		)
		if err := rows.Scan(&id, &doc.Body, &doc.Version); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.Ref = ledger.Doc(collection, id)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// asConflict turns concurrency failures reported by PostgreSQL into a
// ConflictError; anything else is returned as is.
func asConflict(ref ledger.Ref, expected int64, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
		return &ledger.ConflictError{Ref: ref, Expected: expected, Actual: -1}
	}
	return err
}
