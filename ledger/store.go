/*
store.go - Interfaces between the domain and the document store

PURPOSE:
  Defines the atomic read-modify-write primitive the sales engine runs on,
  and the narrow Backend contract every storage engine must satisfy.

KEY INTERFACES:
  Tx:      Reads and buffered writes inside one atomic body
  Store:   RunAtomically(body) - the only way to mutate documents
  Backend: Versioned load + validate-and-apply commit

SNAPSHOT CONTRACT:
  Every read through a Tx records the version it observed. Commit
  succeeds only if none of those versions moved (a document read as
  absent must still be absent). Otherwise the Backend returns
  ErrConflict and the runner re-executes the body from scratch.

ATOMIC COMMIT:
  Writes are buffered in the Tx and handed to Backend.Commit as one
  batch. Either every mutation is applied or none is.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory backend for tests and dev
  - store/sqlite/sqlite.go: SQLite backend
  - store/postgres/postgres.go: PostgreSQL backend (pgx)

SEE ALSO:
  - ledger.go: The retry loop implementing Store
*/
package ledger

import "context"

// =============================================================================
// TX - What a transaction body can do
// =============================================================================

// Tx is the handle passed to a transaction body. It is only valid for the
// duration of that body call.
type Tx interface {
	// Get decodes the document into dst. Returns ErrDocumentNotFound when absent.
	Get(ctx context.Context, ref Ref, dst any) error

	// Put replaces the whole document with v.
	Put(ctx context.Context, ref Ref, v any) error

	// Patch merges top-level fields into an existing document.
	// Returns ErrDocumentNotFound when absent.
	Patch(ctx context.Context, ref Ref, fields map[string]any) error

	// Delete removes the document. Deleting an absent document is a no-op.
	Delete(ctx context.Context, ref Ref) error
}

// =============================================================================
// STORE - The atomic primitive
// =============================================================================

// TxFunc is a transaction body. It may be executed more than once and must
// not have side effects outside the Tx.
type TxFunc func(ctx context.Context, tx Tx) error

// Store runs transaction bodies atomically.
type Store interface {
	RunAtomically(ctx context.Context, body TxFunc) error
}

// RunAtomically runs body through s and returns the value produced by the
// attempt that committed.
func RunAtomically[T any](ctx context.Context, s Store, body func(ctx context.Context, tx Tx) (T, error)) (T, error) {
	var out T
	err := s.RunAtomically(ctx, func(ctx context.Context, tx Tx) error {
		v, err := body(ctx, tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// =============================================================================
// BACKEND - Versioned document persistence
// =============================================================================

// Backend is implemented by storage engines.
type Backend interface {
	// Load returns the committed document. Returns ErrDocumentNotFound when absent.
	Load(ctx context.Context, ref Ref) (Document, error)

	// Commit validates reads (ref -> version observed, 0 = absent) and applies
	// writes in order, atomically. Returns an error wrapping ErrConflict if any
	// read version moved.
	Commit(ctx context.Context, reads map[Ref]int64, writes []Mutation) error

	// Scan returns every committed document in a collection ordered by id.
	Scan(ctx context.Context, collection string) ([]Document, error)
}
