/*
errors.go - Error types for the ledger store adapter

PURPOSE:
  Errors produced by the transaction runner and its backends.
  Domain packages never see ErrConflict: conflicts are retried by the
  runner and only surface as TransactionAbortedError once the retry
  budget is spent.

ERROR CATEGORIES:
  1. Document errors - Missing documents on Get/Patch
  2. Concurrency errors - Read-set moved between read and commit
  3. Runner errors - Retry budget exhausted

SEE ALSO:
  - ledger.go: The retry loop that interprets these errors
  - store/memory.go: Backend that returns ErrConflict
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDocumentNotFound is returned by Get and Patch when the document
	// does not exist in the transaction's snapshot.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrConflict is returned by a Backend when a document in the read set
	// changed version before commit. The runner retries on this error.
	ErrConflict = errors.New("transaction conflict")

	// ErrTransactionAborted is returned when the retry budget is exhausted.
	ErrTransactionAborted = errors.New("transaction aborted")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransactionAbortedError reports how many attempts were made before the
// runner gave up.
type TransactionAbortedError struct {
	Attempts int
	Cause    error
}

func (e *TransactionAbortedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("transaction aborted after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("transaction aborted after %d attempts: %v", e.Attempts, e.Cause)
}

// Is matches both ErrTransactionAborted and the last conflict.
func (e *TransactionAbortedError) Is(target error) bool {
	return target == ErrTransactionAborted
}

func (e *TransactionAbortedError) Unwrap() error {
	return e.Cause
}

// ConflictError names the document whose version moved.
type ConflictError struct {
	Ref      Ref
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: read version %d, found %d", e.Ref, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if re-running the transaction body might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing document.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}
