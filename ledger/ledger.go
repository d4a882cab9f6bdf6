/*
ledger.go - Optimistic atomic transaction runner

PURPOSE:
  The Ledger is the single entry point for mutating documents. It runs a
  transaction body against a fresh snapshot, buffers the body's writes,
  and asks the Backend to validate-and-apply them in one commit.

CRITICAL INVARIANTS:
  1. ALL-OR-NOTHING: A body's writes are committed together or not at all.
  2. SNAPSHOT READS: Every read in one attempt observes one snapshot;
     the commit fails if any read document moved.
  3. BOUNDED RETRY: A conflicting commit re-executes the body from scratch,
     at most MaxAttempts times, then fails with TransactionAbortedError.
  4. NO DOMAIN RETRY: Any error returned by the body aborts immediately
     with zero side effects and is returned unchanged.

RETRY FLOW:
  attempt 1: read stock=10 ─┐
                            ├─ commit ─▶ ErrConflict (someone wrote stock=8)
  attempt 2: read stock=8  ─┴─ commit ─▶ ok

OBSERVABILITY:
  Retries and aborts are counted with OpenTelemetry counters
  (ledger.tx.retries, ledger.tx.aborted), added as events on the
  caller's span, and logged at debug/warn level.

SEE ALSO:
  - store.go: Tx, Store and Backend contracts
  - sales/lifecycle.go: Every lifecycle operation is one RunAtomically call
*/
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 5
	DefaultBackoff     = 5 * time.Millisecond

	instrumentationName = "github.com/warp/sales-engine/ledger"
)

// =============================================================================
// LEDGER - Store implementation over a Backend
// =============================================================================

// Options configures a Ledger. Zero values pick the defaults; a negative
// Backoff disables waiting between attempts.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	Logger      *zap.Logger
	Meter       metric.Meter
}

// Ledger implements Store with optimistic concurrency over a Backend.
type Ledger struct {
	backend     Backend
	maxAttempts int
	backoff     time.Duration
	logger      *zap.Logger

	retries metric.Int64Counter
	aborted metric.Int64Counter
}

func New(backend Backend, opts Options) *Ledger {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	} else if opts.Backoff == 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter(instrumentationName)
	}

	l := &Ledger{
		backend:     backend,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		logger:      opts.Logger.Named("ledger"),
	}

	var err error
	l.retries, err = opts.Meter.Int64Counter("ledger.tx.retries",
		metric.WithDescription("Transaction bodies re-executed after a commit conflict"))
	if err != nil {
		l.logger.Warn("retry counter unavailable", zap.Error(err))
		l.retries, _ = noop.Meter{}.Int64Counter("ledger.tx.retries")
	}
	l.aborted, err = opts.Meter.Int64Counter("ledger.tx.aborted",
		metric.WithDescription("Transactions abandoned after exhausting retries"))
	if err != nil {
		l.logger.Warn("abort counter unavailable", zap.Error(err))
		l.aborted, _ = noop.Meter{}.Int64Counter("ledger.tx.aborted")
	}
	return l
}

// MaxAttempts returns the retry budget per RunAtomically call.
func (l *Ledger) MaxAttempts() int { return l.maxAttempts }

// RunAtomically executes body until it commits, fails, or runs out of attempts.
func (l *Ledger) RunAtomically(ctx context.Context, body TxFunc) error {
	span := trace.SpanFromContext(ctx)
	var lastConflict error

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		t := newTxn(l.backend)
		if err := body(ctx, t); err != nil {
			return err
		}

		err := l.backend.Commit(ctx, t.reads, t.mutations())
		if err == nil {
			if attempt > 1 {
				l.logger.Debug("transaction committed after retry", zap.Int("attempt", attempt))
			}
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return fmt.Errorf("commit: %w", err)
		}

		lastConflict = err
		l.retries.Add(ctx, 1)
		span.AddEvent("ledger.retry", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("cause", err.Error()),
		))
		l.logger.Debug("transaction conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", l.maxAttempts),
			zap.Error(err),
		)

		if attempt < l.maxAttempts {
			if err := l.wait(ctx, attempt); err != nil {
				return err
			}
		}
	}

	l.aborted.Add(ctx, 1)
	l.logger.Warn("transaction aborted", zap.Int("attempts", l.maxAttempts), zap.Error(lastConflict))
	return &TransactionAbortedError{Attempts: l.maxAttempts, Cause: lastConflict}
}

// Scan reads committed documents outside of any transaction. Used for
// presentation queries that need no atomicity.
func (l *Ledger) Scan(ctx context.Context, collection string) ([]Document, error) {
	return l.backend.Scan(ctx, collection)
}

// Get reads one committed document outside of any transaction.
func (l *Ledger) Get(ctx context.Context, ref Ref, dst any) error {
	doc, err := l.backend.Load(ctx, ref)
	if err != nil {
		return err
	}
	return doc.Decode(dst)
}

func (l *Ledger) wait(ctx context.Context, attempt int) error {
	if l.backoff == 0 {
		return nil
	}
	d := time.Duration(attempt)*l.backoff + time.Duration(rand.Int64N(int64(l.backoff)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// =============================================================================
// TXN - One attempt's snapshot and write buffer
// =============================================================================

type txn struct {
	backend Backend
	reads   map[Ref]int64
	cache   map[Ref][]byte // committed bodies seen by this attempt; nil = absent
	writes  map[Ref]Mutation
	order   []Ref
}

func newTxn(backend Backend) *txn {
	return &txn{
		backend: backend,
		reads:   make(map[Ref]int64),
		cache:   make(map[Ref][]byte),
		writes:  make(map[Ref]Mutation),
	}
}

// current returns the body visible to this attempt, honoring its own writes.
// A nil body means the document is absent.
func (t *txn) current(ctx context.Context, ref Ref) ([]byte, error) {
	if m, ok := t.writes[ref]; ok {
		if m.Kind == MutationDelete {
			return nil, nil
		}
		return m.Body, nil
	}
	if body, ok := t.cache[ref]; ok {
		return body, nil
	}

	doc, err := t.backend.Load(ctx, ref)
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		t.reads[ref] = 0
		t.cache[ref] = nil
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", ref, err)
	}
	t.reads[ref] = doc.Version
	t.cache[ref] = doc.Body
	return doc.Body, nil
}

func (t *txn) Get(ctx context.Context, ref Ref, dst any) error {
	body, err := t.current(ctx, ref)
	if err != nil {
		return err
	}
	if body == nil {
		return fmt.Errorf("%s: %w", ref, ErrDocumentNotFound)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode %s: %w", ref, err)
	}
	return nil
}

func (t *txn) Put(_ context.Context, ref Ref, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ref, err)
	}
	t.record(Mutation{Ref: ref, Kind: MutationPut, Body: body})
	return nil
}

func (t *txn) Patch(ctx context.Context, ref Ref, fields map[string]any) error {
	body, err := t.current(ctx, ref)
	if err != nil {
		return err
	}
	if body == nil {
		return fmt.Errorf("%s: %w", ref, ErrDocumentNotFound)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("decode %s: %w", ref, err)
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s.%s: %w", ref, k, err)
		}
		doc[k] = raw
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ref, err)
	}
	t.record(Mutation{Ref: ref, Kind: MutationPut, Body: merged})
	return nil
}

func (t *txn) Delete(_ context.Context, ref Ref) error {
	t.record(Mutation{Ref: ref, Kind: MutationDelete})
	return nil
}

func (t *txn) record(m Mutation) {
	if _, seen := t.writes[m.Ref]; !seen {
		t.order = append(t.order, m.Ref)
	}
	t.writes[m.Ref] = m
}

func (t *txn) mutations() []Mutation {
	out := make([]Mutation, 0, len(t.order))
	for _, ref := range t.order {
		out = append(out, t.writes[ref])
	}
	return out
}
