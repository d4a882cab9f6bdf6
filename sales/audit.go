package sales

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/warp/sales-engine/ledger"
)

// =============================================================================
// AUDIT RECORDER - Append-only log of sensitive lifecycle events
// =============================================================================

// Recorder writes AuditLogEntry documents. It only ever writes through the
// caller's Tx, so an entry commits or aborts together with the change it
// documents.
type Recorder struct {
	Clock ledger.Clock
	NewID func() string
}

func NewRecorder(clock ledger.Clock) *Recorder {
	return &Recorder{Clock: clock, NewID: uuid.NewString}
}

// Record appends one entry inside tx.
func (r *Recorder) Record(ctx context.Context, tx ledger.Tx, saleID string, action AuditAction, details, actorID string) (AuditLogEntry, error) {
	entry := AuditLogEntry{
		ID:        r.NewID(),
		SaleID:    saleID,
		Action:    action,
		Details:   details,
		ActorID:   actorID,
		Timestamp: r.Clock.Now(),
	}
	if err := tx.Put(ctx, auditRef(entry.ID), entry); err != nil {
		return AuditLogEntry{}, fmt.Errorf("record %s audit entry: %w", action, err)
	}
	return entry, nil
}

// sortAuditEntries orders entries chronologically, oldest first.
func sortAuditEntries(entries []AuditLogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}
