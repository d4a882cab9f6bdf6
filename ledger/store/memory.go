// Package store provides in-process ledger.Backend implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/sales-engine/ledger"
)

// =============================================================================
// MEMORY BACKEND - Versioned in-memory documents (for testing/dev)
// =============================================================================

// Memory keeps committed documents in a map. Versions come from one
// monotonic sequence shared by all documents, so a document that is deleted
// and recreated never reuses a version a reader may have observed.
type Memory struct {
	mu   sync.RWMutex
	docs map[ledger.Ref]entry
	seq  int64
}

type entry struct {
	body    []byte
	version int64
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[ledger.Ref]entry)}
}

func (m *Memory) Load(_ context.Context, ref ledger.Ref) (ledger.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.docs[ref]
	if !ok {
		return ledger.Document{}, fmt.Errorf("%s: %w", ref, ledger.ErrDocumentNotFound)
	}
	return ledger.Document{Ref: ref, Body: clone(e.body), Version: e.version}, nil
}

// Commit validates the whole read set before touching anything, then applies
// every write under the same lock.
func (m *Memory) Commit(_ context.Context, reads map[ledger.Ref]int64, writes []ledger.Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ref, want := range reads {
		if got := m.docs[ref].version; got != want {
			return &ledger.ConflictError{Ref: ref, Expected: want, Actual: got}
		}
	}
	for _, w := range writes {
		if w.Kind != ledger.MutationPut && w.Kind != ledger.MutationDelete {
			return fmt.Errorf("unknown mutation kind %d for %s", w.Kind, w.Ref)
		}
	}

	for _, w := range writes {
		if w.Kind == ledger.MutationDelete {
			delete(m.docs, w.Ref)
			continue
		}
		m.seq++
		m.docs[w.Ref] = entry{body: clone(w.Body), version: m.seq}
	}
	return nil
}

func (m *Memory) Scan(_ context.Context, collection string) ([]ledger.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.Document
	for ref, e := range m.docs {
		if ref.Collection != collection {
			continue
		}
		out = append(out, ledger.Document{Ref: ref, Body: clone(e.body), Version: e.version})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.ID < out[j].Ref.ID })
	return out, nil
}

// Len returns the number of committed documents in a collection.
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for ref := range m.docs {
		if ref.Collection == collection {
			n++
		}
	}
	return n
}

// Reset drops every document. The version sequence keeps counting.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = make(map[ledger.Ref]entry)
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
