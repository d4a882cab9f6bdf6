package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sales-engine/ledger"
	"github.com/warp/sales-engine/ledger/store"
)

func put(ref ledger.Ref, body string) ledger.Mutation {
	return ledger.Mutation{Ref: ref, Kind: ledger.MutationPut, Body: []byte(body)}
}

func TestMemory_CommitValidatesWholeReadSet(t *testing.T) {
	// GIVEN: Two committed documents
	ctx := context.Background()
	m := store.NewMemory()
	a, b := ledger.Doc("products", "a"), ledger.Doc("products", "b")
	require.NoError(t, m.Commit(ctx, nil, []ledger.Mutation{put(a, `{"stock":1}`), put(b, `{"stock":2}`)}))
	docA, err := m.Load(ctx, a)
	require.NoError(t, err)
	docB, err := m.Load(ctx, b)
	require.NoError(t, err)

	// WHEN: b moves after it was read
	require.NoError(t, m.Commit(ctx, map[ledger.Ref]int64{b: docB.Version}, []ledger.Mutation{put(b, `{"stock":3}`)}))
	err = m.Commit(ctx,
		map[ledger.Ref]int64{a: docA.Version, b: docB.Version},
		[]ledger.Mutation{put(a, `{"stock":0}`), put(b, `{"stock":0}`)})

	// THEN: The commit conflicts and neither write lands
	var conflict *ledger.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, b, conflict.Ref)

	got, err := m.Load(ctx, a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"stock":1}`, string(got.Body))
}

func TestMemory_VersionsNeverReused(t *testing.T) {
	// GIVEN: A document that is deleted and recreated
	ctx := context.Background()
	m := store.NewMemory()
	ref := ledger.Doc("sales", "s1")
	require.NoError(t, m.Commit(ctx, nil, []ledger.Mutation{put(ref, `{}`)}))
	first, err := m.Load(ctx, ref)
	require.NoError(t, err)

	require.NoError(t, m.Commit(ctx, nil, []ledger.Mutation{{Ref: ref, Kind: ledger.MutationDelete}}))
	require.NoError(t, m.Commit(ctx, map[ledger.Ref]int64{ref: 0}, []ledger.Mutation{put(ref, `{}`)}))

	// THEN: The new incarnation has a higher version
	second, err := m.Load(ctx, ref)
	require.NoError(t, err)
	assert.Greater(t, second.Version, first.Version)

	// AND: A reader holding the old version conflicts
	err = m.Commit(ctx, map[ledger.Ref]int64{ref: first.Version}, nil)
	assert.ErrorIs(t, err, ledger.ErrConflict)
}

func TestMemory_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	ref := ledger.Doc("products", "p")
	require.NoError(t, m.Commit(ctx, nil, []ledger.Mutation{put(ref, `{"stock":5}`)}))

	doc, err := m.Load(ctx, ref)
	require.NoError(t, err)
	doc.Body[2] = 'X'

	again, err := m.Load(ctx, ref)
	require.NoError(t, err)
	assert.JSONEq(t, `{"stock":5}`, string(again.Body))
}

func TestMemory_ScanAndReset(t *testing.T) {
	// GIVEN: Documents in two collections
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.Commit(ctx, nil, []ledger.Mutation{
		put(ledger.Doc("products", "b"), `{}`),
		put(ledger.Doc("products", "a"), `{}`),
		put(ledger.Doc("sales", "s"), `{}`),
	}))

	// THEN: Scan is per collection and sorted by id
	docs, err := m.Scan(ctx, "products")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].Ref.ID)
	assert.Equal(t, "b", docs[1].Ref.ID)
	assert.Equal(t, 1, m.Len("sales"))

	// WHEN: Resetting
	require.NoError(t, m.Reset(ctx))

	// THEN: Everything is gone
	assert.Equal(t, 0, m.Len("products"))
	_, err = m.Load(ctx, ledger.Doc("sales", "s"))
	assert.ErrorIs(t, err, ledger.ErrDocumentNotFound)
}
