package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/sales-engine/ledger"
	"github.com/warp/sales-engine/sales"
	"github.com/warp/sales-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func put(t *testing.T, s *sqlite.Store, reads map[ledger.Ref]int64, ref ledger.Ref, body string) {
	t.Helper()
	err := s.Commit(context.Background(), reads, []ledger.Mutation{{Ref: ref, Kind: ledger.MutationPut, Body: []byte(body)}})
	require.NoError(t, err)
}

func TestStore_LoadMissing(t *testing.T) {
	s := newStore(t)

	_, err := s.Load(context.Background(), ledger.Doc("products", "nope"))

	assert.ErrorIs(t, err, ledger.ErrDocumentNotFound)
}

func TestStore_CommitAndLoad(t *testing.T) {
	s := newStore(t)
	ref := ledger.Doc("products", "p1")

	put(t, s, nil, ref, `{"stock":3}`)

	doc, err := s.Load(context.Background(), ref)
	require.NoError(t, err)
	assert.JSONEq(t, `{"stock":3}`, string(doc.Body))
	assert.Positive(t, doc.Version)
}

func TestStore_StaleReadConflicts(t *testing.T) {
	// GIVEN: A document read at version v
	// WHEN: Someone else writes it, then a commit based on v arrives
	// THEN: ConflictError, and the stale commit's other writes are not applied

	s := newStore(t)
	ctx := context.Background()
	ref := ledger.Doc("products", "p1")
	other := ledger.Doc("products", "p2")

	put(t, s, nil, ref, `{"stock":3}`)
	seen, err := s.Load(ctx, ref)
	require.NoError(t, err)
	put(t, s, map[ledger.Ref]int64{ref: seen.Version}, ref, `{"stock":2}`)

	err = s.Commit(ctx, map[ledger.Ref]int64{ref: seen.Version}, []ledger.Mutation{
		{Ref: other, Kind: ledger.MutationPut, Body: []byte(`{"stock":9}`)},
		{Ref: ref, Kind: ledger.MutationPut, Body: []byte(`{"stock":1}`)},
	})

	var conflict *ledger.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, seen.Version, conflict.Expected)
	_, err = s.Load(ctx, other)
	assert.ErrorIs(t, err, ledger.ErrDocumentNotFound)
}

func TestStore_AbsentReadConflictsWithCreate(t *testing.T) {
	s := newStore(t)
	ref := ledger.Doc("sales", "s1")

	put(t, s, nil, ref, `{}`)

	err := s.Commit(context.Background(), map[ledger.Ref]int64{ref: 0}, []ledger.Mutation{
		{Ref: ref, Kind: ledger.MutationPut, Body: []byte(`{"x":1}`)},
	})
	assert.True(t, errors.Is(err, ledger.ErrConflict))
}

func TestStore_RecreatedDocumentGetsFreshVersion(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ref := ledger.Doc("sales", "s1")

	put(t, s, nil, ref, `{}`)
	first, err := s.Load(ctx, ref)
	require.NoError(t, err)

	require.NoError(t, s.Commit(ctx, nil, []ledger.Mutation{{Ref: ref, Kind: ledger.MutationDelete}}))
	put(t, s, nil, ref, `{}`)

	second, err := s.Load(ctx, ref)
	require.NoError(t, err)
	assert.Greater(t, second.Version, first.Version)
}

func TestStore_ScanIsPerCollection(t *testing.T) {
	s := newStore(t)

	put(t, s, nil, ledger.Doc("products", "b"), `{}`)
	put(t, s, nil, ledger.Doc("products", "a"), `{}`)
	put(t, s, nil, ledger.Doc("sales", "a"), `{}`)

	docs, err := s.Scan(context.Background(), "products")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].Ref.ID)
	assert.Equal(t, "b", docs[1].Ref.ID)
	assert.Equal(t, "products", docs[1].Ref.Collection)

	require.NoError(t, s.Reset(context.Background()))
	docs, err = s.Scan(context.Background(), "products")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestStore_SaleLifecycleEndToEnd(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	l := ledger.New(s, ledger.Options{Backoff: -1, Logger: zaptest.NewLogger(t)})
	ctl := sales.NewController(sales.Config{
		Store: l,
		Verifier: sales.VerifierFunc(func(_ context.Context, c sales.Credential) (string, error) {
			return c.ActorID, nil
		}),
		Logger: zaptest.NewLogger(t),
	})

	_, err := ctl.RegisterProduct(ctx, sales.Product{ID: "P", Name: "Caneca", Stock: 5, Price: decimal.RequireFromString("12.50")})
	require.NoError(t, err)

	sale, err := ctl.Create(ctx, sales.CreateRequest{
		Client: sales.Client{ID: "c1", Name: "Ana"},
		LineItems: []sales.LineItem{{
			ProductID: "P", Name: "Caneca", Quantity: 2, UnitPrice: decimal.RequireFromString("12.50"),
		}},
		Payments: []sales.PaymentTerm{{Method: sales.MethodPix, Amount: decimal.RequireFromString("25")}},
	})
	require.NoError(t, err)

	p, err := ctl.GetProduct(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	_, err = ctl.Cancel(ctx, sale.ID, "desistiu", true, sales.Credential{ActorID: "admin", Secret: "x"})
	require.NoError(t, err)
	require.NoError(t, ctl.Purge(ctx, sale.ID, sales.Credential{ActorID: "admin", Secret: "x"}))

	p, err = ctl.GetProduct(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)

	trail, err := ctl.AuditTrail(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, sales.AuditPurgeSale, trail[1].Action)
}
