package sales_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/sales-engine/ledger"
	"github.com/warp/sales-engine/ledger/store"
	"github.com/warp/sales-engine/sales"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const goodSecret = "s3cret"

var (
	operator = sales.Credential{ActorID: "op-1", Secret: goodSecret}
	intruder = sales.Credential{ActorID: "op-1", Secret: "guess"}
	client   = sales.Client{ID: "client-1", Name: "Maria Souza"}
	base     = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
)

// stepClock advances one second per reading, so timestamps are ordered and
// predictable.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	ctl         *sales.Controller
	ledger      *ledger.Ledger
	backend     *store.Memory
	clock       *stepClock
	verifyCalls int
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		backend: store.NewMemory(),
		clock:   &stepClock{t: base},
	}
	f.ledger = ledger.New(f.backend, ledger.Options{Backoff: -1, Logger: zaptest.NewLogger(t)})
	f.ctl = sales.NewController(sales.Config{
		Store:    f.ledger,
		Verifier: sales.VerifierFunc(f.reverify),
		Clock:    f.clock,
		Logger:   zaptest.NewLogger(t),
	})
	return f
}

func (f *fixture) reverify(_ context.Context, cred sales.Credential) (string, error) {
	f.verifyCalls++
	if cred.Secret != goodSecret {
		return "", errors.New("wrong password")
	}
	return cred.ActorID, nil
}

func (f *fixture) product(t *testing.T, id string, stock int, price string) {
	_, err := f.ctl.RegisterProduct(context.Background(), sales.Product{
		ID:    id,
		Name:  "Product " + id,
		Stock: stock,
		Cost:  money(price).Div(decimal.NewFromInt(2)),
		Price: money(price),
	})
	require.NoError(t, err)
}

func (f *fixture) stock(t *testing.T, id string) int {
	p, err := f.ctl.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) sale(t *testing.T, id string) *sales.Sale {
	s, err := f.ctl.GetSale(context.Background(), id)
	require.NoError(t, err)
	return s
}

// cashSale creates a sale paid in cash for exactly its total.
func (f *fixture) cashSale(t *testing.T, items ...sales.LineItem) *sales.Sale {
	total := sales.ComputeTotals(items, decimal.Zero).Total
	s, err := f.ctl.Create(context.Background(), sales.CreateRequest{
		Client:    client,
		LineItems: items,
		Payments:  []sales.PaymentTerm{cash(total.String())},
	})
	require.NoError(t, err)
	return s
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func item(productID string, qty int, price string) sales.LineItem {
	return sales.LineItem{
		ProductID: productID,
		Name:      "Product " + productID,
		Quantity:  qty,
		UnitPrice: money(price),
		UnitCost:  money(price).Div(decimal.NewFromInt(2)),
	}
}

func cash(amount string) sales.PaymentTerm {
	return sales.PaymentTerm{Method: sales.MethodCash, Amount: money(amount)}
}

func card(amount string, installments int) sales.PaymentTerm {
	return sales.PaymentTerm{Method: sales.MethodCreditCard, Amount: money(amount), InstallmentCount: installments}
}
