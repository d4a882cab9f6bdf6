package sales_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sales-engine/ledger"
	"github.com/warp/sales-engine/sales"
)

func TestComputeDeltas(t *testing.T) {
	tests := []struct {
		name     string
		old, new []sales.LineItem
		want     map[string]int
	}{
		{"creation", nil, []sales.LineItem{item("A", 3, "1")}, map[string]int{"A": -3}},
		{"return", []sales.LineItem{item("A", 3, "1")}, nil, map[string]int{"A": 3}},
		{"edit up", []sales.LineItem{item("A", 3, "1")}, []sales.LineItem{item("A", 5, "1")}, map[string]int{"A": -2}},
		{"unchanged dropped", []sales.LineItem{item("A", 3, "1")}, []sales.LineItem{item("A", 3, "9")}, map[string]int{}},
		{
			"swap and split lines",
			[]sales.LineItem{item("A", 2, "1"), item("A", 1, "1")},
			[]sales.LineItem{item("B", 4, "1")},
			map[string]int{"A": 3, "B": -4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sales.ComputeDeltas(tt.old, tt.new))
		})
	}
}

func TestValidateAndApply_RejectsBeforeWriting(t *testing.T) {
	// GIVEN: A (stock 5) and B (stock 1)
	// WHEN: Applying {A:+2, B:-3} in one transaction
	// THEN: Nothing is written, including A's increase

	f := newFixture(t)
	f.product(t, "A", 5, "1")
	f.product(t, "B", 1, "1")

	err := f.ledger.RunAtomically(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return sales.ValidateAndApply(ctx, tx, map[string]int{"A": 2, "B": -3})
	})

	var stockErr *sales.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "B", stockErr.ProductID)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 5, f.stock(t, "A"))
	assert.Equal(t, 1, f.stock(t, "B"))
}

func TestValidateAndApply_DrainsToZero(t *testing.T) {
	f := newFixture(t)
	f.product(t, "A", 3, "1")

	err := f.ledger.RunAtomically(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return sales.ValidateAndApply(ctx, tx, map[string]int{"A": -3})
	})

	require.NoError(t, err)
	assert.Equal(t, 0, f.stock(t, "A"))
}

func TestValidateAndApply_PreservesOtherProductFields(t *testing.T) {
	f := newFixture(t)
	f.product(t, "A", 3, "19.90")

	err := f.ledger.RunAtomically(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return sales.ValidateAndApply(ctx, tx, map[string]int{"A": 4})
	})
	require.NoError(t, err)

	p, err := f.ctl.GetProduct(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)
	assert.Equal(t, "Product A", p.Name)
	assert.Equal(t, "19.90", p.Price.StringFixed(2))
}

func TestReturnBestEffort(t *testing.T) {
	f := newFixture(t)
	f.product(t, "A", 0, "1")

	var warnings []string
	err := f.ledger.RunAtomically(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		var err error
		warnings, err = sales.ReturnBestEffort(ctx, tx, []sales.LineItem{
			item("A", 2, "1"),
			{Name: "Unlinked", Quantity: 1},
			item("gone", 3, "1"),
			item("A", 1, "1"),
		})
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 3, f.stock(t, "A"))
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "Unlinked")
	assert.Contains(t, warnings[1], "gone")
}
