package sales_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sales-engine/ledger"
	"github.com/warp/sales-engine/sales"
)

func TestComputeTotals(t *testing.T) {
	gift := item("G", 2, "30.00")
	gift.IsGift = true

	tests := []struct {
		name     string
		items    []sales.LineItem
		pct      string
		subtotal string
		discount string
		total    string
	}{
		{"no discount", []sales.LineItem{item("A", 3, "19.90")}, "0", "59.70", "0.00", "59.70"},
		{"percent discount", []sales.LineItem{item("A", 1, "99.99")}, "15", "99.99", "15.00", "84.99"},
		{"gift is free", []sales.LineItem{item("A", 1, "10.00"), gift}, "0", "10.00", "0.00", "10.00"},
		{"full discount", []sales.LineItem{item("A", 2, "5.00")}, "100", "10.00", "10.00", "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sales.ComputeTotals(tt.items, money(tt.pct))
			assert.Equal(t, tt.subtotal, got.Subtotal.StringFixed(2))
			assert.Equal(t, tt.discount, got.DiscountValue.StringFixed(2))
			assert.Equal(t, tt.total, got.Total.StringFixed(2))
		})
	}
}

func TestReconcilePayments(t *testing.T) {
	total := money("250.00")

	assert.NoError(t, sales.ReconcilePayments(total, money("250.00")))
	assert.NoError(t, sales.ReconcilePayments(total, money("249.95")))
	assert.NoError(t, sales.ReconcilePayments(total, money("250.05")))

	err := sales.ReconcilePayments(total, money("249.94"))
	var mismatch *sales.PaymentMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "0.06", mismatch.Difference().StringFixed(2))

	err = sales.ReconcilePayments(total, money("251"))
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "-1.00", mismatch.Difference().StringFixed(2))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		err      error
		code     string
		client   bool
		conflict bool
		notFound bool
	}{
		{sales.ErrEmptyCart, "empty_cart", true, false, false},
		{&sales.PaymentMismatchError{}, "payment_mismatch", true, false, false},
		{&sales.InvalidLineItemError{}, "invalid_line_item", true, false, false},
		{&sales.InsufficientStockError{}, "insufficient_stock", false, true, false},
		{sales.ErrAlreadyCancelled, "already_cancelled", false, true, false},
		{sales.ErrNotCancellable, "not_cancellable", false, true, false},
		{&sales.ProductNotFoundError{}, "product_not_found", false, false, true},
		{sales.ErrInstallmentNotFound, "installment_not_found", false, false, true},
		{&sales.AccessDeniedError{}, "access_denied", false, false, false},
		{&ledger.TransactionAbortedError{Attempts: 5}, "transaction_aborted", false, false, false},
		{errors.New("disk on fire"), "internal", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.code, sales.Code(tt.err))
			assert.Equal(t, tt.client, sales.IsClientError(tt.err))
			assert.Equal(t, tt.conflict, sales.IsConflict(tt.err))
			assert.Equal(t, tt.notFound, sales.IsNotFound(tt.err))
		})
	}
}
