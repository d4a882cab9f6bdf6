package sales

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PaymentTolerance is how far the sum of payments may drift from the sale
// total, in currency units, before the sale is rejected. The bound is
// inclusive.
var PaymentTolerance = decimal.RequireFromString("0.05")

var hundred = decimal.NewFromInt(100)

// Totals are the derived money fields of a sale.
type Totals struct {
	Subtotal        decimal.Decimal
	DiscountPercent decimal.Decimal
	DiscountValue   decimal.Decimal
	Total           decimal.Decimal
}

// ComputeTotals derives subtotal, discount and total from line items.
// Gifts contribute nothing to the subtotal. The total is clamped at zero.
func ComputeTotals(items []LineItem, discountPercent decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, li := range items {
		subtotal = subtotal.Add(li.Total())
	}
	subtotal = roundMoney(subtotal)

	discountValue := roundMoney(subtotal.Mul(discountPercent).Div(hundred))
	total := subtotal.Sub(discountValue)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal:        subtotal,
		DiscountPercent: discountPercent,
		DiscountValue:   discountValue,
		Total:           total,
	}
}

// ReconcilePayments fails with PaymentMismatchError when paid differs from
// total by more than PaymentTolerance.
func ReconcilePayments(total, paid decimal.Decimal) error {
	if paid.Sub(total).Abs().GreaterThan(PaymentTolerance) {
		return &PaymentMismatchError{Total: total, Paid: paid}
	}
	return nil
}

func roundMoney(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// =============================================================================
// INPUT VALIDATION
// =============================================================================

func validateLineItems(items []LineItem) error {
	if len(items) == 0 {
		return ErrEmptyCart
	}
	for i, li := range items {
		switch {
		case li.ProductID == "":
			return &InvalidLineItemError{Index: i, Reason: "missing product id"}
		case li.Quantity <= 0:
			return &InvalidLineItemError{Index: i, Reason: fmt.Sprintf("quantity must be positive, got %d", li.Quantity)}
		case li.UnitPrice.IsNegative():
			return &InvalidLineItemError{Index: i, Reason: "unit price cannot be negative"}
		case li.UnitCost.IsNegative():
			return &InvalidLineItemError{Index: i, Reason: "unit cost cannot be negative"}
		}
	}
	return nil
}

func validateDiscount(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return fmt.Errorf("%w: percent must be between 0 and 100, got %s", ErrInvalidDiscount, pct)
	}
	return nil
}
