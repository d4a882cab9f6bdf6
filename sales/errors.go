/*
errors.go - Error taxonomy of the sales engine

PURPOSE:
  Every failure a caller can act on has its own kind, so a presentation
  layer can render a specific message (remaining stock, payment gap)
  instead of a generic failure.

ERROR CATEGORIES:
  1. Input errors - EmptyCart, NoClientSelected, invalid line items/payments
  2. Inventory errors - InsufficientStock, ProductNotFound
  3. Lifecycle errors - SaleNotFound, AlreadyCancelled, NotCancellable,
     SaleCancelled, InstallmentNotFound, PaymentMismatch
  4. Access errors - AccessDenied (raised before any transaction starts)
  5. Store errors - TransactionAborted (retry budget exhausted)

PROPAGATION:
  Errors returned from inside a transaction body abort it with no side
  effects and reach the caller unchanged. Only store conflicts are
  retried; domain errors never are.

SEE ALSO:
  - ledger/errors.go: ErrTransactionAborted is shared with the ledger
  - api/errors.go: Maps these errors to HTTP status codes
*/
package sales

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/sales-engine/ledger"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientStock is returned when a stock decrease would drive a
	// product below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrProductNotFound is returned when a line item references a product
	// that does not exist.
	ErrProductNotFound = errors.New("product not found")

	ErrSaleNotFound     = errors.New("sale not found")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrNoClientSelected = errors.New("no client selected")

	// ErrPaymentMismatch is returned when the payments do not add up to the
	// sale total within PaymentTolerance.
	ErrPaymentMismatch = errors.New("payments do not match sale total")

	ErrAlreadyCancelled = errors.New("sale already cancelled")

	// ErrNotCancellable is returned by Purge on a sale that is not cancelled.
	ErrNotCancellable = errors.New("sale must be cancelled before it can be purged")

	ErrInstallmentNotFound = errors.New("installment not found")

	// ErrSaleCancelled is returned when mutating a cancelled sale. Cancelled
	// sales have a frozen payment plan and line items.
	ErrSaleCancelled = errors.New("sale is cancelled")

	ErrAccessDenied = errors.New("access denied")

	// ErrTransactionAborted is the ledger's abort error, re-exported so
	// callers only need this package.
	ErrTransactionAborted = ledger.ErrTransactionAborted

	ErrInvalidLineItem = errors.New("invalid line item")
	ErrInvalidPayment  = errors.New("invalid payment")
	ErrInvalidDiscount = errors.New("invalid discount")
	ErrInvalidProduct  = errors.New("invalid product")

	// ErrProductExists is returned when registering a product id twice.
	ErrProductExists = errors.New("product already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError tells the caller how much stock is left.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: %s", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error {
	return ErrProductNotFound
}

// PaymentMismatchError carries both sides of the failed reconciliation.
type PaymentMismatchError struct {
	Total decimal.Decimal
	Paid  decimal.Decimal
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("payments total %s does not match sale total %s (difference %s)",
		e.Paid.StringFixed(2), e.Total.StringFixed(2), e.Difference().StringFixed(2))
}

// Difference is positive when the payments fall short of the total.
func (e *PaymentMismatchError) Difference() decimal.Decimal {
	return e.Total.Sub(e.Paid)
}

func (e *PaymentMismatchError) Unwrap() error {
	return ErrPaymentMismatch
}

// AccessDeniedError wraps the identity collaborator's failure.
type AccessDeniedError struct {
	ActorID string
	Cause   error
}

func (e *AccessDeniedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("access denied for %q", e.ActorID)
	}
	return fmt.Sprintf("access denied for %q: %v", e.ActorID, e.Cause)
}

func (e *AccessDeniedError) Unwrap() error {
	return ErrAccessDenied
}

// InvalidLineItemError points at the offending line item (0-based).
type InvalidLineItemError struct {
	Index  int
	Reason string
}

func (e *InvalidLineItemError) Error() string {
	return fmt.Sprintf("invalid line item %d: %s", e.Index, e.Reason)
}

func (e *InvalidLineItemError) Unwrap() error {
	return ErrInvalidLineItem
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrNoClientSelected) ||
		errors.Is(err, ErrPaymentMismatch) ||
		errors.Is(err, ErrInvalidLineItem) ||
		errors.Is(err, ErrInvalidPayment) ||
		errors.Is(err, ErrInvalidDiscount) ||
		errors.Is(err, ErrInvalidProduct)
}

// IsConflict returns true if the request clashes with the current state of
// a sale or of the stock.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrNotCancellable) ||
		errors.Is(err, ErrSaleCancelled) ||
		errors.Is(err, ErrProductExists)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSaleNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrInstallmentNotFound)
}

// Code returns a stable machine-readable code for err, or "internal".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrSaleNotFound):
		return "sale_not_found"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrNoClientSelected):
		return "no_client_selected"
	case errors.Is(err, ErrPaymentMismatch):
		return "payment_mismatch"
	case errors.Is(err, ErrAlreadyCancelled):
		return "already_cancelled"
	case errors.Is(err, ErrNotCancellable):
		return "not_cancellable"
	case errors.Is(err, ErrInstallmentNotFound):
		return "installment_not_found"
	case errors.Is(err, ErrSaleCancelled):
		return "sale_cancelled"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrTransactionAborted):
		return "transaction_aborted"
	case errors.Is(err, ErrInvalidLineItem):
		return "invalid_line_item"
	case errors.Is(err, ErrInvalidPayment):
		return "invalid_payment"
	case errors.Is(err, ErrInvalidDiscount):
		return "invalid_discount"
	case errors.Is(err, ErrInvalidProduct):
		return "invalid_product"
	case errors.Is(err, ErrProductExists):
		return "product_exists"
	default:
		return "internal"
	}
}
