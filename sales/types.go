/*
types.go - Persisted documents of the sales engine

PURPOSE:
  Products, sales (with their line items and payment plan) and audit log
  entries, exactly as they are stored. JSON field names are the persisted
  schema: existing data depends on them, do not rename.

COLLECTIONS:
  products/{id}   Product    (catalog-owned, stock mutated only by inventory.go)
  sales/{id}      Sale       (owned by the lifecycle controller)
  auditLogs/{id}  AuditLogEntry (append-only, written by audit.go)

MONEY:
  All money is decimal.Decimal rounded to cents. The package leaves the
  decimal JSON format alone: the server binary opts into bare JSON
  numbers, and documents decode either way.

ENUM VALUES:
  Statuses and payment methods are stored with their Portuguese labels
  ("Pendente", "Pago", "Cancelado", "Cartão de Crédito", ...), which are
  also the values the payment summary string is built from.

SEE ALSO:
  - lifecycle.go: Creates and mutates Sale documents
  - installments.go: Builds Sale.Payments
*/
package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/sales-engine/ledger"
)

const (
	CollectionProducts  = "products"
	CollectionSales     = "sales"
	CollectionAuditLogs = "auditLogs"
)

func productRef(id string) ledger.Ref { return ledger.Doc(CollectionProducts, id) }
func saleRef(id string) ledger.Ref    { return ledger.Doc(CollectionSales, id) }
func auditRef(id string) ledger.Ref   { return ledger.Doc(CollectionAuditLogs, id) }

// =============================================================================
// ENUMS
// =============================================================================

type SaleStatus string

const (
	StatusPending   SaleStatus = "Pendente"
	StatusPaid      SaleStatus = "Pago"
	StatusCancelled SaleStatus = "Cancelado"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pendente"
	PaymentPaid    PaymentStatus = "Pago"
)

func (s PaymentStatus) Valid() bool { return s == PaymentPending || s == PaymentPaid }

type PaymentMethod string

const (
	MethodCash        PaymentMethod = "Dinheiro"
	MethodPix         PaymentMethod = "Pix"
	MethodCreditCard  PaymentMethod = "Cartão de Crédito"
	MethodDebitCard   PaymentMethod = "Cartão de Débito"
	MethodBankSlip    PaymentMethod = "Boleto"
	MethodStoreCredit PaymentMethod = "Crediário"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodPix, MethodCreditCard, MethodDebitCard, MethodBankSlip, MethodStoreCredit:
		return true
	}
	return false
}

// SameDay reports whether the method settles at the point of sale.
func (m PaymentMethod) SameDay() bool {
	return m == MethodCash || m == MethodPix || m == MethodDebitCard
}

// Deferred reports whether the method settles on a caller-supplied due date.
func (m PaymentMethod) Deferred() bool {
	return m == MethodBankSlip || m == MethodStoreCredit
}

type AuditAction string

const (
	AuditCancelSale AuditAction = "CancelSale"
	AuditPurgeSale  AuditAction = "PurgeSale"
)

// =============================================================================
// PRODUCT
// =============================================================================

type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Stock int             `json:"stock"`
	Cost  decimal.Decimal `json:"cost"`
	Price decimal.Decimal `json:"price"`
}

// =============================================================================
// SALE
// =============================================================================

// Client is the buyer as it looked when the sale was recorded.
type Client struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LineItem snapshots a product at sale time.
type LineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	UnitCost  decimal.Decimal `json:"unitCost"`
	IsGift    bool            `json:"isGift"`
}

// EffectiveUnitPrice is zero for gifts. UnitCost is kept either way.
func (li LineItem) EffectiveUnitPrice() decimal.Decimal {
	if li.IsGift {
		return decimal.Zero
	}
	return li.UnitPrice
}

func (li LineItem) Total() decimal.Decimal {
	return li.EffectiveUnitPrice().Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Payment is one entry of a sale's payment plan.
type Payment struct {
	Method            PaymentMethod   `json:"method"`
	Amount            decimal.Decimal `json:"amount"`
	InstallmentCount  int             `json:"installmentCount"`
	InstallmentNumber int             `json:"installmentNumber"`
	DueDate           *time.Time      `json:"dueDate"`
	Status            PaymentStatus   `json:"status"`
	PaidAt            *time.Time      `json:"paidAt"`
}

type Sale struct {
	ID                   string          `json:"id"`
	Client               Client          `json:"client"`
	LineItems            []LineItem      `json:"lineItems"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	DiscountValue        decimal.Decimal `json:"discountValue"`
	DiscountPercent      decimal.Decimal `json:"discountPercent"`
	Total                decimal.Decimal `json:"total"`
	Payments             []Payment       `json:"payments"`
	PaymentSummaryStatus string          `json:"paymentSummaryStatus"`
	OverallStatus        SaleStatus      `json:"overallStatus"`
	CancellationReason   *string         `json:"cancellationReason,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	LastUpdatedAt        time.Time       `json:"lastUpdatedAt"`
}

func (s *Sale) Cancelled() bool { return s.OverallStatus == StatusCancelled }

// refreshPaymentStatus recomputes the derived payment fields from Payments.
// Cancellation overrides whatever the payments say.
func (s *Sale) refreshPaymentStatus() {
	summary, allPaid := RecomputeSummary(s.Payments)
	s.PaymentSummaryStatus = summary
	if s.Cancelled() {
		return
	}
	if allPaid {
		s.OverallStatus = StatusPaid
	} else {
		s.OverallStatus = StatusPending
	}
}

// applyTotals copies computed totals onto the sale.
func (s *Sale) applyTotals(t Totals) {
	s.Subtotal = t.Subtotal
	s.DiscountValue = t.DiscountValue
	s.DiscountPercent = t.DiscountPercent
	s.Total = t.Total
}

// =============================================================================
// AUDIT LOG ENTRY
// =============================================================================

type AuditLogEntry struct {
	ID        string      `json:"id"`
	SaleID    string      `json:"saleId"`
	Action    AuditAction `json:"action"`
	Details   string      `json:"details"`
	ActorID   string      `json:"actorId"`
	Timestamp time.Time   `json:"timestamp"`
}
