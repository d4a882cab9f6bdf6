/*
lifecycle.go - Sale lifecycle controller

PURPOSE:
  Orchestrates create / edit / cancel / purge / installment toggles. Each
  operation is exactly one RunAtomically call composed from the inventory
  reconciler, the installment scheduler and the audit recorder.

STATE MACHINE:
  ┌──────────┐  all installments paid   ┌──────┐
  │ Pendente │ ───────────────────────▶ │ Pago │
  │          │ ◀─────────────────────── │      │
  └──────────┘     installment reopened └──────┘
        │                                   │
        └──────────────┬────────────────────┘
                       ▼ Cancel (credential)
                 ┌───────────┐  Purge (credential)
                 │ Cancelado │ ──────────────────▶ removed
                 └───────────┘
  Cancelado is terminal for money flow: no edits, no toggles, and no way
  back to Pendente/Pago.

ACCESS:
  Cancel and Purge call the Guard BEFORE RunAtomically. A rejected
  credential never opens a transaction.

RETRIES:
  Transaction bodies may run several times. They touch nothing outside
  the Tx; warnings and results are reset on every attempt and only
  published after commit.

EXAMPLE:
  c := sales.NewController(sales.Config{Store: l, Verifier: dir})
  sale, err := c.Create(ctx, sales.CreateRequest{...})
  var stockErr *sales.InsufficientStockError
  if errors.As(err, &stockErr) {
      fmt.Printf("only %d left\n", stockErr.Available)
  }

SEE ALSO:
  - inventory.go: Stock deltas
  - installments.go: Payment plans
  - audit.go, guard.go
*/
package sales

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/warp/sales-engine/ledger"
)

// Store is the atomic primitive plus committed reads for queries.
type Store interface {
	ledger.Store
	Get(ctx context.Context, ref ledger.Ref, dst any) error
	Scan(ctx context.Context, collection string) ([]ledger.Document, error)
}

// Config wires a Controller. Store is required; everything else has a default.
type Config struct {
	Store    Store
	Verifier Verifier
	Clock    ledger.Clock
	Logger   *zap.Logger
	Tracer   trace.Tracer
	// Location decides calendar days for the overdue rule. Defaults to UTC.
	Location *time.Location
}

type Controller struct {
	store    Store
	guard    *Guard
	audit    *Recorder
	clock    ledger.Clock
	logger   *zap.Logger
	tracer   trace.Tracer
	location *time.Location
	newID    func() string
}

func NewController(cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = ledger.NewServerClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/warp/sales-engine/sales")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Controller{
		store:    cfg.Store,
		guard:    NewGuard(cfg.Verifier, cfg.Logger),
		audit:    NewRecorder(cfg.Clock),
		clock:    cfg.Clock,
		logger:   cfg.Logger.Named("sales"),
		tracer:   cfg.Tracer,
		location: cfg.Location,
		newID:    uuid.NewString,
	}
}

// Location is the zone used for calendar-day comparisons.
func (c *Controller) Location() *time.Location { return c.location }

// Now returns the controller's server time.
func (c *Controller) Now() time.Time { return c.clock.Now() }

// =============================================================================
// COMMANDS
// =============================================================================

type CreateRequest struct {
	Client          Client          `json:"client"`
	LineItems       []LineItem      `json:"lineItems"`
	Payments        []PaymentTerm   `json:"payments"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
}

// EditRequest replaces a sale's line items. Payments left empty keep the
// current plan; DiscountPercent left nil keeps the current discount.
type EditRequest struct {
	LineItems       []LineItem       `json:"lineItems"`
	Payments        []PaymentTerm    `json:"payments"`
	DiscountPercent *decimal.Decimal `json:"discountPercent"`
}

// CancelResult reports what a cancellation did. Warnings lists line items
// whose stock could not be returned.
type CancelResult struct {
	Sale     *Sale
	ActorID  string
	Warnings []string
}

// Create records a new sale and takes its line items out of stock.
func (c *Controller) Create(ctx context.Context, req CreateRequest) (*Sale, error) {
	ctx, span := c.tracer.Start(ctx, "sales.Create")
	defer span.End()

	if err := validateLineItems(req.LineItems); err != nil {
		return nil, c.fail(span, err)
	}
	if req.Client.ID == "" {
		return nil, c.fail(span, ErrNoClientSelected)
	}
	if err := validateDiscount(req.DiscountPercent); err != nil {
		return nil, c.fail(span, err)
	}
	if err := validateTerms(req.Payments); err != nil {
		return nil, c.fail(span, err)
	}

	id := c.newID()
	span.SetAttributes(attribute.String("sale.id", id))

	sale, err := ledger.RunAtomically(ctx, c.store, func(ctx context.Context, tx ledger.Tx) (*Sale, error) {
		if err := ValidateAndApply(ctx, tx, ComputeDeltas(nil, req.LineItems)); err != nil {
			return nil, err
		}
		items, err := FillSnapshots(ctx, tx, req.LineItems)
		if err != nil {
			return nil, err
		}
		totals := ComputeTotals(items, req.DiscountPercent)
		if err := ReconcilePayments(totals.Total, SumTerms(req.Payments)); err != nil {
			return nil, err
		}

		now := c.clock.Now()
		s := &Sale{
			ID:            id,
			Client:        req.Client,
			LineItems:     items,
			Payments:      BuildSchedule(req.Payments, now, now),
			CreatedAt:     now,
			LastUpdatedAt: now,
		}
		s.applyTotals(totals)
		s.refreshPaymentStatus()
		return s, tx.Put(ctx, saleRef(id), s)
	})
	if err != nil {
		return nil, c.fail(span, err)
	}

	c.logger.Info("sale created",
		zap.String("sale_id", sale.ID),
		zap.String("client_id", sale.Client.ID),
		zap.String("total", sale.Total.StringFixed(2)),
		zap.Int("payments", len(sale.Payments)),
	)
	return sale, nil
}

// Edit replaces the line items (and optionally the payment terms) of a sale.
// Stock moves by the difference between old and new line items.
func (c *Controller) Edit(ctx context.Context, saleID string, req EditRequest) (*Sale, error) {
	ctx, span := c.tracer.Start(ctx, "sales.Edit", trace.WithAttributes(attribute.String("sale.id", saleID)))
	defer span.End()

	if err := validateLineItems(req.LineItems); err != nil {
		return nil, c.fail(span, err)
	}
	if req.DiscountPercent != nil {
		if err := validateDiscount(*req.DiscountPercent); err != nil {
			return nil, c.fail(span, err)
		}
	}
	if err := validateTerms(req.Payments); err != nil {
		return nil, c.fail(span, err)
	}

	var rebuilt bool
	sale, err := ledger.RunAtomically(ctx, c.store, func(ctx context.Context, tx ledger.Tx) (*Sale, error) {
		rebuilt = false
		s, err := c.loadSale(ctx, tx, saleID)
		if err != nil {
			return nil, err
		}
		if s.Cancelled() {
			return nil, fmt.Errorf("%w: %s", ErrSaleCancelled, saleID)
		}

		if err := ValidateAndApply(ctx, tx, ComputeDeltas(s.LineItems, req.LineItems)); err != nil {
			return nil, err
		}
		items, err := FillSnapshots(ctx, tx, req.LineItems)
		if err != nil {
			return nil, err
		}

		discount := s.DiscountPercent
		if req.DiscountPercent != nil {
			discount = *req.DiscountPercent
		}
		totals := ComputeTotals(items, discount)

		now := c.clock.Now()
		if len(req.Payments) > 0 && !SameTerms(PlanTerms(s.Payments), req.Payments) {
			s.Payments = BuildSchedule(req.Payments, s.CreatedAt, now)
			rebuilt = true
		}
		if err := ReconcilePayments(totals.Total, SumPayments(s.Payments)); err != nil {
			return nil, err
		}

		s.LineItems = items
		s.applyTotals(totals)
		s.refreshPaymentStatus()
		s.LastUpdatedAt = now
		return s, tx.Put(ctx, saleRef(saleID), s)
	})
	if err != nil {
		return nil, c.fail(span, err)
	}

	c.logger.Info("sale edited",
		zap.String("sale_id", saleID),
		zap.String("total", sale.Total.StringFixed(2)),
		zap.Bool("plan_rebuilt", rebuilt),
	)
	return sale, nil
}

// Cancel marks a sale cancelled, optionally returning its stock, and records
// a CancelSale audit entry. Stock return is best-effort per line item.
func (c *Controller) Cancel(ctx context.Context, saleID, reason string, returnToStock bool, cred Credential) (*CancelResult, error) {
	ctx, span := c.tracer.Start(ctx, "sales.Cancel", trace.WithAttributes(
		attribute.String("sale.id", saleID),
		attribute.Bool("sale.return_to_stock", returnToStock),
	))
	defer span.End()

	actorID, err := c.guard.Require(ctx, cred)
	if err != nil {
		return nil, c.fail(span, err)
	}

	var warnings []string
	sale, err := ledger.RunAtomically(ctx, c.store, func(ctx context.Context, tx ledger.Tx) (*Sale, error) {
		warnings = nil
		s, err := c.loadSale(ctx, tx, saleID)
		if err != nil {
			return nil, err
		}
		if s.Cancelled() {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyCancelled, saleID)
		}

		if returnToStock {
			if warnings, err = ReturnBestEffort(ctx, tx, s.LineItems); err != nil {
				return nil, err
			}
		}

		s.OverallStatus = StatusCancelled
		s.CancellationReason = &reason
		s.refreshPaymentStatus()
		s.LastUpdatedAt = c.clock.Now()
		if err := tx.Put(ctx, saleRef(saleID), s); err != nil {
			return nil, err
		}

		details := cancelDetails(reason, returnToStock, warnings)
		if _, err := c.audit.Record(ctx, tx, saleID, AuditCancelSale, details, actorID); err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		return nil, c.fail(span, err)
	}

	for _, w := range warnings {
		c.logger.Warn("stock not returned", zap.String("sale_id", saleID), zap.String("warning", w))
	}
	c.logger.Info("sale cancelled",
		zap.String("sale_id", saleID),
		zap.String("actor_id", actorID),
		zap.Bool("return_to_stock", returnToStock),
	)
	return &CancelResult{Sale: sale, ActorID: actorID, Warnings: warnings}, nil
}

func cancelDetails(reason string, returnToStock bool, warnings []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "reason: %s; stock returned: %t", reason, returnToStock)
	if len(warnings) > 0 {
		fmt.Fprintf(&b, "; warnings: %s", strings.Join(warnings, "; "))
	}
	return b.String()
}

// Purge permanently removes a cancelled sale. A PurgeSale audit entry is
// written in the same transaction.
func (c *Controller) Purge(ctx context.Context, saleID string, cred Credential) error {
	ctx, span := c.tracer.Start(ctx, "sales.Purge", trace.WithAttributes(attribute.String("sale.id", saleID)))
	defer span.End()

	actorID, err := c.guard.Require(ctx, cred)
	if err != nil {
		return c.fail(span, err)
	}

	err = c.store.RunAtomically(ctx, func(ctx context.Context, tx ledger.Tx) error {
		s, err := c.loadSale(ctx, tx, saleID)
		if err != nil {
			return err
		}
		if !s.Cancelled() {
			return fmt.Errorf("%w: %s is %s", ErrNotCancellable, saleID, s.OverallStatus)
		}

		details := fmt.Sprintf("purged cancelled sale for client %s, total %s", s.Client.ID, s.Total.StringFixed(2))
		if _, err := c.audit.Record(ctx, tx, saleID, AuditPurgeSale, details, actorID); err != nil {
			return err
		}
		return tx.Delete(ctx, saleRef(saleID))
	})
	if err != nil {
		return c.fail(span, err)
	}

	c.logger.Info("sale purged", zap.String("sale_id", saleID), zap.String("actor_id", actorID))
	return nil
}

// ToggleInstallmentStatus marks one installment paid or pending and
// recomputes the sale's derived status.
func (c *Controller) ToggleInstallmentStatus(ctx context.Context, saleID string, installmentNumber int, status PaymentStatus) (*Sale, error) {
	ctx, span := c.tracer.Start(ctx, "sales.ToggleInstallmentStatus", trace.WithAttributes(
		attribute.String("sale.id", saleID),
		attribute.Int("sale.installment", installmentNumber),
	))
	defer span.End()

	sale, err := ledger.RunAtomically(ctx, c.store, func(ctx context.Context, tx ledger.Tx) (*Sale, error) {
		s, err := c.loadSale(ctx, tx, saleID)
		if err != nil {
			return nil, err
		}
		if s.Cancelled() {
			return nil, fmt.Errorf("%w: %s", ErrSaleCancelled, saleID)
		}

		now := c.clock.Now()
		payments, err := ToggleInstallment(s.Payments, installmentNumber, status, now)
		if err != nil {
			return nil, err
		}
		s.Payments = payments
		s.refreshPaymentStatus()
		s.LastUpdatedAt = now
		return s, tx.Put(ctx, saleRef(saleID), s)
	})
	if err != nil {
		return nil, c.fail(span, err)
	}

	c.logger.Info("installment toggled",
		zap.String("sale_id", saleID),
		zap.Int("installment", installmentNumber),
		zap.String("status", string(status)),
		zap.String("summary", sale.PaymentSummaryStatus),
	)
	return sale, nil
}

// ReturnLineItemsToStock gives stock back for items that never became a
// sale (a discarded draft, for example). It runs outside any sale
// transaction: each product is returned in its own small transaction, and
// failures are logged and skipped. Callers treat it as fire-and-forget.
func (c *Controller) ReturnLineItemsToStock(ctx context.Context, items []LineItem) {
	ctx, span := c.tracer.Start(ctx, "sales.ReturnLineItemsToStock")
	defer span.End()

	resolvable := make([]LineItem, 0, len(items))
	for i, li := range items {
		if li.ProductID == "" || li.Quantity <= 0 {
			c.logger.Warn("skipping line item", zap.Int("index", i), zap.String("name", li.Name))
			continue
		}
		resolvable = append(resolvable, li)
	}

	deltas := ComputeDeltas(resolvable, nil)
	for _, id := range sortedIDs(deltas) {
		err := c.store.RunAtomically(ctx, func(ctx context.Context, tx ledger.Tx) error {
			p, err := loadProduct(ctx, tx, id)
			if err != nil {
				return err
			}
			return tx.Patch(ctx, productRef(id), map[string]any{"stock": p.Stock + deltas[id]})
		})
		if err != nil {
			span.RecordError(err)
			c.logger.Warn("stock return failed",
				zap.String("product_id", id),
				zap.Int("quantity", deltas[id]),
				zap.Error(err),
			)
		}
	}
}

// =============================================================================
// CATALOG
// =============================================================================

// RegisterProduct adds a product to the catalog. Existing products are never
// overwritten: after registration, stock only moves through sale operations.
func (c *Controller) RegisterProduct(ctx context.Context, p Product) (*Product, error) {
	if p.ID == "" {
		p.ID = c.newID()
	}
	if p.Stock < 0 {
		return nil, fmt.Errorf("%w: stock cannot be negative", ErrInvalidProduct)
	}
	p.Cost = roundMoney(p.Cost)
	p.Price = roundMoney(p.Price)

	err := c.store.RunAtomically(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var existing Product
		err := tx.Get(ctx, productRef(p.ID), &existing)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrProductExists, p.ID)
		}
		if !errors.Is(err, ledger.ErrDocumentNotFound) {
			return err
		}
		return tx.Put(ctx, productRef(p.ID), p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// =============================================================================
// QUERIES - Committed reads, no transaction
// =============================================================================

func (c *Controller) GetSale(ctx context.Context, saleID string) (*Sale, error) {
	var s Sale
	err := c.store.Get(ctx, saleRef(saleID), &s)
	if errors.Is(err, ledger.ErrDocumentNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSaleNotFound, saleID)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSales returns every sale, newest first.
func (c *Controller) ListSales(ctx context.Context) ([]Sale, error) {
	docs, err := c.store.Scan(ctx, CollectionSales)
	if err != nil {
		return nil, err
	}
	out := make([]Sale, 0, len(docs))
	for _, d := range docs {
		var s Sale
		if err := d.Decode(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (c *Controller) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var p Product
	err := c.store.Get(ctx, productRef(productID), &p)
	if errors.Is(err, ledger.ErrDocumentNotFound) {
		return nil, &ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Controller) ListProducts(ctx context.Context) ([]Product, error) {
	docs, err := c.store.Scan(ctx, CollectionProducts)
	if err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(docs))
	for _, d := range docs {
		var p Product
		if err := d.Decode(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// AuditTrail returns the audit entries of one sale, oldest first. Entries
// outlive the sale: a purged sale still has its trail.
func (c *Controller) AuditTrail(ctx context.Context, saleID string) ([]AuditLogEntry, error) {
	docs, err := c.store.Scan(ctx, CollectionAuditLogs)
	if err != nil {
		return nil, err
	}
	var out []AuditLogEntry
	for _, d := range docs {
		var e AuditLogEntry
		if err := d.Decode(&e); err != nil {
			return nil, err
		}
		if e.SaleID == saleID {
			out = append(out, e)
		}
	}
	sortAuditEntries(out)
	return out, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Controller) loadSale(ctx context.Context, tx ledger.Tx, saleID string) (*Sale, error) {
	var s Sale
	err := tx.Get(ctx, saleRef(saleID), &s)
	if errors.Is(err, ledger.ErrDocumentNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSaleNotFound, saleID)
	}
	if err != nil {
		return nil, fmt.Errorf("read sale %s: %w", saleID, err)
	}
	return &s, nil
}

// fail records err on the span and returns it unchanged.
func (c *Controller) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, Code(err))
	if !IsClientError(err) && !IsConflict(err) && !IsNotFound(err) && !errors.Is(err, ErrAccessDenied) {
		c.logger.Error("sale operation failed", zap.Error(err))
	}
	return err
}

func cloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}
