/*
handlers.go - HTTP API handlers for the sales engine

PURPOSE:
  Exposes the sale lifecycle controller via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the sales
  package. No business rule lives here.

ENDPOINTS:
  Products:
    GET    /api/products                        List catalog
    POST   /api/products                        Register product
    GET    /api/products/{id}                   Get product

  Sales:
    GET    /api/sales                           List sales (newest first)
    POST   /api/sales                           Create sale
    GET    /api/sales/overdue                   Sales with overdue installments
    GET    /api/sales/{id}                      Get sale
    PUT    /api/sales/{id}                      Edit line items / payments
    POST   /api/sales/{id}/cancel               Cancel (credential required)
    POST   /api/sales/{id}/purge                Purge cancelled sale (credential required)
    PUT    /api/sales/{id}/installments/{n}     Mark installment paid/pending
    GET    /api/sales/{id}/audit                Audit trail

  Stock:
    POST   /api/stock/returns                   Return draft line items (fire-and-forget)

  Scenarios:
    GET    /api/scenarios                       List demo scenarios
    GET    /api/scenarios/current               Currently loaded scenario
    POST   /api/scenarios/load                  Load a demo scenario

  Health:
    GET    /healthz                             Liveness + storage ping

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Sales: The lifecycle controller (owns the store)
  - Ping/Reset: Storage hooks for health checks and demo scenarios
  - Logger: zap logger

REQUEST FLOW:
  1. Parse HTTP request
  2. Call the controller
  3. Serialize response (derived overdue fields added at read time)
  4. Map domain errors to status codes (errors.go)

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error to status mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/sales-engine/sales"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Sales  *sales.Controller
	Logger *zap.Logger

	// Ping checks the storage backend; nil means always healthy.
	Ping func(ctx context.Context) error
	// Scenarios registers the demo scenario routes. Loading one calls
	// Reset, so it stays off outside development.
	Scenarios bool
	// Reset clears the store before a scenario loads; nil loads on top.
	Reset func(ctx context.Context) error

	// Track currently loaded scenario
	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over the given controller.
func NewHandler(ctl *sales.Controller, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Sales: ctl, Logger: logger.Named("api")}
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Sales.ListProducts(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if products == nil {
		products = []sales.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

// RegisterProduct adds a product to the catalog.
func (h *Handler) RegisterProduct(w http.ResponseWriter, r *http.Request) {
	var req RegisterProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Sales.RegisterProduct(r.Context(), sales.Product{
		ID:    req.ID,
		Name:  req.Name,
		Stock: req.Stock,
		Cost:  req.Cost,
		Price: req.Price,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetProduct returns one product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Sales.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// =============================================================================
// SALE HANDLERS
// =============================================================================

// ListSales returns every sale, newest first.
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	list, err := h.Sales.ListSales(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDTOs(list, h.Sales.Now(), h.Sales.Location()))
}

// CreateSale records a new sale.
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, err := h.Sales.Create(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.saleDTO(*s))
}

// GetSale returns one sale with its overdue installments.
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sales.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.saleDTO(*s))
}

// EditSale replaces a sale's line items and, optionally, its payments.
func (h *Handler) EditSale(w http.ResponseWriter, r *http.Request) {
	var req EditSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, err := h.Sales.Edit(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.saleDTO(*s))
}

// CancelSale cancels a sale after re-verifying the operator.
func (h *Handler) CancelSale(w http.ResponseWriter, r *http.Request) {
	var req CancelSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	returnToStock := true
	if req.ReturnToStock != nil {
		returnToStock = *req.ReturnToStock
	}

	res, err := h.Sales.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason, returnToStock,
		sales.Credential{ActorID: req.ActorID, Secret: req.Secret})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, CancelSaleResponse{
		Sale:     h.saleDTO(*res.Sale),
		ActorID:  res.ActorID,
		Warnings: warnings,
	})
}

// PurgeSale permanently removes a cancelled sale.
func (h *Handler) PurgeSale(w http.ResponseWriter, r *http.Request) {
	var req PurgeSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	saleID := chi.URLParam(r, "id")
	err := h.Sales.Purge(r.Context(), saleID, sales.Credential{ActorID: req.ActorID, Secret: req.Secret})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "purged",
		"sale_id": saleID,
	})
}

// ToggleInstallment marks one installment paid or pending.
func (h *Handler) ToggleInstallment(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid installment number", err)
		return
	}
	var req ToggleInstallmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, err := h.Sales.ToggleInstallmentStatus(r.Context(), chi.URLParam(r, "id"), n, req.Status)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.saleDTO(*s))
}

// GetAuditTrail returns the audit entries of a sale, purged or not.
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Sales.AuditTrail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []sales.AuditLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ListOverdue returns sales that have at least one overdue installment.
func (h *Handler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	report, err := OverdueReport(r.Context(), h.Sales)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// STOCK HANDLERS
// =============================================================================

// ReturnStock gives back stock for line items that never became a sale.
// Failures are logged server-side; the response is always 202.
func (h *Handler) ReturnStock(w http.ResponseWriter, r *http.Request) {
	var req ReturnStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	h.Sales.ReturnLineItemsToStock(r.Context(), req.LineItems)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"items":  len(req.LineItems),
	})
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Storage unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Time: h.Sales.Now().Format(time.RFC3339)})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) saleDTO(s sales.Sale) SaleDTO {
	return toSaleDTO(s, h.Sales.Now(), h.Sales.Location())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
