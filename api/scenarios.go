/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with a realistic
	catalog and sales for demos. Every scenario goes through the sales
	controller, so stock, totals and payment plans obey the same rules as
	live traffic.

AVAILABLE SCENARIOS:

	boutique-catalog:   Catalog only, healthy stock
	installment-sales:  Credit card plans, mixed payments, a gift line
	overdue-slips:      Bank slips and store credit already past due
	low-stock:          Products at or near zero stock

HOW SCENARIOS WORK:
 1. Reset store (when the backend supports it)
 2. Register catalog products
 3. Record sales through Controller.Create
 4. Optionally mark installments paid

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "installment-sales"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to the loaders map

NOTE:

	Scenarios reset the store. The routes exist only when Handler.Scenarios
	is set (-demo-scenarios / DEMO_SCENARIOS), which config refuses for
	PostgreSQL.

SEE ALSO:
  - handlers.go: Core handlers
  - sales/lifecycle.go: Create, RegisterProduct
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/sales-engine/sales"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "boutique-catalog",
		Name:        "Boutique Catalog",
		Description: "Ten products with healthy stock, no sales yet",
	},
	{
		ID:          "installment-sales",
		Name:        "Installment Sales",
		Description: "Credit card plans, split payments, a discount and a gift line",
	},
	{
		ID:          "overdue-slips",
		Name:        "Overdue Bank Slips",
		Description: "Bank slip and store credit payments already past due",
	},
	{
		ID:          "low-stock",
		Name:        "Low Stock",
		Description: "Products at or near zero stock to exercise stock validation",
	},
}

func (h *Handler) scenarioLoaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"boutique-catalog":  h.loadBoutiqueCatalogScenario,
		"installment-sales": h.loadInstallmentSalesScenario,
		"overdue-slips":     h.loadOverdueSlipsScenario,
		"low-stock":         h.loadLowStockScenario,
	}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	load, ok := h.scenarioLoaders()[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	ctx := r.Context()
	if h.Reset != nil {
		if err := h.Reset(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
			return
		}
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		h.Logger.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.Logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

var boutiqueCatalog = []sales.Product{
	{ID: "vestido-floral", Name: "Vestido Floral", Stock: 12, Cost: money("79.90"), Price: money("189.90")},
	{ID: "blusa-linho", Name: "Blusa de Linho", Stock: 20, Cost: money("45.00"), Price: money("119.90")},
	{ID: "calca-alfaiataria", Name: "Calça Alfaiataria", Stock: 15, Cost: money("68.50"), Price: money("159.90")},
	{ID: "saia-midi", Name: "Saia Midi", Stock: 10, Cost: money("52.00"), Price: money("129.90")},
	{ID: "jaqueta-jeans", Name: "Jaqueta Jeans", Stock: 8, Cost: money("110.00"), Price: money("249.90")},
	{ID: "cinto-couro", Name: "Cinto de Couro", Stock: 25, Cost: money("22.00"), Price: money("59.90")},
	{ID: "bolsa-palha", Name: "Bolsa de Palha", Stock: 6, Cost: money("60.00"), Price: money("149.90")},
	{ID: "lenco-seda", Name: "Lenço de Seda", Stock: 30, Cost: money("15.00"), Price: money("39.90")},
	{ID: "sandalia-rasteira", Name: "Sandália Rasteira", Stock: 18, Cost: money("35.00"), Price: money("89.90")},
	{ID: "brinco-perola", Name: "Brinco de Pérola", Stock: 40, Cost: money("8.00"), Price: money("29.90")},
}

func (h *Handler) loadBoutiqueCatalogScenario(ctx context.Context) error {
	return h.registerProducts(ctx, boutiqueCatalog)
}

func (h *Handler) loadInstallmentSalesScenario(ctx context.Context) error {
	if err := h.registerProducts(ctx, boutiqueCatalog); err != nil {
		return err
	}

	// Jaqueta in 3x on the card: 249.90 -> 83.30 x 3
	s1, err := h.Sales.Create(ctx, sales.CreateRequest{
		Client:    sales.Client{ID: "cli-001", Name: "Mariana Souza"},
		LineItems: []sales.LineItem{h.line(ctx, "jaqueta-jeans", 1, false)},
		Payments: []sales.PaymentTerm{
			{Method: sales.MethodCreditCard, Amount: money("249.90"), InstallmentCount: 3},
		},
	})
	if err != nil {
		return fmt.Errorf("sale 1: %w", err)
	}
	// First installment already settled
	if _, err := h.Sales.ToggleInstallmentStatus(ctx, s1.ID, 1, sales.PaymentPaid); err != nil {
		return fmt.Errorf("sale 1 installment: %w", err)
	}

	// Split payment with a 10% discount and a gift: (189.90 + 59.90) * 0.9 = 224.82
	_, err = h.Sales.Create(ctx, sales.CreateRequest{
		Client: sales.Client{ID: "cli-002", Name: "Beatriz Lima"},
		LineItems: []sales.LineItem{
			h.line(ctx, "vestido-floral", 1, false),
			h.line(ctx, "cinto-couro", 1, false),
			h.line(ctx, "brinco-perola", 1, true),
		},
		DiscountPercent: decimal.NewFromInt(10),
		Payments: []sales.PaymentTerm{
			{Method: sales.MethodPix, Amount: money("100.00")},
			{Method: sales.MethodCreditCard, Amount: money("124.82"), InstallmentCount: 2},
		},
	})
	if err != nil {
		return fmt.Errorf("sale 2: %w", err)
	}

	// Cash, fully paid on the spot
	_, err = h.Sales.Create(ctx, sales.CreateRequest{
		Client:    sales.Client{ID: "cli-003", Name: "Carla Mendes"},
		LineItems: []sales.LineItem{h.line(ctx, "lenco-seda", 2, false)},
		Payments:  []sales.PaymentTerm{{Method: sales.MethodCash, Amount: money("79.80")}},
	})
	if err != nil {
		return fmt.Errorf("sale 3: %w", err)
	}
	return nil
}

func (h *Handler) loadOverdueSlipsScenario(ctx context.Context) error {
	if err := h.registerProducts(ctx, boutiqueCatalog); err != nil {
		return err
	}

	now := h.Sales.Now().In(h.Sales.Location())
	lastWeek := now.AddDate(0, 0, -7)
	yesterday := now.AddDate(0, 0, -1)
	nextMonth := now.AddDate(0, 1, 0)

	_, err := h.Sales.Create(ctx, sales.CreateRequest{
		Client:    sales.Client{ID: "cli-010", Name: "Fernanda Rocha"},
		LineItems: []sales.LineItem{h.line(ctx, "bolsa-palha", 1, false)},
		Payments: []sales.PaymentTerm{
			{Method: sales.MethodBankSlip, Amount: money("149.90"), DueDate: &lastWeek},
		},
	})
	if err != nil {
		return fmt.Errorf("slip sale: %w", err)
	}

	_, err = h.Sales.Create(ctx, sales.CreateRequest{
		Client: sales.Client{ID: "cli-011", Name: "Juliana Alves"},
		LineItems: []sales.LineItem{
			h.line(ctx, "calca-alfaiataria", 1, false),
			h.line(ctx, "blusa-linho", 1, false),
		},
		Payments: []sales.PaymentTerm{
			{Method: sales.MethodStoreCredit, Amount: money("139.90"), DueDate: &yesterday},
			{Method: sales.MethodStoreCredit, Amount: money("139.90"), DueDate: &nextMonth},
		},
	})
	if err != nil {
		return fmt.Errorf("store credit sale: %w", err)
	}
	return nil
}

func (h *Handler) loadLowStockScenario(ctx context.Context) error {
	low := make([]sales.Product, len(boutiqueCatalog))
	copy(low, boutiqueCatalog)
	for i := range low {
		low[i].Stock = i % 3
	}
	return h.registerProducts(ctx, low)
}

// =============================================================================
// HELPERS
// =============================================================================

// registerProducts adds the catalog, leaving products that already exist.
func (h *Handler) registerProducts(ctx context.Context, products []sales.Product) error {
	for _, p := range products {
		if _, err := h.Sales.RegisterProduct(ctx, p); err != nil && !errors.Is(err, sales.ErrProductExists) {
			return fmt.Errorf("register %s: %w", p.ID, err)
		}
	}
	return nil
}

// line snapshots the current catalog entry into a line item.
func (h *Handler) line(ctx context.Context, productID string, qty int, gift bool) sales.LineItem {
	li := sales.LineItem{ProductID: productID, Quantity: qty, IsGift: gift}
	if p, err := h.Sales.GetProduct(ctx, productID); err == nil {
		li.Name = p.Name
		li.UnitPrice = p.Price
		li.UnitCost = p.Cost
	}
	return li
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
