/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Persisted documents
  (sales.Sale, sales.Product, sales.AuditLogEntry) already carry their
  JSON schema; DTOs add request envelopes and derived, never-stored
  fields such as overdue installments.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Products:  RegisterProductRequest
  Sales:     SaleDTO, CreateSaleRequest, EditSaleRequest
  Lifecycle: CancelSaleRequest, CancelSaleResponse, PurgeSaleRequest,
             ToggleInstallmentRequest
  Stock:     ReturnStockRequest
  Scenarios: ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done by the sales package, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - sales/types.go: Persisted document schema
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/sales-engine/sales"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// RegisterProductRequest adds a product to the catalog.
type RegisterProductRequest struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Stock int             `json:"stock"`
	Cost  decimal.Decimal `json:"cost"`
	Price decimal.Decimal `json:"price"`
}

// SaleDTO is a sale plus fields derived at read time.
type SaleDTO struct {
	sales.Sale
	OverdueInstallments []int `json:"overdueInstallments"`
	HasOverdue          bool  `json:"hasOverdue"`
}

type CreateSaleRequest = sales.CreateRequest

type EditSaleRequest = sales.EditRequest

// CancelSaleRequest carries the operator's re-entered credential.
// ReturnToStock defaults to true when omitted.
type CancelSaleRequest struct {
	Reason        string `json:"reason"`
	ReturnToStock *bool  `json:"returnToStock"`
	ActorID       string `json:"actorId"`
	Secret        string `json:"secret"`
}

type CancelSaleResponse struct {
	Sale     SaleDTO  `json:"sale"`
	ActorID  string   `json:"actorId"`
	Warnings []string `json:"warnings"`
}

type PurgeSaleRequest struct {
	ActorID string `json:"actorId"`
	Secret  string `json:"secret"`
}

type ToggleInstallmentRequest struct {
	Status sales.PaymentStatus `json:"status"`
}

// ReturnStockRequest returns line items of a discarded draft to stock.
type ReturnStockRequest struct {
	LineItems []sales.LineItem `json:"lineItems"`
}

// OverdueReportDTO summarises sales with overdue installments.
type OverdueReportDTO struct {
	CheckedAt time.Time `json:"checkedAt"`
	Sales     []SaleDTO `json:"sales"`
	Count     int       `json:"count"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toSaleDTO(s sales.Sale, now time.Time, loc *time.Location) SaleDTO {
	overdue := s.OverdueInstallments(now, loc)
	if overdue == nil {
		overdue = []int{}
	}
	return SaleDTO{
		Sale:                s,
		OverdueInstallments: overdue,
		HasOverdue:          len(overdue) > 0,
	}
}

func toSaleDTOs(list []sales.Sale, now time.Time, loc *time.Location) []SaleDTO {
	out := make([]SaleDTO, 0, len(list))
	for _, s := range list {
		out = append(out, toSaleDTO(s, now, loc))
	}
	return out
}
