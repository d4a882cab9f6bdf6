package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/sales-engine/sales"
)

// =============================================================================
// ERROR MAPPING - Domain errors to HTTP status codes
// =============================================================================
//
//   400: Input errors (empty cart, payment mismatch, invalid items)
//   403: Access denied (credential reverification failed)
//   404: Sale, product or installment not found
//   409: State conflicts (insufficient stock, already cancelled, ...)
//   503: Transaction aborted after exhausting retries; safe to retry
//   500: Anything else

func statusFor(err error) int {
	switch {
	case errors.Is(err, sales.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, sales.ErrTransactionAborted):
		return http.StatusServiceUnavailable
	case sales.IsNotFound(err):
		return http.StatusNotFound
	case sales.IsConflict(err):
		return http.StatusConflict
	case sales.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorDetails exposes the context structured errors carry, so a client
// can show remaining stock or the payment gap.
func errorDetails(err error) any {
	var stockErr *sales.InsufficientStockError
	if errors.As(err, &stockErr) {
		return map[string]any{
			"productId": stockErr.ProductID,
			"available": stockErr.Available,
			"requested": stockErr.Requested,
		}
	}
	var mismatch *sales.PaymentMismatchError
	if errors.As(err, &mismatch) {
		return map[string]any{
			"total":      mismatch.Total.StringFixed(2),
			"paid":       mismatch.Paid.StringFixed(2),
			"difference": mismatch.Difference().StringFixed(2),
		}
	}
	var lineErr *sales.InvalidLineItemError
	if errors.As(err, &lineErr) {
		return map[string]any{"index": lineErr.Index, "reason": lineErr.Reason}
	}
	var notFound *sales.ProductNotFoundError
	if errors.As(err, &notFound) {
		return map[string]any{"productId": notFound.ProductID}
	}
	return nil
}

// writeDomainError renders err from the sales package. Internal errors are
// logged and their text is not sent to the client.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: sales.Code(err), Details: errorDetails(err)}

	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		resp.Error = "internal error"
	}
	// Access denied never echoes the collaborator's reason.
	if status == http.StatusForbidden {
		resp.Error = sales.ErrAccessDenied.Error()
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
