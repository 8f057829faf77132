package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Vishal8376/Farm2Consumer/internal/checkout"
	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// headers are out; nothing useful can be sent on failure
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError converts service errors to HTTP status codes.
func handleServiceError(w http.ResponseWriter, logger *zap.Logger, r *http.Request, err error) {
	var inputErr *checkout.PaymentInputError

	var status int
	var code string

	switch {
	case errors.As(err, &inputErr):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   checkout.ErrInvalidPaymentInput.Error(),
			Code:    "invalid_payment_input",
			Details: inputErr.Error(),
		})
		return
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrInvalidQuantity):
		status, code = http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, domain.ErrStockExhausted):
		status, code = http.StatusConflict, "stock_exhausted"
	case errors.Is(err, checkout.ErrEmptyCart):
		status, code = http.StatusUnprocessableEntity, "empty_cart"
	case errors.Is(err, checkout.ErrSettlementDeclined):
		status, code = http.StatusPaymentRequired, "settlement_declined"
	case errors.Is(err, checkout.ErrSettlementTimedOut):
		status, code = http.StatusGatewayTimeout, "settlement_timed_out"
	case errors.Is(err, domain.ErrConcurrentCheckoutConflict):
		status, code = http.StatusConflict, "checkout_conflict"
	case errors.Is(err, checkout.ErrStorageFailure):
		status, code = http.StatusServiceUnavailable, "storage_failure"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	default:
		logger.Error("unhandled request error",
			zap.String("path", r.URL.Path),
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Warn("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err))
		msg = http.StatusText(status)
	}
	respondError(w, status, code, msg)
}
