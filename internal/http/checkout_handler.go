package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Vishal8376/Farm2Consumer/internal/checkout"
	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/Vishal8376/Farm2Consumer/internal/pricing"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CheckoutService interface {
	Checkout(ctx context.Context, userID int64, req checkout.Request) (*checkout.Result, error)
	Summary(ctx context.Context, userID int64) (*checkout.Summary, error)
	Confirmation(ctx context.Context, userID int64, txnID string) (*checkout.Confirmation, error)
	History(ctx context.Context, userID int64) ([]*domain.Order, error)
}

type CheckoutHandler struct {
	checkouts CheckoutService
	timeout   time.Duration
	logger    *zap.Logger
}

func NewCheckoutHandler(checkouts CheckoutService, timeout time.Duration, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkouts: checkouts,
		timeout:   timeout,
		logger:    logger,
	}
}

type CheckoutRequestDTO struct {
	Payment domain.PaymentMethod `json:"payment"`
	Notes   string               `json:"notes"`
}

type CheckoutResponseDTO struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	Total         string `json:"total"`
	Status        string `json:"status"`
}

type SummaryLineDTO struct {
	LineID      string `json:"line_id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   string `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	Subtotal    string `json:"subtotal"`
}

type SummaryResponseDTO struct {
	Lines []SummaryLineDTO `json:"lines"`
	Total string           `json:"total"`
}

type PaymentDTO struct {
	TransactionID string    `json:"transaction_id"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	Method        string    `json:"method"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type ConfirmationResponseDTO struct {
	Payment PaymentDTO        `json:"payment"`
	Order   *OrderResponseDTO `json:"order,omitempty"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	res, err := h.checkouts.Checkout(ctx, userID, checkout.Request{Method: req.Payment, Notes: req.Notes})
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{
		TransactionID: res.TransactionID,
		OrderID:       res.OrderID,
		Total:         res.Total.StringFixed(pricing.Places),
		Status:        res.State.String(),
	})
}

// GET /api/v1/checkout/summary
func (h *CheckoutHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	summary, err := h.checkouts.Summary(ctx, userID)
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	lines := make([]SummaryLineDTO, len(summary.Lines))
	for i, l := range summary.Lines {
		lines[i] = SummaryLineDTO{
			LineID:      l.LineID,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			UnitPrice:   l.UnitPrice.StringFixed(pricing.Places),
			Quantity:    l.Quantity,
			Subtotal:    l.Subtotal.StringFixed(pricing.Places),
		}
	}
	respondJSON(w, http.StatusOK, SummaryResponseDTO{
		Lines: lines,
		Total: summary.Total.StringFixed(pricing.Places),
	})
}

// GET /api/v1/checkout/{transaction_id}
func (h *CheckoutHandler) Confirmation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	txnID := chi.URLParam(r, "transaction_id")
	if txnID == "" {
		respondError(w, http.StatusBadRequest, "missing_transaction_id", "transaction_id is required")
		return
	}

	conf, err := h.checkouts.Confirmation(ctx, userID, txnID)
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	resp := ConfirmationResponseDTO{
		Payment: PaymentDTO{
			TransactionID: conf.Payment.TransactionID,
			Amount:        conf.Payment.Amount.StringFixed(pricing.Places),
			Status:        conf.Payment.Status.String(),
			Method:        conf.Payment.Method,
			Notes:         conf.Payment.Notes,
			CreatedAt:     conf.Payment.CreatedAt,
		},
	}
	if conf.Order != nil {
		dto := convertOrder(conf.Order)
		resp.Order = &dto
	}
	respondJSON(w, http.StatusOK, resp)
}
