package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Vishal8376/Farm2Consumer/internal/cart"
	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CartService interface {
	AddOrIncrement(ctx context.Context, userID, productID int64, delta int) (*cart.AddResult, error)
	Remove(ctx context.Context, userID int64, lineID string) error
	List(ctx context.Context, userID int64) ([]domain.CartLine, error)
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
	logger  *zap.Logger
}

func NewCartHandler(carts CartService, timeout time.Duration, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		logger:  logger,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type CartLineDTO struct {
	LineID    string    `json:"line_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

type CartResponseDTO struct {
	UserID int64         `json:"user_id"`
	Items  []CartLineDTO `json:"items"`
}

type AddItemResponseDTO struct {
	Line    CartLineDTO `json:"line"`
	Clamped bool        `json:"clamped"`
}

func toCartLineDTO(l domain.CartLine) CartLineDTO {
	return CartLineDTO{
		LineID:    l.ID,
		ProductID: l.ProductID,
		Quantity:  l.Quantity,
		AddedAt:   l.AddedAt,
	}
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be greater than 0")
		return
	}

	res, err := h.carts.AddOrIncrement(ctx, userID, req.ProductID, req.Quantity)
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, AddItemResponseDTO{
		Line:    toCartLineDTO(*res.Line),
		Clamped: res.Clamped,
	})
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	lines, err := h.carts.List(ctx, userID)
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	items := make([]CartLineDTO, len(lines))
	for i, l := range lines {
		items[i] = toCartLineDTO(l)
	}
	respondJSON(w, http.StatusOK, CartResponseDTO{UserID: userID, Items: items})
}

// DELETE /api/v1/cart/items/{line_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	lineID := chi.URLParam(r, "line_id")
	if lineID == "" {
		respondError(w, http.StatusBadRequest, "missing_line_id", "line_id is required")
		return
	}

	if err := h.carts.Remove(ctx, userID, lineID); err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
