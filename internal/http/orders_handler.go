package http

import (
	"context"
	"net/http"
	"time"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/Vishal8376/Farm2Consumer/internal/pricing"
	"go.uber.org/zap"
)

type OrderHistory interface {
	History(ctx context.Context, userID int64) ([]*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderHistory
	timeout time.Duration
	logger  *zap.Logger
}

func NewOrdersHandler(orders OrderHistory, timeout time.Duration, logger *zap.Logger) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
		logger:  logger,
	}
}

type OrderItemDTO struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Subtotal    string `json:"subtotal"`
}

type OrderResponseDTO struct {
	ID            string         `json:"id"`
	TransactionID string         `json:"transaction_id"`
	Total         string         `json:"total"`
	Status        string         `json:"status"`
	Items         []OrderItemDTO `json:"items"`
	CreatedAt     time.Time      `json:"created_at"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orders, err := h.orders.History(ctx, userID)
	if err != nil {
		handleServiceError(w, h.logger, r, err)
		return
	}

	dtos := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, convertOrder(o))
	}

	respondJSON(w, http.StatusOK, dtos)
}

func convertOrder(o *domain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(pricing.Places),
			Subtotal:    item.Subtotal().StringFixed(pricing.Places),
		})
	}

	return OrderResponseDTO{
		ID:            o.ID,
		TransactionID: o.PaymentTxnID,
		Total:         o.Total.StringFixed(pricing.Places),
		Status:        string(o.Status),
		Items:         items,
		CreatedAt:     o.CreatedAt,
	}
}
