package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const EventTypeOrderPlaced = "OrderPlaced"

// OrderPlaced is written to the outbox in the same unit of work that
// creates the order.
type OrderPlaced struct {
	OrderID       string          `json:"order_id"`
	TransactionID string          `json:"transaction_id"`
	BuyerID       int64           `json:"buyer_id"`
	Total         decimal.Decimal `json:"total"`
	Items         []OrderItem     `json:"items"`
	PlacedAt      time.Time       `json:"placed_at"`
}

func NewOrderPlaced(o *Order) OrderPlaced {
	return OrderPlaced{
		OrderID:       o.ID,
		TransactionID: o.PaymentTxnID,
		BuyerID:       o.BuyerID,
		Total:         o.Total,
		Items:         o.Items,
		PlacedAt:      o.CreatedAt,
	}
}

// OutboxEvent is a pending integration event awaiting publication.
type OutboxEvent struct {
	ID          int64
	EventID     string
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}
