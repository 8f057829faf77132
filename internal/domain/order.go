package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderItem carries the unit price captured when the order was placed.
type OrderItem struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Round(2)
}

type Order struct {
	ID           string          `json:"id"`
	BuyerID      int64           `json:"buyer_id"`
	PaymentTxnID string          `json:"payment_transaction_id,omitempty"`
	Total        decimal.Decimal `json:"total"`
	Status       OrderStatus     `json:"status"`
	Items        []OrderItem     `json:"items"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ItemsTotal sums the rounded item subtotals.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total.Round(2)
}

// Materialization is the unit of work that turns a settled cart into an order.
// Lines are the cart lines observed during validation; every one of them
// must still exist with the same quantity when the cart is drained.
type Materialization struct {
	Order         *Order
	TransactionID string
	BuyerID       int64
	Lines         []LineSnapshot
}
