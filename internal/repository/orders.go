package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/jackc/pgx/v5"
)

const selectOrder = `
	SELECT id::text, buyer_id, payment_txn_id, total::text, status, created_at
	FROM orders`

// ListOrders returns the buyer's orders newest first, items included.
func (r *Repository) ListOrders(ctx context.Context, buyerID int64) ([]*domain.Order, error) {
	rows, err := r.pool.Query(ctx, selectOrder+" WHERE buyer_id = $1 ORDER BY created_at DESC, id", buyerID)
	if err != nil {
		return nil, fmt.Errorf("query orders by buyer: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	byID := map[string]*domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
		byID[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	if err := r.loadItems(ctx, ids, byID); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrderByPayment finds the order created for a transaction, scoped to the
// buyer.
func (r *Repository) GetOrderByPayment(ctx context.Context, buyerID int64, txnID string) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, selectOrder+" WHERE payment_txn_id = $1 AND buyer_id = $2", txnID, buyerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order for payment %s: %w", txnID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query order by payment: %w", err)
	}

	if err := r.loadItems(ctx, []string{o.ID}, map[string]*domain.Order{o.ID: o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repository) loadItems(ctx context.Context, orderIDs []string, byID map[string]*domain.Order) error {
	query := `SELECT order_id::text, product_id, product_name, quantity, unit_price::text
	          FROM order_items WHERE order_id::text = ANY($1::text[]) ORDER BY id`

	rows, err := r.pool.Query(ctx, query, orderIDs)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID, price string
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.Quantity, &price); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if item.UnitPrice, err = parseAmount(price); err != nil {
			return err
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var total string
	if err := row.Scan(&o.ID, &o.BuyerID, &o.PaymentTxnID, &total, &o.Status, &o.CreatedAt); err != nil {
		return nil, err
	}
	t, err := parseAmount(total)
	if err != nil {
		return nil, err
	}
	o.Total = t
	o.Items = []domain.OrderItem{}
	return &o, nil
}
