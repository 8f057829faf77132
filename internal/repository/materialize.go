package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Materialize drains the captured cart lines, creates the order with its
// items and outbox event, and marks the payment paid, all in one
// transaction. Any failure leaves every table as it was.
func (r *Repository) Materialize(ctx context.Context, m *domain.Materialization) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := drainLines(ctx, tx, m.BuyerID, m.Lines); err != nil {
			return err
		}
		return commitOrder(ctx, tx, m)
	})
}

// CommitOrder is Materialize without the cart drain, for cart backends that
// live outside this database.
func (r *Repository) CommitOrder(ctx context.Context, m *domain.Materialization) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return commitOrder(ctx, tx, m)
	})
}

func (r *Repository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func commitOrder(ctx context.Context, tx pgx.Tx, m *domain.Materialization) error {
	o := m.Order
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = domain.OrderStatusPending
	}
	o.BuyerID = m.BuyerID
	o.PaymentTxnID = m.TransactionID

	err := tx.QueryRow(ctx,
		`INSERT INTO orders (id, buyer_id, payment_txn_id, total, status, created_at)
		 VALUES ($1::text::uuid, $2, $3, $4::text::numeric, $5, NOW())
		 RETURNING created_at`,
		o.ID, o.BuyerID, o.PaymentTxnID, o.Total.StringFixed(2), o.Status,
	).Scan(&o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(
			`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price)
			 VALUES ($1::text::uuid, $2, $3, $4, $5::text::numeric)`,
			o.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice.StringFixed(2),
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
	}

	payload, err := json.Marshal(domain.NewOrderPlaced(o))
	if err != nil {
		return fmt.Errorf("marshal order placed event: %w", err)
	}
	if err := insertOutboxEvent(ctx, tx, o.ID, domain.EventTypeOrderPlaced, payload); err != nil {
		return err
	}

	return transitionPayment(ctx, tx, m.TransactionID, domain.PaymentStatusPending, domain.PaymentStatusPaid)
}
