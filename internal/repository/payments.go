package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/jackc/pgx/v5"
)

const selectPayment = `
	SELECT transaction_id, buyer_id, amount::text, status, method, notes, created_at, updated_at
	FROM payments`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var amount string
	if err := row.Scan(
		&p.TransactionID,
		&p.BuyerID,
		&amount,
		&p.Status,
		&p.Method,
		&p.Notes,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a, err := parseAmount(amount)
	if err != nil {
		return nil, err
	}
	p.Amount = a
	return &p, nil
}

// CreatePayment records a new payment. Only pending payments may be created.
func (r *Repository) CreatePayment(ctx context.Context, p *domain.Payment) error {
	if p.Status == "" {
		p.Status = domain.PaymentStatusPending
	}
	if p.Status != domain.PaymentStatusPending {
		return fmt.Errorf("create payment in status %s: %w", p.Status, domain.ErrInvalidStateTransition)
	}

	query := `INSERT INTO payments (transaction_id, buyer_id, amount, status, method, notes, created_at, updated_at)
	          VALUES ($1, $2, $3::text::numeric, $4, $5, $6, NOW(), NOW())
	          RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		p.TransactionID,
		p.BuyerID,
		p.Amount.StringFixed(2),
		p.Status,
		p.Method,
		p.Notes,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetPayment is buyer scoped: another buyer's transaction is reported as
// not found.
func (r *Repository) GetPayment(ctx context.Context, buyerID int64, txnID string) (*domain.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, selectPayment+" WHERE transaction_id = $1 AND buyer_id = $2", txnID, buyerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("payment %s: %w", txnID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query payment: %w", err)
	}
	return p, nil
}

// TransitionPayment moves a payment from one status to another. The update
// is conditional on the current status so racing transitions cannot both
// succeed.
func (r *Repository) TransitionPayment(ctx context.Context, txnID string, from, to domain.PaymentStatus) error {
	return transitionPayment(ctx, r.pool, txnID, from, to)
}

// ListStalePending returns pending payments created before cutoff. A payment
// can only be left pending if the process died mid-checkout.
func (r *Repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error) {
	rows, err := r.pool.Query(ctx,
		selectPayment+" WHERE status = 'pending' AND created_at < $1 ORDER BY created_at LIMIT $2",
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale payments: %w", err)
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return payments, nil
}

func transitionPayment(ctx context.Context, q querier, txnID string, from, to domain.PaymentStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%s -> %s: %w", from, to, domain.ErrInvalidStateTransition)
	}

	tag, err := q.Exec(ctx,
		`UPDATE payments SET status = $3, updated_at = NOW() WHERE transaction_id = $1 AND status = $2`,
		txnID, from, to)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current domain.PaymentStatus
	err = q.QueryRow(ctx, `SELECT status FROM payments WHERE transaction_id = $1`, txnID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("payment %s: %w", txnID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("query payment status: %w", err)
	}
	return fmt.Errorf("payment %s is %s, not %s: %w", txnID, current, from, domain.ErrInvalidStateTransition)
}
