package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AddOrIncrement inserts a line or increments the existing one for the same
// product, never letting the quantity exceed limit. The upsert is a single
// statement so concurrent adds for one (user, product) cannot create a
// second line.
func (r *Repository) AddOrIncrement(ctx context.Context, userID, productID int64, delta, limit int) (*domain.CartLine, bool, error) {
	if delta <= 0 {
		return nil, false, domain.ErrInvalidQuantity
	}
	if limit <= 0 {
		return nil, false, domain.ErrStockExhausted
	}

	query := `
		WITH prev AS (
			SELECT quantity FROM cart_lines WHERE user_id = $2 AND product_id = $3
		)
		INSERT INTO cart_lines (id, user_id, product_id, quantity, added_at)
		VALUES ($1, $2, $3, LEAST($4::int, $5::int), NOW())
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = LEAST(cart_lines.quantity + $4::int, $5::int)
		RETURNING id, user_id, product_id, quantity, added_at,
			COALESCE((SELECT quantity FROM prev), 0) + $4::int > $5::int`

	var line domain.CartLine
	var clamped bool
	err := r.pool.QueryRow(ctx, query, uuid.NewString(), userID, productID, delta, limit).Scan(
		&line.ID,
		&line.UserID,
		&line.ProductID,
		&line.Quantity,
		&line.AddedAt,
		&clamped,
	)
	if err != nil {
		return nil, false, fmt.Errorf("upsert cart line: %w", err)
	}
	return &line, clamped, nil
}

func (r *Repository) GetLine(ctx context.Context, lineID string) (*domain.CartLine, error) {
	query := `SELECT id, user_id, product_id, quantity, added_at FROM cart_lines WHERE id = $1`

	var line domain.CartLine
	err := r.pool.QueryRow(ctx, query, lineID).Scan(
		&line.ID,
		&line.UserID,
		&line.ProductID,
		&line.Quantity,
		&line.AddedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("cart line %s: %w", lineID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query cart line: %w", err)
	}
	return &line, nil
}

// DeleteLine removes the line only when it belongs to userID.
func (r *Repository) DeleteLine(ctx context.Context, userID int64, lineID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cart_lines WHERE id = $1 AND user_id = $2`, lineID, userID)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cart line %s: %w", lineID, domain.ErrNotFound)
	}
	return nil
}

func (r *Repository) ListLines(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	query := `SELECT id, user_id, product_id, quantity, added_at
	          FROM cart_lines WHERE user_id = $1 ORDER BY added_at, id`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	lines := []domain.CartLine{}
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ID, &line.UserID, &line.ProductID, &line.Quantity, &line.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return lines, nil
}

// DrainLines deletes exactly the given lines. If any of them is gone or no
// longer holds the snapshot quantity nothing is deleted and
// ErrConcurrentCheckoutConflict is returned.
func (r *Repository) DrainLines(ctx context.Context, userID int64, snaps []domain.LineSnapshot) ([]domain.CartLine, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin drain: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	drained, err := drainLines(ctx, tx, userID, snaps)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit drain: %w", err)
	}
	return drained, nil
}

// RestoreLines puts previously drained lines back. A line whose product was
// re-added in the meantime is merged into the newer line.
func (r *Repository) RestoreLines(ctx context.Context, userID int64, lines []domain.CartLine) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin restore: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `INSERT INTO cart_lines (id, user_id, product_id, quantity, added_at)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (user_id, product_id)
	          DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity`
	for _, l := range lines {
		if _, err := tx.Exec(ctx, query, l.ID, userID, l.ProductID, l.Quantity, l.AddedAt); err != nil {
			return fmt.Errorf("restore cart line %s: %w", l.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit restore: %w", err)
	}
	return nil
}

func drainLines(ctx context.Context, q querier, userID int64, snaps []domain.LineSnapshot) ([]domain.CartLine, error) {
	if len(snaps) == 0 {
		return nil, nil
	}

	ids := make([]string, len(snaps))
	quantities := make([]int32, len(snaps))
	for i, s := range snaps {
		ids[i] = s.ID
		quantities[i] = int32(s.Quantity)
	}

	// A row updated concurrently is re-checked against the new quantity
	// once its lock is released, so a racing increment makes it miss.
	query := `DELETE FROM cart_lines c
	          USING unnest($2::text[], $3::int[]) AS s(id, quantity)
	          WHERE c.user_id = $1 AND c.id = s.id AND c.quantity = s.quantity
	          RETURNING c.id, c.user_id, c.product_id, c.quantity, c.added_at`

	rows, err := q.Query(ctx, query, userID, ids, quantities)
	if err != nil {
		return nil, fmt.Errorf("drain cart lines: %w", err)
	}
	defer rows.Close()

	var drained []domain.CartLine
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ID, &line.UserID, &line.ProductID, &line.Quantity, &line.AddedAt); err != nil {
			return nil, fmt.Errorf("scan drained line: %w", err)
		}
		drained = append(drained, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("drain cart lines: %w", err)
	}

	if len(drained) != len(snaps) {
		return nil, domain.ErrConcurrentCheckoutConflict
	}
	return drained, nil
}
