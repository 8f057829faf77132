package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/google/uuid"
)

func insertOutboxEvent(ctx context.Context, q querier, aggregateID, eventType string, payload []byte) error {
	_, err := q.Exec(ctx,
		`INSERT INTO outbox (event_id, aggregate_id, event_type, payload, created_at)
		 VALUES ($1::text::uuid, $2, $3, $4::text::jsonb, NOW())`,
		uuid.NewString(), aggregateID, eventType, string(payload))
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	query := `SELECT id, event_id::text, aggregate_id, event_type, payload::text, created_at
	          FROM outbox WHERE processed_at IS NULL ORDER BY id LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		var payload string
		if err := rows.Scan(&e.ID, &e.EventID, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE outbox SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event %d: %w", id, err)
	}
	return nil
}
