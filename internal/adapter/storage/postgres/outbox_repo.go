package postgres

import (
	"context"
	"fmt"

	"settlement-reconciler/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OutboxRepo implements ports.OutboxRepository.
type OutboxRepo struct {
	pool Pool
}

// NewOutboxRepo creates a new OutboxRepo.
func NewOutboxRepo(pool Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

// Create inserts an event inside the finalization transaction.
func (r *OutboxRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.OutboxEvent) error {
	query := `INSERT INTO outbox_events (id, aggregate_id, event_type, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := tx.Exec(ctx, query, e.ID, e.AggregateID, e.EventType, e.Payload, e.Status, e.Attempts, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// ListPending returns undispatched events, oldest first.
func (r *OutboxRepo) ListPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, status, attempts, last_error, created_at, dispatched_at
		FROM outbox_events WHERE status = 'PENDING' ORDER BY created_at LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		if err := rows.Scan(
			&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.Status,
			&e.Attempts, &e.LastError, &e.CreatedAt, &e.DispatchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	return events, nil
}

// MarkDispatched records a successful delivery.
func (r *OutboxRepo) MarkDispatched(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE outbox_events SET status = 'DISPATCHED', attempts = attempts + 1, last_error = NULL,
		dispatched_at = NOW() WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("mark outbox event dispatched: %w", err)
	}
	return nil
}

// MarkFailed records a failed delivery attempt; the event stays pending.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `UPDATE outbox_events SET attempts = attempts + 1, last_error = $1 WHERE id = $2`

	if _, err := r.pool.Exec(ctx, query, reason, id); err != nil {
		return fmt.Errorf("mark outbox event failed: %w", err)
	}
	return nil
}
