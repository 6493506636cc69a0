package postgres

import (
	"context"
	"errors"
	"fmt"

	"settlement-reconciler/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const batchColumns = `id, app_id, rail, settlement_date, external_batch_id, status, expected_count, created_at, updated_at`

// BatchRepo implements ports.BatchRepository.
type BatchRepo struct {
	pool Pool
}

// NewBatchRepo creates a new BatchRepo.
func NewBatchRepo(pool Pool) *BatchRepo {
	return &BatchRepo{pool: pool}
}

// ListNeedingReconciliation returns non-terminal batches of a rail, oldest
// settlement date first.
func (r *BatchRepo) ListNeedingReconciliation(ctx context.Context, rail string, limit int) ([]domain.SettlementBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM settlement_batches
		WHERE rail = $1 AND status NOT IN ('SUCCESS', 'FAILED', 'DELETED')
		ORDER BY settlement_date, id LIMIT $2`

	rows, err := r.pool.Query(ctx, query, rail, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.SettlementBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}

// GetByID fetches a batch without locking.
func (r *BatchRepo) GetByID(ctx context.Context, id int64) (*domain.SettlementBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM settlement_batches WHERE id = $1`
	return nilOnNoRows(scanBatch(r.pool.QueryRow(ctx, query, id)))
}

// GetByIDForUpdate fetches a batch with a row lock.
// This MUST be called within a transaction.
func (r *BatchRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.SettlementBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM settlement_batches WHERE id = $1 FOR UPDATE`
	return nilOnNoRows(scanBatch(tx.QueryRow(ctx, query, id)))
}

// UpdateStatus sets the batch status within a transaction.
func (r *BatchRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status domain.Status) error {
	query := `UPDATE settlement_batches SET status = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch not found: %d", id)
	}
	return nil
}

func scanBatch(row pgx.Row) (*domain.SettlementBatch, error) {
	b := &domain.SettlementBatch{}
	err := row.Scan(
		&b.ID, &b.AppID, &b.Rail, &b.SettlementDate, &b.ExternalBatchID,
		&b.Status, &b.ExpectedCount, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan batch: %w", err)
	}
	return b, nil
}

// nilOnNoRows maps pgx.ErrNoRows to a nil result.
func nilOnNoRows[T any](v *T, err error) (*T, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}
