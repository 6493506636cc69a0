package postgres

import (
	"context"
	"fmt"

	"settlement-reconciler/internal/core/domain"
)

// SubTransferRepo implements ports.SubTransferRepository.
type SubTransferRepo struct {
	pool Pool
}

// NewSubTransferRepo creates a new SubTransferRepo.
func NewSubTransferRepo(pool Pool) *SubTransferRepo {
	return &SubTransferRepo{pool: pool}
}

// ListByBatch returns all sub-transfers aggregated into a batch.
func (r *SubTransferRepo) ListByBatch(ctx context.Context, batchID int64) ([]domain.SubTransfer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, batch_id, instruction_id, receiver_ref, amount FROM sub_transfers WHERE batch_id = $1 ORDER BY id`,
		batchID)
	if err != nil {
		return nil, fmt.Errorf("list sub-transfers: %w", err)
	}
	defer rows.Close()

	var subs []domain.SubTransfer
	for rows.Next() {
		var s domain.SubTransfer
		if err := rows.Scan(&s.ID, &s.BatchID, &s.InstructionID, &s.ReceiverRef, &s.Amount); err != nil {
			return nil, fmt.Errorf("scan sub-transfer: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}
