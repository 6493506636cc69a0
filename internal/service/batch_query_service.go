package service

import (
	"context"
	"fmt"

	"settlement-reconciler/internal/core/domain"
	"settlement-reconciler/internal/core/ports"
	"settlement-reconciler/pkg/apperror"
)

// BatchQueryServiceImpl implements ports.BatchQueryService.
type BatchQueryServiceImpl struct {
	batchRepo ports.BatchRepository
	instRepo  ports.InstructionRepository
}

// NewBatchQueryService creates a new BatchQueryServiceImpl.
func NewBatchQueryService(batchRepo ports.BatchRepository, instRepo ports.InstructionRepository) *BatchQueryServiceImpl {
	return &BatchQueryServiceImpl{batchRepo: batchRepo, instRepo: instRepo}
}

// GetBatch returns a batch with its instructions.
func (s *BatchQueryServiceImpl) GetBatch(ctx context.Context, id int64) (*domain.SettlementBatch, []domain.Instruction, error) {
	batch, err := s.batchRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("get batch: %w", err))
	}
	if batch == nil {
		return nil, nil, apperror.ErrBatchNotFound(id)
	}

	instructions, err := s.instRepo.ListByBatch(ctx, id)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("list instructions: %w", err))
	}
	return batch, instructions, nil
}
