package ports

import (
	"context"

	"settlement-reconciler/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BatchRepository defines persistence operations for settlement batches.
// Methods accepting pgx.Tx are used inside the finalization transaction.
type BatchRepository interface {
	// ListNeedingReconciliation returns non-terminal batches of a rail, oldest settlement date first.
	ListNeedingReconciliation(ctx context.Context, rail string, limit int) ([]domain.SettlementBatch, error)
	GetByID(ctx context.Context, id int64) (*domain.SettlementBatch, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.SettlementBatch, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status domain.Status) error
}

// InstructionRepository defines persistence operations for instructions.
type InstructionRepository interface {
	ListByBatch(ctx context.Context, batchID int64) ([]domain.Instruction, error)
	ListByBatchForUpdate(ctx context.Context, tx pgx.Tx, batchID int64) ([]domain.Instruction, error)
	GetByID(ctx context.Context, id int64) (*domain.Instruction, error)
	UpdateOutcome(ctx context.Context, tx pgx.Tx, outcome domain.Outcome) error
	RewriteExternalRef(ctx context.Context, id int64, ref string) error
}

// SubTransferRepository defines read access to sub-transfers.
type SubTransferRepository interface {
	ListByBatch(ctx context.Context, batchID int64) ([]domain.SubTransfer, error)
}

// OutboxRepository persists outcome events until they are dispatched.
type OutboxRepository interface {
	Create(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error
	ListPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// AuditRepository defines persistence for audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
