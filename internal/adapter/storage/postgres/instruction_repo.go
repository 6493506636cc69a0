package postgres

import (
	"context"
	"fmt"

	"settlement-reconciler/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const instructionColumns = `id, batch_id, app_id, receiver_ref, currency, amount, status, external_ref,
	submitted_at, rewritten_external_ref, failure_code, failure_message, fee_currency, fee_amount, completed_at`

// InstructionRepo implements ports.InstructionRepository.
type InstructionRepo struct {
	pool Pool
}

// NewInstructionRepo creates a new InstructionRepo.
func NewInstructionRepo(pool Pool) *InstructionRepo {
	return &InstructionRepo{pool: pool}
}

// ListByBatch returns the instructions of a batch ordered by id.
func (r *InstructionRepo) ListByBatch(ctx context.Context, batchID int64) ([]domain.Instruction, error) {
	query := `SELECT ` + instructionColumns + ` FROM instructions WHERE batch_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list instructions: %w", err)
	}
	return collectInstructions(rows)
}

// ListByBatchForUpdate locks and returns the instructions of a batch.
// This MUST be called within a transaction.
func (r *InstructionRepo) ListByBatchForUpdate(ctx context.Context, tx pgx.Tx, batchID int64) ([]domain.Instruction, error) {
	query := `SELECT ` + instructionColumns + ` FROM instructions WHERE batch_id = $1 ORDER BY id FOR UPDATE`
	rows, err := tx.Query(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("list instructions for update: %w", err)
	}
	return collectInstructions(rows)
}

// GetByID fetches one instruction regardless of batch.
func (r *InstructionRepo) GetByID(ctx context.Context, id int64) (*domain.Instruction, error) {
	query := `SELECT ` + instructionColumns + ` FROM instructions WHERE id = $1`
	return nilOnNoRows(scanInstruction(r.pool.QueryRow(ctx, query, id)))
}

// UpdateOutcome persists a classified outcome. Fee and completion time are
// only overwritten when the outcome carries them.
func (r *InstructionRepo) UpdateOutcome(ctx context.Context, tx pgx.Tx, o domain.Outcome) error {
	query := `UPDATE instructions SET status = $1, failure_code = $2, failure_message = $3,
		fee_currency = COALESCE($4, fee_currency), fee_amount = COALESCE($5, fee_amount),
		completed_at = COALESCE($6, completed_at), updated_at = NOW()
		WHERE id = $7`

	var feeCurrency *string
	var feeAmount *int64
	if o.FeeCurrency != "" {
		feeCurrency = &o.FeeCurrency
		feeAmount = &o.FeeAmount
	}

	tag, err := tx.Exec(ctx, query,
		o.Status, nullIfEmpty(string(o.ReasonCode)), nullIfEmpty(o.ReasonMessage),
		feeCurrency, feeAmount, o.CompletedAt, o.InstructionID,
	)
	if err != nil {
		return fmt.Errorf("update instruction outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("instruction not found: %d", o.InstructionID)
	}
	return nil
}

// RewriteExternalRef replaces the rail reference used on the next submission.
// Every rail outage overwrites the previous replacement.
func (r *InstructionRepo) RewriteExternalRef(ctx context.Context, id int64, ref string) error {
	query := `UPDATE instructions SET rewritten_external_ref = $1, updated_at = NOW()
		WHERE id = $2`

	if _, err := r.pool.Exec(ctx, query, ref, id); err != nil {
		return fmt.Errorf("rewrite external ref: %w", err)
	}
	return nil
}

func collectInstructions(rows pgx.Rows) ([]domain.Instruction, error) {
	defer rows.Close()

	var out []domain.Instruction
	for rows.Next() {
		inst, err := scanInstruction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instructions: %w", err)
	}
	return out, nil
}

func scanInstruction(row pgx.Row) (*domain.Instruction, error) {
	i := &domain.Instruction{}
	err := row.Scan(
		&i.ID, &i.BatchID, &i.AppID, &i.ReceiverRef, &i.Currency, &i.Amount, &i.Status, &i.ExternalRef,
		&i.SubmittedAt, &i.RewrittenExternalRef, &i.FailureCode, &i.FailureMessage,
		&i.FeeCurrency, &i.FeeAmount, &i.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan instruction: %w", err)
	}
	return i, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
