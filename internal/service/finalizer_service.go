package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"settlement-reconciler/internal/core/domain"
	"settlement-reconciler/internal/core/ports"
	"settlement-reconciler/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FinalizerService applies batch decisions under the batch row lock.
type FinalizerService struct {
	batchRepo  ports.BatchRepository
	instRepo   ports.InstructionRepository
	subRepo    ports.SubTransferRepository
	outboxRepo ports.OutboxRepository
	transactor ports.DBTransactor
	dispatcher ports.EventDispatcher
	audit      ports.AuditService
	now        func() time.Time
	log        zerolog.Logger
}

// NewFinalizerService creates a new FinalizerService.
func NewFinalizerService(
	batchRepo ports.BatchRepository,
	instRepo ports.InstructionRepository,
	subRepo ports.SubTransferRepository,
	outboxRepo ports.OutboxRepository,
	transactor ports.DBTransactor,
	dispatcher ports.EventDispatcher,
	audit ports.AuditService,
	log zerolog.Logger,
) *FinalizerService {
	return &FinalizerService{
		batchRepo:  batchRepo,
		instRepo:   instRepo,
		subRepo:    subRepo,
		outboxRepo: outboxRepo,
		transactor: transactor,
		dispatcher: dispatcher,
		audit:      audit,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// Finalize moves a batch to a terminal status, persists the changed
// instruction outcomes and writes exactly one outcome event, all in one
// transaction holding the batch row lock. A batch that is already terminal is
// left untouched and no event is produced. The event is dispatched only after
// commit; a dispatch failure leaves it in the outbox for the next relay.
func (s *FinalizerService) Finalize(ctx context.Context, batchID int64, status domain.Status, outcomes map[int64]domain.Outcome) (*ports.FinalizeResult, error) {
	if !status.IsTerminal() {
		applied, err := s.Advance(ctx, batchID, status)
		if err != nil {
			return nil, err
		}
		return &ports.FinalizeResult{Applied: applied}, nil
	}

	log := s.log.With().Int64("batch_id", batchID).Str("status", string(status)).Logger()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	batch, err := s.batchRepo.GetByIDForUpdate(ctx, dbTx, batchID)
	if err != nil {
		return nil, apperror.ErrLockTimeout(fmt.Errorf("lock batch: %w", err))
	}
	if batch == nil {
		return nil, apperror.ErrBatchNotFound(batchID)
	}
	if batch.Status.IsTerminal() {
		log.Debug().Str("current_status", string(batch.Status)).Msg("batch already finalized, skipping")
		return &ports.FinalizeResult{Applied: false}, nil
	}
	if !batch.Status.CanTransitionTo(status) {
		return nil, apperror.ErrIllegalTransition(string(batch.Status), string(status))
	}

	instructions, err := s.instRepo.ListByBatchForUpdate(ctx, dbTx, batchID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock instructions: %w", err))
	}
	subs, err := s.subRepo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list sub-transfers: %w", err))
	}

	now := s.now()
	event, changed := domain.NewOutcomeEvent(batch, status, instructions, subs, outcomes, now)

	for _, o := range changed {
		if err := s.instRepo.UpdateOutcome(ctx, dbTx, o); err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("update instruction %d: %w", o.InstructionID, err))
		}
	}
	if err := s.batchRepo.UpdateStatus(ctx, dbTx, batchID, status); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update batch status: %w", err))
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal event: %w", err))
	}
	outboxEvent := &domain.OutboxEvent{
		ID:          uuid.New(),
		AggregateID: batchID,
		EventType:   event.EventType,
		Payload:     payload,
		Status:      domain.OutboxStatusPending,
		CreatedAt:   now,
	}
	if err := s.outboxRepo.Create(ctx, dbTx, outboxEvent); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create outbox event: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	log.Info().
		Str("event_id", event.EventID.String()).
		Int("succeeded", len(event.Succeeded)).
		Int("failed", len(event.Failed)).
		Int("unchanged", len(event.UnchangedSubTransferIDs)).
		Msg("settlement batch finalized")

	s.audit.Log(ctx, domain.NewAuditLog(batch.Rail, batchID, domain.AuditActionBatchFinalized,
		strconv.FormatInt(batchID, 10), fmt.Sprintf("%s -> %s event=%s", batch.Status, status, event.EventID)))

	if err := s.dispatcher.Dispatch(ctx, outboxEvent); err != nil {
		log.Warn().Err(err).Str("outbox_id", outboxEvent.ID.String()).Msg("event dispatch failed, left for relay")
	}

	return &ports.FinalizeResult{Applied: true, Event: event}, nil
}

// Advance records a non-terminal batch status. It returns false when the
// batch is terminal or already has that status.
func (s *FinalizerService) Advance(ctx context.Context, batchID int64, status domain.Status) (bool, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return false, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	batch, err := s.batchRepo.GetByIDForUpdate(ctx, dbTx, batchID)
	if err != nil {
		return false, apperror.ErrLockTimeout(fmt.Errorf("lock batch: %w", err))
	}
	if batch == nil {
		return false, apperror.ErrBatchNotFound(batchID)
	}
	if batch.Status == status || !batch.Status.CanTransitionTo(status) {
		return false, nil
	}

	if err := s.batchRepo.UpdateStatus(ctx, dbTx, batchID, status); err != nil {
		return false, apperror.ErrDatabaseError(fmt.Errorf("update batch status: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return false, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().Int64("batch_id", batchID).
		Str("from", string(batch.Status)).
		Str("to", string(status)).
		Msg("settlement batch advanced")
	s.audit.Log(ctx, domain.NewAuditLog(batch.Rail, batchID, domain.AuditActionBatchAdvanced,
		strconv.FormatInt(batchID, 10), fmt.Sprintf("%s -> %s", batch.Status, status)))

	return true, nil
}
