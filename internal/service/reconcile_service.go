package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"settlement-reconciler/internal/core/domain"
	"settlement-reconciler/internal/core/ports"
	"settlement-reconciler/internal/rulebook"
	"settlement-reconciler/pkg/apperror"
	"settlement-reconciler/pkg/logger"
	"settlement-reconciler/pkg/refcode"

	"github.com/rs/zerolog"
)

// RailSettings is the resolved configuration of one rail.
type RailSettings struct {
	Name                string
	Rulebook            *rulebook.Rulebook
	RemarkLimit         int
	AmountScopeFallback bool
	MaxQueriesPerMinute int64 // 0 = unlimited
}

// SchedulerSettings bounds the work of one tick.
type SchedulerSettings struct {
	CallTimeout time.Duration
	RunTimeout  time.Duration
	LockTTL     time.Duration
	BatchLimit  int
	RelayLimit  int
}

// ReconcileDeps are the collaborators of a Reconciler.
type ReconcileDeps struct {
	Adapter      ports.ProviderAdapter
	Batches      ports.BatchRepository
	Instructions ports.InstructionRepository
	SubTransfers ports.SubTransferRepository
	Progress     ports.ProgressStore
	Lock         ports.TickLock
	Budget       ports.CallBudget
	Finalizer    ports.Finalizer
	Dispatcher   ports.EventDispatcher
	Audit        ports.AuditService
}

type batchResult int

const (
	resultWaiting batchResult = iota
	resultSkipped
	resultAdvanced
	resultFinalized
)

// Reconciler drives one rail: it selects open batches, queries the rail and
// feeds the answers through matching, classification and aggregation to the
// finalizer. It implements ports.RailRunner.
type Reconciler struct {
	rail       RailSettings
	sched      SchedulerSettings
	deps       ReconcileDeps
	classifier *Classifier
	matcher    *Matcher
	now        func() time.Time
	log        zerolog.Logger
}

// NewReconciler creates a Reconciler for one rail.
func NewReconciler(rail RailSettings, sched SchedulerSettings, deps ReconcileDeps, log zerolog.Logger) *Reconciler {
	log = logger.ForRail(log, rail.Name)
	if rail.RemarkLimit <= 0 {
		rail.RemarkLimit = refcode.DefaultLimit
	}
	if sched.BatchLimit <= 0 {
		sched.BatchLimit = 200
	}
	if sched.RelayLimit <= 0 {
		sched.RelayLimit = sched.BatchLimit
	}
	return &Reconciler{
		rail:       rail,
		sched:      sched,
		deps:       deps,
		classifier: NewClassifier(rail.Rulebook, log),
		matcher:    NewMatcher(deps.Instructions, deps.Audit, rail.AmountScopeFallback, log),
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// Rail returns the rail name.
func (r *Reconciler) Rail() string { return r.rail.Name }

// RunOnce runs a single tick. Errors of individual batches are logged and
// counted; only failures that prevent the tick from starting are returned.
func (r *Reconciler) RunOnce(ctx context.Context) (*ports.RunSummary, error) {
	summary := &ports.RunSummary{Rail: r.rail.Name, StartedAt: r.now()}
	defer func() { summary.FinishedAt = r.now() }()

	if r.sched.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.sched.RunTimeout)
		defer cancel()
	}

	acquired, err := r.deps.Lock.Acquire(ctx, r.rail.Name, r.sched.LockTTL)
	if err != nil {
		return summary, apperror.ErrLockTimeout(fmt.Errorf("acquire tick lock: %w", err))
	}
	if !acquired {
		summary.LockHeld = true
		r.log.Info().Msg("previous tick still running, skipping")
		return summary, nil
	}
	defer func() {
		if err := r.deps.Lock.Release(context.WithoutCancel(ctx), r.rail.Name); err != nil {
			r.log.Warn().Err(err).Msg("failed to release tick lock")
		}
	}()

	relayed, err := r.deps.Dispatcher.RelayPending(ctx, r.sched.RelayLimit)
	if err != nil {
		r.log.Warn().Err(err).Msg("outbox relay failed")
	}
	summary.Relayed = relayed

	batches, err := r.deps.Batches.ListNeedingReconciliation(ctx, r.rail.Name, r.sched.BatchLimit)
	if err != nil {
		return summary, apperror.ErrDatabaseError(fmt.Errorf("list batches: %w", err))
	}
	summary.Batches = len(batches)

	for i := range batches {
		if ctx.Err() != nil {
			r.log.Warn().Int("remaining", len(batches)-i).Msg("run timeout reached, deferring remaining batches")
			break
		}

		res, err := r.reconcileBatch(ctx, &batches[i])
		if err != nil {
			summary.Errors++
			ev := r.log.Warn()
			if cls := apperror.ClassOf(err); cls == apperror.ClassFinalization {
				ev = r.log.Error()
			}
			ev.Err(err).Int64("batch_id", batches[i].ID).
				Str("class", string(apperror.ClassOf(err))).
				Msg("batch reconciliation failed, retrying next tick")
		}
		switch res {
		case resultFinalized:
			summary.Finalized++
		case resultAdvanced:
			summary.Advanced++
		case resultSkipped:
			summary.Skipped++
		}
	}

	r.log.Info().
		Int("batches", summary.Batches).
		Int("finalized", summary.Finalized).
		Int("advanced", summary.Advanced).
		Int("skipped", summary.Skipped).
		Int("errors", summary.Errors).
		Int("relayed", summary.Relayed).
		Msg("reconciliation tick finished")

	return summary, nil
}

func (r *Reconciler) reconcileBatch(ctx context.Context, batch *domain.SettlementBatch) (batchResult, error) {
	log := logger.ForBatch(r.log, batch.ID)
	now := r.now()

	instructions, err := r.deps.Instructions.ListByBatch(ctx, batch.ID)
	if err != nil {
		return resultWaiting, apperror.ErrDatabaseError(fmt.Errorf("list instructions: %w", err))
	}
	subs, err := r.deps.SubTransfers.ListByBatch(ctx, batch.ID)
	if err != nil {
		return resultWaiting, apperror.ErrDatabaseError(fmt.Errorf("list sub-transfers: %w", err))
	}

	// Zero-amount instructions settle without the rail; settled ones keep their status.
	known := make(map[int64]domain.Outcome, len(instructions))
	needsRail := 0
	for _, inst := range instructions {
		switch {
		case !inst.NeedsRail():
			known[inst.ID] = domain.Outcome{InstructionID: inst.ID, Status: domain.StatusSuccess, CompletedAt: &now}
		case inst.Status.IsTerminal():
			known[inst.ID] = domain.Outcome{InstructionID: inst.ID, Status: inst.Status}
		default:
			needsRail++
		}
	}
	if needsRail == 0 {
		status := AggregateOutcomes(known, len(known)).Status
		if len(instructions) == 0 {
			status = domain.StatusSuccess
		}
		log.Info().Int("instructions", len(instructions)).Msg("no instruction needs the rail, settling batch")
		return r.finalize(ctx, log, batch, status, known)
	}

	if !batch.IsSubmitted() {
		log.Debug().Msg("batch not yet submitted, skipping")
		return resultSkipped, nil
	}
	ref := *batch.ExternalBatchID

	if err := r.spend(ctx); err != nil {
		return resultSkipped, err
	}
	callCtx, cancel := r.callContext(ctx)
	sub, err := r.deps.Adapter.SubmissionStatus(callCtx, ref)
	cancel()
	if err != nil {
		return resultWaiting, railError(r.rail.Name, fmt.Errorf("submission status: %w", err))
	}

	switch sub {
	case domain.SubmissionNotFound, domain.SubmissionDeleted:
		return r.rejectBatch(ctx, log, batch, instructions, known, sub)
	case domain.SubmissionPending:
		log.Debug().Msg("rail has not confirmed the submission yet")
		return r.advance(ctx, batch, domain.StatusPending)
	case domain.SubmissionConfirmed:
	default:
		log.Warn().Str("submission_status", string(sub)).Msg("unknown submission status, treating as pending")
		return r.advance(ctx, batch, domain.StatusPending)
	}

	if err := r.spend(ctx); err != nil {
		return resultWaiting, err
	}
	window := r.rail.Rulebook.Window(batch.SettlementDate)
	callCtx, cancel = r.callContext(ctx)
	records, err := r.deps.Adapter.TransactionResults(callCtx, ref, window)
	cancel()
	if err != nil {
		return resultWaiting, railError(r.rail.Name, fmt.Errorf("transaction results: %w", err))
	}

	match := r.matcher.Match(ctx, batch, instructions, subs, records)
	log.Debug().
		Int("records", len(records)).
		Int("matched", len(match.Matched)).
		Int("duplicates", match.Duplicates).
		Int("undecodable", match.Undecodable).
		Int("unmatched", match.Unmatched).
		Int("rejected", match.Rejected).
		Msg("rail records matched")

	fresh := make([]domain.Outcome, 0, len(match.Matched))
	for _, mr := range match.Matched {
		if _, settled := known[mr.Instruction.ID]; settled {
			continue
		}
		c := r.classifier.Classify(mr.Record, batch.SettlementDate, now)
		if c.RewriteReference {
			r.rewriteReference(ctx, log, batch, mr.Instruction, now)
		}
		o := domain.Outcome{
			InstructionID: mr.Instruction.ID,
			Status:        c.Status,
			ReasonCode:    c.ReasonCode,
			ReasonMessage: c.ReasonMessage,
			RecordKey:     mr.Record.Key(),
		}
		if c.Status == domain.StatusSuccess {
			o.FeeCurrency = mr.Record.FeeCurrency
			o.FeeAmount = mr.Record.FeeAmount
			o.CompletedAt = mr.Record.CompletedAt
		}
		fresh = append(fresh, o)
	}

	outcomes := r.accumulate(ctx, log, batch.ID, fresh)
	for id, o := range known {
		outcomes[id] = o
	}

	expected := batch.ExpectedCount
	if expected <= 0 {
		expected = len(instructions)
	}
	agg := AggregateOutcomes(outcomes, expected)
	if !agg.Complete() {
		log.Info().
			Int("matched", agg.Counts.Matched()).
			Int("expected", expected).
			Msg("batch incomplete, waiting for remaining records")
		return r.advance(ctx, batch, domain.StatusPending)
	}
	if agg.Counts.Matched() > expected {
		log.Warn().Int("matched", agg.Counts.Matched()).Int("expected", expected).Msg("more instructions matched than expected")
	}

	if !agg.Status.IsTerminal() {
		return r.advance(ctx, batch, agg.Status)
	}
	return r.finalize(ctx, log, batch, agg.Status, outcomes)
}

// rejectBatch fails a batch the rail no longer knows, without querying transactions.
func (r *Reconciler) rejectBatch(
	ctx context.Context,
	log zerolog.Logger,
	batch *domain.SettlementBatch,
	instructions []domain.Instruction,
	known map[int64]domain.Outcome,
	sub domain.SubmissionStatus,
) (batchResult, error) {
	status, reason := domain.StatusFailed, domain.ReasonNotFoundOnRail
	if sub == domain.SubmissionDeleted {
		status, reason = domain.StatusDeleted, domain.ReasonPurgedByRail
	}
	rejection := apperror.ErrSubmissionRejected(r.rail.Name, string(sub))

	outcomes := make(map[int64]domain.Outcome, len(instructions))
	for id, o := range known {
		outcomes[id] = o
	}
	for _, inst := range instructions {
		if _, ok := outcomes[inst.ID]; ok {
			continue
		}
		outcomes[inst.ID] = domain.Outcome{
			InstructionID: inst.ID,
			Status:        status,
			ReasonCode:    reason,
			ReasonMessage: rejection.Message,
		}
	}

	log.Error().Err(rejection).Msg("submission rejected by rail, failing batch")
	r.deps.Audit.Log(ctx, domain.NewAuditLog(r.rail.Name, batch.ID, domain.AuditActionPrecheckFailed,
		strconv.FormatInt(batch.ID, 10), string(sub)))

	return r.finalize(ctx, log, batch, domain.StatusFailed, outcomes)
}

func (r *Reconciler) finalize(ctx context.Context, log zerolog.Logger, batch *domain.SettlementBatch, status domain.Status, outcomes map[int64]domain.Outcome) (batchResult, error) {
	res, err := r.deps.Finalizer.Finalize(ctx, batch.ID, status, outcomes)
	if err != nil {
		return resultWaiting, err
	}
	if !status.IsTerminal() {
		if res.Applied {
			return resultAdvanced, nil
		}
		return resultWaiting, nil
	}
	if err := r.deps.Progress.Clear(ctx, batch.ID); err != nil {
		log.Warn().Err(err).Msg("failed to clear match progress")
	}
	if !res.Applied {
		return resultSkipped, nil
	}
	return resultFinalized, nil
}

func (r *Reconciler) advance(ctx context.Context, batch *domain.SettlementBatch, status domain.Status) (batchResult, error) {
	if batch.Status == status {
		return resultWaiting, nil
	}
	applied, err := r.deps.Finalizer.Advance(ctx, batch.ID, status)
	if err != nil {
		return resultWaiting, err
	}
	if applied {
		return resultAdvanced, nil
	}
	return resultWaiting, nil
}

// accumulate merges this poll's outcomes into the stored progress and returns
// the union. Without the store only this poll's outcomes are used.
func (r *Reconciler) accumulate(ctx context.Context, log zerolog.Logger, batchID int64, fresh []domain.Outcome) map[int64]domain.Outcome {
	outcomes := make(map[int64]domain.Outcome, len(fresh))
	if err := r.deps.Progress.Merge(ctx, batchID, fresh); err != nil {
		log.Warn().Err(err).Msg("failed to store match progress")
	} else if stored, err := r.deps.Progress.Load(ctx, batchID); err != nil {
		log.Warn().Err(err).Msg("failed to load match progress")
	} else {
		for id, o := range stored {
			outcomes[id] = o
		}
	}
	for _, o := range fresh {
		outcomes[o.InstructionID] = o
	}
	return outcomes
}

func (r *Reconciler) rewriteReference(ctx context.Context, log zerolog.Logger, batch *domain.SettlementBatch, inst domain.Instruction, now time.Time) {
	log = logger.ForInstruction(log, inst.ID)
	ref, err := refcode.Encode(inst.ID, "R"+refcode.EncodeID(now.Unix()), r.rail.RemarkLimit)
	if err != nil {
		log.Warn().Err(err).Msg("cannot build replacement reference")
		return
	}
	// Each outage gets a fresh reference; a repeat within the same tick is a no-op.
	if inst.RewrittenExternalRef != nil && *inst.RewrittenExternalRef == ref {
		return
	}
	if err := r.deps.Instructions.RewriteExternalRef(ctx, inst.ID, ref); err != nil {
		log.Warn().Err(err).Msg("failed to rewrite external reference")
		return
	}
	log.Info().Str("reference", ref).Msg("rail outage, external reference rewritten")
	r.deps.Audit.Log(ctx, domain.NewAuditLog(r.rail.Name, batch.ID, domain.AuditActionReferenceRewritten,
		strconv.FormatInt(inst.ID, 10), ref))
}

func (r *Reconciler) spend(ctx context.Context) error {
	if r.rail.MaxQueriesPerMinute <= 0 || r.deps.Budget == nil {
		return nil
	}
	ok, err := r.deps.Budget.Allow(ctx, r.rail.Name, r.rail.MaxQueriesPerMinute, time.Minute)
	if err != nil {
		r.log.Warn().Err(err).Msg("call budget unavailable, allowing query")
		return nil
	}
	if !ok {
		return apperror.ErrCallBudgetExhausted(r.rail.Name)
	}
	return nil
}

func (r *Reconciler) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.sched.CallTimeout > 0 {
		return context.WithTimeout(ctx, r.sched.CallTimeout)
	}
	return context.WithCancel(ctx)
}

// railError keeps adapter AppErrors and classifies anything else as a transient rail failure.
func railError(rail string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.ErrRailUnavailable(rail, err)
}
