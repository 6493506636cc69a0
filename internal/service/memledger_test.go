package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"settlement-reconciler/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// memLedger is an in-memory ledger with per-batch row locks held until the
// owning transaction commits or rolls back, mirroring SELECT ... FOR UPDATE.
type memLedger struct {
	mu           sync.Mutex
	batches      map[int64]domain.SettlementBatch
	instructions map[int64]domain.Instruction
	subs         []domain.SubTransfer
	outbox       []domain.OutboxEvent
	rowLocks     map[int64]*sync.Mutex
	commits      int
}

func newMemLedger() *memLedger {
	return &memLedger{
		batches:      make(map[int64]domain.SettlementBatch),
		instructions: make(map[int64]domain.Instruction),
		rowLocks:     make(map[int64]*sync.Mutex),
	}
}

func (l *memLedger) addBatch(b domain.SettlementBatch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches[b.ID] = b
}

func (l *memLedger) addInstruction(inst domain.Instruction, subs ...domain.SubTransfer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.instructions[inst.ID] = inst
	l.subs = append(l.subs, subs...)
}

func (l *memLedger) batch(id int64) domain.SettlementBatch {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.batches[id]
}

func (l *memLedger) instruction(id int64) domain.Instruction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.instructions[id]
}

func (l *memLedger) outboxEvents() []domain.OutboxEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.OutboxEvent(nil), l.outbox...)
}

func (l *memLedger) rowLock(id int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.rowLocks[id]
	if !ok {
		m = &sync.Mutex{}
		l.rowLocks[id] = m
	}
	return m
}

func (l *memLedger) listByBatch(batchID int64) []domain.Instruction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Instruction
	for _, inst := range l.instructions {
		if inst.BatchID == batchID {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// memTx buffers writes until Commit.
type memTx struct {
	pgx.Tx
	ledger *memLedger
	held   []*sync.Mutex
	writes []func(l *memLedger)
	closed bool
}

func (t *memTx) Commit(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.ledger.mu.Lock()
	for _, w := range t.writes {
		w(t.ledger)
	}
	t.ledger.commits++
	t.ledger.mu.Unlock()
	t.release()
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.release()
	return nil
}

func (t *memTx) release() {
	t.closed = true
	for _, m := range t.held {
		m.Unlock()
	}
	t.held = nil
}

// memTransactor implements ports.DBTransactor.
type memTransactor struct{ l *memLedger }

func (m memTransactor) Begin(_ context.Context) (pgx.Tx, error) {
	return &memTx{ledger: m.l}, nil
}

// memBatches implements ports.BatchRepository.
type memBatches struct{ l *memLedger }

func (m memBatches) ListNeedingReconciliation(_ context.Context, rail string, limit int) ([]domain.SettlementBatch, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	var out []domain.SettlementBatch
	for _, b := range m.l.batches {
		if b.Rail == rail && !b.Status.IsTerminal() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memBatches) GetByID(_ context.Context, id int64) (*domain.SettlementBatch, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	b, ok := m.l.batches[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m memBatches) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.SettlementBatch, error) {
	mt, ok := tx.(*memTx)
	if !ok {
		return nil, errors.New("foreign transaction")
	}
	lock := m.l.rowLock(id)
	lock.Lock()
	mt.held = append(mt.held, lock)
	return m.GetByID(ctx, id)
}

func (m memBatches) UpdateStatus(_ context.Context, tx pgx.Tx, id int64, status domain.Status) error {
	mt := tx.(*memTx)
	mt.writes = append(mt.writes, func(l *memLedger) {
		b := l.batches[id]
		b.Status = status
		b.UpdatedAt = time.Now()
		l.batches[id] = b
	})
	return nil
}

// memInstructions implements ports.InstructionRepository.
type memInstructions struct{ l *memLedger }

func (m memInstructions) ListByBatch(_ context.Context, batchID int64) ([]domain.Instruction, error) {
	return m.l.listByBatch(batchID), nil
}

func (m memInstructions) ListByBatchForUpdate(_ context.Context, _ pgx.Tx, batchID int64) ([]domain.Instruction, error) {
	return m.l.listByBatch(batchID), nil
}

func (m memInstructions) GetByID(_ context.Context, id int64) (*domain.Instruction, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	inst, ok := m.l.instructions[id]
	if !ok {
		return nil, nil
	}
	return &inst, nil
}

func (m memInstructions) UpdateOutcome(_ context.Context, tx pgx.Tx, o domain.Outcome) error {
	mt := tx.(*memTx)
	mt.writes = append(mt.writes, func(l *memLedger) {
		inst := l.instructions[o.InstructionID]
		inst.Status = o.Status
		if o.ReasonCode != "" {
			code := string(o.ReasonCode)
			inst.FailureCode = &code
			msg := o.ReasonMessage
			inst.FailureMessage = &msg
		}
		if o.FeeCurrency != "" {
			fc, fa := o.FeeCurrency, o.FeeAmount
			inst.FeeCurrency, inst.FeeAmount = &fc, &fa
		}
		inst.CompletedAt = o.CompletedAt
		l.instructions[o.InstructionID] = inst
	})
	return nil
}

func (m memInstructions) RewriteExternalRef(_ context.Context, id int64, ref string) error {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	inst := m.l.instructions[id]
	inst.RewrittenExternalRef = &ref
	m.l.instructions[id] = inst
	return nil
}

// memSubTransfers implements ports.SubTransferRepository.
type memSubTransfers struct{ l *memLedger }

func (m memSubTransfers) ListByBatch(_ context.Context, batchID int64) ([]domain.SubTransfer, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	var out []domain.SubTransfer
	for _, st := range m.l.subs {
		if st.BatchID == batchID {
			out = append(out, st)
		}
	}
	return out, nil
}

// memOutbox implements ports.OutboxRepository.
type memOutbox struct{ l *memLedger }

func (m memOutbox) Create(_ context.Context, tx pgx.Tx, event *domain.OutboxEvent) error {
	mt := tx.(*memTx)
	ev := *event
	mt.writes = append(mt.writes, func(l *memLedger) {
		l.outbox = append(l.outbox, ev)
	})
	return nil
}

func (m memOutbox) ListPending(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	var out []domain.OutboxEvent
	for _, ev := range m.l.outbox {
		if ev.Status == domain.OutboxStatusPending && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m memOutbox) MarkDispatched(_ context.Context, id uuid.UUID) error {
	return m.update(id, func(ev *domain.OutboxEvent) {
		now := time.Now()
		ev.Status = domain.OutboxStatusDispatched
		ev.DispatchedAt = &now
	})
}

func (m memOutbox) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	return m.update(id, func(ev *domain.OutboxEvent) {
		ev.Attempts++
		ev.LastError = &reason
	})
}

func (m memOutbox) update(id uuid.UUID, fn func(ev *domain.OutboxEvent)) error {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	for i := range m.l.outbox {
		if m.l.outbox[i].ID == id {
			fn(&m.l.outbox[i])
			return nil
		}
	}
	return errors.New("outbox event not found")
}
