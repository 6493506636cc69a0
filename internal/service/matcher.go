package service

import (
	"context"
	"fmt"
	"strconv"

	"settlement-reconciler/internal/core/domain"
	"settlement-reconciler/internal/core/ports"
	"settlement-reconciler/pkg/apperror"
	"settlement-reconciler/pkg/logger"
	"settlement-reconciler/pkg/refcode"

	"github.com/rs/zerolog"
)

// MatchedRecord pairs an accepted external record with its instruction.
type MatchedRecord struct {
	Record      domain.ExternalStatusRecord
	Instruction domain.Instruction
}

// MatchResult is the outcome of matching one rail response against a batch.
type MatchResult struct {
	Matched     []MatchedRecord
	Duplicates  int
	Undecodable int
	Unmatched   int
	Rejected    int
}

// Matcher resolves external records to the instructions of a batch and
// verifies the reported amounts.
type Matcher struct {
	instRepo ports.InstructionRepository
	audit    ports.AuditService
	fallback bool
	log      zerolog.Logger
}

// NewMatcher creates a Matcher. With amountScopeFallback, an overpaid record
// is re-checked against all of the receiver's sub-transfers in the batch.
func NewMatcher(instRepo ports.InstructionRepository, audit ports.AuditService, amountScopeFallback bool, log zerolog.Logger) *Matcher {
	return &Matcher{instRepo: instRepo, audit: audit, fallback: amountScopeFallback, log: log}
}

// Match never fails as a whole: records that cannot be used are logged and
// skipped so they are retried on the next poll. When several records resolve
// to the same instruction the last one wins.
func (m *Matcher) Match(
	ctx context.Context,
	batch *domain.SettlementBatch,
	instructions []domain.Instruction,
	subs []domain.SubTransfer,
	records []domain.ExternalStatusRecord,
) *MatchResult {
	byID := make(map[int64]domain.Instruction, len(instructions))
	for _, inst := range instructions {
		byID[inst.ID] = inst
	}

	res := &MatchResult{}
	seen := make(map[string]struct{}, len(records))
	position := make(map[int64]int, len(records))

	for _, rec := range records {
		log := m.log
		if rec.HasKey() {
			key := rec.Key()
			if _, dup := seen[key]; dup {
				res.Duplicates++
				continue
			}
			seen[key] = struct{}{}
			log = logger.ForRecord(log, key)
		} else {
			log.Warn().Str("remark", rec.Remark).Msg("record has no rail key, duplicate check skipped")
		}

		id, ok := refcode.Decode(rec.Remark)
		if !ok {
			res.Undecodable++
			log.Warn().Str("remark", rec.Remark).Msg("undecodable remark, skipping record")
			continue
		}
		log = logger.ForInstruction(log, id)

		inst, ok := byID[id]
		if !ok {
			res.Unmatched++
			m.logUnmatched(ctx, log, batch.ID, id)
			continue
		}

		if err := m.verify(inst, rec, subs); err != nil {
			res.Rejected++
			log.Error().Err(err).
				Int64("reported_amount", rec.Amount).
				Str("reported_currency", rec.Currency).
				Msg("record rejected, instruction left pending")
			m.audit.Log(ctx, domain.NewAuditLog(batch.Rail, batch.ID, domain.AuditActionRecordRejected,
				strconv.FormatInt(id, 10), err.Error()))
			continue
		}

		if i, dup := position[id]; dup {
			res.Matched[i] = MatchedRecord{Record: rec, Instruction: inst}
			continue
		}
		position[id] = len(res.Matched)
		res.Matched = append(res.Matched, MatchedRecord{Record: rec, Instruction: inst})
	}

	return res
}

func (m *Matcher) logUnmatched(ctx context.Context, log zerolog.Logger, batchID, id int64) {
	other, err := m.instRepo.GetByID(ctx, id)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("unmatched remark, instruction lookup failed")
	case other == nil:
		log.Warn().Msg("remark refers to an unknown instruction, skipping record")
	default:
		log.Warn().Int64("owning_batch_id", other.BatchID).Int64("current_batch_id", batchID).
			Msg("remark refers to an instruction of another batch, skipping record")
	}
}

func (m *Matcher) verify(inst domain.Instruction, rec domain.ExternalStatusRecord, subs []domain.SubTransfer) error {
	if rec.Currency != "" && rec.Currency != inst.Currency {
		return apperror.ErrRecordIntegrity(fmt.Sprintf("currency mismatch: reported %s, expected %s", rec.Currency, inst.Currency))
	}
	return VerifyAmount(inst, rec.Amount, subs, m.fallback)
}

// VerifyAmount checks a reported amount against the instruction's sub-transfer
// total. Underpayment is always rejected. Overpayment is accepted only when
// fallback is set and the amount equals the receiver's total in the batch.
func VerifyAmount(inst domain.Instruction, reported int64, subs []domain.SubTransfer, fallback bool) error {
	var narrow, wide int64
	owned := 0
	for _, st := range subs {
		if st.InstructionID == inst.ID {
			narrow += st.Amount
			owned++
		}
		if st.ReceiverRef == inst.ReceiverRef {
			wide += st.Amount
		}
	}
	if owned == 0 {
		narrow = inst.Amount
		wide += inst.Amount
	}

	switch {
	case reported < narrow:
		return apperror.ErrRecordIntegrity(fmt.Sprintf("underpayment: reported %d, expected %d", reported, narrow))
	case reported == narrow:
		return nil
	case !fallback:
		return apperror.ErrRecordIntegrity(fmt.Sprintf("overpayment: reported %d, expected %d", reported, narrow))
	case reported != wide:
		return apperror.ErrRecordIntegrity(fmt.Sprintf("overpayment: reported %d, receiver total %d", reported, wide))
	default:
		return nil
	}
}
