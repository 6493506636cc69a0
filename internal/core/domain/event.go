package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventTypeSettlementOutcome is the single event type emitted per finalized batch.
const EventTypeSettlementOutcome = "SETTLEMENT_OUTCOME"

// FailedSubTransfer carries the rail's reason for a failed sub-transfer.
type FailedSubTransfer struct {
	SubTransferID int64      `json:"sub_transfer_id"`
	InstructionID int64      `json:"instruction_id"`
	ReasonCode    ReasonCode `json:"reason_code"`
	ReasonMessage string     `json:"reason_message"`
}

// SucceededInstruction carries settlement detail for a succeeded instruction.
type SucceededInstruction struct {
	InstructionID  int64      `json:"instruction_id"`
	SubTransferIDs []int64    `json:"sub_transfer_ids"`
	FeeCurrency    string     `json:"fee_currency,omitempty"`
	FeeAmount      int64      `json:"fee_amount"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// SettlementOutcomeEvent is the batch settlement outcome consumed by
// accounting ledgers and merchant notifications.
type SettlementOutcomeEvent struct {
	EventID                 uuid.UUID              `json:"event_id"`
	EventType               string                 `json:"event_type"`
	BatchID                 int64                  `json:"batch_id"`
	AppID                   string                 `json:"app_id"`
	Rail                    string                 `json:"rail"`
	Status                  Status                 `json:"status"`
	UnchangedSubTransferIDs []int64                `json:"unchanged_sub_transfer_ids"`
	Failed                  []FailedSubTransfer    `json:"failed"`
	Succeeded               []SucceededInstruction `json:"succeeded"`
	OccurredAt              time.Time              `json:"occurred_at"`
}

// NewOutcomeEvent partitions a batch's instructions into those whose outcome
// changed this round (succeeded or failed) and those carried forward, and
// builds the event describing them. It returns the changed outcomes so the
// caller can persist them. Instructions are visited in the given order.
func NewOutcomeEvent(
	batch *SettlementBatch,
	status Status,
	instructions []Instruction,
	subTransfers []SubTransfer,
	outcomes map[int64]Outcome,
	now time.Time,
) (*SettlementOutcomeEvent, []Outcome) {
	subsByInstruction := make(map[int64][]int64, len(instructions))
	for _, st := range subTransfers {
		subsByInstruction[st.InstructionID] = append(subsByInstruction[st.InstructionID], st.ID)
	}

	event := &SettlementOutcomeEvent{
		EventID:                 uuid.New(),
		EventType:               EventTypeSettlementOutcome,
		BatchID:                 batch.ID,
		AppID:                   batch.AppID,
		Rail:                    batch.Rail,
		Status:                  status,
		UnchangedSubTransferIDs: []int64{},
		Failed:                  []FailedSubTransfer{},
		Succeeded:               []SucceededInstruction{},
		OccurredAt:              now,
	}

	var changed []Outcome
	for _, inst := range instructions {
		subIDs := subsByInstruction[inst.ID]
		o, ok := outcomes[inst.ID]
		if !ok || !o.Status.IsTerminal() || inst.Status.IsTerminal() {
			event.UnchangedSubTransferIDs = append(event.UnchangedSubTransferIDs, subIDs...)
			continue
		}

		changed = append(changed, o)
		if o.Status == StatusSuccess {
			event.Succeeded = append(event.Succeeded, SucceededInstruction{
				InstructionID:  inst.ID,
				SubTransferIDs: subIDs,
				FeeCurrency:    o.FeeCurrency,
				FeeAmount:      o.FeeAmount,
				CompletedAt:    o.CompletedAt,
			})
			continue
		}

		reason := o.ReasonCode
		if o.Status == StatusDeleted && reason == "" {
			reason = ReasonPurgedByRail
		}
		if len(subIDs) == 0 {
			event.Failed = append(event.Failed, FailedSubTransfer{
				InstructionID: inst.ID,
				ReasonCode:    reason,
				ReasonMessage: o.ReasonMessage,
			})
			continue
		}
		for _, id := range subIDs {
			event.Failed = append(event.Failed, FailedSubTransfer{
				SubTransferID: id,
				InstructionID: inst.ID,
				ReasonCode:    reason,
				ReasonMessage: o.ReasonMessage,
			})
		}
	}

	return event, changed
}
