package domain

import (
	"time"
)

// SettlementBatch is a group of instructions submitted to a rail together.
type SettlementBatch struct {
	ID              int64     `json:"id"`
	AppID           string    `json:"app_id"`
	Rail            string    `json:"rail"`
	SettlementDate  time.Time `json:"settlement_date"`
	ExternalBatchID *string   `json:"external_batch_id,omitempty"` // nil until submitted
	Status          Status    `json:"status"`
	ExpectedCount   int       `json:"expected_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsSubmitted returns true once the rail assigned a batch reference.
func (b *SettlementBatch) IsSubmitted() bool {
	return b.ExternalBatchID != nil && *b.ExternalBatchID != ""
}

// Instruction is a single payout submitted to a rail.
type Instruction struct {
	ID                   int64      `json:"id"`
	BatchID              int64      `json:"batch_id"`
	AppID                string     `json:"app_id"`
	ReceiverRef          string     `json:"receiver_ref"`
	Currency             string     `json:"currency"`
	Amount               int64      `json:"amount"` // minor units
	Status               Status     `json:"status"`
	ExternalRef          *string    `json:"external_ref,omitempty"`
	SubmittedAt          *time.Time `json:"submitted_at,omitempty"`
	RewrittenExternalRef *string    `json:"rewritten_external_ref,omitempty"`
	FailureCode          *string    `json:"failure_code,omitempty"`
	FailureMessage       *string    `json:"failure_message,omitempty"`
	FeeCurrency          *string    `json:"fee_currency,omitempty"`
	FeeAmount            *int64     `json:"fee_amount,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

// NeedsRail returns false for zero-amount instructions, which settle without
// contacting the rail.
func (i *Instruction) NeedsRail() bool {
	return i.Amount != 0
}

// SubTransfer is an order-level transfer aggregated into an instruction.
type SubTransfer struct {
	ID            int64  `json:"id"`
	BatchID       int64  `json:"batch_id"`
	InstructionID int64  `json:"instruction_id"`
	ReceiverRef   string `json:"receiver_ref"`
	Amount        int64  `json:"amount"` // minor units
}

// DateWindow is the inclusive range of settlement dates queried on a rail.
type DateWindow struct {
	From time.Time
	To   time.Time
}

// Contains reports whether the calendar day of t lies within the window.
func (w DateWindow) Contains(t time.Time) bool {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	from := time.Date(w.From.Year(), w.From.Month(), w.From.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(w.To.Year(), w.To.Month(), w.To.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(from) && !day.After(to)
}

// ExternalStatusRecord is one per-instruction result reported by a rail.
type ExternalStatusRecord struct {
	RailBatchID  string     `json:"rail_batch_id"`
	SequenceNo   string     `json:"sequence_no"`
	StatusCode   string     `json:"status_code"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Amount       int64      `json:"amount"` // minor units
	Currency     string     `json:"currency"`
	Remark       string     `json:"remark"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	ReturnReason string     `json:"return_reason,omitempty"`
	FeeCurrency  string     `json:"fee_currency,omitempty"`
	FeeAmount    int64      `json:"fee_amount,omitempty"`
}

// Key identifies the record on the rail; rails repeat records across windows.
func (r ExternalStatusRecord) Key() string {
	return r.RailBatchID + "/" + r.SequenceNo
}

// HasKey reports whether the rail supplied both parts of Key.
func (r ExternalStatusRecord) HasKey() bool {
	return r.RailBatchID != "" && r.SequenceNo != ""
}

// Outcome is the classified state of one instruction in the current
// reconciliation of its batch.
type Outcome struct {
	InstructionID int64      `json:"instruction_id"`
	Status        Status     `json:"status"`
	ReasonCode    ReasonCode `json:"reason_code,omitempty"`
	ReasonMessage string     `json:"reason_message,omitempty"`
	FeeCurrency   string     `json:"fee_currency,omitempty"`
	FeeAmount     int64      `json:"fee_amount,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	RecordKey     string     `json:"record_key,omitempty"`
}
