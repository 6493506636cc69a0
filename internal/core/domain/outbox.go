package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the delivery state of an outbox event.
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusDispatched OutboxStatus = "DISPATCHED"
)

// OutboxEvent is an outcome event persisted in the finalization transaction
// and relayed to publishers after commit.
type OutboxEvent struct {
	ID           uuid.UUID    `json:"id"`
	AggregateID  int64        `json:"aggregate_id"` // settlement batch id
	EventType    string       `json:"event_type"`
	Payload      []byte       `json:"payload"` // JSON SettlementOutcomeEvent
	Status       OutboxStatus `json:"status"`
	Attempts     int          `json:"attempts"`
	LastError    *string      `json:"last_error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	DispatchedAt *time.Time   `json:"dispatched_at,omitempty"`
}
