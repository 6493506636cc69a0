package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited reconciliation step.
type AuditAction string

const (
	AuditActionBatchFinalized     AuditAction = "BATCH_FINALIZED"
	AuditActionBatchAdvanced      AuditAction = "BATCH_ADVANCED"
	AuditActionPrecheckFailed     AuditAction = "PRECHECK_FAILED"
	AuditActionReferenceRewritten AuditAction = "REFERENCE_REWRITTEN"
	AuditActionRecordRejected     AuditAction = "RECORD_REJECTED"
	AuditActionRunTriggered       AuditAction = "RUN_TRIGGERED"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID         uuid.UUID   `json:"id"`
	BatchID    *int64      `json:"batch_id,omitempty"`
	Rail       string      `json:"rail"`
	Action     AuditAction `json:"action"`
	ResourceID string      `json:"resource_id,omitempty"`
	Details    string      `json:"details,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// NewAuditLog builds an audit entry for a batch-scoped action.
func NewAuditLog(rail string, batchID int64, action AuditAction, resourceID, details string) *AuditLog {
	return &AuditLog{
		ID:         uuid.New(),
		BatchID:    &batchID,
		Rail:       rail,
		Action:     action,
		ResourceID: resourceID,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}
}
