package ports

import (
	"context"
	"time"

	"settlement-reconciler/internal/core/domain"
)

// ProviderAdapter is the protocol-specific client of one rail.
// Calls must be idempotent: the same window yields the same logical records.
type ProviderAdapter interface {
	Name() string
	// SubmissionStatus is the cheap pre-check run before TransactionResults.
	SubmissionStatus(ctx context.Context, batchRef string) (domain.SubmissionStatus, error)
	TransactionResults(ctx context.Context, batchRef string, window domain.DateWindow) ([]domain.ExternalStatusRecord, error)
}

// ProgressStore accumulates per-instruction outcomes of a batch across polls.
type ProgressStore interface {
	Merge(ctx context.Context, batchID int64, outcomes []domain.Outcome) error
	Load(ctx context.Context, batchID int64) (map[int64]domain.Outcome, error)
	Clear(ctx context.Context, batchID int64) error
}

// TickLock prevents overlapping ticks of the same rail.
type TickLock interface {
	// Acquire returns false if another tick holds the lock.
	Acquire(ctx context.Context, rail string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, rail string) error
}

// CallBudget enforces a per-rail query quota.
type CallBudget interface {
	// Allow returns true while the rail has calls left in the current window.
	Allow(ctx context.Context, rail string, limit int64, window time.Duration) (bool, error)
}

// EventPublisher delivers a committed settlement outcome event downstream.
type EventPublisher interface {
	Name() string
	Publish(ctx context.Context, event *domain.SettlementOutcomeEvent) error
}

// EventDispatcher hands committed outbox events to every publisher.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event *domain.OutboxEvent) error
	// RelayPending dispatches undelivered events and returns how many were delivered.
	RelayPending(ctx context.Context, limit int) (int, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// TokenService handles operator JWT operations.
type TokenService interface {
	Generate(subject string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// AuditService records audited reconciliation steps. Failures are logged, never returned.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Service Ports (Business Logic) ---

// FinalizeResult reports what a finalization call did.
type FinalizeResult struct {
	Applied bool // false when the batch was already terminal
	Event   *domain.SettlementOutcomeEvent
}

// Finalizer applies a batch decision under the batch row lock.
type Finalizer interface {
	Finalize(ctx context.Context, batchID int64, status domain.Status, outcomes map[int64]domain.Outcome) (*FinalizeResult, error)
	Advance(ctx context.Context, batchID int64, status domain.Status) (bool, error)
}

// RailRunner runs one reconciliation tick of a rail.
type RailRunner interface {
	Rail() string
	RunOnce(ctx context.Context) (*RunSummary, error)
}

// RunSummary reports the result of one tick.
type RunSummary struct {
	Rail       string    `json:"rail"`
	Batches    int       `json:"batches"`
	Finalized  int       `json:"finalized"`
	Advanced   int       `json:"advanced"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
	Relayed    int       `json:"relayed"`
	LockHeld   bool      `json:"lock_held"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// BatchQueryService serves batch lookups for the ops API.
type BatchQueryService interface {
	GetBatch(ctx context.Context, id int64) (*domain.SettlementBatch, []domain.Instruction, error)
}
