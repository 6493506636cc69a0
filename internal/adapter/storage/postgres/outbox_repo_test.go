package postgres

import (
	"context"
	"testing"
	"time"

	"settlement-reconciler/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOutboxRepo(mock)
	e := &domain.OutboxEvent{
		ID:          uuid.New(),
		AggregateID: 7,
		EventType:   domain.EventTypeSettlementOutcome,
		Payload:     []byte(`{"batch_id":7}`),
		Status:      domain.OutboxStatusPending,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(e.ID, e.AggregateID, e.EventType, e.Payload, e.Status, e.Attempts, e.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), tx, e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepo_ListPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOutboxRepo(mock)
	id := uuid.New()
	lastErr := "webhook: timeout"
	created := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectQuery("SELECT .+ FROM outbox_events WHERE status = 'PENDING'").
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "aggregate_id", "event_type", "payload", "status", "attempts", "last_error", "created_at", "dispatched_at"}).
			AddRow(id, int64(7), domain.EventTypeSettlementOutcome, []byte(`{}`), domain.OutboxStatusPending, 2, &lastErr, created, (*time.Time)(nil)))

	events, err := repo.ListPending(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].ID)
	assert.Equal(t, 2, events[0].Attempts)
	require.NotNil(t, events[0].LastError)
	assert.Equal(t, lastErr, *events[0].LastError)
	assert.Nil(t, events[0].DispatchedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepo_MarkDispatched(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOutboxRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE outbox_events SET status = 'DISPATCHED'").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.MarkDispatched(context.Background(), id))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepo_MarkFailed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOutboxRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE outbox_events SET attempts = attempts \\+ 1, last_error").
		WithArgs("kafka: broker unreachable", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.MarkFailed(context.Background(), id, "kafka: broker unreachable"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
