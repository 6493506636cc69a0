package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"settlement-reconciler/internal/core/domain"
	"settlement-reconciler/internal/core/ports"
	"settlement-reconciler/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func outboxFor(t *testing.T, event *domain.SettlementOutcomeEvent) domain.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return domain.OutboxEvent{
		ID:          uuid.New(),
		AggregateID: event.BatchID,
		EventType:   event.EventType,
		Payload:     payload,
		Status:      domain.OutboxStatusPending,
	}
}

func TestDispatchService_Dispatch_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	outboxRepo := mocks.NewMockOutboxRepository(ctrl)
	pubA := mocks.NewMockEventPublisher(ctrl)
	pubB := mocks.NewMockEventPublisher(ctrl)
	svc := NewDispatchService(outboxRepo, []ports.EventPublisher{pubA, pubB}, newTestLogger())

	event := sampleOutcomeEvent()
	row := outboxFor(t, event)

	pubA.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, got *domain.SettlementOutcomeEvent) error {
			assert.Equal(t, event.EventID, got.EventID)
			return nil
		},
	)
	pubB.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
	outboxRepo.EXPECT().MarkDispatched(gomock.Any(), row.ID).Return(nil)

	require.NoError(t, svc.Dispatch(context.Background(), &row))
}

func TestDispatchService_Dispatch_PublisherErrorMarksFailed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	outboxRepo := mocks.NewMockOutboxRepository(ctrl)
	pubA := mocks.NewMockEventPublisher(ctrl)
	pubB := mocks.NewMockEventPublisher(ctrl)
	svc := NewDispatchService(outboxRepo, []ports.EventPublisher{pubA, pubB}, newTestLogger())

	row := outboxFor(t, sampleOutcomeEvent())

	pubA.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker unreachable"))
	pubA.EXPECT().Name().Return("kafka")
	// Remaining publishers are still attempted.
	pubB.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
	outboxRepo.EXPECT().MarkFailed(gomock.Any(), row.ID, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ uuid.UUID, reason string) error {
			assert.Contains(t, reason, "kafka: broker unreachable")
			return nil
		},
	)

	err := svc.Dispatch(context.Background(), &row)
	require.Error(t, err)
}

func TestDispatchService_Dispatch_BadPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	outboxRepo := mocks.NewMockOutboxRepository(ctrl)
	pub := mocks.NewMockEventPublisher(ctrl)
	svc := NewDispatchService(outboxRepo, []ports.EventPublisher{pub}, newTestLogger())

	row := domain.OutboxEvent{ID: uuid.New(), AggregateID: 1, Payload: []byte("{not json")}
	outboxRepo.EXPECT().MarkFailed(gomock.Any(), row.ID, gomock.Any()).Return(nil)

	err := svc.Dispatch(context.Background(), &row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode payload")
}

func TestDispatchService_RelayPending(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	outboxRepo := mocks.NewMockOutboxRepository(ctrl)
	pub := mocks.NewMockEventPublisher(ctrl)
	svc := NewDispatchService(outboxRepo, []ports.EventPublisher{pub}, newTestLogger())

	ok1 := outboxFor(t, sampleOutcomeEvent())
	bad := outboxFor(t, sampleOutcomeEvent())
	ok2 := outboxFor(t, sampleOutcomeEvent())

	outboxRepo.EXPECT().ListPending(gomock.Any(), 10).Return([]domain.OutboxEvent{ok1, bad, ok2}, nil)
	gomock.InOrder(
		pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil),
		pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("timeout")),
		pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil),
	)
	pub.EXPECT().Name().Return("webhook")
	outboxRepo.EXPECT().MarkDispatched(gomock.Any(), ok1.ID).Return(nil)
	outboxRepo.EXPECT().MarkFailed(gomock.Any(), bad.ID, gomock.Any()).Return(nil)
	outboxRepo.EXPECT().MarkDispatched(gomock.Any(), ok2.ID).Return(nil)

	delivered, err := svc.RelayPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
}

func TestDispatchService_RelayPending_ListError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	outboxRepo := mocks.NewMockOutboxRepository(ctrl)
	svc := NewDispatchService(outboxRepo, nil, newTestLogger())
	outboxRepo.EXPECT().ListPending(gomock.Any(), 5).Return(nil, errors.New("db down"))

	delivered, err := svc.RelayPending(context.Background(), 5)
	require.Error(t, err)
	assert.Zero(t, delivered)
}
