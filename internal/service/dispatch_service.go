package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"settlement-reconciler/internal/core/domain"
	"settlement-reconciler/internal/core/ports"

	"github.com/rs/zerolog"
)

// DispatchService relays committed outbox events to the configured publishers.
// Delivery is at-least-once; consumers deduplicate on the event id.
type DispatchService struct {
	outboxRepo ports.OutboxRepository
	publishers []ports.EventPublisher
	log        zerolog.Logger
}

// NewDispatchService creates a new DispatchService.
func NewDispatchService(outboxRepo ports.OutboxRepository, publishers []ports.EventPublisher, log zerolog.Logger) *DispatchService {
	return &DispatchService{outboxRepo: outboxRepo, publishers: publishers, log: log}
}

// Dispatch publishes one outbox event to every publisher and records the result.
func (s *DispatchService) Dispatch(ctx context.Context, event *domain.OutboxEvent) error {
	var outcome domain.SettlementOutcomeEvent
	if err := json.Unmarshal(event.Payload, &outcome); err != nil {
		return s.fail(ctx, event, fmt.Errorf("decode payload: %w", err))
	}

	var errs []error
	for _, p := range s.publishers {
		if err := p.Publish(ctx, &outcome); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return s.fail(ctx, event, err)
	}

	if err := s.outboxRepo.MarkDispatched(ctx, event.ID); err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}

	s.log.Info().
		Str("outbox_id", event.ID.String()).
		Str("event_id", outcome.EventID.String()).
		Int64("batch_id", event.AggregateID).
		Int("publishers", len(s.publishers)).
		Msg("outcome event dispatched")
	return nil
}

// RelayPending dispatches events left undelivered by earlier runs.
func (s *DispatchService) RelayPending(ctx context.Context, limit int) (int, error) {
	events, err := s.outboxRepo.ListPending(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending outbox events: %w", err)
	}

	delivered := 0
	for i := range events {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if err := s.Dispatch(ctx, &events[i]); err != nil {
			s.log.Warn().Err(err).Str("outbox_id", events[i].ID.String()).Int("attempts", events[i].Attempts+1).
				Msg("outbox relay failed")
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (s *DispatchService) fail(ctx context.Context, event *domain.OutboxEvent, cause error) error {
	if err := s.outboxRepo.MarkFailed(ctx, event.ID, cause.Error()); err != nil {
		s.log.Error().Err(err).Str("outbox_id", event.ID.String()).Msg("failed to record dispatch failure")
	}
	return cause
}
