package service

import (
	"context"
	"io"
	"sync"
	"time"

	"settlement-reconciler/internal/core/domain"

	"github.com/rs/zerolog"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// fakeAdapter is a scripted ports.ProviderAdapter.
type fakeAdapter struct {
	mu          sync.Mutex
	submission  domain.SubmissionStatus
	records     [][]domain.ExternalStatusRecord // one slice per poll, last one repeats
	statusErr   error
	resultsErr  error
	statusCalls int
	resultCalls int
	windows     []domain.DateWindow
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) SubmissionStatus(_ context.Context, _ string) (domain.SubmissionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return "", f.statusErr
	}
	return f.submission, nil
}

func (f *fakeAdapter) TransactionResults(_ context.Context, _ string, window domain.DateWindow) ([]domain.ExternalStatusRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resultCalls++
	f.windows = append(f.windows, window)
	if f.resultsErr != nil {
		return nil, f.resultsErr
	}
	if len(f.records) == 0 {
		return nil, nil
	}
	i := f.resultCalls - 1
	if i >= len(f.records) {
		i = len(f.records) - 1
	}
	return f.records[i], nil
}

// memProgress implements ports.ProgressStore.
type memProgress struct {
	mu   sync.Mutex
	data map[int64]map[int64]domain.Outcome
}

func newMemProgress() *memProgress {
	return &memProgress{data: make(map[int64]map[int64]domain.Outcome)}
}

func (p *memProgress) Merge(_ context.Context, batchID int64, outcomes []domain.Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data[batchID] == nil {
		p.data[batchID] = make(map[int64]domain.Outcome)
	}
	for _, o := range outcomes {
		p.data[batchID][o.InstructionID] = o
	}
	return nil
}

func (p *memProgress) Load(_ context.Context, batchID int64) (map[int64]domain.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[int64]domain.Outcome, len(p.data[batchID]))
	for id, o := range p.data[batchID] {
		out[id] = o
	}
	return out, nil
}

func (p *memProgress) Clear(_ context.Context, batchID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, batchID)
	return nil
}

// memLock implements ports.TickLock.
type memLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLock() *memLock { return &memLock{held: make(map[string]bool)} }

func (l *memLock) Acquire(_ context.Context, rail string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[rail] {
		return false, nil
	}
	l.held[rail] = true
	return true, nil
}

func (l *memLock) Release(_ context.Context, rail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, rail)
	return nil
}

// recordingPublisher implements ports.EventPublisher.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.SettlementOutcomeEvent
	err    error
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) Publish(_ context.Context, event *domain.SettlementOutcomeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, *event)
	return nil
}

func (p *recordingPublisher) published() []domain.SettlementOutcomeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.SettlementOutcomeEvent(nil), p.events...)
}
