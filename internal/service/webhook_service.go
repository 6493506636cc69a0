package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"settlement-reconciler/internal/core/domain"
	"settlement-reconciler/internal/core/ports"

	"github.com/rs/zerolog"
)

// Webhook headers.
const (
	HeaderSignature = "X-Signature"
	HeaderEventID   = "X-Event-ID"
	HeaderTimestamp = "X-Timestamp"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookPublisher posts signed outcome events to a downstream endpoint.
// It makes a single attempt; the outbox relay retries on the next tick.
type WebhookPublisher struct {
	url        string
	secret     string
	sigSvc     ports.SignatureService
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewWebhookPublisher creates a new webhook publisher.
func NewWebhookPublisher(url, secret string, sigSvc ports.SignatureService, httpClient HTTPClient, log zerolog.Logger) *WebhookPublisher {
	return &WebhookPublisher{
		url:        url,
		secret:     secret,
		sigSvc:     sigSvc,
		httpClient: httpClient,
		log:        log,
	}
}

// Name implements ports.EventPublisher.
func (p *WebhookPublisher) Name() string { return "webhook" }

// Publish posts the event. The signature covers "<timestamp>.<body>".
func (p *WebhookPublisher) Publish(ctx context.Context, event *domain.SettlementOutcomeEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ts, content := SignedContent(time.Now(), body)
	signature := p.sigSvc.Sign(p.secret, content)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderEventID, event.EventID.String())
	req.Header.Set(HeaderTimestamp, ts)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}

	p.log.Debug().
		Str("event_id", event.EventID.String()).
		Int64("batch_id", event.BatchID).
		Int("status", resp.StatusCode).
		Msg("webhook delivered")
	return nil
}
