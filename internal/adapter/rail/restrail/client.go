// Package restrail is the provider adapter for rails that expose batch
// results over a JSON HTTP API.
package restrail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"settlement-reconciler/internal/core/domain"
	"settlement-reconciler/pkg/apperror"
	"settlement-reconciler/pkg/money"

	"github.com/rs/zerolog"
)

const (
	headerAPIKey = "X-API-Key"
	dateLayout   = "2006-01-02"
	// maxPages stops a rail that keeps returning next_page.
	maxPages = 500
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.ProviderAdapter over HTTPS.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient HTTPClient
	log        zerolog.Logger
}

// New creates a REST rail client. baseURL must not end with a slash.
func New(name, baseURL, apiKey string, httpClient HTTPClient, log zerolog.Logger) *Client {
	return &Client{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		log:        log.With().Str("rail", name).Str("adapter", "rest").Logger(),
	}
}

// Name implements ports.ProviderAdapter.
func (c *Client) Name() string { return c.name }

type statusResponse struct {
	Status string `json:"status"`
}

// SubmissionStatus asks the rail whether it still knows the batch.
// An HTTP 404 is reported as NOT_FOUND.
func (c *Client) SubmissionStatus(ctx context.Context, batchRef string) (domain.SubmissionStatus, error) {
	var body statusResponse
	status, err := c.get(ctx, "/batches/"+url.PathEscape(batchRef)+"/status", nil, &body)
	if status == http.StatusNotFound {
		return domain.SubmissionNotFound, nil
	}
	if err != nil {
		return "", err
	}
	return domain.SubmissionStatus(strings.ToUpper(strings.TrimSpace(body.Status))), nil
}

type recordDTO struct {
	RailBatchID  string `json:"rail_batch_id"`
	SequenceNo   string `json:"sequence_no"`
	StatusCode   string `json:"status_code"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	Remark       string `json:"remark"`
	CompletedAt  string `json:"completed_at"`  // RFC 3339
	ScheduledFor string `json:"scheduled_for"` // YYYY-MM-DD
	ReturnReason string `json:"return_reason"`
	FeeCurrency  string `json:"fee_currency"`
	FeeAmount    string `json:"fee_amount"`
}

type transactionsResponse struct {
	Records  []recordDTO `json:"records"`
	NextPage int         `json:"next_page"`
}

// TransactionResults fetches every page of records for the window.
// Records with unparseable fields are logged and dropped.
func (c *Client) TransactionResults(ctx context.Context, batchRef string, window domain.DateWindow) ([]domain.ExternalStatusRecord, error) {
	path := "/batches/" + url.PathEscape(batchRef) + "/transactions"
	var out []domain.ExternalStatusRecord

	page := 1
	for i := 0; i < maxPages; i++ {
		q := url.Values{}
		q.Set("from", window.From.Format(dateLayout))
		q.Set("to", window.To.Format(dateLayout))
		q.Set("page", strconv.Itoa(page))

		var body transactionsResponse
		if _, err := c.get(ctx, path, q, &body); err != nil {
			return nil, err
		}

		for _, dto := range body.Records {
			rec, err := dto.toRecord()
			if err != nil {
				c.log.Warn().Err(err).
					Str("record_key", dto.RailBatchID+"/"+dto.SequenceNo).
					Msg("dropping malformed rail record")
				continue
			}
			out = append(out, rec)
		}

		if body.NextPage <= page {
			return out, nil
		}
		page = body.NextPage
	}
	return nil, apperror.ErrMalformedRailResponse(c.name, fmt.Errorf("more than %d result pages", maxPages))
}

func (c *Client) get(ctx context.Context, path string, query url.Values, dst any) (int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, apperror.ErrRailUnavailable(c.name, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, apperror.ErrRailUnavailable(c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, apperror.ErrRailUnavailable(c.name, fmt.Errorf("GET %s returned %d", path, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return resp.StatusCode, apperror.ErrMalformedRailResponse(c.name, err)
	}
	return resp.StatusCode, nil
}

func (d recordDTO) toRecord() (domain.ExternalStatusRecord, error) {
	rec := domain.ExternalStatusRecord{
		RailBatchID:  d.RailBatchID,
		SequenceNo:   d.SequenceNo,
		StatusCode:   d.StatusCode,
		ErrorCode:    d.ErrorCode,
		ErrorMessage: d.ErrorMessage,
		Currency:     strings.ToUpper(d.Currency),
		Remark:       d.Remark,
		ReturnReason: d.ReturnReason,
		FeeCurrency:  strings.ToUpper(d.FeeCurrency),
	}

	amount, err := money.ToMinor(d.Amount, d.Currency)
	if err != nil {
		return rec, err
	}
	rec.Amount = amount

	if d.FeeAmount != "" {
		feeCurrency := d.FeeCurrency
		if feeCurrency == "" {
			feeCurrency = d.Currency
			rec.FeeCurrency = rec.Currency
		}
		fee, err := money.ToMinor(d.FeeAmount, feeCurrency)
		if err != nil {
			return rec, fmt.Errorf("fee: %w", err)
		}
		rec.FeeAmount = fee
	}

	if d.CompletedAt != "" {
		t, err := time.Parse(time.RFC3339, d.CompletedAt)
		if err != nil {
			return rec, fmt.Errorf("completed_at: %w", err)
		}
		t = t.UTC()
		rec.CompletedAt = &t
	}
	if d.ScheduledFor != "" {
		t, err := time.Parse(dateLayout, d.ScheduledFor)
		if err != nil {
			return rec, fmt.Errorf("scheduled_for: %w", err)
		}
		rec.ScheduledFor = &t
	}
	return rec, nil
}
