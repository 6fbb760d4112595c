package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/dfpfetch/internal/audit"
)

const (
	clientTimeout = 30 * time.Second
	maxAttempts   = 3
	baseDelay     = 500 * time.Millisecond
)

// Payload is the indicator submission for one ticker.
type Payload struct {
	Ticker       string             `json:"ticker"`
	FilerCode    string             `json:"cvm_code,omitempty"`
	AssetClass   string             `json:"asset_class,omitempty"`
	Source       string             `json:"source"`
	Period       string             `json:"period,omitempty"`
	CurrencyUnit string             `json:"currency_unit,omitempty"`
	Indicators   map[string]float64 `json:"indicators"`
	Ratios       map[string]float64 `json:"ratios,omitempty"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

// Client delivers indicator sets to the downstream ingest endpoint. Delivery
// failures never affect a ticker's own pipeline status; callers record the
// outcome in the audit record and move on.
type Client struct {
	url    string
	apiKey string
	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewClient returns a client for the ingest endpoint at ingestURL.
func NewClient(ingestURL, apiKey string) *Client {
	return &Client{
		url:    ingestURL,
		apiKey: apiKey,
		client: &http.Client{Timeout: clientTimeout},
		sleep:  sleepCtx,
	}
}

// Publish sends one ticker's payload as `{"data": [payload]}`. Transport
// errors and server-side statuses are retried with doubling delay; client
// errors are not. The returned outcome is complete in every case.
func (c *Client) Publish(ctx context.Context, p Payload) (audit.PublishOutcome, error) {
	out := audit.PublishOutcome{Attempted: true}

	body, err := json.Marshal(map[string][]Payload{"data": {p}})
	if err != nil {
		out.Error = err.Error()
		return out, fmt.Errorf("encoding payload: %w", err)
	}

	slog.Info("publishing indicators",
		"ticker", p.Ticker, "url", c.url, "api_key", MaskKey(c.apiKey))

	delay := baseDelay
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
			delay *= 2
		}

		status, err := c.post(ctx, body)
		out.StatusCode = status
		if err == nil {
			out.Delivered = true
			slog.Info("indicators delivered", "ticker", p.Ticker, "status", status)
			return out, nil
		}
		lastErr = err
		if !retriable(status) {
			break
		}
		slog.Warn("publish attempt failed",
			"ticker", p.Ticker, "attempt", attempt, "error", err)
	}

	out.Error = lastErr.Error()
	return out, lastErr
}

func (c *Client) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(snippet))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return resp.StatusCode, fmt.Errorf("ingest rejected the api key (%s)", resp.Status)
	}
	return resp.StatusCode, fmt.Errorf("ingest returned %s: %s", resp.Status, detail)
}

// retriable reports whether a post outcome is worth another attempt: any
// transport error (status 0) or a server-side status.
func retriable(status int) bool {
	return status == 0 || status >= 500
}

// MaskKey returns the loggable form of an API key. Keys never appear in logs
// in full.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "…"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
