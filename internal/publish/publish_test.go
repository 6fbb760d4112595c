package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kalambet/dfpfetch/internal/audit"
)

var ctx = context.Background()

func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}
}

func testPayload() Payload {
	return Payload{
		Ticker:       "BBAS3",
		FilerCode:    "1023",
		Source:       audit.Source,
		Period:       "2023-12-31",
		CurrencyUnit: "BRL_THOUSANDS",
		Indicators:   map[string]float64{"net_income": 250000},
	}
}

func TestPublishDelivers(t *testing.T) {
	var gotKey, gotContentType string
	var gotBody map[string][]Payload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotKey = r.Header.Get("x-api-key")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		w.Write([]byte(`{"processed":1}`))
	}))
	t.Cleanup(ts.Close)

	c := NewClient(ts.URL, "sk-1234567890")
	out, err := c.Publish(ctx, testPayload())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !out.Attempted || !out.Delivered || out.StatusCode != http.StatusOK {
		t.Errorf("outcome = %+v, want attempted and delivered with status 200", out)
	}
	if gotKey != "sk-1234567890" {
		t.Errorf("x-api-key = %q, want the configured key", gotKey)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	data := gotBody["data"]
	if len(data) != 1 || data[0].Ticker != "BBAS3" || data[0].Source != audit.Source {
		t.Errorf("request data = %+v, want one payload for BBAS3", data)
	}
}

func TestPublishRetriesServerErrors(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"processed":1}`))
	}))
	t.Cleanup(ts.Close)

	var delays []time.Duration
	c := NewClient(ts.URL, "key")
	c.sleep = noSleep(&delays)

	out, err := c.Publish(ctx, testPayload())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !out.Delivered {
		t.Errorf("outcome = %+v, want delivered after retries", out)
	}
	if calls != 3 {
		t.Errorf("got %d requests, want 3", calls)
	}
	want := []time.Duration{500 * time.Millisecond, time.Second}
	if len(delays) != len(want) || delays[0] != want[0] || delays[1] != want[1] {
		t.Errorf("delays = %v, want %v", delays, want)
	}
}

func TestPublishDoesNotRetryClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"bad request", http.StatusBadRequest},
		{"unauthorized", http.StatusUnauthorized},
		{"forbidden", http.StatusForbidden},
	}
	for _, tt := range tests {
		calls := 0
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			http.Error(w, "rejected", tt.status)
		}))

		c := NewClient(ts.URL, "key")
		c.sleep = noSleep(nil)
		out, err := c.Publish(ctx, testPayload())
		ts.Close()

		if err == nil {
			t.Errorf("%s: Publish succeeded, want error", tt.name)
		}
		if calls != 1 {
			t.Errorf("%s: got %d requests, want 1: client errors are not retried", tt.name, calls)
		}
		if out.Delivered || out.StatusCode != tt.status || out.Error == "" {
			t.Errorf("%s: outcome = %+v, want failed outcome with status %d", tt.name, out, tt.status)
		}
	}
}

func TestPublishExhaustsAttempts(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(ts.Close)

	c := NewClient(ts.URL, "key")
	c.sleep = noSleep(nil)

	out, err := c.Publish(ctx, testPayload())
	if err == nil {
		t.Fatal("Publish succeeded, want error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("got %d requests, want 3", calls)
	}
	if out.Delivered || out.StatusCode != http.StatusBadGateway {
		t.Errorf("outcome = %+v, want failed outcome with status 502", out)
	}
}

func TestMaskKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sk-1234567890", "sk-1…"},
		{"abcd", "****"},
		{"", "****"},
	}
	for _, tt := range tests {
		if got := MaskKey(tt.in); got != tt.want {
			t.Errorf("MaskKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
