package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// retry policy shared by every adapter: up to three attempts per request,
// 429s back off harder than other failures, and the backoff grows
// linearly with the attempt number.
const (
	maxAttempts          = 3
	rateLimitBackoffUnit = 2000 * time.Millisecond
	errorBackoffUnit     = 1000 * time.Millisecond
)

// client is the shared HTTP layer under all adapters: one rate limiter
// per provider, a bounded retry loop, and provider error-envelope
// detection on otherwise-successful responses.
type client struct {
	provider  string
	http      *http.Client
	limiter   *rate.Limiter
	rateUnit  time.Duration
	errorUnit time.Duration
}

func newClient(provider string, limit rate.Limit, burst int) *client {
	return &client{
		provider:  provider,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(limit, burst),
		rateUnit:  rateLimitBackoffUnit,
		errorUnit: errorBackoffUnit,
	}
}

// getJSON fetches url and decodes the body into a generic JSON value.
// Transient failures (network errors, 429, non-2xx, provider error
// envelopes) are retried with the adapter backoff policy; exhausting the
// budget returns the last error so the caller can record a per-symbol
// failure without aborting its batch.
func (c *client) getJSON(ctx context.Context, url string) (any, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "%s: rate limiter wait", c.provider)
		}

		payload, retryAfter, err := c.attempt(ctx, url)
		if err == nil {
			return payload, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, lastErr
		}
		if attempt == maxAttempts {
			break
		}

		zap.L().Warn("provider request failed, retrying",
			zap.String("provider", c.provider),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if !sleep(ctx, retryAfter*time.Duration(attempt)) {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

// attempt performs one request and classifies the failure, returning the
// backoff unit the retry loop should scale by the attempt number.
func (c *client) attempt(ctx context.Context, url string) (any, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "%s: build request", c.provider)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.errorUnit, eris.Wrapf(err, "%s: request", c.provider)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, c.rateUnit, eris.Errorf("%s: http 429", c.provider)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.errorUnit, eris.Errorf("%s: http %d", c.provider, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.errorUnit, eris.Wrapf(err, "%s: read body", c.provider)
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, c.errorUnit, eris.Wrapf(err, "%s: decode body", c.provider)
	}

	if msg := errorEnvelope(payload); msg != "" {
		return nil, c.errorUnit, eris.Errorf("%s: provider error: %s", c.provider, msg)
	}

	return payload, 0, nil
}

// errorEnvelope detects error payloads providers embed in 200 responses.
func errorEnvelope(payload any) string {
	obj, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"error", "Error Message", "Note", "Information"} {
		if v, ok := obj[key]; ok {
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

// sleep waits for d unless the context is cancelled first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// asObject coerces a decoded JSON value to an object.
func asObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	return obj, ok
}

// asList coerces a decoded JSON value to a list of objects.
func asList(v any) ([]map[string]any, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out, true
}
