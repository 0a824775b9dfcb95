package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// fastClient returns a test client with near-zero backoff units so retry
// paths run instantly.
func fastClient(provider string) *client {
	c := newClient(provider, rate.Inf, 1)
	c.rateUnit = time.Millisecond
	c.errorUnit = time.Millisecond
	return c
}

func TestGetJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"PERatio":"12.4"}`))
	}))
	defer srv.Close()

	c := fastClient("test")
	payload, err := c.getJSON(context.Background(), srv.URL)
	require.NoError(t, err)

	obj, ok := asObject(payload)
	require.True(t, ok)
	assert.Equal(t, "12.4", obj["PERatio"])
}

func TestGetJSON_RetriesOn429ThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := fastClient("test")
	_, err := c.getJSON(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetJSON_ExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := fastClient("test")
	_, err := c.getJSON(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 500")
	assert.Equal(t, int32(maxAttempts), calls.Load())
}

func TestGetJSON_ErrorEnvelopeIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Write([]byte(`{"Note":"API call frequency exceeded"}`))
			return
		}
		w.Write([]byte(`{"Symbol":"AAPL"}`))
	}))
	defer srv.Close()

	c := fastClient("test")
	payload, err := c.getJSON(context.Background(), srv.URL)
	require.NoError(t, err)

	obj, _ := asObject(payload)
	assert.Equal(t, "AAPL", obj["Symbol"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestErrorEnvelope_Variants(t *testing.T) {
	tests := []struct {
		payload any
		want    bool
	}{
		{map[string]any{"error": "bad key"}, true},
		{map[string]any{"Error Message": "invalid symbol"}, true},
		{map[string]any{"Note": "thank you"}, true},
		{map[string]any{"Symbol": "AAPL"}, false},
		{[]any{map[string]any{"error": "x"}}, false}, // lists are never envelopes
		{nil, false},
	}
	for _, tt := range tests {
		got := errorEnvelope(tt.payload)
		assert.Equal(t, tt.want, got != "", "payload %#v", tt.payload)
	}
}

func TestGetJSON_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := fastClient("test")
	c.errorUnit = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.getJSON(ctx, srv.URL)
	require.Error(t, err)
}
