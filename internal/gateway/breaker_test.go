// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/gestprep/internal/resilience"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestBreakerStopsCallingFailingUpstream(t *testing.T) {
	var calls atomic.Int32
	failing := roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("dial tcp: connection refused")
	})
	cfg := gatewayConfig("https://backend.invalid")
	cfg.BreakerThreshold = 2
	cfg.BreakerReset = time.Hour
	g, err := New(context.Background(), cfg, Options{Transport: failing})
	require.NoError(t, err)

	for range 4 {
		rec := get(t, g.Handler(), "/api/sites/")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	}
	assert.Equal(t, int32(2), calls.Load(), "open breaker short-circuits")

	rec := get(t, g.Handler(), "/api/sites/")
	assert.Contains(t, rec.Body.String(), resilience.ErrCircuitOpen.Error())
}

func TestBreakerIgnoresResponsesAndCancellations(t *testing.T) {
	var calls atomic.Int32
	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		if r.Context().Err() != nil {
			return nil, r.Context().Err()
		}
		rec := httptest.NewRecorder()
		rec.WriteHeader(http.StatusServiceUnavailable)
		return rec.Result(), nil
	})
	bt := newBreakerTransport(next, 1, time.Hour)

	for range 3 {
		resp, err := bt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://backend.example/api/", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		_ = resp.Body.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "https://backend.example/api/", nil).WithContext(ctx)
	_, err := bt.RoundTrip(req)
	require.ErrorIs(t, err, context.Canceled)

	resp, err := bt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://backend.example/api/", nil))
	require.NoError(t, err, "cancellation does not trip the breaker")
	_ = resp.Body.Close()
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, resilience.StateClosed, bt.breaker("backend.example").State())
}

func TestBreakerCancelledProbeKeepsState(t *testing.T) {
	failing := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if err := r.Context().Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("dial tcp: connection refused")
	})
	var mu sync.Mutex
	now := time.Unix(0, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	bt := newBreakerTransport(failing, 2, time.Minute, resilience.WithClock(clock))
	cb := bt.breaker("backend.example")
	newReq := func() *http.Request {
		return httptest.NewRequest(http.MethodGet, "https://backend.example/api/", nil)
	}

	for range 2 {
		_, err := bt.RoundTrip(newReq())
		require.Error(t, err)
	}
	require.Equal(t, resilience.StateOpen, cb.State())

	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bt.RoundTrip(newReq().WithContext(ctx))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, resilience.StateHalfOpen, cb.State(), "a cancelled probe does not close the breaker")

	_, err = bt.RoundTrip(newReq())
	require.Error(t, err)
	require.NotErrorIs(t, err, resilience.ErrCircuitOpen, "the next request is the probe")
	assert.Equal(t, resilience.StateOpen, cb.State())
}

func TestBreakerTransportClosesIdleConnections(t *testing.T) {
	inner := &closeCounter{}
	bt := newBreakerTransport(inner, 1, time.Minute)
	bt.CloseIdleConnections()
	assert.Equal(t, int32(1), inner.closed.Load())

	// Wrapped transports without the method are left alone.
	newBreakerTransport(roundTripFunc(nil), 1, time.Minute).CloseIdleConnections()
}

type closeCounter struct {
	closed atomic.Int32
}

func (c *closeCounter) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("unused")
}

func (c *closeCounter) CloseIdleConnections() { c.closed.Add(1) }
