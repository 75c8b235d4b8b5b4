// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/gestprep/internal/resilience"
)

// breakerTransport keeps one circuit breaker per upstream host. Transport
// errors count as failures; any HTTP response, 5xx included, is a success.
// Requests cancelled by the client are not counted.
type breakerTransport struct {
	next      http.RoundTripper
	threshold int
	reset     time.Duration

	opts      []resilience.Option

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

func newBreakerTransport(next http.RoundTripper, threshold int, reset time.Duration, opts ...resilience.Option) *breakerTransport {
	return &breakerTransport{
		next:      next,
		threshold: threshold,
		reset:     reset,
		opts:      opts,
		breakers:  make(map[string]*resilience.CircuitBreaker),
	}
}

func (t *breakerTransport) breaker(host string) *resilience.CircuitBreaker {
	t.mu.Lock()
	defer t.mu.Unlock()
	cb, ok := t.breakers[host]
	if !ok {
		cb = resilience.NewCircuitBreaker(host, t.threshold, t.reset, t.opts...)
		t.breakers[host] = cb
	}
	return cb
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var (
		resp  *http.Response
		rtErr error
	)
	err := t.breaker(req.URL.Host).Execute(func() error {
		resp, rtErr = t.next.RoundTrip(req)
		if rtErr != nil && req.Context().Err() != nil {
			return resilience.Ignore(rtErr)
		}
		return rtErr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, err
	}
	return resp, rtErr
}

// CloseIdleConnections drains the pooled connections of the wrapped transport.
func (t *breakerTransport) CloseIdleConnections() {
	if c, ok := t.next.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
