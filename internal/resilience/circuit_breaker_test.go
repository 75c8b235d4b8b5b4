// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var errUpstream = errors.New("connection refused")

func fail() error    { return errUpstream }
func succeed() error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker("test", 3, time.Minute, WithClock(clk.now))

	require.ErrorIs(t, cb.Execute(fail), errUpstream)
	require.ErrorIs(t, cb.Execute(fail), errUpstream)
	require.NoError(t, cb.Execute(succeed), "a success resets the failure count")
	for range 3 {
		require.ErrorIs(t, cb.Execute(fail), errUpstream)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker("test", 1, time.Minute, WithClock(clk.now))
	require.ErrorIs(t, cb.Execute(fail), errUpstream)
	require.Equal(t, StateOpen, cb.State())

	clk.advance(time.Minute)
	require.ErrorIs(t, cb.Execute(fail), errUpstream, "probe goes through")
	assert.Equal(t, StateOpen, cb.State(), "failed probe reopens")
	require.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen)

	clk.advance(time.Minute)
	release := make(chan struct{})
	probeDone := make(chan error, 1)
	probeStarted := make(chan struct{})
	go func() {
		probeDone <- cb.Execute(func() error {
			close(probeStarted)
			<-release
			return nil
		})
	}()
	<-probeStarted
	assert.Equal(t, StateHalfOpen, cb.State())
	require.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen, "one probe at a time")
	close(release)
	require.NoError(t, <-probeDone)
	assert.Equal(t, StateClosed, cb.State())
	require.NoError(t, cb.Execute(succeed))
}

func TestCircuitBreaker_IgnoredOutcome(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker("test", 2, time.Minute, WithClock(clk.now))
	ignored := func() error { return Ignore(context.Canceled) }

	require.ErrorIs(t, cb.Execute(fail), errUpstream)
	err := cb.Execute(ignored)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, context.Canceled, err, "the original error is returned")
	require.ErrorIs(t, cb.Execute(fail), errUpstream)
	assert.Equal(t, StateOpen, cb.State(), "an ignored call keeps the failure count")

	clk.advance(time.Minute)
	require.ErrorIs(t, cb.Execute(ignored), context.Canceled)
	assert.Equal(t, StateHalfOpen, cb.State(), "an ignored probe does not close")
	require.ErrorIs(t, cb.Execute(fail), errUpstream, "the probe slot is free again")
	assert.Equal(t, StateOpen, cb.State())

	assert.NoError(t, Ignore(nil))
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("test", 0, 0)
	assert.Equal(t, defaultThreshold, cb.threshold)
	assert.Equal(t, defaultResetTimeout, cb.resetTimeout)
	assert.Equal(t, StateClosed, cb.State())
}
