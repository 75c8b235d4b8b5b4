// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/gestprep/internal/config"
	"github.com/ManuGH/gestprep/internal/log"
)

// fakeManager blocks in Start until ctx is done.
type fakeManager struct {
	started  chan struct{}
	startErr error
	shutdown atomic.Int32
}

func newFakeManager() *fakeManager { return &fakeManager{started: make(chan struct{})} }

func (f *fakeManager) Start(ctx context.Context) error {
	close(f.started)
	if f.startErr != nil {
		return f.startErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeManager) Shutdown(context.Context) error {
	f.shutdown.Add(1)
	return nil
}

func (f *fakeManager) RegisterShutdownHook(string, ShutdownHook) {}

func TestApp_RequiresManager(t *testing.T) {
	require.ErrorIs(t, NewApp(log.WithComponent("test"), nil, nil).Run(context.Background()), ErrMissingManager)
}

func TestApp_AppliesReloadedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(pageSize string) {
		require.NoError(t, os.WriteFile(path, []byte("auth:\n  signingKey: 0123456789abcdef0123456789abcdef\napi:\n  pageSize: "+pageSize+"\n"), 0o600))
	}
	write("10")
	loader := config.NewLoader(path, "test")
	initial, err := loader.Load()
	require.NoError(t, err)
	holder := config.NewHolder(initial, loader)

	mgr := newFakeManager()
	app := NewApp(log.WithComponent("test"), mgr, holder)
	app.reloadSignal = nil

	applied := make(chan int, 4)
	app.OnReload("api", func(_ context.Context, cfg config.AppConfig) error {
		applied <- cfg.API.PageSize
		return nil
	})
	app.OnReload("broken", func(context.Context, config.AppConfig) error { return errors.New("rejected") })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	<-mgr.started

	write("25")
	require.NoError(t, holder.Reload(ctx))
	select {
	case got := <-applied:
		assert.Equal(t, 25, got)
	case <-time.After(2 * time.Second):
		t.Fatal("reload not applied")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestApp_RunsPeriodicTasks(t *testing.T) {
	mgr := newFakeManager()
	app := NewApp(log.WithComponent("test"), mgr, nil)

	var runs atomic.Int32
	app.Every("purge", 10*time.Millisecond, func(context.Context) error {
		if runs.Add(1) == 1 {
			return errors.New("first run fails")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond,
		"a failing run does not stop the task")
	cancel()
	require.NoError(t, <-done)
}

func TestApp_StartFailureShutsDown(t *testing.T) {
	mgr := newFakeManager()
	mgr.startErr = ErrServerStartFailed
	app := NewApp(log.WithComponent("test"), mgr, nil)

	require.ErrorIs(t, app.Run(context.Background()), ErrServerStartFailed)
	assert.Equal(t, int32(1), mgr.shutdown.Load())
}
