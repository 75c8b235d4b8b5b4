// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/gestprep/internal/config"
	"github.com/ManuGH/gestprep/internal/metrics"
)

// Reloader applies a freshly loaded configuration to a running component.
type Reloader func(ctx context.Context, cfg config.AppConfig) error

// Task is background work repeated every Interval until shutdown.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type namedReloader struct {
	name string
	fn   Reloader
}

// App owns the long-lived runtime lifecycle (watchers, reload wiring,
// periodic tasks) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	holder       *config.Holder
	reloaders    []namedReloader
	tasks        []Task
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator. holder may be nil.
func NewApp(logger zerolog.Logger, manager Manager, holder *config.Holder) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		holder:       holder,
		reloadSignal: syscall.SIGHUP,
	}
}

// OnReload registers fn to run on every successful configuration reload.
func (a *App) OnReload(name string, fn Reloader) {
	a.reloaders = append(a.reloaders, namedReloader{name: name, fn: fn})
}

// Every schedules a periodic task. A failing run is logged and retried on
// the next tick.
func (a *App) Every(name string, interval time.Duration, run func(ctx context.Context) error) {
	a.tasks = append(a.tasks, Task{Name: name, Interval: interval, Run: run})
}

// Run starts all owned background subsystems and blocks until ctx is
// cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.holder != nil {
		// The watcher is best-effort: startup does not fail without it.
		if err := a.holder.Watch(ctx); err != nil {
			a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
		}

		applyCh := make(chan config.AppConfig, 1)
		a.holder.Subscribe(applyCh)
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					metrics.IncConfigReload(a.apply(ctx, cfg))
				}
			}
		})

		if a.reloadSignal != nil {
			g.Go(func() error { return a.watchSignal(ctx) })
		}
	}

	for _, t := range a.tasks {
		g.Go(func() error {
			a.runTask(ctx, t)
			return nil
		})
	}

	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}

func (a *App) apply(ctx context.Context, cfg config.AppConfig) error {
	var errs []error
	for _, r := range a.reloaders {
		if err := r.fn(ctx, cfg); err != nil {
			a.logger.Error().Err(err).Str("event", "config.apply_failed").Str("target", r.name).Msg("failed to apply reloaded config")
			errs = append(errs, fmt.Errorf("%s: %w", r.name, err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) watchSignal(ctx context.Context) error {
	hupChan := make(chan os.Signal, 1)
	signal.Notify(hupChan, a.reloadSignal)
	defer signal.Stop(hupChan)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hupChan:
			a.logger.Info().
				Str("event", "config.reload_signal").
				Str("signal", a.reloadSignal.String()).
				Msg("received reload signal, reloading config")
			if err := a.holder.Reload(ctx); err != nil {
				metrics.IncConfigReload(err)
			}
		}
	}
}

func (a *App) runTask(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Run(ctx); err != nil && ctx.Err() == nil {
				a.logger.Warn().Err(err).Str("event", "task.failed").Str("task", t.Name).Msg("periodic task failed")
			}
		}
	}
}

// WaitForShutdown returns a context cancelled on interrupt or termination.
func WaitForShutdown() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
