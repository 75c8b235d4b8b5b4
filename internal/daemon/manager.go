// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Listener is one HTTP server owned by the manager.
type Listener struct {
	Name    string
	Addr    string
	Handler http.Handler
	// CertFile and KeyFile enable HTTPS when both are set.
	CertFile string
	KeyFile  string
}

func (l Listener) tls() bool { return l.CertFile != "" && l.KeyFile != "" }

// Deps contains what the Manager serves.
type Deps struct {
	Logger    zerolog.Logger
	Listeners []Listener
	// MetricsAddr serves MetricsHandler on a separate port when both are set.
	MetricsAddr    string
	MetricsHandler http.Handler
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if len(d.Listeners) == 0 {
		return ErrNoListeners
	}
	for _, l := range d.Listeners {
		if l.Handler == nil {
			return fmt.Errorf("%w: %s", ErrMissingHandler, l.Name)
		}
	}
	return nil
}

// Timeouts bounds every server of the manager.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

// Manager manages the daemon lifecycle: starting servers, handling shutdown.
type Manager interface {
	// Start starts all configured servers and blocks until shutdown
	Start(ctx context.Context) error

	// Shutdown gracefully shuts down all servers
	Shutdown(ctx context.Context) error

	// RegisterShutdownHook registers a function to be called during shutdown
	RegisterShutdownHook(name string, hook ShutdownHook)
}

// Supervisor is the Manager serving a fixed set of listeners.
type Supervisor struct {
	deps     Deps
	timeouts Timeouts

	servers []*boundServer
	hooks   []namedHook
	ready   chan struct{}

	started  bool
	stopping bool
	mu       sync.Mutex

	logger zerolog.Logger
}

type boundServer struct {
	name string
	srv  *http.Server
	ln   net.Listener
	tls  Listener
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a Supervisor for deps.
func NewManager(timeouts Timeouts, deps Deps) (*Supervisor, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	if timeouts.Shutdown <= 0 {
		timeouts.Shutdown = 10 * time.Second
	}
	return &Supervisor{
		deps:     deps,
		timeouts: timeouts,
		ready:    make(chan struct{}),
		logger:   deps.Logger.With().Str("component", "manager").Logger(),
	}, nil
}

// Ready is closed once every listener is bound.
func (m *Supervisor) Ready() <-chan struct{} { return m.ready }

// Addr returns the bound address of the named listener, or "" before Ready.
func (m *Supervisor) Addr(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.servers {
		if s.name == name {
			return s.ln.Addr().String()
		}
	}
	return ""
}

// Start binds every listener, serves until ctx is done or a server fails,
// then shuts down.
func (m *Supervisor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	listeners := append([]Listener(nil), m.deps.Listeners...)
	if m.deps.MetricsAddr != "" && m.deps.MetricsHandler != nil {
		listeners = append(listeners, Listener{Name: "metrics", Addr: m.deps.MetricsAddr, Handler: m.deps.MetricsHandler})
	}

	errChan := make(chan error, len(listeners))
	for _, l := range listeners {
		if err := m.bind(l); err != nil {
			m.closeBound()
			return fmt.Errorf("%w: %s: %w", ErrServerStartFailed, l.Name, err)
		}
	}
	m.mu.Lock()
	servers := append([]*boundServer(nil), m.servers...)
	m.mu.Unlock()
	for _, s := range servers {
		go m.serve(s, errChan)
	}
	close(m.ready)

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Msg("Server error, initiating shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeouts.Shutdown)
		defer cancel()
		if shutdownErr := m.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("server error and shutdown failure: %w", errors.Join(err, shutdownErr))
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Msg("Shutdown signal received")
		return m.Shutdown(context.WithoutCancel(ctx))
	}
}

func (m *Supervisor) bind(l Listener) error {
	ln, err := net.Listen("tcp", l.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           l.Handler,
		ReadTimeout:       m.timeouts.Read,
		ReadHeaderTimeout: m.timeouts.Read / 2,
		WriteTimeout:      m.timeouts.Write,
		IdleTimeout:       m.timeouts.Idle,
		MaxHeaderBytes:    1 << 20,
	}
	m.mu.Lock()
	m.servers = append(m.servers, &boundServer{name: l.Name, srv: srv, ln: ln, tls: l})
	m.mu.Unlock()
	return nil
}

func (m *Supervisor) closeBound() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.servers {
		_ = s.ln.Close()
	}
	m.servers = nil
}

func (m *Supervisor) serve(s *boundServer, errChan chan<- error) {
	scheme := "HTTP"
	var err error
	if s.tls.tls() {
		scheme = "HTTPS"
		m.logger.Info().Str("server", s.name).Str("addr", s.ln.Addr().String()).Msg("server listening (HTTPS)")
		err = s.srv.ServeTLS(s.ln, s.tls.CertFile, s.tls.KeyFile)
	} else {
		m.logger.Info().Str("server", s.name).Str("addr", s.ln.Addr().String()).Msg("server listening (HTTP)")
		err = s.srv.Serve(s.ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Error().
			Err(err).
			Str("event", s.name+".server.failed").
			Msgf("%s server (%s) failed", s.name, scheme)
		errChan <- fmt.Errorf("%s server (%s): %w", s.name, scheme, err)
	}
}

// Shutdown stops the servers, then runs the hooks in LIFO order.
func (m *Supervisor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	servers := append([]*boundServer(nil), m.servers...)
	hooks := append([]namedHook(nil), m.hooks...)
	m.mu.Unlock()

	m.logger.Info().Msg("Shutting down daemon manager")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeouts.Shutdown)
	defer cancel()

	var errs []error
	for _, s := range servers {
		m.logger.Debug().Str("server", s.name).Msg("Shutting down server")
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("%s server shutdown: %w", s.name, err))
		}
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(shutdownCtx); err != nil {
			m.logger.Error().Err(err).Str("hook", h.name).Dur("duration", time.Since(start)).Msg("Shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().Str("hook", h.name).Dur("duration", time.Since(start)).Msg("Shutdown hook completed")
	}

	if len(errs) > 0 {
		m.logger.Error().Int("error_count", len(errs)).Msg("Shutdown completed with errors")
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Msg("Daemon manager stopped cleanly")
	return nil
}

// RegisterShutdownHook registers a cleanup function to be called during shutdown.
func (m *Supervisor) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
	m.logger.Debug().Str("hook", name).Msg("Registered shutdown hook")
}
