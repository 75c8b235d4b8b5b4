// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api implements the backend REST API: catalog, movements,
// documents and accounts.
package api

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ManuGH/gestprep/internal/accounts"
	"github.com/ManuGH/gestprep/internal/api/middleware"
	"github.com/ManuGH/gestprep/internal/audit"
	"github.com/ManuGH/gestprep/internal/config"
	"github.com/ManuGH/gestprep/internal/health"
	xglog "github.com/ManuGH/gestprep/internal/log"
	"github.com/ManuGH/gestprep/internal/media"
	"github.com/ManuGH/gestprep/internal/store"
)

// Deps are the collaborators of the API server.
type Deps struct {
	Store    *store.Store
	Accounts *accounts.Service
	Media    *media.Storage
	Health   *health.Manager
	Audit    *audit.Logger
}

// Server serves the backend API.
type Server struct {
	mu  sync.RWMutex
	cfg config.AppConfig

	store    *store.Store
	catalog  *store.Catalog
	accounts *accounts.Service
	media    *media.Storage
	health   *health.Manager
	audit    *audit.Logger
	logger   zerolog.Logger
}

// New creates a server. Health and Audit may be nil.
func New(cfg config.AppConfig, deps Deps) *Server {
	hm := deps.Health
	if hm == nil {
		hm = health.NewManager("")
	}
	al := deps.Audit
	if al == nil {
		al = audit.NewLogger()
	}
	return &Server{
		cfg:      cfg,
		store:    deps.Store,
		catalog:  deps.Store.Catalog(),
		accounts: deps.Accounts,
		media:    deps.Media,
		health:   hm,
		audit:    al,
		logger:   xglog.WithComponent("api"),
	}
}

// UpdateConfig swaps the reloadable settings (page size, upload limit).
func (s *Server) UpdateConfig(cfg config.AppConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *Server) config() config.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Handler builds the HTTP handler with the full middleware stack.
func (s *Server) Handler() http.Handler {
	cfg := s.config()
	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = cfg.Telemetry.ServiceName
	}
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            true,
		AllowedOrigins:        cfg.API.AllowedOrigins,
		CORSAllowCredentials:  true,
		EnableSecurityHeaders: true,
		CSP:                   middleware.DefaultCSP,
		EnableMetrics:         true,
		TracingService:        tracing,
		EnableLogging:         true,
		RateLimitRPS:          cfg.API.RateLimitRPS,
		RateLimitBurst:        cfg.API.RateLimitBurst,
	})

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Get("/media/*", s.handleMedia)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/", s.handleRoot)

		r.With(middleware.AuthRateLimit()).Post("/token/", s.handleObtainToken)
		r.Post("/token/refresh/", s.handleRefresh)
		r.With(requireUser).Get("/users/me/", s.handleUserMe)

		s.routeCatalog(r)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			s.routeMovements(r)
			s.routeDocuments(r)
		})

		r.Route("/auth", s.routeAccounts)
	})
	return r
}
