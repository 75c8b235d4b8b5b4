// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package gateway serves the frontend origin. Requests matching a rewrite
// rule are forwarded to the rule's destination without changing the URL the
// client sees; everything else is served from the static directory.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/gestprep/internal/api/middleware"
	"github.com/ManuGH/gestprep/internal/config"
	"github.com/ManuGH/gestprep/internal/frontconfig"
	"github.com/ManuGH/gestprep/internal/fsutil"
	"github.com/ManuGH/gestprep/internal/health"
	xglog "github.com/ManuGH/gestprep/internal/log"
	"github.com/ManuGH/gestprep/internal/metrics"
	"github.com/ManuGH/gestprep/internal/platform/httpx"
	"github.com/ManuGH/gestprep/internal/rewrite"
	"github.com/ManuGH/gestprep/internal/telemetry"
	gtls "github.com/ManuGH/gestprep/internal/tls"
)

// Request outcomes reported to metrics.
const (
	outcomeProxied       = "proxied"
	outcomeUpstreamError = "upstream_error"
	outcomeStatic        = "static"
	outcomeNotFound      = "not_found"
)

// Options are the collaborators of a Gateway.
type Options struct {
	// Transport reaches external destinations. Nil builds one from the
	// gateway TLS settings.
	Transport http.RoundTripper
	Health    *health.Manager
	Tracing   string // service name; empty disables tracing
}

// Gateway forwards rewritten requests. The active build is swapped
// atomically on reload; in-flight requests keep the build they started with.
type Gateway struct {
	active atomic.Pointer[activeBuild]

	proxy   *httputil.ReverseProxy
	health  *health.Manager
	tracing string
	logger  zerolog.Logger
}

// activeBuild pairs a rewrite table with the static directory it was
// loaded with so both change in one swap.
type activeBuild struct {
	build     *frontconfig.Build
	staticDir string
}

// New evaluates the frontend configuration of cfg once and returns a
// gateway serving its rewrite table.
func New(ctx context.Context, cfg config.GatewayConfig, opts Options) (*Gateway, error) {
	transport := opts.Transport
	if transport == nil {
		var err error
		if transport, err = UpstreamTransport(cfg, opts.Tracing != ""); err != nil {
			return nil, err
		}
	}
	if cfg.BreakerThreshold > 0 {
		transport = newBreakerTransport(transport, cfg.BreakerThreshold, cfg.BreakerReset)
	}
	hm := opts.Health
	if hm == nil {
		hm = health.NewManager("")
	}
	g := &Gateway{
		health:  hm,
		tracing: opts.Tracing,
		logger:  xglog.WithComponent("gateway"),
	}
	g.proxy = &httputil.ReverseProxy{
		Rewrite:      g.rewriteRequest,
		Transport:    transport,
		ErrorHandler: g.upstreamError,
		// Flush immediately so streamed and event-stream responses pass through.
		FlushInterval: -1,
	}
	if err := g.Reload(ctx, cfg); err != nil {
		return nil, err
	}
	return g, nil
}

// UpstreamTransport builds the TLS transport trusting cfg.UpstreamCA, or
// skipping verification when cfg.InsecureSkipVerify is set.
func UpstreamTransport(cfg config.GatewayConfig, traced bool) (http.RoundTripper, error) {
	opts := httpx.UpstreamOptions{
		InsecureSkipVerify:    cfg.InsecureSkipVerify,
		ResponseHeaderTimeout: cfg.UpstreamTimeout,
		Traced:                traced,
	}
	if !cfg.InsecureSkipVerify && cfg.UpstreamCA != "" {
		pool, err := gtls.LoadCertPool(cfg.UpstreamCA)
		if err != nil {
			return nil, fmt.Errorf("gateway: upstream CA: %w", err)
		}
		opts.RootCAs = pool
	}
	return httpx.NewUpstreamTransport(opts), nil
}

// Reload builds a new table from cfg and swaps it in. On error the previous
// table stays active.
func (g *Gateway) Reload(ctx context.Context, cfg config.GatewayConfig) error {
	return g.Apply(ctx, frontconfig.FromGateway(cfg), cfg.StaticDir)
}

// Apply evaluates fc once and makes it the active build.
func (g *Gateway) Apply(ctx context.Context, fc frontconfig.Config, staticDir string) error {
	b, err := fc.Build(ctx)
	if err != nil {
		return err
	}
	prev := g.active.Swap(&activeBuild{build: b, staticDir: staticDir})
	metrics.RecordGatewayRules(b.Table.Len())

	ev := g.logger.Info().
		Str(xglog.FieldEvent, "gateway.table_built").
		Int("rules", b.Table.Len()).
		Bool("react_strict_mode", b.ReactStrictMode)
	if prev != nil {
		ev = ev.Int("previous_rules", prev.build.Table.Len())
	}
	ev.Msg("rewrite table active")
	return nil
}

// Current returns the active build.
func (g *Gateway) Current() *frontconfig.Build { return g.active.Load().build }

// StaticDir returns the static directory of the active build.
func (g *Gateway) StaticDir() string { return g.active.Load().staticDir }

// Handler returns the gateway HTTP handler.
func (g *Gateway) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: g.tracing,
		EnableLogging:  true,
	})
	r.Get("/_gateway/config", g.handleConfig)
	r.Get("/healthz", g.health.ServeHealth)
	r.Get("/readyz", g.health.ServeReady)
	r.Handle("/*", http.HandlerFunc(g.serve))
	return r
}

func (g *Gateway) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.Current().Snapshot())
}

type matchKey struct{}

// proxyCall carries the resolved match into the reverse proxy callbacks.
type proxyCall struct {
	match  *rewrite.Match
	failed bool
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request) {
	active := g.active.Load()
	m, ok := active.build.Table.Resolve(r.URL.EscapedPath(), r.URL.RawQuery)
	if !ok {
		g.serveStatic(w, r, active.staticDir, -1, r.URL.Path)
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(telemetry.RewriteAttributes(m.Index, m.URL.String())...)

	if !m.External() {
		// Same-origin destinations are served locally under the rewritten path.
		g.serveStatic(w, r, active.staticDir, m.Index, m.URL.Path)
		return
	}

	call := &proxyCall{match: m}
	start := time.Now()
	g.proxy.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), matchKey{}, call)))
	metrics.ObserveUpstream(m.Index, time.Since(start).Seconds())
	if call.failed {
		metrics.IncGatewayRequest(m.Index, outcomeUpstreamError)
		return
	}
	metrics.IncGatewayRequest(m.Index, outcomeProxied)
}

func (g *Gateway) rewriteRequest(pr *httputil.ProxyRequest) {
	call, _ := pr.In.Context().Value(matchKey{}).(*proxyCall)
	target := *call.match.URL
	pr.Out.URL = &target
	// An empty Host makes the outgoing Host header follow the destination.
	pr.Out.Host = ""
	pr.SetXForwarded()

	logger := xglog.FromContext(pr.In.Context())
	logger.Debug().
		Str(xglog.FieldEvent, "gateway.forward").
		Int("rule", call.match.Index).
		Str(xglog.FieldDestination, redact(&target)).
		Msg("forwarding request")
}

func (g *Gateway) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	call, _ := r.Context().Value(matchKey{}).(*proxyCall)
	if call != nil {
		call.failed = true
	}
	if errors.Is(err, context.Canceled) {
		// Client went away; nobody is left to read a body.
		return
	}
	logger := xglog.FromContext(r.Context())
	ev := logger.Warn().Err(err).Str(xglog.FieldEvent, "gateway.upstream_error")
	if call != nil {
		ev = ev.Str(xglog.FieldUpstream, call.match.URL.Host)
	}
	ev.Msg("upstream request failed")
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": "bad_gateway", "detail": err.Error()})
}

// serveStatic serves urlPath from dir, or answers 404.
func (g *Gateway) serveStatic(w http.ResponseWriter, r *http.Request, dir string, rule int, urlPath string) {
	if dir != "" {
		if full, ok := staticFile(dir, urlPath); ok {
			metrics.IncGatewayRequest(rule, outcomeStatic)
			http.ServeFile(w, r, full)
			return
		}
	}
	metrics.IncGatewayRequest(rule, outcomeNotFound)
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
}

// staticFile maps urlPath into dir. Directories resolve to their index.html.
func staticFile(dir, urlPath string) (string, bool) {
	rel := strings.TrimPrefix(urlPath, "/")
	full, err := fsutil.ConfineRelPath(dir, rel)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(full)
	if err == nil && info.IsDir() {
		full, err = fsutil.ConfineRelPath(dir, path.Join(rel, "index.html"))
		if err != nil {
			return "", false
		}
		info, err = os.Stat(full)
	}
	if err != nil || info.IsDir() {
		return "", false
	}
	return full, true
}

// redact drops the query of u for logging.
func redact(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	return c.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
