// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/gestprep/internal/config"
	"github.com/ManuGH/gestprep/internal/daemon"
	"github.com/ManuGH/gestprep/internal/gateway"
	"github.com/ManuGH/gestprep/internal/health"
	xglog "github.com/ManuGH/gestprep/internal/log"
	"github.com/ManuGH/gestprep/internal/validation"
	"github.com/ManuGH/gestprep/internal/version"
)

const backendProbeTimeout = 5 * time.Second

var (
	backendHealthURL   string
	gatewayMetricsAddr string
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run the frontend gateway",
	Long: `Serves the frontend origin. Requests matching a rewrite source are
forwarded to the rewritten destination without changing the browser URL;
everything else is served from the static directory.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, loader, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := daemon.WaitForShutdown()
		defer stop()
		return runGateway(ctx, cfg, loader)
	},
}

func init() {
	gatewayCmd.Flags().StringVar(&backendHealthURL, "backend-health", "", "backend health URL checked by /readyz (default derived from server.listenAddr)")
	gatewayCmd.Flags().StringVar(&gatewayMetricsAddr, "metrics-addr", "", "metrics listen address, overrides metrics.listenAddr")
}

// defaultBackendHealth points at the local backend listener.
func defaultBackendHealth(cfg config.ServerConfig) string {
	host, port, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	scheme := "https"
	if cfg.TLSCert == "" && !cfg.TLSAutoGenerate {
		scheme = "http"
	}
	return scheme + "://" + net.JoinHostPort(host, port) + "/healthz"
}

func runGateway(ctx context.Context, cfg config.AppConfig, loader *config.Loader) error {
	logger := xglog.WithComponent("daemon")
	logger.Info().Str("event", "startup").Str("version", version.Version).Str("addr", cfg.Gateway.ListenAddr).Msg("starting gestprep gateway")

	if err := validation.GatewayChecks(cfg.Gateway); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = cfg.Telemetry.ServiceName
	}
	transport, err := gateway.UpstreamTransport(cfg.Gateway, tracing != "")
	if err != nil {
		return err
	}

	hm := health.NewManager(version.Version)
	probe := backendHealthURL
	if probe == "" {
		probe = defaultBackendHealth(cfg.Server)
	}
	if probe != "" {
		hm.RegisterChecker(health.NewHTTPChecker("backend", probe, &http.Client{Transport: transport, Timeout: backendProbeTimeout}))
	}

	gw, err := gateway.New(ctx, cfg.Gateway, gateway.Options{Transport: transport, Health: hm, Tracing: tracing})
	if err != nil {
		return err
	}

	if gatewayMetricsAddr != "" {
		cfg.Metrics.ListenAddr = gatewayMetricsAddr
	}
	metricsAddr, metricsHandler := daemon.MetricsListener(cfg.Metrics)
	mgr, err := daemon.NewManager(daemon.Timeouts{
		Read:     cfg.Server.ReadTimeout,
		Write:    max(cfg.Server.WriteTimeout, cfg.Gateway.UpstreamTimeout+5*time.Second),
		Idle:     idleTimeout,
		Shutdown: cfg.Server.ShutdownTimeout,
	}, daemon.Deps{
		Logger:         logger,
		Listeners:      []daemon.Listener{{Name: "gateway", Addr: cfg.Gateway.ListenAddr, Handler: gw.Handler()}},
		MetricsAddr:    metricsAddr,
		MetricsHandler: metricsHandler,
	})
	if err != nil {
		return err
	}
	if _, err := daemon.StartTelemetry(ctx, mgr, cfg.Telemetry, version.Version); err != nil {
		return err
	}

	app := daemon.NewApp(logger, mgr, config.NewHolder(cfg, loader))
	app.OnReload("log", reloadLogLevel)
	app.OnReload("gateway", func(ctx context.Context, c config.AppConfig) error {
		return gw.Reload(ctx, c.Gateway)
	})
	return app.Run(ctx)
}
