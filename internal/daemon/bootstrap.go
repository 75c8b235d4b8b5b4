// SPDX-License-Identifier: MIT

// Package daemon provides the process lifecycle shared by the backend and
// the gateway: listeners, shutdown hooks, config reload and periodic tasks.
package daemon

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/gestprep/internal/config"
	"github.com/ManuGH/gestprep/internal/telemetry"
)

// MetricsListener returns the Prometheus endpoint address and handler from
// cfg, or an empty address when metrics are disabled.
func MetricsListener(cfg config.MetricsConfig) (addr string, handler http.Handler) {
	if !cfg.Enabled || cfg.ListenAddr == "" {
		return "", nil
	}
	return cfg.ListenAddr, promhttp.Handler()
}

// StartTelemetry installs the tracer provider and registers its flush as a
// shutdown hook on m. A disabled configuration installs a noop provider.
func StartTelemetry(ctx context.Context, m Manager, cfg config.TelemetryConfig, version string) (*telemetry.Provider, error) {
	provider, err := telemetry.NewProvider(ctx, telemetry.FromAppConfig(cfg, version))
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}
	if provider.Enabled() {
		m.RegisterShutdownHook("telemetry", provider.Shutdown)
	}
	return provider, nil
}
