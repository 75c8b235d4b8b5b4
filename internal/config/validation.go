// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"net"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Validate checks cfg and reports every problem at once.
func Validate(cfg AppConfig) error {
	var v ValidationError

	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		v.add("logLevel: unknown level %q", cfg.LogLevel)
	}
	checkListen(&v, "server.listenAddr", cfg.Server.ListenAddr)
	checkListen(&v, "gateway.listenAddr", cfg.Gateway.ListenAddr)
	if cfg.Metrics.Enabled {
		checkListen(&v, "metrics.listenAddr", cfg.Metrics.ListenAddr)
	}
	if (cfg.Server.TLSCert == "") != (cfg.Server.TLSKey == "") {
		v.add("server: tlsCert and tlsKey must be set together")
	}

	for i, rw := range cfg.Gateway.Rewrites {
		if !strings.HasPrefix(rw.Source, "/") {
			v.add("gateway.rewrites[%d].source: must start with /", i)
		}
		if rw.Destination == "" {
			v.add("gateway.rewrites[%d].destination: required", i)
		} else if !strings.HasPrefix(rw.Destination, "/") {
			u, err := url.Parse(rw.Destination)
			if err != nil || u.Scheme == "" || u.Host == "" {
				v.add("gateway.rewrites[%d].destination: must be a path or an absolute URL", i)
			}
		}
	}

	if cfg.Gateway.BreakerThreshold < 0 {
		v.add("gateway.breakerThreshold: must be >= 0")
	}

	if cfg.Database.Path == "" {
		v.add("database.path: required")
	}
	if cfg.Database.MaxOpenConns < 1 {
		v.add("database.maxOpenConns: must be >= 1")
	}

	if len(cfg.Auth.SigningKey) < 16 {
		v.add("auth.signingKey: must be at least 16 characters")
	}
	if cfg.Auth.AccessTTL <= 0 || cfg.Auth.RefreshTTL <= 0 {
		v.add("auth: token lifetimes must be positive")
	}
	if cfg.Auth.RefreshTTL < cfg.Auth.AccessTTL {
		v.add("auth.refreshTTL: must not be shorter than accessTTL")
	}
	if cfg.Auth.MinPasswordLength < 1 {
		v.add("auth.minPasswordLength: must be >= 1")
	}
	switch cfg.Auth.Blacklist {
	case "sqlite":
	case "redis":
		if cfg.Auth.RedisAddr == "" {
			v.add("auth.redisAddr: required when blacklist is redis")
		}
	default:
		v.add("auth.blacklist: unknown backend %q (sqlite, redis)", cfg.Auth.Blacklist)
	}
	if _, err := url.Parse(cfg.Auth.FrontendURL); err != nil || cfg.Auth.FrontendURL == "" {
		v.add("auth.frontendURL: must be a URL")
	}

	switch cfg.Mail.Backend {
	case "console":
	case "smtp":
		if cfg.Mail.SMTPHost == "" {
			v.add("mail.smtpHost: required for smtp backend")
		}
	default:
		v.add("mail.backend: unknown backend %q (console, smtp)", cfg.Mail.Backend)
	}
	if !strings.Contains(cfg.Mail.From, "@") {
		v.add("mail.from: must be an email address")
	}

	if cfg.Media.Root == "" {
		v.add("media.root: required")
	}
	if cfg.API.PageSize < 1 || cfg.API.PageSize > 1000 {
		v.add("api.pageSize: must be between 1 and 1000")
	}
	if cfg.API.RateLimitRPS < 0 || cfg.API.RateLimitBurst < 0 {
		v.add("api: rate limits must not be negative")
	}

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ExporterType != "grpc" && cfg.Telemetry.ExporterType != "http" {
			v.add("telemetry.exporterType: must be grpc or http")
		}
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			v.add("telemetry.samplingRate: must be within [0,1]")
		}
	}

	if len(v.Problems) > 0 {
		return &v
	}
	return nil
}

func checkListen(v *ValidationError, field, addr string) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		v.add("%s: invalid listen address %q", field, addr)
	}
}
