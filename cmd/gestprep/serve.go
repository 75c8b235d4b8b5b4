// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ManuGH/gestprep/internal/accounts"
	"github.com/ManuGH/gestprep/internal/api"
	"github.com/ManuGH/gestprep/internal/auth"
	"github.com/ManuGH/gestprep/internal/config"
	"github.com/ManuGH/gestprep/internal/daemon"
	"github.com/ManuGH/gestprep/internal/health"
	xglog "github.com/ManuGH/gestprep/internal/log"
	"github.com/ManuGH/gestprep/internal/mail"
	"github.com/ManuGH/gestprep/internal/media"
	"github.com/ManuGH/gestprep/internal/metrics"
	"github.com/ManuGH/gestprep/internal/persistence/sqlite"
	"github.com/ManuGH/gestprep/internal/store"
	xgtls "github.com/ManuGH/gestprep/internal/tls"
	"github.com/ManuGH/gestprep/internal/validation"
	"github.com/ManuGH/gestprep/internal/version"
)

const (
	idleTimeout       = 120 * time.Second
	tokenPurgePeriod  = time.Hour
	stockAlertsPeriod = 5 * time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend API",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, loader, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := daemon.WaitForShutdown()
		defer stop()
		return runServe(ctx, cfg, loader)
	},
}

func openStore(ctx context.Context, cfg config.AppConfig) (*store.Store, error) {
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return store.Open(ctx, dataPath(cfg, cfg.Database.Path), sqlite.Config{
		BusyTimeout:  cfg.Database.BusyTimeout,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
}

// tokenBlacklist returns the configured revocation backend and, for Redis,
// a health probe and closer.
func tokenBlacklist(ctx context.Context, cfg config.AuthConfig, st *store.Store, logger zerolog.Logger) (auth.Blacklist, *auth.RedisBlacklist, error) {
	if cfg.Blacklist != "redis" {
		return st, nil, nil
	}
	rb, err := auth.NewRedisBlacklist(ctx, auth.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return rb, rb, nil
}

// serverTLS returns the certificate pair of the API listener, generating a
// self-signed one when enabled.
func serverTLS(cfg config.ServerConfig, logger zerolog.Logger) (certFile, keyFile string, err error) {
	if !cfg.TLSAutoGenerate {
		return cfg.TLSCert, cfg.TLSKey, nil
	}
	return xgtls.EnsureCertificates(xgtls.Config{CertPath: cfg.TLSCert, KeyPath: cfg.TLSKey, Logger: logger})
}

func runServe(ctx context.Context, cfg config.AppConfig, loader *config.Loader) error {
	logger := xglog.WithComponent("daemon")
	logger.Info().Str("event", "startup").Str("version", version.Version).Str("addr", cfg.Server.ListenAddr).Msg("starting gestprep backend")

	mediaRoot := dataPath(cfg, cfg.Media.Root)
	if err := validation.BackendChecks(cfg, filepath.Dir(dataPath(cfg, cfg.Database.Path)), mediaRoot); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	bl, rb, err := tokenBlacklist(ctx, cfg.Auth, st, xglog.WithComponent("auth"))
	if err != nil {
		_ = st.Close()
		return err
	}

	mailer, err := mail.New(cfg.Mail, xglog.WithComponent("mail"))
	if err != nil {
		_ = st.Close()
		return err
	}
	svc := accounts.NewService(st,
		auth.NewIssuer(cfg.Auth.SigningKey, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL, bl),
		auth.NewResetTokens(cfg.Auth.SigningKey, cfg.Auth.PasswordResetTimeout),
		mailer,
		accounts.Options{
			ManagerDepartment:  cfg.Auth.ManagerDepartment,
			FrontendURL:        cfg.Auth.FrontendURL,
			MinPasswordLength:  cfg.Auth.MinPasswordLength,
			LoginRatePerMinute: cfg.Auth.LoginRatePerMinute,
			MailFrom:           cfg.Mail.From,
		})

	storage, err := media.NewStorage(mediaRoot)
	if err != nil {
		_ = st.Close()
		return err
	}

	hm := health.NewManager(version.Version)
	hm.RegisterChecker(health.NewPingChecker("database", st.Ping))
	hm.RegisterChecker(health.NewDirChecker("media", mediaRoot))
	if rb != nil {
		hm.RegisterChecker(health.NewPingChecker("redis", rb.Ping))
	}

	srv := api.New(cfg, api.Deps{Store: st, Accounts: svc, Media: storage, Health: hm})

	certFile, keyFile, err := serverTLS(cfg.Server, logger)
	if err != nil {
		_ = st.Close()
		return err
	}
	if certFile == "" {
		logger.Warn().Str("event", "tls.disabled").Msg("no TLS certificate configured, serving plain HTTP")
	}

	metricsAddr, metricsHandler := daemon.MetricsListener(cfg.Metrics)
	mgr, err := daemon.NewManager(daemon.Timeouts{
		Read:     cfg.Server.ReadTimeout,
		Write:    cfg.Server.WriteTimeout,
		Idle:     idleTimeout,
		Shutdown: cfg.Server.ShutdownTimeout,
	}, daemon.Deps{
		Logger: logger,
		Listeners: []daemon.Listener{{
			Name:     "api",
			Addr:     cfg.Server.ListenAddr,
			Handler:  srv.Handler(),
			CertFile: certFile,
			KeyFile:  keyFile,
		}},
		MetricsAddr:    metricsAddr,
		MetricsHandler: metricsHandler,
	})
	if err != nil {
		_ = st.Close()
		return err
	}
	mgr.RegisterShutdownHook("store", func(context.Context) error { return st.Close() })
	if rb != nil {
		mgr.RegisterShutdownHook("redis", func(context.Context) error { return rb.Close() })
	}
	if _, err := daemon.StartTelemetry(ctx, mgr, cfg.Telemetry, version.Version); err != nil {
		_ = st.Close()
		return err
	}

	app := daemon.NewApp(logger, mgr, config.NewHolder(cfg, loader))
	app.OnReload("log", reloadLogLevel)
	app.OnReload("api", func(_ context.Context, c config.AppConfig) error {
		srv.UpdateConfig(c)
		return nil
	})
	app.Every("token-purge", tokenPurgePeriod, func(ctx context.Context) error {
		n, err := st.PurgeExpiredTokens(ctx)
		if err == nil && n > 0 {
			logger.Info().Str("event", "auth.tokens_purged").Int64("count", n).Msg("purged expired revoked tokens")
		}
		return err
	})
	app.Every("stock-alerts", stockAlertsPeriod, func(ctx context.Context) error {
		page, err := st.Catalog().Alerts(ctx, store.ListParams{PageSize: 1})
		if err != nil {
			return err
		}
		metrics.RecordStockAlerts(page.Count)
		return nil
	})
	return app.Run(ctx)
}

func reloadLogLevel(_ context.Context, c config.AppConfig) error {
	xglog.Configure(xglog.Config{Level: c.LogLevel, Version: version.Version})
	return nil
}
