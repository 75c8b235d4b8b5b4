// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/gestprep/internal/log"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
	ephemeralKey    bool
}

// NewLoader creates a new configuration loader. An empty path means ENV-only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, if any.
func (l *Loader) Path() string { return l.configPath }

// Load loads configuration with precedence: ENV > File > Defaults.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	cfg.Version = l.version

	l.ephemeralKey = cfg.Auth.SigningKey == ""
	if l.ephemeralKey {
		key, err := randomKey()
		if err != nil {
			return cfg, fmt.Errorf("generate signing key: %w", err)
		}
		cfg.Auth.SigningKey = key
		logger := log.WithComponent("config")
		logger.Warn().
			Str("event", "config.signing_key_generated").
			Msg("no signing key configured, generated an ephemeral one (tokens will not survive restart)")
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes YAML on top of cfg with strict parsing.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) key(name string) string {
	k := EnvPrefix + name
	l.ConsumedEnvKeys[k] = struct{}{}
	return k
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.LogLevel = ParseString(l.key("LOG_LEVEL"), cfg.LogLevel)
	cfg.DataDir = ParseString(l.key("DATA_DIR"), cfg.DataDir)

	cfg.Server.ListenAddr = ParseString(l.key("SERVER_LISTEN"), cfg.Server.ListenAddr)
	cfg.Server.TLSCert = ParseString(l.key("TLS_CERT"), cfg.Server.TLSCert)
	cfg.Server.TLSKey = ParseString(l.key("TLS_KEY"), cfg.Server.TLSKey)
	cfg.Server.TLSAutoGenerate = ParseBool(l.key("TLS_AUTOGENERATE"), cfg.Server.TLSAutoGenerate)
	cfg.Server.ShutdownTimeout = ParseDuration(l.key("SHUTDOWN_TIMEOUT"), cfg.Server.ShutdownTimeout)

	cfg.Gateway.ListenAddr = ParseString(l.key("GATEWAY_LISTEN"), cfg.Gateway.ListenAddr)
	cfg.Gateway.ReactStrictMode = ParseBool(l.key("REACT_STRICT_MODE"), cfg.Gateway.ReactStrictMode)
	cfg.Gateway.UpstreamCA = ParseString(l.key("UPSTREAM_CA"), cfg.Gateway.UpstreamCA)
	cfg.Gateway.InsecureSkipVerify = ParseBool(l.key("UPSTREAM_INSECURE"), cfg.Gateway.InsecureSkipVerify)
	cfg.Gateway.StaticDir = ParseString(l.key("STATIC_DIR"), cfg.Gateway.StaticDir)
	cfg.Gateway.UpstreamTimeout = ParseDuration(l.key("UPSTREAM_TIMEOUT"), cfg.Gateway.UpstreamTimeout)
	cfg.Gateway.BreakerThreshold = ParseInt(l.key("BREAKER_THRESHOLD"), cfg.Gateway.BreakerThreshold)
	cfg.Gateway.BreakerReset = ParseDuration(l.key("BREAKER_RESET"), cfg.Gateway.BreakerReset)

	cfg.Database.Path = ParseString(l.key("DB_PATH"), cfg.Database.Path)
	cfg.Database.BusyTimeout = ParseDuration(l.key("DB_BUSY_TIMEOUT"), cfg.Database.BusyTimeout)
	cfg.Database.MaxOpenConns = ParseInt(l.key("DB_MAX_OPEN_CONNS"), cfg.Database.MaxOpenConns)

	cfg.Auth.SigningKey = ParseString(l.key("SIGNING_KEY"), cfg.Auth.SigningKey)
	cfg.Auth.AccessTTL = ParseDuration(l.key("ACCESS_TTL"), cfg.Auth.AccessTTL)
	cfg.Auth.RefreshTTL = ParseDuration(l.key("REFRESH_TTL"), cfg.Auth.RefreshTTL)
	cfg.Auth.PasswordResetTimeout = ParseDuration(l.key("PASSWORD_RESET_TIMEOUT"), cfg.Auth.PasswordResetTimeout)
	cfg.Auth.FrontendURL = ParseString(l.key("FRONTEND_URL"), cfg.Auth.FrontendURL)
	cfg.Auth.Blacklist = ParseString(l.key("BLACKLIST"), cfg.Auth.Blacklist)
	cfg.Auth.RedisAddr = ParseString(l.key("REDIS_ADDR"), cfg.Auth.RedisAddr)
	cfg.Auth.RedisPassword = ParseString(l.key("REDIS_PASSWORD"), cfg.Auth.RedisPassword)
	cfg.Auth.LoginRatePerMinute = ParseInt(l.key("LOGIN_RATE_PER_MINUTE"), cfg.Auth.LoginRatePerMinute)

	cfg.Mail.Backend = ParseString(l.key("MAIL_BACKEND"), cfg.Mail.Backend)
	cfg.Mail.From = ParseString(l.key("MAIL_FROM"), cfg.Mail.From)
	cfg.Mail.SMTPHost = ParseString(l.key("SMTP_HOST"), cfg.Mail.SMTPHost)
	cfg.Mail.SMTPPort = ParseInt(l.key("SMTP_PORT"), cfg.Mail.SMTPPort)
	cfg.Mail.Username = ParseString(l.key("SMTP_USERNAME"), cfg.Mail.Username)
	cfg.Mail.Password = ParseString(l.key("SMTP_PASSWORD"), cfg.Mail.Password)

	cfg.Media.Root = ParseString(l.key("MEDIA_ROOT"), cfg.Media.Root)
	cfg.Media.MaxUploadSize = ParseInt64(l.key("MAX_UPLOAD_SIZE"), cfg.Media.MaxUploadSize)

	cfg.API.PageSize = ParseInt(l.key("PAGE_SIZE"), cfg.API.PageSize)
	cfg.API.AllowedOrigins = ParseList(l.key("ALLOWED_ORIGINS"), cfg.API.AllowedOrigins)
	cfg.API.RateLimitRPS = ParseInt(l.key("RATE_LIMIT_RPS"), cfg.API.RateLimitRPS)
	cfg.API.RateLimitBurst = ParseInt(l.key("RATE_LIMIT_BURST"), cfg.API.RateLimitBurst)

	cfg.Metrics.Enabled = ParseBool(l.key("METRICS_ENABLED"), cfg.Metrics.Enabled)
	cfg.Metrics.ListenAddr = ParseString(l.key("METRICS_LISTEN"), cfg.Metrics.ListenAddr)

	cfg.Telemetry.Enabled = ParseBool(l.key("TRACING_ENABLED"), cfg.Telemetry.Enabled)
	cfg.Telemetry.ExporterType = ParseString(l.key("OTLP_EXPORTER"), cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = ParseString(l.key("OTLP_ENDPOINT"), cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(l.key("TRACING_SAMPLING_RATE"), cfg.Telemetry.SamplingRate)
}

func randomKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
