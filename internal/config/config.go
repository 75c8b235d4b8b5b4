// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads and validates gestprep configuration.
//
// Precedence is ENV > YAML file > defaults. The YAML file is parsed in strict
// mode: unknown keys are rejected.
package config

import "time"

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version  string `yaml:"-"`
	LogLevel string `yaml:"logLevel"`
	DataDir  string `yaml:"dataDir"`

	Server    ServerConfig    `yaml:"server"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Mail      MailConfig      `yaml:"mail"`
	Media     MediaConfig     `yaml:"media"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the backend HTTPS API.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listenAddr"`
	TLSCert         string        `yaml:"tlsCert"`
	TLSKey          string        `yaml:"tlsKey"`
	TLSAutoGenerate bool          `yaml:"tlsAutoGenerate"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RewriteConfig is one ordered (source, destination) rewrite pair.
type RewriteConfig struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
}

// GatewayConfig configures the frontend-facing rewrite gateway.
type GatewayConfig struct {
	ListenAddr         string          `yaml:"listenAddr"`
	ReactStrictMode    bool            `yaml:"reactStrictMode"`
	Rewrites           []RewriteConfig `yaml:"rewrites"`
	UpstreamCA         string          `yaml:"upstreamCA"`
	InsecureSkipVerify bool            `yaml:"insecureSkipVerify"`
	StaticDir          string          `yaml:"staticDir"`
	UpstreamTimeout    time.Duration   `yaml:"upstreamTimeout"`
	BreakerThreshold   int             `yaml:"breakerThreshold"` // 0 disables the upstream breaker
	BreakerReset       time.Duration   `yaml:"breakerReset"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path         string        `yaml:"path"`
	BusyTimeout  time.Duration `yaml:"busyTimeout"`
	MaxOpenConns int           `yaml:"maxOpenConns"`
}

// AuthConfig configures token issuance and account flows.
type AuthConfig struct {
	SigningKey           string        `yaml:"signingKey"`
	AccessTTL            time.Duration `yaml:"accessTTL"`
	RefreshTTL           time.Duration `yaml:"refreshTTL"`
	PasswordResetTimeout time.Duration `yaml:"passwordResetTimeout"`
	MinPasswordLength    int           `yaml:"minPasswordLength"`
	ManagerDepartment    string        `yaml:"managerDepartment"`
	FrontendURL          string        `yaml:"frontendURL"`
	Blacklist            string        `yaml:"blacklist"` // "sqlite" or "redis"
	RedisAddr            string        `yaml:"redisAddr"`
	RedisPassword        string        `yaml:"redisPassword"`
	RedisDB              int           `yaml:"redisDB"`
	LoginRatePerMinute   int           `yaml:"loginRatePerMinute"`
}

// MailConfig configures outgoing email.
type MailConfig struct {
	Backend  string `yaml:"backend"` // "console" or "smtp"
	From     string `yaml:"from"`
	SMTPHost string `yaml:"smtpHost"`
	SMTPPort int    `yaml:"smtpPort"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MediaConfig configures uploaded document storage.
type MediaConfig struct {
	Root          string `yaml:"root"`
	MaxUploadSize int64  `yaml:"maxUploadSize"`
}

// APIConfig configures cross-cutting API behavior.
type APIConfig struct {
	PageSize       int      `yaml:"pageSize"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	RateLimitRPS   int      `yaml:"rateLimitRPS"`
	RateLimitBurst int      `yaml:"rateLimitBurst"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listenAddr"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	Environment  string  `yaml:"environment"`
	ExporterType string  `yaml:"exporterType"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel: "info",
		DataDir:  "data",
		Server: ServerConfig{
			ListenAddr:      ":8000",
			TLSCert:         "certs/cert.pem",
			TLSKey:          "certs/key.pem",
			TLSAutoGenerate: true,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Gateway: GatewayConfig{
			ListenAddr:      ":3000",
			ReactStrictMode: true,
			Rewrites: []RewriteConfig{
				{Source: "/api/:path*", Destination: "https://127.0.0.1:8000/api/:path*"},
			},
			UpstreamCA:       "certs/cert.pem",
			UpstreamTimeout:  30 * time.Second,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:         "gestprep.db",
			BusyTimeout:  5 * time.Second,
			MaxOpenConns: 8,
		},
		Auth: AuthConfig{
			AccessTTL:            60 * time.Minute,
			RefreshTTL:           24 * time.Hour,
			PasswordResetTimeout: 72 * time.Hour,
			MinPasswordLength:    8,
			ManagerDepartment:    "IT",
			FrontendURL:          "http://localhost:3000",
			Blacklist:            "sqlite",
			RedisAddr:            "127.0.0.1:6379",
			LoginRatePerMinute:   10,
		},
		Mail: MailConfig{
			Backend:  "console",
			From:     "noreply@example.com",
			SMTPPort: 587,
		},
		Media: MediaConfig{
			Root:          "media",
			MaxUploadSize: 20 << 20,
		},
		API: APIConfig{
			PageSize:       10,
			AllowedOrigins: []string{"*"},
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9090",
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "gestprep",
			Environment:  "development",
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
