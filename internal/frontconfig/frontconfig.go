// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package frontconfig holds the frontend's declarative configuration record:
// the strict-mode flag and the producer of the ordered rewrite table.
package frontconfig

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/gestprep/internal/config"
	"github.com/ManuGH/gestprep/internal/rewrite"
)

// DefaultBackend is the origin the stock rewrite rule forwards to.
const DefaultBackend = "https://127.0.0.1:8000"

// ErrNoProducer is returned when Build is called on a Config without a rewrite producer.
var ErrNoProducer = errors.New("frontconfig: rewrites producer is nil")

// RewritesFunc produces the ordered rewrite rules. It may be asynchronous
// and is evaluated once per Build.
type RewritesFunc func(ctx context.Context) ([]rewrite.Rule, error)

// Config is the frontend configuration record.
type Config struct {
	ReactStrictMode bool
	Rewrites        RewritesFunc
}

// Static returns a producer yielding a fixed rule list.
func Static(rules ...rewrite.Rule) RewritesFunc {
	cp := append([]rewrite.Rule(nil), rules...)
	return func(context.Context) ([]rewrite.Rule, error) {
		return append([]rewrite.Rule(nil), cp...), nil
	}
}

// Default returns strict mode on and the single /api proxy rule.
func Default() Config {
	return Config{
		ReactStrictMode: true,
		Rewrites: Static(rewrite.Rule{
			Source:      "/api/:path*",
			Destination: DefaultBackend + "/api/:path*",
		}),
	}
}

// FromGateway builds the record from gateway configuration.
func FromGateway(g config.GatewayConfig) Config {
	rules := make([]rewrite.Rule, 0, len(g.Rewrites))
	for _, rw := range g.Rewrites {
		rules = append(rules, rewrite.Rule{Source: rw.Source, Destination: rw.Destination})
	}
	return Config{ReactStrictMode: g.ReactStrictMode, Rewrites: Static(rules...)}
}

// Build is the frozen result of evaluating a Config.
type Build struct {
	ReactStrictMode bool
	Table           *rewrite.Table
	BuiltAt         time.Time
}

// Build evaluates the rewrite producer once and compiles its rules.
func (c Config) Build(ctx context.Context) (*Build, error) {
	if c.Rewrites == nil {
		return nil, ErrNoProducer
	}
	rules, err := c.Rewrites(ctx)
	if err != nil {
		return nil, fmt.Errorf("frontconfig: produce rewrites: %w", err)
	}
	table, err := rewrite.Compile(rules)
	if err != nil {
		return nil, fmt.Errorf("frontconfig: %w", err)
	}
	return &Build{ReactStrictMode: c.ReactStrictMode, Table: table, BuiltAt: time.Now()}, nil
}

// Snapshot is the JSON view of a Build.
type Snapshot struct {
	ReactStrictMode bool           `json:"reactStrictMode"`
	Rewrites        []rewrite.Rule `json:"rewrites"`
	BuiltAt         time.Time      `json:"builtAt"`
}

// Snapshot renders the build for inspection endpoints.
func (b *Build) Snapshot() Snapshot {
	return Snapshot{ReactStrictMode: b.ReactStrictMode, Rewrites: b.Table.Rules(), BuiltAt: b.BuiltAt}
}
