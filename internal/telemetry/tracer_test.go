// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"context"
	"testing"

	"github.com/ManuGH/gestprep/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.False(t, p.Enabled())

	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.IsRecording())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderInvalidExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: true, ExporterType: "carrier-pigeon"})
	require.Error(t, err)
	assert.Equal(t, "unsupported exporter type: carrier-pigeon (supported: grpc, http)", err.Error())
}

func TestNewProviderExportsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	p, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "gestprep-test",
		SamplingRate: 1,
		exporter:     exp,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = p.Shutdown(context.Background())
		_, _ = NewProvider(context.Background(), Config{})
	})

	_, span := Tracer("test").Start(context.Background(), "validate BMM1")
	span.SetAttributes(MovementAttributes("BMM1", "ENTREE", 2)...)
	span.End()

	require.NoError(t, p.ForceFlush(context.Background()))
	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "validate BMM1", spans[0].Name)
}

func TestFromAppConfig(t *testing.T) {
	c := FromAppConfig(config.Defaults().Telemetry, "v1")
	assert.Equal(t, "gestprep", c.ServiceName)
	assert.Equal(t, "v1", c.ServiceVersion)
	assert.False(t, c.Enabled)
}
