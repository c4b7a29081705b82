package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit_Disabled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	shutdown, err := Init(context.Background(), false, "notes", zap.New(core))
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	entries := logs.FilterMessage("tracing configured").All()
	require.Len(t, entries, 1)
	assert.Equal(t, false, entries[0].ContextMap()["tracing_enabled"])
}

func TestInit_SDKDisabledEnv(t *testing.T) {
	t.Setenv("OTEL_SDK_DISABLED", "true")
	core, logs := observer.New(zap.InfoLevel)

	_, err := Init(context.Background(), true, "notes", zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, false, logs.All()[0].ContextMap()["tracing_enabled"])
}

func TestInit_ExporterErrorDegrades(t *testing.T) {
	t.Setenv("OTEL_SDK_DISABLED", "")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "carrier-pigeon")
	core, logs := observer.New(zap.InfoLevel)

	shutdown, err := Init(context.Background(), true, "notes", zap.New(core))
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	failed := logs.FilterMessage("tracing init failed").All()
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].ContextMap()["error"], "unsupported OTLP protocol: carrier-pigeon")
}

func TestInit_ExporterFactoryError(t *testing.T) {
	t.Setenv("OTEL_SDK_DISABLED", "")
	orig := newExporter
	t.Cleanup(func() { newExporter = orig })
	newExporter = func(context.Context, string) (*otlptrace.Exporter, error) {
		return nil, errors.New("dial failed")
	}

	core, logs := observer.New(zap.InfoLevel)
	_, err := Init(context.Background(), true, "notes", zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("tracing init failed").Len())
}

func TestSampler(t *testing.T) {
	tests := []struct {
		kind, arg string
		want      string
	}{
		{"always_on", "", "AlwaysOnSampler"},
		{"always_off", "", "AlwaysOffSampler"},
		{"traceidratio", "0.5", "TraceIDRatioBased{0.5}"},
		{"traceidratio", "oops", "AlwaysOnSampler"},
		{"parentbased_always_off", "", "ParentBased{root:AlwaysOffSampler"},
		{"", "", "ParentBased{root:AlwaysOnSampler"},
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.arg, func(t *testing.T) {
			assert.Contains(t, sampler(tt.kind, tt.arg).Description(), tt.want)
		})
	}
}
