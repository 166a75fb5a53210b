package observability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ajitpratap0/gridfeed/pkg/config"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prev := otel.GetTracerProvider()
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestSpans(t *testing.T) {
	rec := withRecorder(t)

	ctx, run := StartSpan(context.Background(), SpanRun, InputAttr("infoblox_gridmanager://corp"))
	_, page := StartSpan(ctx, SpanPage, PageAttr(1))
	EndSpan(page, nil)
	EndSpan(run, fmt.Errorf("upstream_request: page request failed"))

	ended := rec.Ended()
	require.Len(t, ended, 2)

	assert.Equal(t, SpanPage, ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())

	assert.Equal(t, SpanRun, ended[1].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Contains(t, ended[1].Status().Description, "page request failed")
	require.NotEmpty(t, ended[1].Events())
	assert.Equal(t, "exception", ended[1].Events()[0].Name)
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(config.TracingConfig{}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracingToFile(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	out := filepath.Join(t.TempDir(), "spans.json")
	shutdown, err := InitTracing(config.TracingConfig{Enabled: true, Output: out, SamplingRate: 1}, "test")
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), SpanAuthenticate)
	EndSpan(span, nil)
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), SpanAuthenticate)
}

func TestInitTracingBadOutput(t *testing.T) {
	_, err := InitTracing(config.TracingConfig{Enabled: true, Output: filepath.Join(t.TempDir(), "missing", "spans.json")}, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open trace output")
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(0).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.25).Description(), sampler(0.25).Description())
}
