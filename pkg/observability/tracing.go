// Package observability provides OpenTelemetry tracing for gridfeed runs
package observability

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/gridfeed/pkg/config"
)

const instrumentationName = "github.com/ajitpratap0/gridfeed"

// Span names
const (
	SpanRun          = "gridfeed.run"
	SpanAuthenticate = "gridfeed.authenticate"
	SpanPage         = "gridfeed.page"
)

// ShutdownFunc flushes and stops the tracer provider
type ShutdownFunc func(ctx context.Context) error

// InitTracing installs a global tracer provider exporting spans as JSON to
// cfg.Output ("stderr" by default, or a file path). When tracing is disabled
// the global no-op provider stays in place. Events own stdout, so spans are
// never written there.
func InitTracing(cfg config.TracingConfig, serviceVersion string) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	w, closeOutput, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		closeOutput()
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", "gridfeed"),
		attribute.String("service.version", serviceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SamplingRate))),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		defer closeOutput()
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown tracer: %w", err)
		}
		return nil
	}, nil
}

// sampler maps a rate to a sampler; unset means sample everything
func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0 || rate >= 1:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

func openOutput(output string) (io.Writer, func(), error) {
	switch output {
	case "", "stderr":
		return os.Stderr, func() {}, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open trace output: %w", err)
		}
		return f, func() { f.Close() }, nil
	}
}

// Tracer returns the gridfeed tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a span named name under ctx
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InputAttr labels a span with the input name
func InputAttr(input string) attribute.KeyValue {
	return attribute.String("gridfeed.input", input)
}

// PageAttr labels a span with the page number
func PageAttr(n int) attribute.KeyValue {
	return attribute.Int("gridfeed.page", n)
}
