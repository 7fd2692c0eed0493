// Package telemetry carries the shared observability plumbing: Prometheus
// metric definitions, the /metrics server, and OpenTelemetry tracer setup
// used by the orchestrator, the API gateway, and the agents.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/openchat-labs/agent-orchestrator/internal/version"
)

// TracerOption adjusts tracer bootstrap.
type TracerOption func(*tracerConfig)

type tracerConfig struct {
	sampleRatio float64
}

// WithSampleRatio sets the fraction of root traces to sample. Values outside
// (0, 1) mean sample everything.
func WithSampleRatio(ratio float64) TracerOption {
	return func(tc *tracerConfig) { tc.sampleRatio = ratio }
}

// InitTracer configures the global TracerProvider and TextMapPropagator.
// endpoint is the OTLP HTTP endpoint (e.g. "localhost:4318"); when it is
// empty no exporter is registered and spans fall through the no-op provider.
// The propagator is installed either way so trace context still rides Kafka
// message headers between services.
//
// Call the returned shutdown function on exit to flush pending spans.
func InitTracer(ctx context.Context, serviceName, endpoint string, opts ...TracerOption) (shutdown func(), err error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if endpoint == "" {
		return func() {}, nil
	}

	tc := tracerConfig{sampleRatio: 1}
	for _, opt := range opts {
		opt(&tc)
	}

	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if tc.sampleRatio > 0 && tc.sampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.sampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(serviceResource(ctx, serviceName)),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}

func serviceResource(ctx context.Context, serviceName string) *resource.Resource {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version.Version),
		),
		resource.WithProcess(),
		resource.WithOS(),
	)
	if err != nil || res == nil {
		return resource.Default()
	}
	return res
}
