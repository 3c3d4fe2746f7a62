package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"laundry-status-exporter/config"
)

// Setup installs a global tracer provider exporting over OTLP/HTTP. With no
// endpoint configured it leaves the no-op provider in place.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	if cfg.HTTPEndpoint == "" {
		slog.Debug("no otlp endpoint configured, tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*3)
	defer cancel()

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpointURL(cfg.HTTPEndpoint),
		otlptracehttp.WithHeaders(cfg.Headers),
	)
	if err != nil {
		return nil, err
	}
	slog.Info(
		"tracer export initialized",
		"endpoint", cfg.HTTPEndpoint,
		"headers", len(cfg.Headers) > 0,
	)

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(r),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
