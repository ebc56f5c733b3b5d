package runtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"

	"github.com/voxkit/voxd/internal/config"
)

// telemetry owns the tracer and meter providers plus the scrape
// handler the HTTP server mounts at /metrics (nil when the prometheus
// exporter is unavailable).
type telemetry struct {
	shutdown func(context.Context) error
	metrics  http.Handler
}

func setupTelemetry(cfg config.Config, logger *slog.Logger) (telemetry, error) {
	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.RuntimeName),
			semconv.ServiceVersion(Version),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return telemetry{}, err
	}

	traceExporter, err := newTraceExporter(ctx, cfg.Telemetry, logger)
	if err != nil {
		return telemetry{}, err
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	var metricsHandler http.Handler
	if promExporter, err := prometheus.New(); err != nil {
		logger.Warn("prometheus exporter unavailable, /metrics disabled", slog.String("error", err.Error()))
	} else {
		meterOpts = append(meterOpts, sdkmetric.WithReader(promExporter))
		metricsHandler = promhttp.Handler()
	}
	meterProvider := sdkmetric.NewMeterProvider(meterOpts...)
	otel.SetMeterProvider(meterProvider)

	shutdown := func(ctx context.Context) error {
		return errors.Join(meterProvider.Shutdown(ctx), tracerProvider.Shutdown(ctx))
	}
	return telemetry{shutdown: shutdown, metrics: metricsHandler}, nil
}

// newTraceExporter picks OTLP over gRPC when an endpoint is
// configured, stdout pretty-print otherwise.
func newTraceExporter(ctx context.Context, cfg config.TelemetryConfig, logger *slog.Logger) (sdktrace.SpanExporter, error) {
	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		logger.Info("exporting traces over otlp", slog.String("endpoint", endpoint))
		return otlptracegrpc.New(ctx, opts...)
	}
	logger.Info("exporting traces to stdout")
	return stdouttrace.New(stdouttrace.WithPrettyPrint())
}
