package config

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AntonStoeckl/library-lending-go/lending"
	"github.com/AntonStoeckl/library-lending-go/lending/oteladapters"
)

const shutdownTimeout = 5 * time.Second

// Providers holds the OpenTelemetry providers of an example program.
// Metrics are kept in a manual reader so the program can collect and print them itself.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	MetricReader   *sdkmetric.ManualReader
}

// NewProviders creates tracer and meter providers for the service and installs them globally.
func NewProviders(serviceName string) *Providers {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	reader := sdkmetric.NewManualReader()

	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Providers{
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
		MetricReader:   reader,
	}
}

// LibraryOptions returns the lending options plugging the OpenTelemetry adapters into a Library.
// Log records keep going to the given logger's handler.
func (p *Providers) LibraryOptions(serviceName string, logger *slog.Logger) []lending.Option {
	return []lending.Option{
		lending.WithContextualLogger(oteladapters.NewSlogBridgeLoggerWithHandler(logger.Handler())),
		lending.WithMetrics(oteladapters.NewMetricsCollector(p.MeterProvider.Meter(serviceName))),
		lending.WithTracing(oteladapters.NewTracingCollector(p.TracerProvider.Tracer(serviceName))),
	}
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	return errors.Join(
		p.TracerProvider.Shutdown(ctx),
		p.MeterProvider.Shutdown(ctx),
	)
}
