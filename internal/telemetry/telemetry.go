// Package telemetry wires OpenTelemetry tracing into the command bus.
package telemetry

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/dayuer/dockbus/internal/bus"
	"github.com/dayuer/dockbus/internal/command"
)

const instrumentation = "github.com/dayuer/dockbus"

// Config controls tracing export.
type Config struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"` // OTLP/HTTP URL, e.g. http://localhost:4318
	ServiceName string `json:"serviceName"`
}

// Setup installs a global tracer provider exporting over OTLP/HTTP.
//
// Tracing is opt-in: when disabled or no endpoint is set, Setup returns a
// no-op shutdown and leaves the global provider alone. The returned shutdown
// flushes pending spans and should be deferred by the caller.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled || cfg.Endpoint == "" {
		return noop, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "dockbus"
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return noop, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return noop, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.Printf("[Telemetry] Tracing to %s as %s", cfg.Endpoint, cfg.ServiceName)
	return tp.Shutdown, nil
}

// Traced wraps exec so every execution becomes a span named after the
// command kind. A nil provider means the global one.
func Traced(exec bus.Executor, tp trace.TracerProvider) bus.Executor {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(instrumentation)

	return func(cmd command.Command, ctx command.Context) (command.Result, error) {
		name := command.DebugName(cmd, "")
		_, span := tracer.Start(context.Background(), "dock."+name,
			trace.WithAttributes(attribute.String("command.kind", name)))
		defer span.End()

		if hf, err := command.IsHighFrequency(cmd.Kind()); err == nil {
			span.SetAttributes(attribute.Bool("command.high_frequency", hf))
		}

		res, err := exec(cmd, ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return res, err
		}
		span.SetAttributes(
			attribute.String("command.status", res.Status().String()),
			attribute.Bool("command.changed", res.Changed()),
		)
		if res.IsFailure() {
			span.RecordError(res.Cause())
			span.SetStatus(codes.Error, res.Cause().Error())
		}
		return res, nil
	}
}
