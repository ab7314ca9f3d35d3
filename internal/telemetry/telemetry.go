// Package telemetry sets up opt-in OpenTelemetry tracing.
package telemetry

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const shutdownTimeout = 5 * time.Second

// Setup initialises tracing for the given service.
//
// Tracing is opt-in: when endpoint is empty, Setup returns a no-op shutdown
// function and no global provider is registered. The returned shutdown
// function flushes pending spans and should be deferred by the caller.
func Setup(ctx context.Context, service, endpoint string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return noop, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(service)))
	if err != nil {
		return noop, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}

// Run sets up tracing, runs fn and flushes pending spans afterwards.
func Run(ctx context.Context, service, endpoint string, fn func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return errors.New("service name is required")
	}
	if fn == nil {
		return errors.New("run function is required")
	}
	shutdown, err := Setup(ctx, service, endpoint)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Printf("%s otel shutdown: %v", service, err)
		}
	}()
	return fn(ctx)
}
