// Package telemetry wires OpenTelemetry tracing for the service.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config controls whether spans are exported and how they render.
type Config struct {
	Enabled     bool `koanf:"enabled"`
	PrettyPrint bool `koanf:"pretty_print"`
}

// DefaultConfig enables pretty-printed stdout export.
func DefaultConfig() Config {
	return Config{Enabled: true, PrettyPrint: true}
}

// Init installs a global tracer provider exporting to stdout and
// returns its shutdown function. When tracing is disabled the returned
// shutdown is a no-op and the global provider is left untouched.
func Init(serviceName string, cfg Config, logger *slog.Logger) (func(context.Context) error, error) {
	return initWithWriter(serviceName, cfg, os.Stdout, logger)
}

func initWithWriter(serviceName string, cfg Config, w io.Writer, logger *slog.Logger) (func(context.Context) error, error) {
	if !cfg.Enabled {
		logger.Info("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing initialized",
		slog.String("service", serviceName),
		slog.Bool("pretty_print", cfg.PrettyPrint),
	)
	return tp.Shutdown, nil
}
