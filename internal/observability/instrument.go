package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// instrumentationName identifies log records bridged into OpenTelemetry.
const instrumentationName = "github.com/florianilch/dng-proxy"

// Log exporters selectable with Options.Exporter.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

// Options configures the observability layer.
type Options struct {
	Level slog.Level
	// Format of the human-readable log stream: text or json.
	Format string
	// Exporter additionally ships logs through OpenTelemetry. OTLP exporters
	// read their endpoint from the standard OTEL_EXPORTER_OTLP_* variables.
	Exporter string
	// Writer receives the human-readable stream and stdout exports. Defaults to os.Stdout.
	Writer io.Writer
}

// Instrument installs the default slog logger and the W3C trace context
// propagator. The returned function flushes and stops log export.
func Instrument(ctx context.Context, opts Options) (func(context.Context) error, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	stdoutHandler, err := newStdoutHandler(w, opts.Level, opts.Format)
	if err != nil {
		return nil, err
	}

	otel.SetTextMapPropagator(propagation.TraceContext{})

	exporter, err := newLogExporter(ctx, opts.Exporter, w)
	if err != nil {
		return nil, err
	}

	if exporter == nil {
		slog.SetDefault(slog.New(newContextHandler(stdoutHandler)))
		return func(context.Context) error { return nil }, nil
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severityFor(opts.Level))),
	)
	global.SetLoggerProvider(provider)

	otelHandler := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))

	slog.SetDefault(slog.New(newContextHandler(newFanoutHandler(stdoutHandler, otelHandler))))

	return func(ctx context.Context) error {
		if err := provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shut down log provider: %w", err)
		}
		return nil
	}, nil
}

// newStdoutHandler creates a handler for human-readable logs.
func newStdoutHandler(w io.Writer, level slog.Level, logFormat string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q (expected: json, text)", logFormat)
	}

	return handler, nil
}

// newLogExporter returns nil when log export is disabled.
func newLogExporter(ctx context.Context, name string, w io.Writer) (sdklog.Exporter, error) {
	var (
		exporter sdklog.Exporter
		err      error
	)

	switch strings.ToLower(name) {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		exporter, err = stdoutlog.New(stdoutlog.WithWriter(w))
	case ExporterOTLPHTTP:
		exporter, err = otlploghttp.New(ctx)
	case ExporterOTLPGRPC:
		exporter, err = otlploggrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported log exporter %q (expected: none, stdout, otlp-http, otlp-grpc)", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s log exporter: %w", name, err)
	}

	return exporter, nil
}

// severityFor maps a slog level to the minimum OpenTelemetry severity exported.
func severityFor(level slog.Level) minsev.Severity {
	switch {
	case level >= slog.LevelError:
		return minsev.SeverityError
	case level >= slog.LevelWarn:
		return minsev.SeverityWarn
	case level >= slog.LevelInfo:
		return minsev.SeverityInfo
	default:
		return minsev.SeverityDebug
	}
}
