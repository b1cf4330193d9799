// Package observability wires log/slog into an OpenTelemetry log
// pipeline (spec.md §2 treats logging setup as an external collaborator;
// this package is the ambient-stack counterpart the teacher's go.mod
// depends on but its retrieved source doesn't include — authored fresh
// here, grounded in that dependency list).
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ExporterKind selects which OTLP transport (or none) backs the logger
// provider. Local development defaults to stdout; an operator setting
// the --log-exporter flag to otlp-grpc or otlp-http gets gRPC or HTTP
// export to a collector.
type ExporterKind string

const (
	ExporterStdout   ExporterKind = "stdout"
	ExporterOTLPGRPC ExporterKind = "otlp-grpc"
	ExporterOTLPHTTP ExporterKind = "otlp-http"
)

// Options configures NewLogger.
type Options struct {
	ServiceName string
	LogLevel    string // debug|info|warn|error, per spec.md §6 log_level
	Exporter    ExporterKind
	OTLPEndpoint string
}

// NewLogger builds a *slog.Logger backed by an OpenTelemetry logger
// provider with a minimum-severity filter, and returns a shutdown func
// that must be called (with a bounded context) during graceful exit so
// buffered log records flush.
func NewLogger(ctx context.Context, opts Options) (*slog.Logger, func(context.Context) error, error) {
	exporter, err := newExporter(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("build log exporter: %w", err)
	}

	severity := severityFromLevel(opts.LogLevel)
	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity)

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(processor),
	)

	handler := otelslog.NewHandler(opts.ServiceName, otelslog.WithLoggerProvider(provider))
	logger := slog.New(handler)

	shutdown := func(ctx context.Context) error {
		return provider.Shutdown(ctx)
	}
	return logger, shutdown, nil
}

func newExporter(ctx context.Context, opts Options) (sdklog.Exporter, error) {
	switch opts.Exporter {
	case ExporterOTLPGRPC:
		grpcOpts := []otlploggrpc.Option{}
		if opts.OTLPEndpoint != "" {
			grpcOpts = append(grpcOpts, otlploggrpc.WithEndpoint(opts.OTLPEndpoint))
		}
		return otlploggrpc.New(ctx, grpcOpts...)
	case ExporterOTLPHTTP:
		httpOpts := []otlploghttp.Option{}
		if opts.OTLPEndpoint != "" {
			httpOpts = append(httpOpts, otlploghttp.WithEndpoint(opts.OTLPEndpoint))
		}
		return otlploghttp.New(ctx, httpOpts...)
	default:
		return stdoutlog.New(stdoutlog.WithWriter(os.Stderr))
	}
}

func severityFromLevel(level string) minsev.Severitier {
	switch level {
	case "debug":
		return minsev.SeverityDebug
	case "warn":
		return minsev.SeverityWarn
	case "error":
		return minsev.SeverityError
	default:
		return minsev.SeverityInfo
	}
}
