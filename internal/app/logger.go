package app

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const serviceName = "userdesk"

// NewLogger returns a configured slog.Logger based on configuration, together with a
// shutdown func that flushes any buffered records.
func NewLogger(cfg *Config) (*slog.Logger, func(context.Context) error) {
	noop := func(context.Context) error { return nil }
	if cfg == nil {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})), noop
	}
	switch cfg.LogFormat {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})), noop
	case "otel":
		exporter, err := stdoutlog.New()
		if err != nil {
			fallback := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
			fallback.Warn("otel log exporter unavailable, using json", slog.Any("error", err))
			return fallback, noop
		}
		provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
		logger := otelslog.NewLogger(serviceName, otelslog.WithLoggerProvider(provider))
		return logger, provider.Shutdown
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})), noop
	}
}
