package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/dng-proxy/internal/app"
	"github.com/florianilch/dng-proxy/internal/observability"
)

// logFlushTimeout bounds the final export of buffered log records.
const logFlushTimeout = 5 * time.Second

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version, commit string) error {
	cmd := &cli.Command{
		Name:    "dngproxy",
		Usage:   "Simplified REST proxy for IBM DOORS Next Generation",
		Version: fmt.Sprintf("%s (commit %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a TOML config file",
				Sources: cli.EnvVars("DNG_PROXY_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "api-key-storage",
				Usage: "where the DNG API key is kept (env|keyring|file)",
			},
		},
		Commands: []*cli.Command{
			proxyStartCommand(),
			authCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func proxyStartCommand() *cli.Command {
	return &cli.Command{
		Name:    "start",
		Aliases: []string{"serve"},
		Usage:   "Serve the DNG routes over HTTP until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "additional OpenTelemetry log export (none|stdout|otlp-http|otlp-grpc)",
				Value: observability.ExporterNone,
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "address to listen on (overrides server.listen)",
			},
			&cli.DurationFlag{
				Name:  "dng-timeout",
				Usage: "timeout for each DNG request, 0 disables (overrides dng.timeout)",
			},
		},
		Action: proxyStartAction,
	}
}

func proxyStartAction(ctx context.Context, cmd *cli.Command) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cmd.String("log-level"))); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}

	// Logging comes first so config problems below are reported through it.
	flushLogs, err := observability.Instrument(ctx, observability.Options{
		Level:    level,
		Format:   cmd.String("log-format"),
		Exporter: cmd.String("log-exporter"),
	})
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logFlushTimeout)
		defer cancel()
		if flushErr := flushLogs(flushCtx); flushErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "flushing logs: %v\n", flushErr)
		}
	}()

	cfg, err := loadConfig(cmd.String("config"), flagOverrides(cmd), os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting",
		slog.String("listen", cfg.Server.Listen),
		slog.String("dng_base_url", cfg.DNG.BaseURL),
		slog.Duration("dng_timeout", cfg.DNG.Timeout),
		slog.String("api_key_storage", string(cfg.Auth.Storage)),
	)

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
