// Package commands builds the anthrogate CLI command tree (adapted from
// the teacher's cmd/claudine/commands/root.go: a root command carrying
// global --config/--log-level flags, a serve subcommand, and a config
// subcommand for static validation without starting the server).
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/nilsecker/anthrogate/internal/app"
	"github.com/nilsecker/anthrogate/internal/config"
	"github.com/nilsecker/anthrogate/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "anthrogate",
		Usage: "reverse proxy that terminates the Anthropic Messages API and re-originates against configured downstreams",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "log exporter (stdout|otlp-grpc|otlp-http)",
				Value: string(observability.ExporterStdout),
			},
			&cli.StringFlag{
				Name:  "otlp-endpoint",
				Usage: "OTLP collector endpoint (used when log-exporter is otlp-grpc or otlp-http)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			configCommand(),
		},
	}

	return cmd.Run(ctx, args)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "start the proxy server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "listen host",
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "listen port",
			},
			&cli.DurationFlag{
				Name:  "shutdown-timeout",
				Usage: "graceful shutdown timeout",
				Value: 10 * time.Second,
			},
		},
		Action: serveAction,
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.String("config") == "" {
		return fmt.Errorf("--config is required")
	}

	flagOverrides := extractAndTransformFlags(cmd)

	loggerCtx, cancelLogger := context.WithCancel(ctx)
	defer cancelLogger()

	logger, shutdownLogger, err := observability.NewLogger(loggerCtx, observability.Options{
		ServiceName: "anthrogate",
		LogLevel:    cmd.String("log-level"),
		Exporter:    observability.ExporterKind(cmd.String("log-exporter")),
		OTLPEndpoint: cmd.String("otlp-endpoint"),
	})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownLogger(shutdownCtx)
	}()

	application, err := app.New(app.Options{
		ConfigPath:      cmd.String("config"),
		ShutdownTimeout: cmd.Duration("shutdown-timeout"),
		FlagOverrides:   flagOverrides,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}

	logger.InfoContext(ctx, "anthrogate starting")
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("application exited with error: %w", err)
	}
	logger.InfoContext(ctx, "anthrogate stopped gracefully")
	return nil
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "inspect or validate configuration",
		Commands: []*cli.Command{
			{
				Name:   "validate",
				Usage:  "load and validate a config file without starting the server",
				Action: configValidateAction,
			},
		},
	}
}

func configValidateAction(ctx context.Context, cmd *cli.Command) error {
	parent := cmd.Parent()
	path := ""
	if parent != nil {
		path = parent.String("config")
	}
	if path == "" {
		return fmt.Errorf("--config is required")
	}

	cfg, err := config.Load(path, nil, os.Environ)
	if err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}

	fmt.Fprintf(cmd.Writer, "config OK: %d provider(s), %d override rule(s), log_level=%s\n",
		len(cfg.Providers), len(cfg.Overrides), cfg.LogLevel)
	return nil
}

// extractAndTransformFlags transforms set CLI flag names into dotted
// config keys (server--host → server.host), for flags this command tree
// declares beyond the global --config/--log-level pair.
func extractAndTransformFlags(cmd *cli.Command) map[string]any {
	values := make(map[string]any)
	for _, name := range cmd.FlagNames() {
		if !cmd.IsSet(name) {
			continue
		}
		if value := cmd.Value(name); value != nil {
			key := dottedFlagKey(name)
			values[key] = value
		}
	}
	return values
}

func dottedFlagKey(name string) string {
	out := make([]rune, 0, len(name))
	for i := 0; i < len(name); i++ {
		switch {
		case name[i] == '-' && i+1 < len(name) && name[i+1] == '-':
			out = append(out, '.')
			i++
		case name[i] == '-':
			out = append(out, '_')
		default:
			out = append(out, rune(name[i]))
		}
	}
	return string(out)
}
