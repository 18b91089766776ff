package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/metricsim/metricsim/cmd/jobs"
	"github.com/metricsim/metricsim/cmd/server"
	"github.com/metricsim/metricsim/internal/config"
	"github.com/metricsim/metricsim/internal/tracing"
)

const usage = `usage: metricsim <command> [flags]

commands:
  server  run the scrape target with the traffic simulators
  jobs    run the Pushgateway batch-job simulators
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var (
		configFile string
		logLevel   string
		logFormat  string
	)

	command := os.Args[1]
	fs := flag.NewFlagSet(fmt.Sprintf("%s %s", os.Args[0], command), flag.ExitOnError)
	fs.StringVar(&logLevel, "log-level", "info", "Log level. Supported values: debug, info, warn, error.")
	fs.StringVar(&logFormat, "log-format", "text", "Log format. Supported values: text, json.")

	var runCmd func() error
	switch command {
	case "server":
		server.RegisterFlags(fs, &configFile)
		runCmd = server.Run
	case "jobs":
		jobs.RegisterFlags(fs, &configFile)
		runCmd = jobs.Run
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "unable to parse flags: %v\n", err)
		os.Exit(2)
	}

	if configFile != "" {
		if err := config.LoadConfig(configFile); err != nil {
			fmt.Fprintf(os.Stderr, "unable to load config file: %v\n", err)
			os.Exit(1)
		}
	}

	logger, err := setupLogger(logLevel, logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to set up logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := config.ApplyMemoryLimit(); err != nil {
		slog.Warn("unable to apply memory limit", "err", err)
	}

	if config.DefaultConfig.IsTracingEnabled() {
		tp, err := tracing.WithTracing(context.Background(), logger)
		if err != nil {
			slog.Error("unable to set up tracing", "err", err)
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("error shutting down tracer provider", "err", err)
			}
		}()
	}

	if err := runCmd(); err != nil {
		slog.Error("command failed", "command", command, "err", err)
		os.Exit(1)
	}
}

func setupLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
