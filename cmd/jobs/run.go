package jobs

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/metricsim/metricsim/internal/config"
	"github.com/metricsim/metricsim/internal/db"
	"github.com/metricsim/metricsim/internal/pusher"
	"github.com/metricsim/metricsim/internal/recorder"
)

func RegisterFlags(fs *flag.FlagSet, configFile *string) {
	fs.StringVar(configFile, "config-file", "", "Path to the configuration file, it takes precedence over the command line flags.")
	fs.StringVar(&config.DefaultConfig.Database.Provider, "database-provider", "", "The provider of database to use for storing execution history. Supported values: postgresql, sqlite.")

	config.RegisterJobsFlags(fs)
	config.RegisterRecordFlags(fs)
	config.RegisterMemoryLimitFlags(fs)
	db.RegisterPostGreSQLFlags(fs)
	db.RegisterSqliteFlags(fs)
}

func Run() error {
	if len(config.DefaultConfig.Jobs.Specs) == 0 {
		return fmt.Errorf("no job specs configured")
	}
	if config.DefaultConfig.Jobs.FailureRatio < 0 || config.DefaultConfig.Jobs.FailureRatio > 1 {
		return fmt.Errorf("job failure ratio must be in [0,1], got %f", config.DefaultConfig.Jobs.FailureRatio)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var g run.Group
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var execRecorder *recorder.Recorder
	if config.DefaultConfig.Record.Enabled && config.DefaultConfig.Database.Provider != "" {
		dbProvider, err := db.GetDbProvider(ctx, db.DatabaseProvider(config.DefaultConfig.Database.Provider))
		if err != nil {
			return fmt.Errorf("create db provider: %w", err)
		}
		defer func() {
			if err := dbProvider.Close(); err != nil {
				slog.Error("error closing database provider", "err", err)
			}
		}()

		execRecorder = recorder.NewRecorder(
			reg,
			dbProvider,
			recorder.WithBufferSize(config.DefaultConfig.Record.BufferSize),
			recorder.WithInsertTimeout(config.DefaultConfig.Record.Timeout),
			recorder.WithShutdownGracePeriod(config.DefaultConfig.Record.GracePeriod),
			recorder.WithBatchSize(config.DefaultConfig.Record.BatchSize),
			recorder.WithBatchFlushInterval(config.DefaultConfig.Record.FlushInterval),
		)

		recCtx, recCancel := context.WithCancel(context.Background())
		g.Add(func() error {
			execRecorder.Run(recCtx)
			return nil
		}, func(err error) {
			recCancel()
		})
	}

	gateway := pusher.NewGatewayPusher(config.DefaultConfig.Jobs.PushgatewayURL, config.DefaultConfig.Jobs.PushTimeout)

	for _, spec := range config.DefaultConfig.Jobs.Specs {
		opts := []pusher.JobRunnerOption{
			pusher.WithFailureRatio(config.DefaultConfig.Jobs.FailureRatio),
		}
		if execRecorder != nil {
			opts = append(opts, pusher.WithRecorder(execRecorder))
		}
		runner := pusher.NewJobRunner(reg, spec, gateway, opts...)

		runnerCtx, runnerCancel := context.WithCancel(context.Background())
		g.Add(func() error {
			runner.Run(runnerCtx)
			return nil
		}, func(err error) {
			slog.Info("stopping job runner")
			runnerCancel()
		})
	}

	// Metrics and health HTTP server
	{
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

		mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("ok")); err != nil {
				slog.ErrorContext(r.Context(), "jobs.http.livez_write_error", "err", err)
			}
		})

		mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("ok")); err != nil {
				slog.ErrorContext(r.Context(), "jobs.http.readyz_write_error", "err", err)
			}
		})

		srv := &http.Server{
			Addr:         config.DefaultConfig.Jobs.MetricsListenAddress,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		g.Add(func() error {
			slog.InfoContext(ctx, "jobs.metrics.exposing", "address", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		}, func(err error) {
			c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(c)
		})
	}

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	if err := g.Run(); err != nil {
		if !errors.As(err, &run.SignalError{}) {
			return err
		}
	}
	return nil
}
