package server

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"syscall"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/rs/cors"

	"github.com/metricsim/metricsim/api/routes"
	"github.com/metricsim/metricsim/internal/config"
	"github.com/metricsim/metricsim/internal/db"
	"github.com/metricsim/metricsim/internal/recorder"
	"github.com/metricsim/metricsim/internal/retention"
	"github.com/metricsim/metricsim/internal/simulate"
)

func RegisterFlags(fs *flag.FlagSet, configFile *string) {
	fs.StringVar(configFile, "config-file", "", "Path to the configuration file, it takes precedence over the command line flags.")
	fs.StringVar(&config.DefaultConfig.Server.InsecureListenAddress, "insecure-listen-address", config.DefaultConfig.Server.InsecureListenAddress, "The address the metricsim HTTP server should listen on.")
	fs.StringVar(&config.DefaultConfig.Database.Provider, "database-provider", "", "The provider of database to use for storing execution history. Supported values: postgresql, sqlite.")

	config.RegisterSimulationFlags(fs)
	config.RegisterRecordFlags(fs)
	config.RegisterRetentionFlags(fs)
	config.RegisterMemoryLimitFlags(fs)
	db.RegisterPostGreSQLFlags(fs)
	db.RegisterSqliteFlags(fs)
}

func Run() error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		version.NewCollector("metricsim"),
	)

	var g run.Group

	var (
		dbProvider db.Provider
		rec        simulate.ExecutionRecorder = simulate.NoopRecorder{}
	)

	if config.DefaultConfig.Record.Enabled {
		var err error
		dbProvider, err = db.GetDbProvider(context.Background(), db.DatabaseProvider(config.DefaultConfig.Database.Provider))
		if err != nil {
			slog.Error("unable to create db provider", "err", err)
			return fmt.Errorf("create db provider: %w", err)
		}
		defer func() {
			if err := dbProvider.Close(); err != nil {
				slog.Error("error closing database provider", "err", err)
			}
		}()

		execRecorder := recorder.NewRecorder(
			reg,
			dbProvider,
			recorder.WithBufferSize(config.DefaultConfig.Record.BufferSize),
			recorder.WithInsertTimeout(config.DefaultConfig.Record.Timeout),
			recorder.WithShutdownGracePeriod(config.DefaultConfig.Record.GracePeriod),
			recorder.WithBatchSize(config.DefaultConfig.Record.BatchSize),
			recorder.WithBatchFlushInterval(config.DefaultConfig.Record.FlushInterval),
		)
		rec = execRecorder

		{
			ctx, cancel := context.WithCancel(context.Background())
			g.Add(func() error {
				execRecorder.Run(ctx)
				return nil
			}, func(err error) {
				cancel()
			})
		}
	}

	requestSim, err := simulate.NewRequestSimulator(
		reg,
		rec,
		simulate.WithMethod(config.DefaultConfig.Simulation.Request.Method),
		simulate.WithPath(config.DefaultConfig.Simulation.Request.Path),
		simulate.WithMeanDuration(config.DefaultConfig.Simulation.Request.MeanDuration),
		simulate.WithStdDev(config.DefaultConfig.Simulation.Request.StdDev),
		simulate.WithStatusWeights(config.DefaultConfig.Simulation.Request.StatusWeights),
	)
	if err != nil {
		slog.Error("unable to create request simulator", "err", err)
		return fmt.Errorf("create request simulator: %w", err)
	}

	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			requestSim.Run(ctx)
			return nil
		}, func(err error) {
			slog.Info("stopping request simulator")
			cancel()
		})
	}

	seasonalSim := simulate.NewSeasonalSimulator(
		reg,
		simulate.WithComponent(config.DefaultConfig.Simulation.Seasonal.Component, config.DefaultConfig.Simulation.Seasonal.Action),
		simulate.WithPeriod(config.DefaultConfig.Simulation.Seasonal.Period),
		simulate.WithSamplingRate(config.DefaultConfig.Simulation.Seasonal.SamplingRate),
		simulate.WithMaxAmplitude(config.DefaultConfig.Simulation.Seasonal.MaxAmplitude),
		simulate.WithScale(config.DefaultConfig.Simulation.Seasonal.Scale),
	)

	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			seasonalSim.Run(ctx)
			return nil
		}, func(err error) {
			slog.Info("stopping seasonal simulator")
			cancel()
		})
	}

	{
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		routesHandler, err := routes.NewRoutes(
			routes.WithDBProvider(dbProvider),
			routes.WithConfig(config.DefaultConfig),
			routes.WithHandlers(reg, config.DefaultConfig.IsTracingEnabled()),
		)
		if err != nil {
			slog.Error("unable to create routes", "err", err)
			return fmt.Errorf("create routes: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/", routesHandler)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-XSS-Protection", "1; mode=block")
			mux.ServeHTTP(w, r)
		})

		corsHandler := cors.New(cors.Options{
			AllowedOrigins:   config.DefaultConfig.CORS.AllowedOrigins,
			AllowedMethods:   config.DefaultConfig.CORS.AllowedMethods,
			AllowedHeaders:   config.DefaultConfig.CORS.AllowedHeaders,
			AllowCredentials: config.DefaultConfig.CORS.AllowCredentials,
			MaxAge:           config.DefaultConfig.CORS.MaxAge,
		}).Handler(handler)

		l, err := net.Listen("tcp", config.DefaultConfig.Server.InsecureListenAddress)
		if err != nil {
			slog.Error("failed to listen on address", "err", err)
			return fmt.Errorf("listen: %w", err)
		}

		srv := &http.Server{
			Handler: corsHandler,
		}

		g.Add(func() error {
			slog.Info("listening insecurely", "addr", l.Addr())
			if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
				slog.Error("server stopped", "err", err)
				return err
			}
			return nil
		}, func(error) {
			slog.Info("stopping HTTP Server")
			cancel()
			if err := srv.Shutdown(ctx); err != nil {
				slog.Error("error shutting down server", "err", err)
			}
		})
	}

	if config.DefaultConfig.Retention.Enabled && dbProvider != nil {
		retWorker, err := retention.NewWorker(dbProvider, config.DefaultConfig, reg)
		if err != nil {
			slog.Error("unable to create retention worker", "err", err)
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			g.Add(func() error {
				retWorker.Run(ctx)
				return nil
			}, func(err error) {
				cancel()
			})
		}
	}

	{
		g.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))
	}

	if err := g.Run(); err != nil {
		if !errors.As(err, &run.SignalError{}) {
			return err
		}
	}
	return nil
}
