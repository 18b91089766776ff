package retention

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/metricsim/metricsim/internal/config"
	"github.com/metricsim/metricsim/internal/db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Worker periodically deletes recorded executions older than the
// configured maximum age.
type Worker struct {
	dbProvider       db.Provider
	interval         time.Duration
	runTimeout       time.Duration
	executionsMaxAge time.Duration

	runDuration *prometheus.HistogramVec
}

func NewWorker(store db.Provider, cfg *config.Config, reg prometheus.Registerer) (*Worker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Retention.Interval <= 0 {
		return nil, fmt.Errorf("retention.interval must be positive (got: %v)", cfg.Retention.Interval)
	}

	if cfg.Retention.RunTimeout <= 0 {
		return nil, fmt.Errorf("retention.run_timeout must be positive (got: %v)", cfg.Retention.RunTimeout)
	}

	if cfg.Retention.ExecutionsMaxAge <= 0 {
		return nil, fmt.Errorf("retention.executions_max_age must be positive (got: %v)", cfg.Retention.ExecutionsMaxAge)
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	w := &Worker{
		dbProvider:       store,
		interval:         cfg.Retention.Interval,
		runTimeout:       cfg.Retention.RunTimeout,
		executionsMaxAge: cfg.Retention.ExecutionsMaxAge,
	}

	w.runDuration = promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retention_run_duration_seconds",
		Help:    "Duration of retention runs in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	// Calculate jitter as 20% of interval, with a minimum of 1 nanosecond to avoid panic
	jitterBase := w.interval / 5
	if jitterBase == 0 {
		jitterBase = 1
	}
	jitter := time.Duration(rand.Int63n(int64(jitterBase)))
	ticker := time.NewTicker(w.interval + jitter)
	defer ticker.Stop()

	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	if w.executionsMaxAge <= 0 {
		return
	}

	cutoff := time.Now().UTC().Add(-w.executionsMaxAge)
	deleted, err := w.dbProvider.DeleteExecutionsOlderThan(runCtx, cutoff)
	if err != nil {
		slog.Error("retention: failed to delete old executions", "err", err, "cutoff", cutoff)
		w.runDuration.WithLabelValues("failure").Observe(time.Since(start).Seconds())
		return
	}

	slog.Info("retention: cleanup complete", "deleted", deleted, "cutoff", cutoff)
	w.runDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
}
