package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/metricsim/metricsim/internal/db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// Recorder buffers finished executions from the simulators and persists
// them to the database in batches. It never blocks its producers: when
// the buffer is full the execution is dropped and counted.
type Recorder struct {
	dbProvider db.Provider
	execsC     chan db.Execution

	mu     sync.RWMutex
	closed bool

	shutdownGracePeriod time.Duration
	insertTimeout       time.Duration
	batchSize           int
	batchFlushInterval  time.Duration

	droppedExecutionsTotal *prometheus.CounterVec
	batchSizeHistogram     prometheus.Histogram
}

type RecorderOption func(*Recorder)

func WithBufferSize(bufferSize int) RecorderOption {
	return func(r *Recorder) {
		r.execsC = make(chan db.Execution, bufferSize)
	}
}

func WithInsertTimeout(timeout time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.insertTimeout = timeout
	}
}

func WithShutdownGracePeriod(gracePeriod time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.shutdownGracePeriod = gracePeriod
	}
}

func WithBatchSize(batchSize int) RecorderOption {
	return func(r *Recorder) {
		r.batchSize = batchSize
	}
}

func WithBatchFlushInterval(interval time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.batchFlushInterval = interval
	}
}

func NewRecorder(reg prometheus.Registerer, dbProvider db.Provider, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		dbProvider:          dbProvider,
		execsC:              make(chan db.Execution, 100),
		insertTimeout:       time.Second,
		shutdownGracePeriod: 5 * time.Second,
		batchSize:           10,
		batchFlushInterval:  5 * time.Second,
	}

	for _, opt := range opts {
		opt(r)
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r.droppedExecutionsTotal = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "recorder_dropped_executions_total",
			Help: "Total number of dropped executions due to full buffer or closed recorder",
		},
		[]string{"reason"},
	)
	r.batchSizeHistogram = promauto.With(reg).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recorder_batch_size",
			Help:    "Histogram of batch sizes persisted",
			Buckets: prometheus.ExponentialBucketsRange(1, float64(r.batchSize), 10),
		},
	)

	return r
}

func (r *Recorder) Record(exec db.Execution) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.droppedExecutionsTotal.WithLabelValues("closed").Inc()
		slog.Error(fmt.Sprintf("closed: dropping execution: %v", exec))
		return
	}
	select {
	case r.execsC <- exec:
	default:
		r.droppedExecutionsTotal.WithLabelValues("blocked").Inc()
		slog.Error(fmt.Sprintf("blocked: dropping execution: %v", exec))
	}
}

func (r *Recorder) Run(ctx context.Context) {
	batch := make([]db.Execution, 0, r.batchSize)
	ticker := time.NewTicker(r.batchFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			defer r.mu.Unlock()
			r.closed = true
			close(r.execsC)

			r.drainWithGracePeriod(batch)
			return
		case exec := <-r.execsC:
			batch = append(batch, exec)
			if len(batch) >= r.batchSize {
				r.insert(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.insert(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Recorder) drainWithGracePeriod(batch []db.Execution) {
	slog.Debug(fmt.Sprintf("draining with grace period: %v", r.shutdownGracePeriod))

	graceCtx, graceCancel := context.WithTimeout(context.Background(), r.shutdownGracePeriod)
	defer graceCancel()
	for exec := range r.execsC {
		batch = append(batch, exec)
		if len(batch) >= r.batchSize {
			r.insert(graceCtx, batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		r.insert(graceCtx, batch)
	}
}

func (r *Recorder) insert(ctx context.Context, execs []db.Execution) {
	insertCtx, insertCancel := context.WithTimeout(ctx, r.insertTimeout)
	defer insertCancel()

	r.batchSizeHistogram.Observe(float64(len(execs)))
	traceContext, span := otel.Tracer("recorder").Start(insertCtx, "insert")
	defer span.End()
	if err := r.dbProvider.Insert(traceContext, execs); err != nil {
		slog.Error("unable to insert executions", "err", err)
	}
}
