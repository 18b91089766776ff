// Package simulate contains the traffic generators: a request simulator
// observing a latency histogram and a seasonal simulator driving a
// sinusoidal counter.
package simulate

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/metricsim/metricsim/internal/config"
	"github.com/metricsim/metricsim/internal/db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ExecutionRecorder receives finished simulated work. Implemented by
// recorder.Recorder; nil-safe via the noop recorder.
type ExecutionRecorder interface {
	Record(db.Execution)
}

// NoopRecorder discards executions. Used when recording is disabled.
type NoopRecorder struct{}

func (NoopRecorder) Record(db.Execution) {}

// RequestSimulator emits a stream of simulated request observations:
// Gaussian durations and weighted status codes, paced by the simulated
// duration itself like real sequential traffic would be.
type RequestSimulator struct {
	method string
	path   string

	mean    time.Duration
	stdDev  time.Duration
	weights []config.StatusWeight
	src     rand.Source

	recorder ExecutionRecorder

	durations       *prometheus.HistogramVec
	iterationsTotal prometheus.Counter
}

type RequestSimulatorOption func(*RequestSimulator)

func WithMethod(method string) RequestSimulatorOption {
	return func(s *RequestSimulator) {
		s.method = method
	}
}

func WithPath(path string) RequestSimulatorOption {
	return func(s *RequestSimulator) {
		s.path = path
	}
}

func WithMeanDuration(mean time.Duration) RequestSimulatorOption {
	return func(s *RequestSimulator) {
		s.mean = mean
	}
}

func WithStdDev(stdDev time.Duration) RequestSimulatorOption {
	return func(s *RequestSimulator) {
		s.stdDev = stdDev
	}
}

func WithStatusWeights(weights []config.StatusWeight) RequestSimulatorOption {
	return func(s *RequestSimulator) {
		s.weights = weights
	}
}

// WithSource fixes the random source, used by tests for determinism.
func WithSource(src rand.Source) RequestSimulatorOption {
	return func(s *RequestSimulator) {
		s.src = src
	}
}

func NewRequestSimulator(reg prometheus.Registerer, recorder ExecutionRecorder, opts ...RequestSimulatorOption) (*RequestSimulator, error) {
	s := &RequestSimulator{
		method:   "POST",
		path:     "/magical/method",
		mean:     300 * time.Millisecond,
		stdDev:   50 * time.Millisecond,
		weights:  config.DefaultStatusWeights(),
		recorder: recorder,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.recorder == nil {
		s.recorder = NoopRecorder{}
	}

	if _, err := NewStatusSampler(s.weights, s.src); err != nil {
		return nil, err
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s.durations = promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sim_call_request_duration_seconds",
			Help:    "Simulated HTTP Request Duration in Seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 5},
		},
		[]string{"method", "path", "status"},
	)
	s.iterationsTotal = promauto.With(reg).NewCounter(
		prometheus.CounterOpts{
			Name: "request_simulator_iterations_total",
			Help: "Total number of simulated request observations",
		},
	)

	return s, nil
}

// Step produces a single observation and returns the simulated duration
// the caller should wait before the next one.
func (s *RequestSimulator) Step(durations *DurationSampler, statuses *StatusSampler) time.Duration {
	duration := durations.Sample()
	status := statuses.Sample()

	s.durations.WithLabelValues(s.method, s.path, status).Observe(duration.Seconds())
	s.iterationsTotal.Inc()

	s.recorder.Record(db.Execution{
		TS:       time.Now(),
		Job:      s.path,
		Kind:     db.KindRequest,
		Status:   status,
		Duration: duration,
	})

	slog.Debug("simulated request", "duration", duration, "status", status)
	return duration
}

func (s *RequestSimulator) Run(ctx context.Context) {
	durations := NewDurationSampler(s.mean, s.stdDev, s.src)
	// validated in the constructor
	statuses, _ := NewStatusSampler(s.weights, s.src)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			timer.Reset(s.Step(durations, statuses))
		}
	}
}
