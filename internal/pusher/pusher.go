// Package pusher simulates batch jobs that report their lifecycle to a
// Prometheus Pushgateway, the way short-lived jobs that outlive no
// scrape interval have to.
package pusher

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/metricsim/metricsim/internal/config"
	"github.com/metricsim/metricsim/internal/db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	StatusStart   = "start"
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// StatusPusher delivers one job status marker to the gateway.
type StatusPusher interface {
	PushStatus(ctx context.Context, job, execID, status string) error
}

// ExecutionRecorder receives finished job runs.
type ExecutionRecorder interface {
	Record(db.Execution)
}

// GatewayPusher pushes sim_job_status gauges to a Pushgateway. Each push
// uses a fresh registry so consecutive pushes for the same job cannot
// collide on already-collected series.
type GatewayPusher struct {
	url     string
	timeout time.Duration
}

func NewGatewayPusher(url string, timeout time.Duration) *GatewayPusher {
	return &GatewayPusher{url: url, timeout: timeout}
}

func (g *GatewayPusher) PushStatus(ctx context.Context, job, execID, status string) error {
	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sim_job_status",
			Help: "Status of simulated job status",
		},
		[]string{"status"},
	)
	reg.MustRegister(gauge)
	gauge.WithLabelValues(status).SetToCurrentTime()

	pushCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return push.New(g.url, job).
		Gatherer(reg).
		Grouping("exec_id", execID).
		PushContext(pushCtx)
}

// JobRunner runs one simulated batch job in a loop: mark start, work for
// a Gaussian-distributed run time, then mark success or failure.
type JobRunner struct {
	spec         config.JobSpec
	failureRatio float64
	src          rand.Source

	pusher   StatusPusher
	recorder ExecutionRecorder

	runsTotal         *prometheus.CounterVec
	pushFailuresTotal prometheus.Counter
}

type JobRunnerOption func(*JobRunner)

func WithFailureRatio(ratio float64) JobRunnerOption {
	return func(j *JobRunner) {
		j.failureRatio = ratio
	}
}

func WithRecorder(recorder ExecutionRecorder) JobRunnerOption {
	return func(j *JobRunner) {
		j.recorder = recorder
	}
}

// WithRunnerSource fixes the random source, used by tests for determinism.
func WithRunnerSource(src rand.Source) JobRunnerOption {
	return func(j *JobRunner) {
		j.src = src
	}
}

func NewJobRunner(reg prometheus.Registerer, spec config.JobSpec, pusher StatusPusher, opts ...JobRunnerOption) *JobRunner {
	j := &JobRunner{
		spec:         spec,
		failureRatio: 0.1,
		pusher:       pusher,
	}

	for _, opt := range opts {
		opt(j)
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	j.runsTotal = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name:        "job_runner_runs_total",
			Help:        "Total number of simulated job runs by outcome",
			ConstLabels: prometheus.Labels{"job_name": spec.Name},
		},
		[]string{"outcome"},
	)
	j.pushFailuresTotal = promauto.With(reg).NewCounter(
		prometheus.CounterOpts{
			Name:        "job_runner_push_failures_total",
			Help:        "Total number of failed pushes to the Pushgateway",
			ConstLabels: prometheus.Labels{"job_name": spec.Name},
		},
	)

	return j
}

func (j *JobRunner) Run(ctx context.Context) {
	runTimes := distuv.Normal{
		Mu:    j.spec.BaseRunTime.Seconds(),
		Sigma: j.spec.StdDev.Seconds(),
		Src:   j.src,
	}
	outcomes := distuv.Bernoulli{P: j.failureRatio, Src: j.src}

	for {
		if err := j.runOnce(ctx, runTimes, outcomes); err != nil {
			return
		}
	}
}

// runOnce executes a single job cycle. It returns an error only when the
// context is done, ending the loop.
func (j *JobRunner) runOnce(ctx context.Context, runTimes distuv.Normal, outcomes distuv.Bernoulli) error {
	execID := uuid.NewString()

	j.push(ctx, execID, StatusStart)

	runTime := time.Duration(runTimes.Rand() * float64(time.Second))
	if runTime < time.Millisecond {
		runTime = time.Millisecond
	}
	slog.Info("executing job", "job", j.spec.Name, "exec_id", execID, "run_time", runTime)

	timer := time.NewTimer(runTime)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	outcome := StatusSuccess
	if outcomes.Rand() == 1 {
		outcome = StatusFailure
	}
	slog.Info("done job", "job", j.spec.Name, "exec_id", execID, "run_time", runTime, "result", outcome)

	j.push(ctx, execID, outcome)
	j.runsTotal.WithLabelValues(outcome).Inc()

	if j.recorder != nil {
		j.recorder.Record(db.Execution{
			TS:       time.Now(),
			Job:      j.spec.Name,
			ExecID:   execID,
			Kind:     db.KindJob,
			Status:   outcome,
			Duration: runTime,
		})
	}
	return nil
}

// push delivers a status marker; gateway failures are counted and logged
// but never abort the job cycle.
func (j *JobRunner) push(ctx context.Context, execID, status string) {
	if err := j.pusher.PushStatus(ctx, j.spec.Name, execID, status); err != nil {
		j.pushFailuresTotal.Inc()
		slog.Error("unable to push job status", "job", j.spec.Name, "status", status, "err", err)
	}
}
