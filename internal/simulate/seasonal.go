package simulate

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/metricsim/metricsim/internal/wave"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gonum.org/v1/gonum/stat/distuv"
)

// SeasonalSimulator increments a counter following a sine wave with
// randomly jittered amplitude, producing the rhythmic traffic shape the
// demo dashboards are built around. Negative wave values are clamped to
// zero so the counter stays monotonic.
type SeasonalSimulator struct {
	component    string
	action       string
	period       time.Duration
	samplingRate float64
	maxAmplitude float64
	scale        float64
	src          rand.Source

	now func() time.Time

	rhythmTotal     *prometheus.CounterVec
	iterationsTotal prometheus.Counter
}

type SeasonalSimulatorOption func(*SeasonalSimulator)

func WithComponent(component, action string) SeasonalSimulatorOption {
	return func(s *SeasonalSimulator) {
		s.component = component
		s.action = action
	}
}

func WithPeriod(period time.Duration) SeasonalSimulatorOption {
	return func(s *SeasonalSimulator) {
		s.period = period
	}
}

func WithSamplingRate(rate float64) SeasonalSimulatorOption {
	return func(s *SeasonalSimulator) {
		s.samplingRate = rate
	}
}

func WithMaxAmplitude(maxAmplitude float64) SeasonalSimulatorOption {
	return func(s *SeasonalSimulator) {
		s.maxAmplitude = maxAmplitude
	}
}

func WithScale(scale float64) SeasonalSimulatorOption {
	return func(s *SeasonalSimulator) {
		s.scale = scale
	}
}

func WithSeasonalSource(src rand.Source) SeasonalSimulatorOption {
	return func(s *SeasonalSimulator) {
		s.src = src
	}
}

// WithClock fixes the wall clock, used by tests for determinism.
func WithClock(now func() time.Time) SeasonalSimulatorOption {
	return func(s *SeasonalSimulator) {
		s.now = now
	}
}

func NewSeasonalSimulator(reg prometheus.Registerer, opts ...SeasonalSimulatorOption) *SeasonalSimulator {
	s := &SeasonalSimulator{
		component:    "front_page",
		action:       "view",
		period:       10 * time.Minute,
		samplingRate: 3,
		maxAmplitude: 10,
		scale:        100,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s.rhythmTotal = promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "rhythm_component_total",
			Help: "Counter that goes up in a rhythm",
		},
		[]string{"component", "action"},
	)
	s.iterationsTotal = promauto.With(reg).NewCounter(
		prometheus.CounterOpts{
			Name: "seasonal_simulator_iterations_total",
			Help: "Total number of seasonal counter increments",
		},
	)

	return s
}

// Step computes and applies a single increment, returning the applied
// value.
func (s *SeasonalSimulator) Step(amplitudes distuv.Uniform) float64 {
	t := float64(s.now().UnixNano()) / float64(time.Second)

	v := wave.Sine(t, amplitudes.Rand(), 1/s.period.Seconds(), 0, 0)
	inc := v * s.scale
	if inc < 0 {
		inc = 0
	}

	s.rhythmTotal.WithLabelValues(s.component, s.action).Add(inc)
	s.iterationsTotal.Inc()

	slog.Debug("seasonal increment", "wave", v, "increment", inc)
	return inc
}

func (s *SeasonalSimulator) Run(ctx context.Context) {
	amplitudes := distuv.Uniform{Min: 1, Max: s.maxAmplitude, Src: s.src}

	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.samplingRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step(amplitudes)
		}
	}
}
