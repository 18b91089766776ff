package simulate

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestSeasonalSimulator_IncrementsAreNonNegative(t *testing.T) {
	reg := prometheus.NewRegistry()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sim := NewSeasonalSimulator(reg,
		WithComponent("checkout", "submit"),
		WithPeriod(10*time.Minute),
		WithMaxAmplitude(10),
		WithScale(100),
		WithSeasonalSource(rand.NewPCG(1, 2)),
		WithClock(func() time.Time {
			now = now.Add(333 * time.Millisecond)
			return now
		}),
	)

	amplitudes := distuv.Uniform{Min: 1, Max: sim.maxAmplitude, Src: sim.src}

	var total float64
	for i := 0; i < 2000; i++ {
		inc := sim.Step(amplitudes)
		assert.GreaterOrEqual(t, inc, 0.0)
		total += inc
	}

	// the counter must equal the sum of applied increments
	counter := sim.rhythmTotal.WithLabelValues("checkout", "submit")
	assert.InDelta(t, total, testutil.ToFloat64(counter), 1e-6)
	assert.Equal(t, 2000.0, testutil.ToFloat64(sim.iterationsTotal))

	// over multiple full periods roughly half the samples fall in the
	// negative half-wave and clamp to zero
	assert.Greater(t, total, 0.0)
}

func TestSeasonalSimulator_TroughClampsToZero(t *testing.T) {
	reg := prometheus.NewRegistry()

	// fix the clock at the trough of the wave: t = 3/4 of the period
	period := 10 * time.Minute
	trough := time.Unix(0, int64(period)*3/4)

	sim := NewSeasonalSimulator(reg,
		WithPeriod(period),
		WithSeasonalSource(rand.NewPCG(1, 2)),
		WithClock(func() time.Time { return trough }),
	)

	amplitudes := distuv.Uniform{Min: 1, Max: sim.maxAmplitude, Src: sim.src}

	assert.Equal(t, 0.0, sim.Step(amplitudes))
}
