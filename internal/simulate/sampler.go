package simulate

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/metricsim/metricsim/internal/config"
	"gonum.org/v1/gonum/stat/distuv"
)

// DurationSampler draws request durations from a Gaussian distribution,
// clamped at a small positive floor so the simulator never observes or
// sleeps a negative duration.
type DurationSampler struct {
	dist  distuv.Normal
	floor time.Duration
}

const durationFloor = time.Millisecond

func NewDurationSampler(mean, stdDev time.Duration, src rand.Source) *DurationSampler {
	return &DurationSampler{
		dist: distuv.Normal{
			Mu:    mean.Seconds(),
			Sigma: stdDev.Seconds(),
			Src:   src,
		},
		floor: durationFloor,
	}
}

func (s *DurationSampler) Sample() time.Duration {
	d := time.Duration(s.dist.Rand() * float64(time.Second))
	if d < s.floor {
		return s.floor
	}
	return d
}

// StatusSampler draws HTTP status codes from a weighted categorical
// distribution.
type StatusSampler struct {
	codes []string
	dist  distuv.Categorical
}

func NewStatusSampler(weights []config.StatusWeight, src rand.Source) (*StatusSampler, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("at least one status weight is required")
	}

	codes := make([]string, 0, len(weights))
	w := make([]float64, 0, len(weights))
	for _, sw := range weights {
		if sw.Weight < 0 {
			return nil, fmt.Errorf("status %d has negative weight %f", sw.Code, sw.Weight)
		}
		codes = append(codes, strconv.Itoa(sw.Code))
		w = append(w, sw.Weight)
	}

	var total float64
	for _, v := range w {
		total += v
	}
	if total == 0 {
		return nil, fmt.Errorf("status weights sum to zero")
	}

	return &StatusSampler{
		codes: codes,
		dist:  distuv.NewCategorical(w, src),
	}, nil
}

func (s *StatusSampler) Sample() string {
	return s.codes[int(s.dist.Rand())]
}
