// Package schedule computes the learning rate for each training
// iteration. All schedules share an optional linear warmup phase and
// scale from the base rate, which is 2**BaseLRExponent times the global
// batch size.
package schedule

import (
	"math"

	"github.com/pkg/errors"

	"github.com/gkaf89/IPU-examples/conf"
)

// Schedule returns the learning rate to apply at an iteration.
type Schedule interface {
	LRAt(iteration int) float64
}

// New builds the schedule named in the config over the full run length.
func New(c conf.Config, globalBatch, iterations int) (Schedule, error) {
	base := c.BaseLearningRate(globalBatch)
	warmup := 0
	if c.WarmupEpochs > 0 && c.Epochs > 0 {
		warmup = int(float64(iterations) * c.WarmupEpochs / c.Epochs)
	}
	switch c.LRSchedule {
	case "stepped":
		return Stepped{base: base, warmup: warmup, total: iterations,
			points: c.LRDecayPoints, decay: c.LRDecay}, nil
	case "cosine":
		return Cosine{base: base, warmup: warmup, total: iterations}, nil
	case "polynomial":
		return Polynomial{base: base, end: c.AbsEndLearningRate, power: c.PolyLRDecayPower,
			warmup: warmup, total: iterations}, nil
	case "exponential":
		final := c.LRDecay[len(c.LRDecay)-1]
		return Exponential{base: base, final: final, warmup: warmup, total: iterations}, nil
	}
	return nil, errors.Errorf("learning rate schedule %q not recognised", c.LRSchedule)
}

func warmupLR(base float64, i, warmup int) (float64, bool) {
	if i < warmup {
		return base * float64(i+1) / float64(warmup), true
	}
	return base, false
}

// progress through the decay phase in [0, 1]
func progress(i, warmup, total int) float64 {
	if total <= warmup {
		return 1
	}
	return float64(i-warmup) / float64(total-warmup)
}

// Stepped drops the rate by the configured multipliers when the run
// passes each schedule point, given as fractions of the total.
type Stepped struct {
	base   float64
	warmup int
	total  int
	points []float64
	decay  []float64
}

func (s Stepped) LRAt(i int) float64 {
	if lr, in := warmupLR(s.base, i, s.warmup); in {
		return lr
	}
	p := progress(i, s.warmup, s.total)
	step := 0
	for step < len(s.points) && p >= s.points[step] {
		step++
	}
	return s.base * s.decay[step]
}

// Cosine anneals the rate to zero following half a cosine period.
type Cosine struct {
	base   float64
	warmup int
	total  int
}

func (s Cosine) LRAt(i int) float64 {
	if lr, in := warmupLR(s.base, i, s.warmup); in {
		return lr
	}
	return s.base * 0.5 * (1 + math.Cos(math.Pi*progress(i, s.warmup, s.total)))
}

// Polynomial decays from the base to the end rate with the given power.
type Polynomial struct {
	base   float64
	end    float64
	power  float64
	warmup int
	total  int
}

func (s Polynomial) LRAt(i int) float64 {
	if lr, in := warmupLR(s.base, i, s.warmup); in {
		return lr
	}
	p := progress(i, s.warmup, s.total)
	return (s.base-s.end)*math.Pow(1-p, s.power) + s.end
}

// Exponential decays smoothly so that the final iteration reaches the
// last stepped decay multiplier.
type Exponential struct {
	base   float64
	final  float64
	warmup int
	total  int
}

func (s Exponential) LRAt(i int) float64 {
	if lr, in := warmupLR(s.base, i, s.warmup); in {
		return lr
	}
	return s.base * math.Pow(s.final, progress(i, s.warmup, s.total))
}
