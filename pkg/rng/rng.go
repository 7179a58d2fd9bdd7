// Package rng implements the seedable random stream used by the event
// pipeline. Seeded streams are fully reproducible for a given consumption
// order; the consumption order is part of the contract.
package rng

import (
	"math"
	"math/rand"
	"sync"
)

// normalTailClamp bounds the standard-normal draw used for log-normal delays
// so a single extreme Z cannot blow past the delay cap before clamping.
const normalTailClamp = 3.5

// RNG wraps a seedable uniform source with the derived distributions the
// pipeline needs. Safe for concurrent use; the producer shards share one
// stream per run.
type RNG struct {
	mu       sync.Mutex
	rng      *rand.Rand
	spare    float64
	hasSpare bool
}

// New returns an RNG seeded with the given value.
func New(seed int64) *RNG {
	return &RNG{rng: rand.New(rand.NewSource(seed))} //nolint:gosec
}

// NewUnseeded returns an RNG with a non-reproducible stream.
func NewUnseeded() *RNG {
	return New(rand.Int63()) //nolint:gosec
}

// Uniform returns a draw in [0, 1).
func (r *RNG) Uniform() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// IntN returns a uniform integer in [0, n).
func (r *RNG) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// Shuffle performs a Fisher–Yates shuffle over n elements.
func (r *RNG) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rng.Shuffle(n, swap)
}

// StandardNormal returns a standard-normal draw via polar Box–Muller.
// Draws are produced in pairs; the spare is cached for the next call.
func (r *RNG) StandardNormal() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.standardNormalLocked()
}

func (r *RNG) standardNormalLocked() float64 {
	if r.hasSpare {
		r.hasSpare = false
		return r.spare
	}
	var u, v, s float64
	for {
		u = r.rng.Float64()*2 - 1
		v = r.rng.Float64()*2 - 1
		s = u*u + v*v
		if s > 0 && s < 1 {
			break
		}
	}
	mul := math.Sqrt(-2 * math.Log(s) / s)
	r.spare = v * mul
	r.hasSpare = true
	return u * mul
}

// NormalPair returns two independent standard normals in one call, keeping
// the pair-wise consumption order stable for callers that need both.
func (r *RNG) NormalPair() (float64, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.standardNormalLocked(), r.standardNormalLocked()
}

// LogNormalSeconds draws a positive integer delay (seconds) from the
// log-normal distribution with the given median and 95th percentile.
// The underlying normal is clamped to ±normalTailClamp.
func (r *RNG) LogNormalSeconds(medianSec, p95Sec float64) int {
	mu := math.Log(medianSec)
	sigma := (math.Log(p95Sec) - mu) / 1.6449
	z := r.StandardNormal()
	if z > normalTailClamp {
		z = normalTailClamp
	} else if z < -normalTailClamp {
		z = -normalTailClamp
	}
	sec := int(math.Round(math.Exp(mu + sigma*z)))
	if sec < 1 {
		sec = 1
	}
	return sec
}
