package rng

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeededStreamIsReproducible(t *testing.T) {
	a := New(42)
	b := New(42)

	for i := 0; i < 1000; i++ {
		require.Equal(t, a.Uniform(), b.Uniform(), "draw %d diverged", i)
	}
}

func TestDifferentSeedsDiverge(t *testing.T) {
	a := New(1)
	b := New(2)

	same := true
	for i := 0; i < 16; i++ {
		if a.Uniform() != b.Uniform() {
			same = false
			break
		}
	}
	assert.False(t, same, "streams with different seeds should diverge")
}

func TestUniformRange(t *testing.T) {
	r := New(7)
	for i := 0; i < 10000; i++ {
		v := r.Uniform()
		require.GreaterOrEqual(t, v, 0.0)
		require.Less(t, v, 1.0)
	}
}

func TestStandardNormalMoments(t *testing.T) {
	r := New(99)
	const n = 100000

	var sum, sumSq float64
	for i := 0; i < n; i++ {
		z := r.StandardNormal()
		sum += z
		sumSq += z * z
	}
	mean := sum / n
	variance := sumSq/n - mean*mean

	assert.InDelta(t, 0.0, mean, 0.02)
	assert.InDelta(t, 1.0, variance, 0.05)
}

func TestNormalPairConsumesSpare(t *testing.T) {
	a := New(5)
	b := New(5)

	z1, z2 := a.NormalPair()
	assert.Equal(t, b.StandardNormal(), z1)
	assert.Equal(t, b.StandardNormal(), z2)
}

func TestLogNormalSecondsCalibration(t *testing.T) {
	r := New(2024)
	const n = 10000

	samples := make([]int, n)
	for i := range samples {
		samples[i] = r.LogNormalSeconds(60, 150)
		require.GreaterOrEqual(t, samples[i], 1)
	}
	sort.Ints(samples)

	median := float64(samples[n/2])
	p95 := float64(samples[int(float64(n)*0.95)])

	assert.GreaterOrEqual(t, median, 55.0, "median too low")
	assert.LessOrEqual(t, median, 65.0, "median too high")
	assert.GreaterOrEqual(t, p95, 140.0, "p95 too low")
	assert.LessOrEqual(t, p95, 160.0, "p95 too high")
}

func TestLogNormalSecondsNeverBelowOne(t *testing.T) {
	r := New(3)
	for i := 0; i < 10000; i++ {
		require.GreaterOrEqual(t, r.LogNormalSeconds(1, 2), 1)
	}
}

func TestLogNormalTailClamp(t *testing.T) {
	// With the ±3.5 clamp, the delay can never exceed exp(μ + σ·3.5).
	r := New(11)
	mu := math.Log(60)
	sigma := (math.Log(150) - mu) / 1.6449
	ceiling := int(math.Round(math.Exp(mu+sigma*normalTailClamp))) + 1

	for i := 0; i < 50000; i++ {
		require.LessOrEqual(t, r.LogNormalSeconds(60, 150), ceiling)
	}
}
