// File: internal/browser/humanoid/noise.go
package humanoid

import (
	"math"
	"math/rand"
	"time"

	"github.com/aquilax/go-perlin"
)

// tremor produces a smooth two dimensional drift with a little white noise
// on top, sampled along a monotonically advancing time axis.
type tremor struct {
	noiseX *perlin.Perlin
	noiseY *perlin.Perlin
	t      float64
}

func newTremor(seed int64) *tremor {
	// Standard Perlin parameters: alpha, beta, octaves.
	return &tremor{
		noiseX: perlin.NewPerlin(2, 2, 3, seed),
		noiseY: perlin.NewPerlin(2, 2, 3, seed+1),
	}
}

// next advances the noise clock by dt and returns an offset whose magnitude
// never exceeds radius.
func (tr *tremor) next(rng *rand.Rand, dt, radius float64) Vector2D {
	tr.t += dt
	drift := Vector2D{X: tr.noiseX.Noise1D(tr.t), Y: tr.noiseY.Noise1D(tr.t)}.Mul(radius * 1.5)
	white := Vector2D{X: rng.NormFloat64(), Y: rng.NormFloat64()}.Mul(radius * 0.2)
	return drift.Add(white).Limit(radius)
}

// sampleGaussian samples a value from a Gaussian distribution.
func sampleGaussian(rng *rand.Rand, mean, stdDev float64) float64 {
	if rng == nil {
		return mean
	}
	return mean + rng.NormFloat64()*stdDev
}

// uniformDuration returns a value in [min, max].
func uniformDuration(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)+1))
}

// uniformInt returns a value in [min, max].
func uniformInt(rng *rand.Rand, min, max int) int {
	if max <= min {
		return min
	}
	return min + rng.Intn(max-min+1)
}

func uniformFloat(rng *rand.Rand, min, max float64) float64 {
	return min + rng.Float64()*(max-min)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
