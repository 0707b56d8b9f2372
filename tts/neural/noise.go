package neural

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
)

// Seed derives the noise seed for text. Identical text always produces the
// same seed, and so the same audio.
func Seed(text string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(text))
	return h.Sum64()
}

// GaussianNoise returns n standard normal samples drawn from a PCG
// generator seeded with seed, using the Box-Muller transform.
func GaussianNoise(seed uint64, n int) []float32 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]float32, n)

	for i := 0; i < n; i += 2 {
		u1 := rng.Float64()
		for u1 == 0 {
			u1 = rng.Float64()
		}
		u2 := rng.Float64()

		r := math.Sqrt(-2 * math.Log(u1))
		theta := 2 * math.Pi * u2
		out[i] = float32(r * math.Cos(theta))
		if i+1 < n {
			out[i+1] = float32(r * math.Sin(theta))
		}
	}
	return out
}
