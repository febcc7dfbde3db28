package tensor

import "math/rand/v2"

// Generator is the single random stream used for dropout masks, layer-drop
// coin flips and parameter initialization.
//
// It is seeded once and is not safe for concurrent use; one Generator belongs
// to one model instance.
type Generator struct {
	seed uint64
	rng  *rand.Rand
}

// NewGenerator returns a deterministic PCG stream for seed.
func NewGenerator(seed uint64) *Generator {
	return &Generator{
		seed: seed,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), //nolint:gosec // reproducibility, not security
	}
}

// Seed returns the seed the stream was created with.
func (g *Generator) Seed() uint64 {
	return g.seed
}

// Float32 returns a value in [0, 1).
func (g *Generator) Float32() float32 {
	return g.rng.Float32()
}

// NormFloat64 returns a standard normal sample.
func (g *Generator) NormFloat64() float64 {
	return g.rng.NormFloat64()
}

// Keep draws a Bernoulli coin that is true with probability 1-p.
// It draws one value even when p is 0, so callers gate the call themselves
// when the stream must not advance.
func (g *Generator) Keep(p float32) bool {
	return g.rng.Float32() >= p
}
