package rand

import (
	"github.com/seehuhn/mt19937"
	exprand "golang.org/x/exp/rand"
)

// A Generator is a seeded Mersenne twister owned by exactly one chain. It
// implements exp/rand.Source so it can drive the gonum distributions
// directly; no locking is needed because a chain never shares its generator.
type Generator struct {
	mt  *mt19937.MT19937
	rnd *exprand.Rand
}

// NewGenerator returns a new PRNG based on the given seed.
func NewGenerator(seed int64) *Generator {
	mt := mt19937.New()
	mt.Seed(seed)

	g := &Generator{mt: mt}
	g.rnd = exprand.New(g)

	return g
}

// Seed implements exp/rand.Source.
func (g *Generator) Seed(seed uint64) {
	g.mt.Seed(int64(seed))
}

// Uint64 implements exp/rand.Source.
func (g *Generator) Uint64() uint64 {
	return g.mt.Uint64()
}

// Int63 provides the same interface as Go's math/rand.
func (g *Generator) Int63() int64 {
	return g.mt.Int63()
}

// Float64 returns a uniform draw from [0, 1).
func (g *Generator) Float64() float64 {
	return g.rnd.Float64()
}

// NormFloat64 returns a standard normal draw.
func (g *Generator) NormFloat64() float64 {
	return g.rnd.NormFloat64()
}
