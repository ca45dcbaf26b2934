package rand

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerator(t *testing.T) {
	assert := assert.New(t)

	g1 := NewGenerator(42)
	g2 := NewGenerator(42)
	g3 := NewGenerator(43)

	same := 0
	for i := 0; i < 100; i++ {
		a, b, c := g1.Float64(), g2.Float64(), g3.Float64()
		assert.True(a >= 0 && a < 1)
		assert.Equal(a, b)
		if a == c {
			same++
		}
	}
	assert.True(same < 100, "different seeds should produce different streams")
}

func TestGeneratorReseed(t *testing.T) {
	assert := assert.New(t)

	g := NewGenerator(7)
	first := g.Int63()

	g.Seed(7)
	assert.Equal(first, g.Int63())
}
