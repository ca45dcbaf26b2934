package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	assert := assert.New(t)

	cp, err := Open(filepath.Join(t.TempDir(), "run.db"), "test-run")
	assert.NoError(err)
	defer cp.Close()

	// Nothing saved yet
	state, err := cp.Load()
	assert.NoError(err)
	assert.Nil(state)

	want := &RoundState{
		Round: 3,
		Chains: []ChainState{
			{
				Position:     []float64{0.5, -1.25},
				LogPosterior: -42.5,
				Covariance:   []float64{1, 0.1, 0.1, 2},
				AcceptRate:   0.31,
			},
			{
				Position:     []float64{0.75, 0.0},
				LogPosterior: -40.0,
				Covariance:   []float64{0.5, 0, 0, 0.5},
				AcceptRate:   0.5,
			},
		},
	}
	assert.NoError(cp.Save(want))

	got, err := cp.Load()
	assert.NoError(err)
	assert.Equal(want, got)

	// Save overwrites: only the newest round survives
	want.Round = 4
	want.Chains[0].AcceptRate = 0.2
	assert.NoError(cp.Save(want))

	got, err = cp.Load()
	assert.NoError(err)
	assert.Equal(4, got.Round)
	assert.InDelta(0.2, got.Chains[0].AcceptRate, 1e-12)
}

func TestSeparateKeys(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "run.db")
	a, err := Open(path, "run-a")
	assert.NoError(err)
	defer a.Close()

	b := NewIO(a.db, "run-b")

	assert.NoError(a.Save(&RoundState{Round: 1}))

	state, err := b.Load()
	assert.NoError(err)
	assert.Nil(state)

	state, err = a.Load()
	assert.NoError(err)
	assert.Equal(1, state.Round)
}
