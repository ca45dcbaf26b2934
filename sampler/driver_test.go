package sampler

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bayesline/mcfit/checkpoint"
	"github.com/bayesline/mcfit/model"
	"github.com/bayesline/mcfit/rand"
)

// gaussMeanModel is a 1-D Gaussian likelihood with known unit variance and a
// uniform prior over [-10, 10].
func gaussMeanModel(starts [][]float64) *model.Model {
	return &model.Model{
		Name: "gauss-mean",
		LogDensity: func(data, params []float64) []float64 {
			mu := params[0]
			logs := make([]float64, len(data))
			for i, x := range data {
				z := x - mu
				logs[i] = -0.5 * z * z
			}
			return logs
		},
		Lower:      []float64{-10},
		Upper:      []float64{10},
		ProposalSD: []float64{1},
		Start:      starts,
	}
}

func synthData(n int, mu float64, seed int64) []float64 {
	norm := distuv.Normal{Mu: mu, Sigma: 1, Src: rand.NewGenerator(seed)}
	data := make([]float64, n)
	for i := range data {
		data[i] = norm.Rand()
	}
	return data
}

func TestSampleGaussian(t *testing.T) {
	assert := assert.New(t)

	data := synthData(1000, 1.7, 42)
	mod := gaussMeanModel([][]float64{{-5}, {0}, {5}})

	post, err := Sample(data, mod, Options{
		BurnSamples:  500,
		FinalSamples: 2000,
		Seed:         7,
	})
	assert.NoError(err)

	assert.Equal(3*2000, post.Len())
	assert.Equal(1, post.Dim())
	assert.Len(post.LogPost, post.Len())

	// Every chain contributes exactly its final budget, tagged in order
	counts := make(map[int]int)
	for _, c := range post.ChainIdx {
		counts[c]++
	}
	assert.Equal(map[int]int{0: 2000, 1: 2000, 2: 2000}, counts)

	// The posterior mean must track the data mean closely
	assert.InDelta(stat.Mean(data, nil), post.Mean(0), 0.1)
	assert.True(post.StdDev(0) > 0)
}

func TestSampleConfigErrors(t *testing.T) {
	assert := assert.New(t)

	data := synthData(10, 0, 1)

	// Single chain
	mod := gaussMeanModel([][]float64{{0}})
	post, err := Sample(data, mod, Options{BurnSamples: 10, FinalSamples: 10})
	assert.Nil(post)
	assert.Error(err)

	// No density at all
	mod = gaussMeanModel([][]float64{{-5}, {5}})
	mod.LogDensity = nil
	post, err = Sample(data, mod, Options{BurnSamples: 10, FinalSamples: 10})
	assert.Nil(post)
	assert.Error(err)
}

func TestSampleMaxRounds(t *testing.T) {
	assert := assert.New(t)

	// Flat likelihood, tiny steps, far-apart starts: the chains cannot mix,
	// so the round cap must fire instead of looping forever.
	mod := &model.Model{
		Name: "flat",
		LogDensity: func(data, params []float64) []float64 {
			return []float64{0}
		},
		Lower:      []float64{-10},
		Upper:      []float64{10},
		ProposalSD: []float64{0.01},
		Start:      [][]float64{{-9}, {9}},
	}

	post, err := Sample(nil, mod, Options{
		BurnSamples:  50,
		FinalSamples: 50,
		MaxRounds:    2,
		Seed:         5,
	})
	assert.Nil(post)
	assert.Error(err)
	assert.Contains(err.Error(), "convergence")
}

func TestSampleCheckpoint(t *testing.T) {
	assert := assert.New(t)

	cp, err := checkpoint.Open(filepath.Join(t.TempDir(), "fit.db"), "gauss-mean")
	assert.NoError(err)
	defer cp.Close()

	data := synthData(200, 0.5, 3)
	mod := gaussMeanModel([][]float64{{-5}, {5}})

	post, err := Sample(data, mod, Options{
		BurnSamples:  200,
		FinalSamples: 200,
		Seed:         11,
		Checkpoint:   cp,
	})
	assert.NoError(err)
	assert.NotNil(post)

	// The last burn round must have been recorded with full chain state
	state, err := cp.Load()
	assert.NoError(err)
	assert.NotNil(state)
	assert.True(state.Round >= 2)
	assert.Len(state.Chains, 2)
	for _, cs := range state.Chains {
		assert.Len(cs.Position, 1)
		assert.Len(cs.Covariance, 1)
		assert.False(math.IsInf(cs.LogPosterior, 0))
	}

	// A fresh run against the same checkpoint restores instead of erroring
	post, err = Sample(data, gaussMeanModel([][]float64{{-5}, {5}}), Options{
		BurnSamples:  200,
		FinalSamples: 200,
		Seed:         11,
		Checkpoint:   cp,
	})
	assert.NoError(err)
	assert.NotNil(post)
}
