package sampler

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Converged computes the Gelman-Rubin potential scale reduction per
// parameter from one completed round per chain and reports whether every
// parameter is below threshold. An undefined R-hat (0/0 from zero
// within-chain variance) counts as converged: a degenerate chain cannot
// indicate non-convergence. The per-parameter R-hat values are returned for
// reporting.
func Converged(traces []*Trace, threshold float64) (bool, []float64, error) {
	numChains := len(traces)
	if numChains < 2 {
		return false, nil, errors.Errorf("Convergence check requires at least 2 chains, got %d", numChains)
	}

	steps := traces[0].Steps()
	dim := traces[0].Dim()
	for i, tr := range traces {
		if tr.Steps() != steps || tr.Dim() != dim {
			return false, nil, errors.Errorf(
				"Chain %d trace is %dx%d, expected %dx%d", i, tr.Steps(), tr.Dim(), steps, dim,
			)
		}
	}
	if steps < 2 {
		return false, nil, errors.Errorf("Convergence check requires at least 2 steps per round, got %d", steps)
	}

	chainCount := float64(numChains)
	sampleCount := float64(steps)

	rhats := make([]float64, dim)
	converged := true
	col := make([]float64, steps)

	for v := 0; v < dim; v++ {
		means := make([]float64, numChains)
		variances := make([]float64, numChains)
		for c, tr := range traces {
			mat.Col(col, v, tr.Params)
			means[c] = stat.Mean(col, nil)
			variances[c] = stat.Variance(col, nil)
		}

		globalMean := stat.Mean(means, nil)
		within := stat.Mean(variances, nil)

		between := 0.0
		for _, m := range means {
			between += (m - globalMean) * (m - globalMean)
		}
		between *= sampleCount / (chainCount - 1)

		pooled := (sampleCount-1)/sampleCount*within + between/sampleCount
		rhat := math.Sqrt(pooled / within)
		rhats[v] = rhat

		if !math.IsNaN(rhat) && rhat >= threshold {
			converged = false
		}
	}

	return converged, rhats, nil
}
