package sampler

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// A Posterior is the final sample returned once the chains have converged:
// all chains' collection-round draws concatenated, row-aligned with their
// log-posteriors and originating chain indexes.
type Posterior struct {
	Params   *mat.Dense // (numChains * finalSamples) x dim
	LogPost  []float64
	ChainIdx []int
}

// newPosterior concatenates one final-round trace per chain.
func newPosterior(traces []*Trace) *Posterior {
	dim := traces[0].Dim()
	total := 0
	for _, tr := range traces {
		total += tr.Steps()
	}

	p := &Posterior{
		Params:   mat.NewDense(total, dim, nil),
		LogPost:  make([]float64, 0, total),
		ChainIdx: make([]int, 0, total),
	}

	row := 0
	for c, tr := range traces {
		steps := tr.Steps()
		for i := 0; i < steps; i++ {
			p.Params.SetRow(row, tr.Params.RawRowView(i))
			row++
		}
		p.LogPost = append(p.LogPost, tr.LogPost...)
		for i := 0; i < steps; i++ {
			p.ChainIdx = append(p.ChainIdx, c)
		}
	}

	return p
}

// Len returns the number of posterior draws.
func (p *Posterior) Len() int {
	r, _ := p.Params.Dims()
	return r
}

// Dim returns the parameter dimensionality.
func (p *Posterior) Dim() int {
	_, c := p.Params.Dims()
	return c
}

// Mean returns the posterior mean of the given parameter.
func (p *Posterior) Mean(v int) float64 {
	return stat.Mean(p.col(v), nil)
}

// StdDev returns the posterior standard deviation of the given parameter.
func (p *Posterior) StdDev(v int) float64 {
	return stat.StdDev(p.col(v), nil)
}

func (p *Posterior) col(v int) []float64 {
	col := make([]float64, p.Len())
	mat.Col(col, v, p.Params)
	return col
}
