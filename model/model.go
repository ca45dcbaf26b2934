package model

import (
	"math"

	"github.com/pkg/errors"
)

// A DensityFunc evaluates per-observation density (or log-density) terms for
// the given data under the given parameter vector. The returned slice is
// aligned with the observations in data.
type DensityFunc func(data, params []float64) []float64

// A PriorFunc evaluates per-parameter prior density terms at the given
// parameter vector.
type PriorFunc func(params []float64) []float64

// Model is the contract the sampler requires: a (log-)likelihood, a prior,
// box bounds, an initial per-dimension proposal scale, and one starting point
// per chain. A Model may be partially specified; Complete fills in whatever
// can be derived.
type Model struct {
	Name string

	Density    DensityFunc // Per-observation densities
	LogDensity DensityFunc // Per-observation log-densities

	Prior         PriorFunc                      // Per-parameter prior densities
	LogPrior      func(params []float64) float64 // Joint log-prior
	SamplingPrior PriorFunc                      // Prior used when drawing start points from the prior

	Lower      []float64   // Lower bound per parameter (may be -Inf)
	Upper      []float64   // Upper bound per parameter (may be +Inf)
	ProposalSD []float64   // Initial proposal std dev per parameter
	Start      [][]float64 // One starting parameter vector per chain
}

// Dim returns the number of parameters in the model.
func (m *Model) Dim() int {
	return len(m.ProposalSD)
}

// NumChains returns the number of starting points (and thus chains).
func (m *Model) NumChains() int {
	return len(m.Start)
}

// SumSkipNaN sums the given terms, skipping NaN entries. Note that -Inf is
// NOT skipped: a zero-density observation must force the total to -Inf so
// that the candidate is rejected.
func SumSkipNaN(terms []float64) float64 {
	total := 0.0
	for _, t := range terms {
		if !math.IsNaN(t) {
			total += t
		}
	}
	return total
}

// Complete returns a copy of the model with every derivable member filled
// in. The only unsatisfiable configuration is a model that supplies neither
// Density nor LogDensity.
func Complete(m *Model) (*Model, error) {
	c := *m

	if c.Density == nil && c.LogDensity == nil {
		return nil, errors.Errorf("Model %s supplies neither Density nor LogDensity", c.Name)
	}

	if c.LogDensity == nil {
		density := c.Density
		c.LogDensity = func(data, params []float64) []float64 {
			dens := density(data, params)
			logs := make([]float64, len(dens))
			for i, d := range dens {
				logs[i] = math.Log(d)
			}
			return logs
		}
	}

	if c.Density == nil {
		logDensity := c.LogDensity
		c.Density = func(data, params []float64) []float64 {
			logs := logDensity(data, params)
			dens := make([]float64, len(logs))
			for i, l := range logs {
				dens[i] = math.Exp(l)
			}
			return dens
		}
	}

	if c.Prior == nil {
		// Uniform (improper) prior: weight 1 everywhere
		c.Prior = func(params []float64) []float64 {
			terms := make([]float64, len(params))
			for i := range terms {
				terms[i] = 1.0
			}
			return terms
		}
	}

	if c.LogPrior == nil {
		prior := c.Prior
		c.LogPrior = func(params []float64) float64 {
			terms := prior(params)
			logs := make([]float64, len(terms))
			for i, t := range terms {
				logs[i] = math.Log(t)
			}
			return SumSkipNaN(logs)
		}
	}

	if c.SamplingPrior == nil {
		c.SamplingPrior = c.Prior
	}

	return &c, nil
}

// Check returns an error if there is a problem with the (completed) model.
func (m *Model) Check() error {
	dim := m.Dim()
	if dim < 1 {
		return errors.Errorf("Model %s has no parameters (empty ProposalSD)", m.Name)
	}

	if len(m.Lower) != dim || len(m.Upper) != dim {
		return errors.Errorf(
			"Model %s bound length mismatch: %d lower, %d upper for %d params",
			m.Name, len(m.Lower), len(m.Upper), dim,
		)
	}

	for i := 0; i < dim; i++ {
		if m.Lower[i] > m.Upper[i] {
			return errors.Errorf("Model %s has Lower[%d] > Upper[%d]", m.Name, i, i)
		}
		if m.ProposalSD[i] <= 0 || math.IsNaN(m.ProposalSD[i]) || math.IsInf(m.ProposalSD[i], 0) {
			return errors.Errorf("Model %s has invalid ProposalSD[%d] = %f", m.Name, i, m.ProposalSD[i])
		}
	}

	if len(m.Start) < 2 {
		return errors.Errorf("Model %s supplies %d starting points - need at least 2 chains", m.Name, len(m.Start))
	}

	for c, start := range m.Start {
		if len(start) != dim {
			return errors.Errorf("Model %s starting point %d has %d dims, expected %d", m.Name, c, len(start), dim)
		}
		if !m.InBounds(start) {
			return errors.Errorf("Model %s starting point %d is out of bounds", m.Name, c)
		}
	}

	if m.Density == nil && m.LogDensity == nil {
		return errors.Errorf("Model %s has no density - did you call Complete?", m.Name)
	}

	return nil
}

// InBounds is true when every coordinate of params lies within the model's
// box bounds (inclusive).
func (m *Model) InBounds(params []float64) bool {
	for i, p := range params {
		if p < m.Lower[i] || p > m.Upper[i] {
			return false
		}
	}
	return true
}

// LogPosterior evaluates the joint log-posterior of params given data: the
// NaN-safe sum of per-observation log-densities plus the log-prior. Out of
// bounds parameters score -Inf. The bounds check is defensive: the sampler
// never scores an out-of-bounds candidate.
func (m *Model) LogPosterior(data, params []float64) float64 {
	if !m.InBounds(params) {
		return math.Inf(-1)
	}
	ll := SumSkipNaN(m.LogDensity(data, params))
	return ll + m.LogPrior(params)
}
