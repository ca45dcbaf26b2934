// Package sampler implements an adaptive multi-chain Metropolis sampler with
// Gelman-Rubin convergence detection. Chains run burn rounds in parallel
// until every parameter's potential scale reduction drops below threshold,
// then a single untuned collection round produces the posterior sample.
package sampler

import (
	"github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"
)

var log = logging.MustGetLogger("sampler")

// A Trace is the immutable output of one chain round: the post-step position
// and log-posterior for every step, plus the round's realized acceptance
// rate.
type Trace struct {
	Params     *mat.Dense // steps x dim
	LogPost    []float64
	AcceptRate float64
}

// Steps returns the number of recorded steps in the trace.
func (t *Trace) Steps() int {
	r, _ := t.Params.Dims()
	return r
}

// Dim returns the parameter dimensionality of the trace.
func (t *Trace) Dim() int {
	_, c := t.Params.Dims()
	return c
}
