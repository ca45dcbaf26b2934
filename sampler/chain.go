package sampler

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/bayesline/mcfit/model"
	"github.com/bayesline/mcfit/rand"
)

const (
	// bigMoveProb is the chance a proposal perturbation is scaled up to let
	// the chain escape a local mode.
	bigMoveProb  = 0.1
	bigMoveScale = 5.0

	// maxProposalRetries caps the redraw loop for out-of-bounds candidates.
	// Hitting the cap means the bounds are degenerate relative to the
	// proposal scale.
	maxProposalRetries = 1000

	// Exponential smoothing weights for the burn covariance update.
	covKeepWeight  = 0.75
	covRoundWeight = 0.25

	// Below lowAcceptRate the proposal steps are too large for the local
	// curvature and the covariance is shrunk by lowAcceptShrink.
	lowAcceptRate   = 0.15
	lowAcceptShrink = 3.0
)

// A Chain is one independent random walk over parameter space. Each chain
// owns its position, burn covariance, and generator exclusively; the driver
// only touches a chain between rounds.
type Chain struct {
	Index      int
	Pos        []float64
	LogPost    float64
	Cov        *mat.SymDense
	AcceptRate float64
	Budget     int

	data     []float64
	mod      *model.Model
	gen      *rand.Generator
	proposal *distmv.Normal
}

// NewChain builds a chain at the model's Index-th starting point with a
// diagonal burn covariance from the model's proposal scale.
func NewChain(index int, data []float64, mod *model.Model, gen *rand.Generator) (*Chain, error) {
	dim := mod.Dim()

	c := &Chain{
		Index: index,
		Pos:   make([]float64, dim),
		data:  data,
		mod:   mod,
		gen:   gen,
	}
	copy(c.Pos, mod.Start[index])

	cov := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		cov.SetSym(i, i, mod.ProposalSD[i]*mod.ProposalSD[i])
	}
	if err := c.SetCovariance(cov); err != nil {
		return nil, err
	}

	c.LogPost = mod.LogPosterior(data, c.Pos)
	return c, nil
}

// SetCovariance installs a new burn covariance and rebuilds the proposal
// distribution. A covariance that is not positive definite is an error, not
// something to silently repair.
func (c *Chain) SetCovariance(cov *mat.SymDense) error {
	dim := cov.Symmetric()
	prop, ok := distmv.NewNormal(make([]float64, dim), cov, c.gen)
	if !ok {
		return errors.Errorf("Chain %d proposal covariance is not positive definite", c.Index)
	}

	c.Cov = cov
	c.proposal = prop
	return nil
}

// RunRound executes the given number of Metropolis steps and returns the
// round's trace. The post-step position is recorded every step whether or
// not the candidate was accepted, so the trace always has exactly steps
// entries.
func (c *Chain) RunRound(steps int) (*Trace, error) {
	dim := len(c.Pos)

	params := mat.NewDense(steps, dim, nil)
	logPost := make([]float64, steps)
	pert := make([]float64, dim)
	cand := make([]float64, dim)

	accepted := 0
	for i := 0; i < steps; i++ {
		if err := c.propose(cand, pert); err != nil {
			return nil, err
		}

		candLP := c.mod.LogPosterior(c.data, cand)
		if c.accept(candLP - c.LogPost) {
			copy(c.Pos, cand)
			c.LogPost = candLP
			accepted++
		}

		params.SetRow(i, c.Pos)
		logPost[i] = c.LogPost
	}

	c.AcceptRate = float64(accepted) / float64(steps)
	return &Trace{Params: params, LogPost: logPost, AcceptRate: c.AcceptRate}, nil
}

// propose fills cand with an in-bounds candidate position, redrawing the
// perturbation whenever any coordinate violates the model's bounds. Out of
// bounds candidates are never scored.
func (c *Chain) propose(cand, pert []float64) error {
	for try := 0; try < maxProposalRetries; try++ {
		c.proposal.Rand(pert)
		if c.gen.Float64() < bigMoveProb {
			for d := range pert {
				pert[d] *= bigMoveScale
			}
		}
		for d := range cand {
			cand[d] = c.Pos[d] + pert[d]
		}
		if c.mod.InBounds(cand) {
			return nil
		}
	}
	return errors.Errorf(
		"Chain %d found no in-bounds proposal in %d tries - bounds are degenerate for the proposal scale",
		c.Index, maxProposalRetries,
	)
}

// accept runs the Metropolis test on a log-posterior difference. Any ratio
// >= 1 is a certain accept without computing the exponential, so a strongly
// better candidate can never overflow. A NaN difference (-Inf vs -Inf)
// rejects.
func (c *Chain) accept(diff float64) bool {
	if math.IsNaN(diff) {
		return false
	}
	if diff >= 0 {
		return true
	}
	return c.gen.Float64() < math.Exp(diff)
}

// AdaptCovariance blends the round's empirical sample covariance into the
// burn covariance (exponential smoothing) and shrinks the result when the
// round's acceptance rate was too low.
func (c *Chain) AdaptCovariance(tr *Trace) error {
	dim := c.Cov.Symmetric()

	emp := mat.NewSymDense(dim, nil)
	stat.CovarianceMatrix(emp, tr.Params, nil)

	scale := 1.0
	if tr.AcceptRate < lowAcceptRate {
		scale = 1.0 / lowAcceptShrink
		log.Debugf("Chain %d acceptance %.3f below %.2f: shrinking covariance", c.Index, tr.AcceptRate, lowAcceptRate)
	}

	blended := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			v := covKeepWeight*c.Cov.At(i, j) + covRoundWeight*emp.At(i, j)
			blended.SetSym(i, j, scale*v)
		}
	}

	return c.SetCovariance(blended)
}
