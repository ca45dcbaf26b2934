package sampler

import (
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/bayesline/mcfit/checkpoint"
	"github.com/bayesline/mcfit/model"
	"github.com/bayesline/mcfit/rand"
)

// Options control the multi-chain driver. The zero value of any field is
// replaced by its default.
type Options struct {
	// ConvergenceThreshold is the R-hat below which a parameter counts as
	// converged. Default 1.2.
	ConvergenceThreshold float64

	// FinalSamples is the per-chain budget of the single collection round
	// run after convergence. Default 5000.
	FinalSamples int

	// BurnSamples is the per-chain budget of each tuning round. Default
	// 2000.
	BurnSamples int

	// MaxRounds caps the number of burn rounds so a never-converging fit
	// terminates with an error instead of looping forever. Default 200.
	MaxRounds int

	// Verbosity: 0 silent, 1 phase announcements, 2 per-parameter R-hat,
	// 3 per-chain acceptance rates.
	Verbosity int

	// Seed for the chain generators; chain c is seeded Seed+c. Default 1.
	Seed int64

	// Checkpoint, when non-nil, is written after every completed round and
	// consulted once at startup to restore a previous run's chain state.
	Checkpoint *checkpoint.IO
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		ConvergenceThreshold: 1.2,
		FinalSamples:         5000,
		BurnSamples:          2000,
		MaxRounds:            200,
		Seed:                 1,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ConvergenceThreshold == 0 {
		o.ConvergenceThreshold = def.ConvergenceThreshold
	}
	if o.FinalSamples == 0 {
		o.FinalSamples = def.FinalSamples
	}
	if o.BurnSamples == 0 {
		o.BurnSamples = def.BurnSamples
	}
	if o.MaxRounds == 0 {
		o.MaxRounds = def.MaxRounds
	}
	if o.Seed == 0 {
		o.Seed = def.Seed
	}
	return o
}

// Sample fits the model to data: burn rounds with adaptive proposal tuning
// until Gelman-Rubin convergence, then one untuned collection round whose
// concatenated traces form the returned posterior sample.
func Sample(data []float64, mod *model.Model, opt Options) (*Posterior, error) {
	opt = opt.withDefaults()

	mod, err := model.Complete(mod)
	if err != nil {
		return nil, err
	}
	if err := mod.Check(); err != nil {
		return nil, err
	}

	chains := make([]*Chain, mod.NumChains())
	for i := range chains {
		chains[i], err = NewChain(i, data, mod, rand.NewGenerator(opt.Seed+int64(i)))
		if err != nil {
			return nil, err
		}
	}

	if opt.Checkpoint != nil {
		if err := restore(chains, opt.Checkpoint); err != nil {
			return nil, err
		}
	}

	if opt.Verbosity >= 1 {
		log.Noticef("Starting %d chains (%d params, burn rounds of %d)", len(chains), mod.Dim(), opt.BurnSamples)
	}

	for round := 1; ; round++ {
		if round > opt.MaxRounds {
			return nil, errors.Errorf("No convergence after %d rounds (R-hat threshold %.3f)", opt.MaxRounds, opt.ConvergenceThreshold)
		}

		for _, c := range chains {
			c.Budget = opt.BurnSamples
		}
		traces, err := runAll(chains)
		if err != nil {
			return nil, err
		}

		if opt.Verbosity >= 3 {
			for _, c := range chains {
				log.Debugf("Round %d chain %d acceptance %.3f", round, c.Index, c.AcceptRate)
			}
		}

		if opt.Checkpoint != nil {
			if err := opt.Checkpoint.Save(snapshot(round, chains)); err != nil {
				return nil, err
			}
		}

		// The first round's statistics are still adapting, so convergence is
		// never declared before round 2, and always from the latest round
		// only.
		if round > 1 {
			done, rhats, err := Converged(traces, opt.ConvergenceThreshold)
			if err != nil {
				return nil, err
			}
			if opt.Verbosity >= 2 {
				for v, r := range rhats {
					log.Infof("Round %d param %d R-hat %.4f", round, v, r)
				}
			}
			if done {
				if opt.Verbosity >= 1 {
					log.Noticef("Converged after %d rounds", round)
				}
				break
			}
		}

		for i, c := range chains {
			if err := c.AdaptCovariance(traces[i]); err != nil {
				return nil, err
			}
		}
	}

	// One collection round with the tuned covariances, no further tuning:
	// adapting-covariance samples never enter the returned posterior.
	if opt.Verbosity >= 1 {
		log.Noticef("Collecting %d samples per chain", opt.FinalSamples)
	}
	for _, c := range chains {
		c.Budget = opt.FinalSamples
	}
	finalTraces, err := runAll(chains)
	if err != nil {
		return nil, err
	}

	return newPosterior(finalTraces), nil
}

// runAll executes one round per chain concurrently. Chains share nothing but
// the read-only data, so the WaitGroup join is the only synchronization
// point.
func runAll(chains []*Chain) ([]*Trace, error) {
	traces := make([]*Trace, len(chains))
	errs := make([]error, len(chains))

	var wg sync.WaitGroup
	for i, c := range chains {
		wg.Add(1)
		go func(i int, c *Chain) {
			defer wg.Done()
			traces[i], errs[i] = c.RunRound(c.Budget)
		}(i, c)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, errors.Wrapf(err, "Chain %d round failed", i)
		}
	}
	return traces, nil
}

// snapshot captures the post-round chain states for checkpointing.
func snapshot(round int, chains []*Chain) *checkpoint.RoundState {
	state := &checkpoint.RoundState{
		Round:  round,
		Chains: make([]checkpoint.ChainState, len(chains)),
	}

	for i, c := range chains {
		dim := c.Cov.Symmetric()
		cov := make([]float64, 0, dim*dim)
		for r := 0; r < dim; r++ {
			for j := 0; j < dim; j++ {
				cov = append(cov, c.Cov.At(r, j))
			}
		}
		state.Chains[i] = checkpoint.ChainState{
			Position:     append([]float64(nil), c.Pos...),
			LogPosterior: c.LogPost,
			Covariance:   cov,
			AcceptRate:   c.AcceptRate,
		}
	}

	return state
}

// restore applies a previously saved round state to freshly built chains. A
// checkpoint from a different model shape is ignored with a warning rather
// than corrupting the run.
func restore(chains []*Chain, cp *checkpoint.IO) error {
	state, err := cp.Load()
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	dim := len(chains[0].Pos)
	if len(state.Chains) != len(chains) {
		log.Warningf("Checkpoint has %d chains, run has %d: ignoring checkpoint", len(state.Chains), len(chains))
		return nil
	}
	for _, cs := range state.Chains {
		if len(cs.Position) != dim || len(cs.Covariance) != dim*dim {
			log.Warningf("Checkpoint dimensionality does not match model: ignoring checkpoint")
			return nil
		}
	}

	for i, c := range chains {
		cs := state.Chains[i]
		copy(c.Pos, cs.Position)
		c.LogPost = cs.LogPosterior
		c.AcceptRate = cs.AcceptRate

		cov := mat.NewSymDense(dim, nil)
		for r := 0; r < dim; r++ {
			for j := r; j < dim; j++ {
				cov.SetSym(r, j, cs.Covariance[r*dim+j])
			}
		}
		if err := c.SetCovariance(cov); err != nil {
			return errors.Wrapf(err, "Checkpoint covariance for chain %d is unusable", i)
		}
	}

	log.Noticef("Restored chain state from round %d checkpoint", state.Round)
	return nil
}
