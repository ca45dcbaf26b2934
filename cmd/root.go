package cmd

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bayesline/mcfit/checkpoint"
	"github.com/bayesline/mcfit/model"
	"github.com/bayesline/mcfit/rand"
	"github.com/bayesline/mcfit/sampler"
)

var dataFile string
var chainCount int
var randomSeed int64
var threshold float64
var burnSamples int
var finalSamples int
var verbosity int
var checkpointPath string

var logFormatter = logging.MustStringFormatter(`%{level:.4s} %{module}: %{message}`)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mcfit",
	Short: "Bayesian parameter estimation via adaptive multi-chain MCMC",
	Long: `mcfit fits probabilistic models to experimental data with a
multi-chain Metropolis sampler. Chains run tuning rounds in parallel until
the Gelman-Rubin statistic declares convergence, then a single collection
round produces the posterior sample.

The built-in model is a Gaussian with unknown mean and standard deviation,
fit to one observation per line of the data file (or to synthetic draws when
no file is given).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()

		data, err := loadData()
		if err != nil {
			return err
		}

		mod := gaussianModel(data, chainCount)

		opt := sampler.Options{
			ConvergenceThreshold: threshold,
			FinalSamples:         finalSamples,
			BurnSamples:          burnSamples,
			Verbosity:            verbosity,
			Seed:                 randomSeed,
		}
		if checkpointPath != "" {
			cp, err := checkpoint.Open(checkpointPath, mod.Name)
			if err != nil {
				return err
			}
			defer cp.Close()
			opt.Checkpoint = cp
		}

		post, err := sampler.Sample(data, mod, opt)
		if err != nil {
			return err
		}

		fmt.Printf("Observations: %d\n", len(data))
		fmt.Printf("Posterior draws: %d (%d chains)\n", post.Len(), chainCount)
		names := []string{"mu", "sigma"}
		for v := 0; v < post.Dim(); v++ {
			fmt.Printf("%-6s mean=%.5f sd=%.5f\n", names[v], post.Mean(v), post.StdDev(v))
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.PersistentFlags().StringVarP(&dataFile, "data", "d", "", "Data file, one observation per line (default is synthetic draws)")
	rootCmd.PersistentFlags().IntVarP(&chainCount, "chains", "n", 3, "Number of chains (at least 2)")
	rootCmd.PersistentFlags().Int64VarP(&randomSeed, "seed", "r", 1, "Random seed to use")
	rootCmd.PersistentFlags().Float64VarP(&threshold, "threshold", "t", 1.2, "Gelman-Rubin convergence threshold")
	rootCmd.PersistentFlags().IntVarP(&burnSamples, "burn", "b", 2000, "Samples per chain per tuning round")
	rootCmd.PersistentFlags().IntVarP(&finalSamples, "final", "f", 5000, "Samples per chain in the collection round")
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", 1, "Verbosity: 0 silent, 1 phases, 2 R-hat, 3 acceptance")
	rootCmd.PersistentFlags().StringVarP(&checkpointPath, "checkpoint", "c", "", "Checkpoint database file (optional)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// setupLogging maps the CLI verbosity to go-logging levels for our modules.
func setupLogging() {
	logging.SetFormatter(logFormatter)
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	logging.SetBackend(backend)

	level := logging.ERROR
	switch {
	case verbosity >= 3:
		level = logging.DEBUG
	case verbosity == 2:
		level = logging.INFO
	case verbosity == 1:
		level = logging.NOTICE
	}
	logging.SetLevel(level, "sampler")
	logging.SetLevel(level, "checkpoint")
}

// loadData reads one float per line, skipping blanks and # comments. With no
// data file we synthesize draws so the tool can demo itself.
func loadData() ([]float64, error) {
	if dataFile == "" {
		gen := rand.NewGenerator(randomSeed)
		norm := distuv.Normal{Mu: 2.5, Sigma: 1.5, Src: gen}
		data := make([]float64, 1000)
		for i := range data {
			data[i] = norm.Rand()
		}
		return data, nil
	}

	f, err := os.Open(dataFile)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not READ data from %s", dataFile)
	}
	defer f.Close()

	var data []float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		val, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Could not PARSE observation %q in %s", line, dataFile)
		}
		data = append(data, val)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "Failure reading %s", dataFile)
	}
	if len(data) < 2 {
		return nil, errors.Errorf("Need at least 2 observations, found %d in %s", len(data), dataFile)
	}

	return data, nil
}

// gaussianModel builds the built-in two-parameter (mu, sigma) Gaussian with
// chain starts spread around the data's moments.
func gaussianModel(data []float64, chains int) *model.Model {
	mean := stat.Mean(data, nil)
	sd := stat.StdDev(data, nil)
	if sd == 0 || math.IsNaN(sd) {
		sd = 1
	}

	starts := make([][]float64, chains)
	for i := range starts {
		frac := 0.5
		if chains > 1 {
			frac = float64(i) / float64(chains-1)
		}
		starts[i] = []float64{
			mean + (2*frac-1)*2*sd,
			sd * (0.5 + frac),
		}
	}

	return &model.Model{
		Name: "gaussian",
		LogDensity: func(data, params []float64) []float64 {
			mu, sigma := params[0], params[1]
			logs := make([]float64, len(data))
			base := -math.Log(sigma) - 0.5*math.Log(2*math.Pi)
			for i, x := range data {
				z := (x - mu) / sigma
				logs[i] = base - 0.5*z*z
			}
			return logs
		},
		Lower:      []float64{mean - 100*sd, 1e-3 * sd},
		Upper:      []float64{mean + 100*sd, 100 * sd},
		ProposalSD: []float64{sd / 2, sd / 4},
		Start:      starts,
	}
}
