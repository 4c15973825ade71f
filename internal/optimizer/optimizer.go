// Package optimizer searches the moving average strategy's parameter space
// with seeded random sampling, scoring each candidate by the sharpe ratio of
// a full backtest replay.
package optimizer

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/openquant-lab/trendtest/internal/backtest"
	"github.com/openquant-lab/trendtest/internal/logger"
	"github.com/openquant-lab/trendtest/internal/results"
	"github.com/openquant-lab/trendtest/internal/strategy"
	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/openquant-lab/trendtest/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// Options configures an optimization run.
type Options struct {
	// Engine is the base simulation configuration. The sampled stop-loss and
	// take-profit multipliers override its values per trial.
	Engine backtest.Config `yaml:"engine" json:"engine"`
	// Space bounds the sampling. Zero value means DefaultSpace.
	Space Space `yaml:"space" json:"space"`
	// Trials is the number of candidates to evaluate.
	Trials int `yaml:"trials" json:"trials"`
	// Workers caps the parallel evaluations. Zero means GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers"`
	// Seed makes the sampling reproducible.
	Seed int64 `yaml:"seed" json:"seed"`
	// ShowProgress renders a progress bar on stderr.
	ShowProgress bool `yaml:"show_progress" json:"show_progress"`
}

// TrialResult is one evaluated candidate. Failed candidates score -Inf and
// carry the failure.
type TrialResult struct {
	Number      int
	Candidate   Candidate
	SharpeRatio float64
	FinalValue  float64
	Err         error
}

// Report is the outcome of an optimization run.
type Report struct {
	// RunID identifies this run in the trial ledger.
	RunID string
	// Best is the winning trial.
	Best TrialResult
	// BestResult is the full replay of the winning candidate.
	BestResult *backtest.Result
	// Trials holds every evaluated candidate in trial order.
	Trials []TrialResult
}

// Optimizer evaluates sampled candidates over a fixed bar series.
type Optimizer struct {
	opts  Options
	log   *logger.Logger
	store *results.Store
}

// NewOptimizer validates the options. The store is optional; when present,
// every trial is recorded in its ledger.
func NewOptimizer(opts Options, store *results.Store, log *logger.Logger) (*Optimizer, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if opts.Trials <= 0 {
		return nil, errors.Newf(errors.ErrCodeSearchSpaceError, "trials must be positive, got %d", opts.Trials)
	}

	if opts.Space.Limits == nil && opts.Space.ShortPeriod == (IntRange{}) {
		opts.Space = DefaultSpace()
	}

	if err := opts.Space.Validate(); err != nil {
		return nil, err
	}

	if err := opts.Engine.Validate(); err != nil {
		return nil, err
	}

	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	return &Optimizer{opts: opts, log: log, store: store}, nil
}

// Run samples, evaluates and ranks candidates over the bar series, then
// replays the winner. The series is the full history; each trial replays
// only its sampled tail. Cancelling ctx stops dispatching trials; in-flight
// evaluations finish before the context error is returned.
func (o *Optimizer) Run(ctx context.Context, bars []types.Bar, symbol string) (*Report, error) {
	runID := uuid.NewString()

	// Sampling happens up front on a single seeded source, so the candidate
	// list does not depend on worker scheduling.
	rng := rand.New(rand.NewSource(o.opts.Seed))
	candidates := make([]Candidate, o.opts.Trials)

	for i := range candidates {
		candidates[i] = o.opts.Space.Sample(rng)
	}

	o.log.Info("starting optimization",
		zap.String("run_id", runID),
		zap.String("symbol", symbol),
		zap.Int("trials", o.opts.Trials),
		zap.Int("workers", o.opts.Workers),
		zap.Int64("seed", o.opts.Seed),
	)

	var bar *progressbar.ProgressBar
	if o.opts.ShowProgress {
		bar = progressbar.Default(int64(o.opts.Trials))
	}

	trials := make([]TrialResult, o.opts.Trials)
	numbers := make(chan int)

	var wg sync.WaitGroup

	for w := 0; w < o.opts.Workers; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for number := range numbers {
				trials[number] = o.evaluate(number, candidates[number], bars)

				if bar != nil {
					_ = bar.Add(1)
				}
			}
		}()
	}

	for number := range candidates {
		if ctx.Err() != nil {
			break
		}

		numbers <- number
	}

	close(numbers)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeTrialFailed, "optimization interrupted", err)
	}

	if err := o.recordTrials(runID, symbol, trials); err != nil {
		return nil, err
	}

	best, err := o.pickBest(trials)
	if err != nil {
		return nil, err
	}

	bestResult, err := o.replay(best.Candidate, bars)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeTrialFailed, "cannot replay best candidate", err)
	}

	o.log.Info("optimization finished",
		zap.String("run_id", runID),
		zap.Int("best_trial", best.Number),
		zap.Float64("best_sharpe", best.SharpeRatio),
		zap.Float64("best_final_value", bestResult.Metrics.FinalValue),
	)

	return &Report{
		RunID:      runID,
		Best:       best,
		BestResult: bestResult,
		Trials:     trials,
	}, nil
}

func (o *Optimizer) evaluate(number int, candidate Candidate, bars []types.Bar) TrialResult {
	result, err := o.replay(candidate, bars)
	if err != nil {
		o.log.Warn("trial failed",
			zap.Int("trial", number),
			zap.Error(err),
		)

		return TrialResult{
			Number:      number,
			Candidate:   candidate,
			SharpeRatio: math.Inf(-1),
			FinalValue:  math.Inf(-1),
			Err:         err,
		}
	}

	return TrialResult{
		Number:      number,
		Candidate:   candidate,
		SharpeRatio: result.Metrics.SharpeRatio,
		FinalValue:  result.Metrics.FinalValue,
	}
}

func (o *Optimizer) replay(candidate Candidate, bars []types.Bar) (*backtest.Result, error) {
	strat, err := strategy.NewMovingAverage(candidate.Strategy)
	if err != nil {
		return nil, err
	}

	window := bars
	if candidate.Limit > 0 && len(bars) > candidate.Limit {
		window = bars[len(bars)-candidate.Limit:]
	}

	annotated, err := strat.Annotate(window)
	if err != nil {
		return nil, err
	}

	config := o.opts.Engine
	config.StopLossMultiplier = candidate.StopLossMultiplier
	config.TakeProfitMultiplier = candidate.TakeProfitMultiplier

	engine, err := backtest.NewEngine(config, logger.NewNopLogger())
	if err != nil {
		return nil, err
	}

	return engine.Run(annotated)
}

func (o *Optimizer) recordTrials(runID, symbol string, trials []TrialResult) error {
	if o.store == nil {
		return nil
	}

	for _, trial := range trials {
		params, err := json.Marshal(trial.Candidate)
		if err != nil {
			return errors.Wrap(errors.ErrCodeResultsStoreFailure, "cannot encode trial params", err)
		}

		err = o.store.RecordTrial(results.TrialRecord{
			RunID:       runID,
			Symbol:      symbol,
			TrialNumber: trial.Number,
			Params:      string(params),
			SharpeRatio: trial.SharpeRatio,
			FinalValue:  trial.FinalValue,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (o *Optimizer) pickBest(trials []TrialResult) (TrialResult, error) {
	best := TrialResult{Number: -1, SharpeRatio: math.Inf(-1)}

	for _, trial := range trials {
		if trial.Err != nil {
			continue
		}

		if trial.SharpeRatio > best.SharpeRatio || best.Number < 0 {
			best = trial
		}
	}

	if best.Number < 0 {
		return TrialResult{}, errors.New(errors.ErrCodeTrialFailed, "every trial failed")
	}

	return best, nil
}
