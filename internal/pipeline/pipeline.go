// Package pipeline chains fetch, preprocessing, analysis, forecasting and
// portfolio optimization into one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"FinForecast/internal/collector"
	"FinForecast/internal/config"
	"FinForecast/internal/metrics"
	"FinForecast/internal/model"
	"FinForecast/internal/preprocess"
	"FinForecast/internal/recorder"
)

// Analysis is the per-ticker output of the feature stage.
type Analysis struct {
	Symbol        string
	Decomposition *model.Decomposition
	PriceADF      *model.StationarityTest
	ReturnADF     *model.StationarityTest
	Risk          model.RiskMetrics
	Snapshot      model.Snapshot
}

// Result aggregates everything one run produced.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Coverage   []collector.Coverage
	Cleaning   []preprocess.Report
	Series     []model.ProcessedSeries
	Analyses   []Analysis
	Forecasts  []model.Forecast
	Weights    *model.PortfolioWeights
	Allocation map[string]decimal.Decimal
	Backtest   *model.BacktestResult
}

// Rows returns the number of bars per ticker after alignment.
func (r *Result) Rows() int {
	if len(r.Series) == 0 {
		return 0
	}
	return r.Series[0].Len()
}

// Runner executes pipeline stages against one configuration.
type Runner struct {
	Config   *config.Config
	Fetcher  collector.Fetcher
	Recorder recorder.Recorder
	Metrics  *metrics.Metrics
}

// NewFetcher builds the data source named by data_source.provider.
func NewFetcher(cfg *config.Config) collector.Fetcher {
	ds := cfg.DataSource
	switch ds.Provider {
	case "rest":
		return collector.NewRESTFetcher(ds.BaseURL, ds.APIKey, ds.Proxy)
	case "mock":
		return &collector.MockFetcher{}
	default:
		return collector.NewYahooFetcher(ds.Proxy, ds.SymbolMap)
	}
}

// NewRunner creates a Runner. A nil recorder records nothing.
func NewRunner(cfg *config.Config, fetcher collector.Fetcher, rec recorder.Recorder) *Runner {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Runner{
		Config:   cfg,
		Fetcher:  fetcher,
		Recorder: rec,
		Metrics:  metrics.New(),
	}
}

// Run executes every stage in order, persisting intermediate files and the run
// history. Fetch, cleaning and model fitting failures abort the run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), StartedAt: time.Now()}
	run := &recorder.RunRecord{ID: res.RunID, StartedAt: res.StartedAt, Tickers: r.Config.Tickers}
	if err := r.Recorder.RecordRun(run); err != nil {
		log.Error().Err(err).Msg("record run start")
	}
	log.Info().Str("run_id", res.RunID).Strs("tickers", r.Config.Tickers).Msg("pipeline run started")

	err := r.run(ctx, res)

	res.FinishedAt = time.Now()
	run.FinishedAt = res.FinishedAt
	run.Rows = res.Rows()
	run.Status = recorder.StatusOK
	if err != nil {
		run.Status = recorder.StatusFailed
		run.Error = err.Error()
	} else {
		r.Metrics.LastSuccess.Set(float64(res.FinishedAt.Unix()))
		r.record(res)
	}
	if rerr := r.Recorder.RecordRun(run); rerr != nil {
		log.Error().Err(rerr).Msg("record run finish")
	}
	if merr := r.Metrics.WriteTextfile(r.Config.Metrics.Textfile); merr != nil {
		log.Error().Err(merr).Msg("write metrics textfile")
	}
	if err != nil {
		return res, err
	}
	log.Info().
		Str("run_id", res.RunID).
		Dur("elapsed", res.FinishedAt.Sub(res.StartedAt)).
		Msg("pipeline run finished")
	return res, nil
}

func (r *Runner) run(ctx context.Context, res *Result) error {
	raws, coverage, err := r.Fetch(ctx)
	if err != nil {
		return err
	}
	res.Coverage = coverage

	if res.Series, res.Cleaning, err = r.Process(raws); err != nil {
		return err
	}
	res.Analyses = r.Analyze(res.Series)

	if res.Forecasts, err = r.ForecastAll(ctx, res.Series); err != nil {
		return err
	}
	res.Weights, res.Allocation, res.Backtest, err = r.Optimize(res.Series, res.Forecasts)
	return err
}

func (r *Runner) record(res *Result) {
	for i := range res.Analyses {
		if err := r.Recorder.RecordMetrics(res.RunID, &res.Analyses[i].Risk); err != nil {
			log.Error().Err(err).Msg("record risk metrics")
		}
	}
	for i := range res.Forecasts {
		if err := r.Recorder.RecordForecast(res.RunID, &res.Forecasts[i]); err != nil {
			log.Error().Err(err).Msg("record forecast")
		}
	}
	if res.Weights != nil {
		if err := r.Recorder.RecordWeights(res.RunID, res.Weights); err != nil {
			log.Error().Err(err).Msg("record weights")
		}
	}
}

// stage times fn and counts its failure under name.
func (r *Runner) stage(name string, fn func() error) error {
	started := time.Now()
	err := fn()
	r.Metrics.ObserveStage(name, started, err)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn().Str("stage", name).Msg("stage cancelled")
		} else {
			log.Error().Err(err).Str("stage", name).Msg("stage failed")
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	log.Debug().Str("stage", name).Dur("elapsed", time.Since(started)).Msg("stage done")
	return nil
}
