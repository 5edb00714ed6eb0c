package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"FinForecast/internal/calculator"
	"FinForecast/internal/collector"
	"FinForecast/internal/dataset"
	"FinForecast/internal/decompose"
	"FinForecast/internal/forecast"
	"FinForecast/internal/model"
	"FinForecast/internal/portfolio"
	"FinForecast/internal/preprocess"
)

// Fetch downloads every ticker and writes the combined raw CSV.
func (r *Runner) Fetch(ctx context.Context) ([]model.RawSeries, []collector.Coverage, error) {
	cfg := r.Config
	var raws []model.RawSeries
	var coverage []collector.Coverage
	err := r.stage("fetch", func() error {
		col := collector.NewCollector(r.Fetcher, cfg.Tickers, cfg.Start(), cfg.End(),
			cfg.Fetch.RequestsPerSecond, cfg.Fetch.Concurrency, cfg.Fetch.MaxRetries)
		var err error
		if raws, err = col.Collect(ctx); err != nil {
			return err
		}
		for _, s := range raws {
			cov := collector.CheckCoverage(s, cfg.Start(), cfg.End(), cfg.Fetch.MaxGapDays)
			coverage = append(coverage, cov)
			r.Metrics.RowsFetched.WithLabelValues(s.Symbol).Set(float64(cov.Rows))
			for _, g := range cov.Gaps {
				log.Warn().Str("symbol", s.Symbol).
					Time("from", g.From).Time("to", g.To).Int("days", g.Days).
					Msg("coverage gap")
			}
		}
		if err := dataset.WriteRaw(cfg.Paths.RawCSV, raws); err != nil {
			return err
		}
		log.Info().Str("path", cfg.Paths.RawCSV).Int("tickers", len(raws)).Msg("raw data saved")
		return nil
	})
	return raws, coverage, err
}

func (r *Runner) preprocessOptions() preprocess.Options {
	p := r.Config.Preprocess
	return preprocess.Options{
		Align:            p.Align,
		OutlierZ:         p.OutlierZ,
		RollingWindow:    p.RollingWindow,
		VolatilityWindow: p.VolatilityWindow,
	}
}

// Process cleans and aligns raw series and writes the processed CSV.
func (r *Runner) Process(raws []model.RawSeries) ([]model.ProcessedSeries, []preprocess.Report, error) {
	var series []model.ProcessedSeries
	var reports []preprocess.Report
	err := r.stage("process", func() error {
		var err error
		if series, reports, err = preprocess.Process(raws, r.preprocessOptions()); err != nil {
			return err
		}
		for _, rep := range reports {
			log.Info().Str("symbol", rep.Symbol).
				Int("rows", rep.Rows).Int("duplicates", rep.Duplicates).
				Int("filled", rep.Filled).Int("clipped", rep.Clipped).
				Msg("cleaned")
		}
		return dataset.WriteProcessed(r.Config.Paths.ProcessedCSV, series)
	})
	return series, reports, err
}

// LoadRaw reads the raw CSV written by Fetch.
func (r *Runner) LoadRaw() ([]model.RawSeries, error) {
	return dataset.ReadRaw(r.Config.Paths.RawCSV)
}

// LoadProcessed reads the processed CSV and recomputes derived columns.
func (r *Runner) LoadProcessed() ([]model.ProcessedSeries, error) {
	prices, err := dataset.ReadProcessed(r.Config.Paths.ProcessedCSV)
	if err != nil {
		return nil, err
	}
	out := make([]model.ProcessedSeries, len(prices))
	for i, s := range prices {
		out[i] = preprocess.Enrich(s, r.preprocessOptions())
	}
	return out, nil
}

// Analyze decomposes each series, tests stationarity and summarises risk.
// Failures here are logged and leave the affected field empty; they count
// towards the analyze stage errors but never stop the run.
func (r *Runner) Analyze(series []model.ProcessedSeries) []Analysis {
	cfg := r.Config
	started := time.Now()
	var skipped []error
	skip := func(err error, symbol, msg string) {
		log.Warn().Err(err).Str("symbol", symbol).Msg(msg)
		skipped = append(skipped, fmt.Errorf("%s: %w", symbol, err))
	}

	out := make([]Analysis, 0, len(series))
	for _, s := range series {
		a := Analysis{Symbol: s.Symbol}
		prices := s.AdjCloses()

		d, err := decompose.Series(s.PriceSeries, cfg.Decompose.Period, model.DecompositionModel(cfg.Decompose.Model))
		if err != nil {
			skip(err, s.Symbol, "decomposition skipped")
		} else {
			a.Decomposition = &d
		}

		if t, err := decompose.ADF(prices, -1); err != nil {
			skip(err, s.Symbol, "price ADF skipped")
		} else {
			a.PriceADF = &t
		}
		returns := nonNaN(s.Returns)
		if t, err := decompose.ADF(returns, -1); err != nil {
			skip(err, s.Symbol, "return ADF skipped")
		} else {
			a.ReturnADF = &t
		}

		if a.Risk, err = calculator.Profile(s.Symbol, s.Returns, prices, cfg.RiskFree()); err != nil {
			skip(err, s.Symbol, "risk metrics incomplete")
		}
		if a.Snapshot, err = calculator.Snap(s.Bars, calculator.DefaultRSIPeriod); err != nil {
			skip(err, s.Symbol, "snapshot incomplete")
		}
		out = append(out, a)
	}

	r.Metrics.ObserveStage("analyze", started, errors.Join(skipped...))
	log.Debug().Str("stage", "analyze").Int("skipped", len(skipped)).Dur("elapsed", time.Since(started)).Msg("stage done")
	return out
}

func (r *Runner) forecastOptions() forecast.Options {
	f := r.Config.Forecast
	return forecast.Options{
		Horizon:    f.Horizon,
		Confidence: f.Confidence,
		TestSize:   f.TestSize,
		LogTarget:  f.Target == "log_adj_close",
		Auto:       r.Config.AutoOrder(),
		Search: forecast.AutoOptions{
			MaxP: f.MaxP,
			MaxQ: f.MaxQ,
			MaxD: f.MaxD,
			Seasonal: forecast.SeasonalOrder{
				P: f.Seasonal.P, D: f.Seasonal.D, Q: f.Seasonal.Q, S: f.Seasonal.S,
			},
		},
		Order: forecast.Order{P: f.Order.P, D: f.Order.D, Q: f.Order.Q},
	}
}

// ForecastAll fits and forecasts every series in turn and writes the
// forecasts CSV.
func (r *Runner) ForecastAll(ctx context.Context, series []model.ProcessedSeries) ([]model.Forecast, error) {
	var out []model.Forecast
	err := r.stage("forecast", func() error {
		opts := r.forecastOptions()
		for _, s := range series {
			if err := ctx.Err(); err != nil {
				return err
			}
			fc, err := forecast.Run(s.PriceSeries, opts)
			if err != nil {
				return err
			}
			if fc.Evaluation != nil {
				r.Metrics.ForecastRMSE.WithLabelValues(fc.Symbol).Set(fc.Evaluation.RMSE)
			}
			out = append(out, fc)
		}
		return dataset.WriteForecasts(r.Config.Paths.ForecastCSV, out)
	})
	return out, err
}

// LoadForecasts reads the forecasts CSV written by ForecastAll.
func (r *Runner) LoadForecasts() ([]model.Forecast, error) {
	return dataset.ReadForecasts(r.Config.Paths.ForecastCSV)
}

// Optimize derives expected returns, solves for weights, allocates capital,
// backtests against the benchmark and writes the weights JSON.
func (r *Runner) Optimize(series []model.ProcessedSeries, forecasts []model.Forecast) (*model.PortfolioWeights, map[string]decimal.Decimal, *model.BacktestResult, error) {
	cfg := r.Config
	var (
		weights *model.PortfolioWeights
		alloc   map[string]decimal.Decimal
		bt      *model.BacktestResult
	)
	err := r.stage("optimize", func() error {
		mu, err := r.expectedReturns(series, forecasts)
		if err != nil {
			return err
		}
		cov, err := portfolio.Covariance(series)
		if err != nil {
			return err
		}
		tickers := make([]string, len(series))
		for i, s := range series {
			tickers[i] = s.Symbol
		}
		w, err := portfolio.Optimize(tickers, mu, cov, portfolio.Options{
			Objective: model.Objective(cfg.Portfolio.Objective),
			RiskFree:  cfg.RiskFree(),
			Leverage:  cfg.Portfolio.Leverage,
			MaxWeight: cfg.Portfolio.MaxWeight,
		})
		if err != nil {
			return err
		}
		weights = &w
		for t, v := range w.Weights {
			r.Metrics.Weight.WithLabelValues(t).Set(v)
		}

		alloc = portfolio.Allocate(w, decimal.NewFromFloat(cfg.Portfolio.Capital))
		if res, err := portfolio.Backtest(series, w.Weights, cfg.Portfolio.Benchmark, cfg.BacktestStart(), cfg.RiskFree()); err != nil {
			log.Warn().Err(err).Msg("backtest skipped")
		} else {
			bt = &res
		}

		cash := make(map[string]string, len(alloc))
		for t, v := range alloc {
			cash[t] = v.StringFixed(2)
		}
		if err := dataset.WriteWeights(cfg.Paths.WeightsJSON, &w, cash); err != nil {
			return err
		}
		log.Info().
			Str("objective", string(w.Objective)).
			Interface("weights", w.Weights).
			Float64("sharpe", w.Sharpe).
			Msg("portfolio weights saved")
		return nil
	})
	return weights, alloc, bt, err
}

func (r *Runner) expectedReturns(series []model.ProcessedSeries, forecasts []model.Forecast) (map[string]float64, error) {
	if r.Config.Portfolio.ReturnSource == "historical" || len(forecasts) == 0 {
		return portfolio.HistoricalReturns(series)
	}
	mu, err := portfolio.ForecastReturns(withLast(series, forecasts))
	if err != nil {
		return nil, err
	}
	for _, s := range series {
		if _, ok := mu[s.Symbol]; !ok {
			return nil, fmt.Errorf("no forecast for %s", s.Symbol)
		}
	}
	return mu, nil
}

// withLast fills the last observation of forecasts read from disk, which the
// forecast CSV does not carry.
func withLast(series []model.ProcessedSeries, forecasts []model.Forecast) []model.Forecast {
	last := make(map[string]int, len(series))
	for i, s := range series {
		last[s.Symbol] = i
	}
	out := append([]model.Forecast(nil), forecasts...)
	for i := range out {
		j, ok := last[out[i].Symbol]
		if out[i].LastValue > 0 || !ok || series[j].Len() == 0 {
			continue
		}
		prices := series[j].AdjCloses()
		out[i].LastValue = prices[len(prices)-1]
		out[i].LastTime = series[j].Last()
	}
	return out
}

// LoadResult rebuilds a result from the files written by earlier stages.
// Missing forecast or weights files leave those parts empty.
func (r *Runner) LoadResult() (*Result, error) {
	cfg := r.Config
	series, err := r.LoadProcessed()
	if err != nil {
		return nil, err
	}
	res := &Result{Series: series, Analyses: r.Analyze(series)}

	switch fcs, err := r.LoadForecasts(); {
	case err == nil:
		res.Forecasts = withLast(series, fcs)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	switch w, err := dataset.ReadWeights(cfg.Paths.WeightsJSON); {
	case err == nil:
		res.Weights = w
		res.Allocation = portfolio.Allocate(*w, decimal.NewFromFloat(cfg.Portfolio.Capital))
		if bt, err := portfolio.Backtest(series, w.Weights, cfg.Portfolio.Benchmark, cfg.BacktestStart(), cfg.RiskFree()); err == nil {
			res.Backtest = &bt
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}
	return res, nil
}

func nonNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
