package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"FinForecast/internal/config"
	"FinForecast/internal/pipeline"
	"FinForecast/internal/report"
)

type fetchCmd struct{}

func (*fetchCmd) Name() string     { return "fetch" }
func (*fetchCmd) Synopsis() string { return "download daily prices for the configured tickers" }
func (*fetchCmd) Usage() string {
	return `finforecast fetch

  Downloads daily bars for every configured ticker between start_date and
  end_date and writes them to paths.raw_csv.
`
}

func (*fetchCmd) SetFlags(*flag.FlagSet) {}

func (*fetchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, closer, err := setup()
	if err != nil {
		fail("Error: %v", err)
		return subcommands.ExitFailure
	}
	defer closer.Close()

	_, coverage, err := newRunner(cfg).Fetch(ctx)
	if err != nil {
		fail("Error fetching data: %v", err)
		return subcommands.ExitFailure
	}
	for _, c := range coverage {
		fmt.Printf("%-8s %s .. %s  %5d rows  %d gaps\n", c.Symbol,
			c.First.Format(config.DateLayout), c.Last.Format(config.DateLayout), c.Rows, len(c.Gaps))
	}
	fmt.Printf("Saved %s\n", cfg.Paths.RawCSV)
	return subcommands.ExitSuccess
}

type processCmd struct{}

func (*processCmd) Name() string     { return "process" }
func (*processCmd) Synopsis() string { return "clean and align the raw prices" }
func (*processCmd) Usage() string {
	return `finforecast process

  Reads paths.raw_csv, removes duplicates, fills gaps, clips outliers, aligns
  the tickers on common dates and writes paths.processed_csv.
`
}

func (*processCmd) SetFlags(*flag.FlagSet) {}

func (*processCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, closer, err := setup()
	if err != nil {
		fail("Error: %v", err)
		return subcommands.ExitFailure
	}
	defer closer.Close()

	r := newRunner(cfg)
	raws, err := r.LoadRaw()
	if err != nil {
		fail("Error reading %q: %v", cfg.Paths.RawCSV, err)
		return subcommands.ExitFailure
	}
	series, reports, err := r.Process(raws)
	if err != nil {
		fail("Error processing data: %v", err)
		return subcommands.ExitFailure
	}
	res := &pipeline.Result{Cleaning: reports, Series: series, Analyses: r.Analyze(series)}
	printMarkdown(report.Markdown(res))
	return subcommands.ExitSuccess
}

type forecastCmd struct {
	horizon int
}

func (*forecastCmd) Name() string     { return "forecast" }
func (*forecastCmd) Synopsis() string { return "fit ARIMA models and forecast each ticker" }
func (*forecastCmd) Usage() string {
	return `finforecast forecast [-horizon <days>]

  Fits a model per ticker on paths.processed_csv, evaluates it on the
  hold-out window and writes the forecasts to paths.forecast_csv.
`
}

func (c *forecastCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.horizon, "horizon", 0, "Forecast horizon in trading days. Defaults to forecast.horizon.")
}

func (c *forecastCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, closer, err := setup()
	if err != nil {
		fail("Error: %v", err)
		return subcommands.ExitFailure
	}
	defer closer.Close()

	if c.horizon < 0 {
		fail("Error: -horizon must be positive")
		return subcommands.ExitUsageError
	}
	if c.horizon > 0 {
		cfg.Forecast.Horizon = c.horizon
	}

	r := newRunner(cfg)
	series, err := r.LoadProcessed()
	if err != nil {
		fail("Error reading %q: %v", cfg.Paths.ProcessedCSV, err)
		return subcommands.ExitFailure
	}
	forecasts, err := r.ForecastAll(ctx, series)
	if err != nil {
		fail("Error forecasting: %v", err)
		return subcommands.ExitFailure
	}
	printMarkdown(report.Markdown(&pipeline.Result{Forecasts: forecasts}))
	return subcommands.ExitSuccess
}

type optimizeCmd struct {
	objective string
}

func (*optimizeCmd) Name() string     { return "optimize" }
func (*optimizeCmd) Synopsis() string { return "compute portfolio weights from the forecasts" }
func (*optimizeCmd) Usage() string {
	return `finforecast optimize [-objective max_sharpe|min_variance|equal_weight]

  Derives expected returns from paths.forecast_csv (or history), solves for
  the portfolio weights, backtests them and writes paths.weights_json.
`
}

func (c *optimizeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.objective, "objective", "", "Optimization objective. Defaults to portfolio.objective.")
}

func (c *optimizeCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, closer, err := setup()
	if err != nil {
		fail("Error: %v", err)
		return subcommands.ExitFailure
	}
	defer closer.Close()

	if c.objective != "" {
		cfg.Portfolio.Objective = c.objective
		if err := cfg.Validate(); err != nil {
			fail("Error: %v", err)
			return subcommands.ExitUsageError
		}
	}

	r := newRunner(cfg)
	series, err := r.LoadProcessed()
	if err != nil {
		fail("Error reading %q: %v", cfg.Paths.ProcessedCSV, err)
		return subcommands.ExitFailure
	}
	res := &pipeline.Result{Series: series}
	if cfg.Portfolio.ReturnSource == "forecast" {
		if res.Forecasts, err = r.LoadForecasts(); err != nil {
			fail("Error reading %q: %v", cfg.Paths.ForecastCSV, err)
			return subcommands.ExitFailure
		}
	}
	res.Weights, res.Allocation, res.Backtest, err = r.Optimize(series, res.Forecasts)
	if err != nil {
		fail("Error optimizing: %v", err)
		return subcommands.ExitFailure
	}
	res.Forecasts = nil
	printMarkdown(report.Markdown(res))
	return subcommands.ExitSuccess
}
