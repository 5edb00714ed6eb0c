package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinForecast/internal/collector"
	"FinForecast/internal/config"
	"FinForecast/internal/metrics"
	"FinForecast/internal/model"
	"FinForecast/internal/recorder"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)

	cfg.StartDate = "2022-01-01"
	cfg.EndDate = "2023-07-01"
	cfg.DataSource.Provider = "mock"
	cfg.Fetch.RequestsPerSecond = 1000
	cfg.Paths.RawCSV = filepath.Join(dir, "raw", "combined.csv")
	cfg.Paths.ProcessedCSV = filepath.Join(dir, "processed", "processed.csv")
	cfg.Paths.ForecastCSV = filepath.Join(dir, "processed", "forecasts.csv")
	cfg.Paths.WeightsJSON = filepath.Join(dir, "processed", "weights.json")
	cfg.Metrics.Textfile = filepath.Join(dir, "metrics", "finforecast.prom")
	cfg.Forecast.Horizon = 20
	cfg.Forecast.TestSize = 10
	cfg.Forecast.MaxP = 1
	cfg.Forecast.MaxQ = 1
	cfg.Log.Output = "stderr"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	rec, err := recorder.NewSQLiteRecorder(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer rec.Close()

	r := NewRunner(cfg, NewFetcher(cfg), rec)
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Series, 3)
	require.Len(t, res.Forecasts, 3)
	require.Len(t, res.Analyses, 3)
	for i, sym := range cfg.Tickers {
		assert.Equal(t, sym, res.Series[i].Symbol)
		assert.Len(t, res.Forecasts[i].Points, cfg.Forecast.Horizon)
		assert.NotNil(t, res.Analyses[i].Decomposition)
		assert.Positive(t, res.Analyses[i].Snapshot.SMA200, sym)
	}

	require.NotNil(t, res.Weights)
	assert.InDelta(t, 1, res.Weights.Sum(), 1e-6)
	for _, w := range res.Weights.Weights {
		assert.GreaterOrEqual(t, w, 0.0)
	}
	total := decimal.Zero
	for _, v := range res.Allocation {
		total = total.Add(v)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(10000)))
	require.NotNil(t, res.Backtest)

	for _, p := range []string{cfg.Paths.RawCSV, cfg.Paths.ProcessedCSV, cfg.Paths.ForecastCSV, cfg.Paths.WeightsJSON, cfg.Metrics.Textfile} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}

	runs, err := rec.RecentRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, recorder.StatusOK, runs[0].Status)
	assert.Equal(t, res.Rows(), runs[0].Rows)
}

func TestStagesFromFiles(t *testing.T) {
	cfg := testConfig(t)
	r := NewRunner(cfg, NewFetcher(cfg), nil)

	_, _, err := r.Fetch(context.Background())
	require.NoError(t, err)

	raws, err := r.LoadRaw()
	require.NoError(t, err)
	require.Len(t, raws, 3)
	series, _, err := r.Process(raws)
	require.NoError(t, err)

	loaded, err := r.LoadProcessed()
	require.NoError(t, err)
	require.Len(t, loaded, len(series))
	assert.Equal(t, series[0].Dates(), loaded[0].Dates())
	assert.InDeltaSlice(t, series[0].AdjCloses(), loaded[0].AdjCloses(), 1e-9)

	// Deterministic stages give identical output on identical input.
	a, err := r.ForecastAll(context.Background(), loaded)
	require.NoError(t, err)
	b, err := r.ForecastAll(context.Background(), loaded)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	fcs, err := r.LoadForecasts()
	require.NoError(t, err)
	require.Len(t, fcs, 3)

	cfg.Portfolio.ReturnSource = "historical"
	w, _, _, err := r.Optimize(loaded, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1, w.Sum(), 1e-6)
}

func TestRunRecordsFailure(t *testing.T) {
	cfg := testConfig(t)
	rec, err := recorder.NewSQLiteRecorder(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer rec.Close()

	fetcher := &collector.MockFetcher{Err: map[string]error{"BND": collector.ErrNoData}}
	_, err = NewRunner(cfg, fetcher, rec).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, collector.ErrNoData))

	runs, err := rec.RecentRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, recorder.StatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "fetch")
}

func TestRunCancelled(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(cfg, NewFetcher(cfg), nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadResultFromFiles(t *testing.T) {
	cfg := testConfig(t)
	r := NewRunner(cfg, NewFetcher(cfg), nil)

	_, err := r.LoadResult()
	require.Error(t, err, "no processed file yet")

	raws, _, err := r.Fetch(context.Background())
	require.NoError(t, err)
	series, _, err := r.Process(raws)
	require.NoError(t, err)

	res, err := r.LoadResult()
	require.NoError(t, err)
	assert.Len(t, res.Series, 3)
	assert.Len(t, res.Analyses, 3)
	assert.Empty(t, res.Forecasts)
	assert.Nil(t, res.Weights)

	_, err = r.ForecastAll(context.Background(), series)
	require.NoError(t, err)
	fcs, err := r.LoadForecasts()
	require.NoError(t, err)
	w, _, _, err := r.Optimize(series, fcs)
	require.NoError(t, err, "forecasts read from disk carry no last value")

	res, err = r.LoadResult()
	require.NoError(t, err)
	require.Len(t, res.Forecasts, 3)
	for _, f := range res.Forecasts {
		assert.Positive(t, f.LastValue, f.Symbol)
	}
	require.NotNil(t, res.Weights)
	assert.InDelta(t, w.Sum(), res.Weights.Sum(), 1e-9)
	assert.Len(t, res.Allocation, 3)
}

func TestAnalyzeCountsSkippedSteps(t *testing.T) {
	r := &Runner{Config: testConfig(t), Metrics: metrics.New()}
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	short := model.ProcessedSeries{PriceSeries: model.PriceSeries{Symbol: "BND"}}
	for i := 0; i < 5; i++ {
		p := 72 + float64(i)/10
		short.Bars = append(short.Bars, model.OHLCV{Time: start.AddDate(0, 0, i), Close: p, AdjClose: p})
		short.Returns = append(short.Returns, 0.1)
	}

	out := r.Analyze([]model.ProcessedSeries{short})
	require.Len(t, out, 1)
	assert.Equal(t, "BND", out[0].Symbol)
	assert.Nil(t, out[0].Decomposition)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.StageErrors.WithLabelValues("analyze")))
}
