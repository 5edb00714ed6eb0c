package report

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"FinForecast/internal/collector"
	"FinForecast/internal/model"
	"FinForecast/internal/pipeline"
	"FinForecast/internal/preprocess"
)

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func sampleResult() *pipeline.Result {
	tslaRisk := model.RiskMetrics{
		Symbol:               "TSLA",
		AnnualizedReturn:     0.3,
		AnnualizedVolatility: 0.55,
		Sharpe:               0.51,
		HistoricalVaR95:      -5.4,
		ParametricVaR95:      -5.6,
		MaxDrawdown:          -0.7,
	}
	return &pipeline.Result{
		RunID:      "run-1",
		StartedAt:  day(2),
		FinishedAt: day(2).Add(time.Minute),
		Coverage: []collector.Coverage{
			{Symbol: "TSLA", First: day(2), Last: day(5), Rows: 4},
			{Symbol: "BND", First: day(2), Last: day(5), Rows: 4},
		},
		Cleaning: []preprocess.Report{{Symbol: "TSLA", Rows: 4, Filled: 1}, {Symbol: "BND", Rows: 4}},
		Analyses: []pipeline.Analysis{
			{
				Symbol:    "TSLA",
				PriceADF:  &model.StationarityTest{Statistic: -1.2},
				ReturnADF: &model.StationarityTest{Statistic: -12.5, Stationary: true},
				Risk:      tslaRisk,
				Snapshot: model.Snapshot{
					Last: 182.5, SMA50: 190, SMA200: math.NaN(), RSI: 41.2,
					High52w: 299, Low52w: 152.4, RangePosition: 0.2,
				},
			},
			{Symbol: "BND", Risk: model.RiskMetrics{Symbol: "BND", Sharpe: math.NaN()}},
		},
		Forecasts: []model.Forecast{
			{
				Symbol:     "TSLA",
				Model:      "ARIMA(1,1,0)",
				Confidence: 0.95,
				LastTime:   day(5),
				LastValue:  250,
				Points: []model.ForecastPoint{
					{Time: day(8), Value: 251, Lower: 240, Upper: 262},
					{Time: day(9), Value: 252, Lower: 236, Upper: 268},
				},
				Evaluation: &model.Evaluation{TestSize: 10, RMSE: 4.2, MAPE: 1.5},
			},
			{
				Symbol:    "BND",
				Model:     "ARIMA(0,1,1)",
				LastTime:  day(5),
				LastValue: 72,
				Points:    []model.ForecastPoint{{Time: day(8), Value: 72.1, Lower: 71, Upper: 73}},
			},
		},
		Weights: &model.PortfolioWeights{
			Objective:       model.MaxSharpe,
			Tickers:         []string{"TSLA", "BND"},
			Weights:         map[string]float64{"TSLA": 0.25, "BND": 0.75},
			Leverage:        1,
			ExpectedReturn:  0.08,
			Volatility:      0.12,
			Sharpe:          0.5,
			ExpectedReturns: map[string]float64{"TSLA": 0.2, "BND": 0.04},
		},
		Allocation: map[string]decimal.Decimal{
			"TSLA": decimal.NewFromInt(2500),
			"BND":  decimal.NewFromInt(7500),
		},
		Backtest: &model.BacktestResult{Start: day(2), End: day(5), StrategyReturn: 0.1, BenchmarkReturn: 0.05},
	}
}

func TestMarkdownSections(t *testing.T) {
	out := Markdown(sampleResult())

	for _, want := range []string{
		"# Forecast Report",
		"## Data Coverage",
		"## Cleaning",
		"## Risk Metrics",
		"## Stationarity",
		"## Market Snapshot",
		"182.50",
		"## Forecasts",
		"## Portfolio",
		"## Backtest",
		"ARIMA(1,1,0)",
		"2500.00",
		"+25.00%",
		"-70.00%",
	} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, "n/a", "NaN sharpe renders as n/a")
}

func TestMarkdownOmitsEmptySections(t *testing.T) {
	out := Markdown(&pipeline.Result{Forecasts: sampleResult().Forecasts})

	assert.Contains(t, out, "## Forecasts")
	assert.NotContains(t, out, "## Portfolio")
	assert.NotContains(t, out, "## Backtest")
	assert.NotContains(t, out, "## Data Coverage")
}

func TestRenderPlain(t *testing.T) {
	out, err := Render(Markdown(sampleResult()), "notty", 120)
	require.NoError(t, err)

	assert.Contains(t, out, "TSLA")
	assert.Contains(t, out, "Forecast Report")
}

func TestExportXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.xlsx")
	require.NoError(t, ExportXLSX(path, sampleResult()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetForecasts, SheetWeights, SheetMetrics}, f.GetSheetList())

	rows, err := f.GetRows(SheetForecasts)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Date", "Ticker", "Forecast", "Lower", "Upper"}, rows[0])
	assert.Equal(t, "2024-01-08", rows[1][0])
	assert.Equal(t, "TSLA", rows[1][1])
	assert.Equal(t, "BND", rows[3][1])

	rows, err = f.GetRows(SheetWeights)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "BND", rows[1][0])
	assert.Equal(t, "TSLA", rows[2][0])

	run, err := f.GetCellValue(SheetSummary, "B1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run)

	name, err := f.GetCellValue(SheetMetrics, "H2")
	require.NoError(t, err)
	assert.Equal(t, "ARIMA(1,1,0)", name)
}
