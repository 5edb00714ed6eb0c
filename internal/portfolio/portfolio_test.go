package portfolio

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"FinForecast/internal/model"
)

func processed(symbol string, returns []float64) model.ProcessedSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := model.ProcessedSeries{PriceSeries: model.PriceSeries{Symbol: symbol}}
	price := 100.0
	s.Returns = append([]float64{math.NaN()}, returns...)
	for i := range s.Returns {
		if i > 0 {
			price *= 1 + returns[i-1]/100
		}
		s.Bars = append(s.Bars, model.OHLCV{Time: start.AddDate(0, 0, i), Close: price, AdjClose: price})
	}
	return s
}

func randomReturns(seed int64, n int, mean, std float64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = mean + std*rng.NormFloat64()
	}
	return out
}

func universe() []model.ProcessedSeries {
	return []model.ProcessedSeries{
		processed("TSLA", randomReturns(1, 500, 0.15, 3.5)),
		processed("BND", randomReturns(2, 500, 0.01, 0.3)),
		processed("SPY", randomReturns(3, 500, 0.05, 1.1)),
	}
}

func TestCovariance(t *testing.T) {
	series := universe()
	cov, err := Covariance(series)
	require.NoError(t, err)
	require.Equal(t, 3, cov.SymmetricDim())
	// TSLA is the most volatile.
	assert.Greater(t, cov.At(0, 0), cov.At(2, 2))
	assert.Greater(t, cov.At(2, 2), cov.At(1, 1))
	assert.InDelta(t, 0.035*0.035*252, cov.At(0, 0), 0.08)

	_, err = Covariance([]model.ProcessedSeries{processed("A", []float64{1}), processed("B", []float64{1, 2})})
	assert.Error(t, err)
}

func TestHistoricalAndForecastReturns(t *testing.T) {
	mu, err := HistoricalReturns([]model.ProcessedSeries{processed("A", []float64{1, 1, 1})})
	require.NoError(t, err)
	assert.InDelta(t, 0.01*252, mu["A"], 1e-12)

	fc := model.Forecast{Symbol: "A", LastValue: 100, Points: make([]model.ForecastPoint, 126)}
	fc.Points[125].Value = 110
	fr, err := ForecastReturns([]model.Forecast{fc})
	require.NoError(t, err)
	assert.InDelta(t, math.Pow(1.1, 2)-1, fr["A"], 1e-12)

	_, err = ForecastReturns([]model.Forecast{{Symbol: "B"}})
	assert.Error(t, err)
}

func TestOptimizeInvariants(t *testing.T) {
	series := universe()
	cov, err := Covariance(series)
	require.NoError(t, err)
	tickers := []string{"TSLA", "BND", "SPY"}
	mu := map[string]float64{"TSLA": 0.25, "BND": 0.03, "SPY": 0.10}

	for _, tc := range []struct {
		name string
		opts Options
	}{
		{"max sharpe", Options{Objective: model.MaxSharpe, RiskFree: 0.02, Leverage: 1}},
		{"min variance", Options{Objective: model.MinVariance, Leverage: 1}},
		{"equal", Options{Objective: model.EqualWeight, Leverage: 1}},
		{"capped", Options{Objective: model.MaxSharpe, RiskFree: 0.02, Leverage: 1, MaxWeight: 0.4}},
		{"levered", Options{Objective: model.MaxSharpe, RiskFree: 0.02, Leverage: 1.5, MaxWeight: 0.6}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w, err := Optimize(tickers, mu, cov, tc.opts)
			require.NoError(t, err)
			lev := tc.opts.Leverage
			assert.InDelta(t, lev, w.Sum(), 1e-6)
			for _, tk := range tickers {
				assert.GreaterOrEqual(t, w.Weights[tk], 0.0)
				if tc.opts.MaxWeight > 0 {
					assert.LessOrEqual(t, w.Weights[tk], tc.opts.MaxWeight+1e-6)
				}
			}
			assert.Greater(t, w.Volatility, 0.0)
		})
	}
}

func TestMinVarianceFavorsBonds(t *testing.T) {
	series := universe()
	cov, err := Covariance(series)
	require.NoError(t, err)
	mu := map[string]float64{"TSLA": 0.25, "BND": 0.03, "SPY": 0.10}
	w, err := Optimize([]string{"TSLA", "BND", "SPY"}, mu, cov, Options{Objective: model.MinVariance, Leverage: 1})
	require.NoError(t, err)
	assert.Greater(t, w.Weights["BND"], 0.8)

	eq, err := Optimize([]string{"TSLA", "BND", "SPY"}, mu, cov, Options{Objective: model.EqualWeight, Leverage: 1})
	require.NoError(t, err)
	assert.Less(t, w.Volatility, eq.Volatility)
}

func TestOptimizeErrors(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	mu := map[string]float64{"A": 0.1, "B": 0.1}
	_, err := Optimize([]string{"A", "B"}, mu, cov, Options{Objective: model.MaxSharpe, Leverage: 1, MaxWeight: 0.4})
	assert.ErrorIs(t, err, ErrInfeasible)

	bad := mat.NewSymDense(2, []float64{1, 2, 2, 1})
	_, err = Optimize([]string{"A", "B"}, mu, bad, Options{Objective: model.MinVariance, Leverage: 1})
	assert.ErrorIs(t, err, ErrNotPositiveDefinite)

	_, err = Optimize([]string{"A", "C"}, mu, cov, Options{Objective: model.MinVariance, Leverage: 1})
	assert.Error(t, err)

	_, err = Optimize([]string{"A", "B"}, mu, cov, Options{Objective: "max_return", Leverage: 1})
	assert.Error(t, err)
}

func TestCapWeights(t *testing.T) {
	w := capWeights([]float64{0.7, 0.2, 0.1}, 0.4, 1)
	assert.InDelta(t, 0.4, w[0], 1e-12)
	assert.InDelta(t, 0.4, w[1], 1e-12)
	assert.InDelta(t, 0.2, w[2], 1e-12)
}

func TestAllocateSumsToCapital(t *testing.T) {
	w := model.PortfolioWeights{
		Tickers:  []string{"TSLA", "BND", "SPY"},
		Weights:  map[string]float64{"TSLA": 1.0 / 3, "BND": 1.0 / 3, "SPY": 1.0 / 3},
		Leverage: 1,
	}
	capital := decimal.NewFromInt(10000)
	alloc := Allocate(w, capital)
	sum := decimal.Zero
	for _, v := range alloc {
		sum = sum.Add(v)
		assert.True(t, v.Equal(v.Round(2)))
	}
	assert.True(t, sum.Equal(capital), "sum %s", sum)
}

func TestBacktest(t *testing.T) {
	series := []model.ProcessedSeries{
		processed("TSLA", []float64{10, -5, 2, 1}),
		processed("BND", []float64{0, 0, 0, 0}),
		processed("SPY", []float64{1, 1, 1, 1}),
	}
	res, err := Backtest(series, map[string]float64{"TSLA": 1}, map[string]float64{"SPY": 0.6, "BND": 0.4}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, res.StrategyEquity, 5)
	assert.InDelta(t, 1.1*0.95*1.02*1.01-1, res.StrategyReturn, 1e-12)
	assert.InDelta(t, math.Pow(1.006, 4)-1, res.BenchmarkReturn, 1e-12)
	assert.InDelta(t, -0.05, res.StrategyDrawdown, 1e-12)
	assert.Equal(t, 0.0, res.BenchmarkDrawdown)
	assert.Equal(t, series[0].Bars[0].Time, res.Start)

	since := series[0].Bars[2].Time
	res, err = Backtest(series, map[string]float64{"TSLA": 1}, map[string]float64{"SPY": 1}, since, 0)
	require.NoError(t, err)
	assert.Len(t, res.StrategyEquity, 4)

	_, err = Backtest(series, map[string]float64{"QQQ": 1}, map[string]float64{"SPY": 1}, time.Time{}, 0)
	assert.Error(t, err)
}

func TestBacktestIsDeterministic(t *testing.T) {
	series := universe()
	weights := map[string]float64{"TSLA": 0.137, "BND": 0.451, "SPY": 0.412}
	benchmark := map[string]float64{"SPY": 0.6, "BND": 0.4}

	first, err := Backtest(series, weights, benchmark, time.Time{}, 0.02)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		res, err := Backtest(series, weights, benchmark, time.Time{}, 0.02)
		require.NoError(t, err)
		require.Equal(t, first.StrategyReturn, res.StrategyReturn, "run %d", i)
		require.Equal(t, first.StrategySharpe, res.StrategySharpe, "run %d", i)
		require.Equal(t, first.BenchmarkReturn, res.BenchmarkReturn, "run %d", i)
	}
}
