package model

import "time"

// ProcessedSeries is a cleaned series with derived columns aligned to Bars.
// Leading positions that lack a full window hold NaN.
type ProcessedSeries struct {
	PriceSeries
	Returns     []float64 // daily percent return on adjusted close; Returns[0] is NaN
	LogReturns  []float64 // Returns[0] is NaN
	RollingMean []float64
	RollingStd  []float64
	Volatility  []float64 // annualized rolling volatility of daily returns, percent
	RSI         []float64
}

// DecompositionModel selects how components combine.
type DecompositionModel string

const (
	Additive       DecompositionModel = "additive"
	Multiplicative DecompositionModel = "multiplicative"
)

// Decomposition holds trend, seasonal and residual components aligned to Dates.
type Decomposition struct {
	Symbol   string
	Model    DecompositionModel
	Period   int
	Dates    []time.Time
	Observed []float64
	Trend    []float64
	Seasonal []float64
	Residual []float64
}

// StationarityTest is the outcome of an augmented Dickey-Fuller test.
type StationarityTest struct {
	Statistic      float64
	Lags           int
	Observations   int
	CriticalValues map[string]float64 // "1%", "5%", "10%"
	Stationary     bool
}

// RiskMetrics summarises the historical return profile of a series.
type RiskMetrics struct {
	Symbol               string
	AnnualizedReturn     float64 // fraction
	AnnualizedVolatility float64 // fraction
	Sharpe               float64
	HistoricalVaR95      float64 // percent daily return, <= 0
	ParametricVaR95      float64
	MaxDrawdown          float64 // fraction, <= 0
}

// ForecastPoint is one step beyond the last observation.
type ForecastPoint struct {
	Time  time.Time
	Value float64
	Lower float64
	Upper float64
}

// Evaluation holds hold-out accuracy of a fitted model.
type Evaluation struct {
	TestSize int
	MAE      float64
	RMSE     float64
	MAPE     float64 // percent
}

// Forecast is the model output for one ticker.
type Forecast struct {
	Symbol     string
	Model      string
	AIC        float64
	Confidence float64
	LastTime   time.Time
	LastValue  float64
	Points     []ForecastPoint
	Evaluation *Evaluation
}

// End returns the final point forecast, or LastValue when there are no points.
func (f *Forecast) End() float64 {
	if len(f.Points) == 0 {
		return f.LastValue
	}
	return f.Points[len(f.Points)-1].Value
}

// Objective names a portfolio optimization target.
type Objective string

const (
	MaxSharpe   Objective = "max_sharpe"
	MinVariance Objective = "min_variance"
	EqualWeight Objective = "equal_weight"
)

// PortfolioWeights maps ticker to allocation fraction.
// Fractions are non-negative and sum to Leverage.
type PortfolioWeights struct {
	Objective       Objective
	Tickers         []string
	Weights         map[string]float64
	Leverage        float64
	ExpectedReturn  float64
	Volatility      float64
	Sharpe          float64
	ExpectedReturns map[string]float64
}

// Sum returns the total allocation.
func (w *PortfolioWeights) Sum() float64 {
	var s float64
	for _, v := range w.Weights {
		s += v
	}
	return s
}

// BacktestResult compares a weighted portfolio against a benchmark.
type BacktestResult struct {
	Start             time.Time
	End               time.Time
	StrategyReturn    float64 // cumulative, fraction
	BenchmarkReturn   float64
	StrategyAnnual    float64
	BenchmarkAnnual   float64
	StrategySharpe    float64
	BenchmarkSharpe   float64
	StrategyDrawdown  float64
	BenchmarkDrawdown float64
	StrategyEquity    []float64
	BenchmarkEquity   []float64
}

// Snapshot is the latest technical position of a series. Averages that need
// more history than is available are NaN.
type Snapshot struct {
	Last          float64
	SMA50         float64
	SMA200        float64
	RSI           float64
	High52w       float64
	Low52w        float64
	RangePosition float64 // 0 at the 52-week low, 1 at the high
}
