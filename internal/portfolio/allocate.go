package portfolio

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"FinForecast/internal/calculator"
	"FinForecast/internal/model"
)

// Allocate splits capital into cash amounts per ticker, rounded to cents. The
// rounding residue goes to the largest weight so amounts sum to capital times
// the leverage bound.
func Allocate(w model.PortfolioWeights, capital decimal.Decimal) map[string]decimal.Decimal {
	tickers := append([]string(nil), w.Tickers...)
	if len(tickers) == 0 {
		for t := range w.Weights {
			tickers = append(tickers, t)
		}
		sort.Strings(tickers)
	}
	out := make(map[string]decimal.Decimal, len(tickers))
	if len(tickers) == 0 {
		return out
	}

	lev := w.Leverage
	if lev <= 0 {
		lev = 1
	}
	target := capital.Mul(decimal.NewFromFloat(lev)).Round(2)
	sum := decimal.Zero
	largest := tickers[0]
	for _, t := range tickers {
		amt := capital.Mul(decimal.NewFromFloat(w.Weights[t])).Round(2)
		out[t] = amt
		sum = sum.Add(amt)
		if w.Weights[t] > w.Weights[largest] {
			largest = t
		}
	}
	out[largest] = out[largest].Add(target.Sub(sum))
	return out
}

// Backtest compounds daily-rebalanced returns of weights and of benchmark over
// the bars on or after since. A zero since uses the whole history.
func Backtest(series []model.ProcessedSeries, weights, benchmark map[string]float64, since time.Time, riskFree float64) (model.BacktestResult, error) {
	bySymbol := make(map[string]model.ProcessedSeries, len(series))
	for _, s := range series {
		bySymbol[s.Symbol] = s
	}
	for _, m := range []map[string]float64{weights, benchmark} {
		for t := range m {
			if _, ok := bySymbol[t]; !ok {
				return model.BacktestResult{}, fmt.Errorf("backtest: no series for %s", t)
			}
		}
	}
	if len(series) == 0 || len(weights) == 0 || len(benchmark) == 0 {
		return model.BacktestResult{}, fmt.Errorf("backtest: %w", calculator.ErrInsufficientData)
	}

	ref := series[0]
	start := 1
	for start < ref.Len() && ref.Bars[start].Time.Before(since) {
		start++
	}
	if ref.Len()-start < 2 {
		return model.BacktestResult{}, fmt.Errorf("backtest: %w", calculator.ErrInsufficientData)
	}

	strategy := dailyReturns(bySymbol, weights, start, ref.Len())
	bench := dailyReturns(bySymbol, benchmark, start, ref.Len())
	res := model.BacktestResult{
		Start:           ref.Bars[start-1].Time,
		End:             ref.Bars[ref.Len()-1].Time,
		StrategyEquity:  equity(strategy),
		BenchmarkEquity: equity(bench),
	}
	res.StrategyReturn = res.StrategyEquity[len(res.StrategyEquity)-1] - 1
	res.BenchmarkReturn = res.BenchmarkEquity[len(res.BenchmarkEquity)-1] - 1
	res.StrategyDrawdown = calculator.MaxDrawdown(res.StrategyEquity)
	res.BenchmarkDrawdown = calculator.MaxDrawdown(res.BenchmarkEquity)
	res.StrategyAnnual, _ = calculator.AnnualizedReturn(strategy)
	res.BenchmarkAnnual, _ = calculator.AnnualizedReturn(bench)
	res.StrategySharpe, _ = calculator.SharpeRatio(strategy, riskFree)
	res.BenchmarkSharpe, _ = calculator.SharpeRatio(bench, riskFree)
	return res, nil
}

// dailyReturns returns weighted percent returns for rows [from, to).
func dailyReturns(series map[string]model.ProcessedSeries, weights map[string]float64, from, to int) []float64 {
	syms := make([]string, 0, len(weights))
	for sym := range weights {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	out := make([]float64, to-from)
	for t := from; t < to; t++ {
		var r float64
		for _, sym := range syms {
			s := series[sym]
			if t < len(s.Returns) && !math.IsNaN(s.Returns[t]) {
				r += weights[sym] * s.Returns[t]
			}
		}
		out[t-from] = r
	}
	return out
}

// equity returns the growth of 1 unit, starting with 1.
func equity(returns []float64) []float64 {
	out := make([]float64, len(returns)+1)
	out[0] = 1
	for i, r := range returns {
		out[i+1] = out[i] * (1 + r/100)
	}
	return out
}
