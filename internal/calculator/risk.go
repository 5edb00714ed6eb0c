package calculator

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"FinForecast/internal/model"
)

// SharpeRatio annualizes the mean excess daily return over its volatility.
// returns are daily percentages, riskFree is an annual fraction.
func SharpeRatio(returns []float64, riskFree float64) (float64, error) {
	r := dropNaN(returns)
	if len(r) < 2 {
		return 0, ErrInsufficientData
	}
	daily := riskFree / TradingDays
	excess := make([]float64, len(r))
	for i, v := range r {
		excess[i] = v/100 - daily
	}
	mean, std := stat.MeanStdDev(excess, nil)
	if std == 0 {
		return 0, errors.New("zero volatility")
	}
	return mean / std * math.Sqrt(TradingDays), nil
}

// HistoricalVaR returns the (1-confidence) quantile of daily percent returns,
// capped at zero so a loss is always reported as a non-positive number.
func HistoricalVaR(returns []float64, confidence float64) (float64, error) {
	if confidence <= 0 || confidence >= 1 {
		return 0, errors.New("confidence must be in (0, 1)")
	}
	r := dropNaN(returns)
	if len(r) == 0 {
		return 0, ErrInsufficientData
	}
	sort.Float64s(r)
	q := stat.Quantile(1-confidence, stat.LinInterp, r, nil)
	return math.Min(q, 0), nil
}

// ParametricVaR assumes normally distributed daily percent returns.
func ParametricVaR(returns []float64, confidence float64) (float64, error) {
	if confidence <= 0 || confidence >= 1 {
		return 0, errors.New("confidence must be in (0, 1)")
	}
	r := dropNaN(returns)
	if len(r) < 2 {
		return 0, ErrInsufficientData
	}
	mean, std := stat.MeanStdDev(r, nil)
	z := distuv.UnitNormal.Quantile(1 - confidence)
	return math.Min(mean+z*std, 0), nil
}

// MaxDrawdown returns the worst peak-to-trough decline of a price or equity
// curve as a non-positive fraction.
func MaxDrawdown(values []float64) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := v/peak - 1; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// AnnualizedReturn compounds daily percent returns to a yearly fraction.
func AnnualizedReturn(returns []float64) (float64, error) {
	r := dropNaN(returns)
	if len(r) == 0 {
		return 0, ErrInsufficientData
	}
	growth := 1.0
	for _, v := range r {
		growth *= 1 + v/100
	}
	if growth <= 0 {
		return -1, nil
	}
	return math.Pow(growth, TradingDays/float64(len(r))) - 1, nil
}

// AnnualizedVolatility scales the daily standard deviation to a yearly fraction.
func AnnualizedVolatility(returns []float64) (float64, error) {
	r := dropNaN(returns)
	if len(r) < 2 {
		return 0, ErrInsufficientData
	}
	return stat.StdDev(r, nil) / 100 * math.Sqrt(TradingDays), nil
}

// Profile computes the risk summary of daily percent returns. Metrics that
// cannot be computed are left at zero and the first error is returned.
func Profile(symbol string, returns, prices []float64, riskFree float64) (model.RiskMetrics, error) {
	m := model.RiskMetrics{Symbol: symbol, MaxDrawdown: MaxDrawdown(prices)}
	var firstErr error
	keep := func(v float64, err error) float64 {
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return v
	}
	m.AnnualizedReturn = keep(AnnualizedReturn(returns))
	m.AnnualizedVolatility = keep(AnnualizedVolatility(returns))
	m.Sharpe = keep(SharpeRatio(returns, riskFree))
	m.HistoricalVaR95 = keep(HistoricalVaR(returns, 0.95))
	m.ParametricVaR95 = keep(ParametricVaR(returns, 0.95))
	return m, firstErr
}
