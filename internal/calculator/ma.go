package calculator

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDays is the annualization factor for daily data.
const TradingDays = 252

// ErrInsufficientData is returned when a series is shorter than the window.
var ErrInsufficientData = errors.New("not enough data")

// CalculateSMA computes the simple moving average of the given prices over the specified period.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, ErrInsufficientData
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// RollingMean returns the trailing mean over window for every position.
// The first window-1 values are NaN, as are windows containing NaN.
func RollingMean(values []float64, window int) []float64 {
	return rolling(values, window, func(w []float64) float64 { return stat.Mean(w, nil) })
}

// RollingStd returns the trailing sample standard deviation over window.
func RollingStd(values []float64, window int) []float64 {
	return rolling(values, window, func(w []float64) float64 { return stat.StdDev(w, nil) })
}

// RollingVolatility annualizes the rolling standard deviation of daily returns.
func RollingVolatility(returns []float64, window int) []float64 {
	out := RollingStd(returns, window)
	f := math.Sqrt(TradingDays)
	for i := range out {
		out[i] *= f
	}
	return out
}

func rolling(values []float64, window int, fn func([]float64) float64) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		w := values[i-window+1 : i+1]
		if hasNaN(w) {
			continue
		}
		out[i] = fn(w)
	}
	return out
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// dropNaN returns the non-NaN values in order.
func dropNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
