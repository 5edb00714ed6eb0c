package calculator

import "math"

// DailyReturns returns percentage changes between consecutive prices.
// The result has len(prices)-1 elements.
func DailyReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = (prices[i]/prices[i-1] - 1) * 100
	}
	return out
}

// LogReturns returns ln(p[i]/p[i-1]) with len(prices)-1 elements.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = math.Log(prices[i] / prices[i-1])
	}
	return out
}

// PadFront prepends n NaN values so a derived series lines up with its source.
func PadFront(values []float64, n int) []float64 {
	out := make([]float64, n, n+len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	return append(out, values...)
}
