// Package decompose splits a price series into trend, seasonal and residual
// components and tests it for stationarity.
package decompose

import (
	"errors"
	"fmt"
	"math"

	"FinForecast/internal/model"
)

var (
	ErrShortSeries = errors.New("series shorter than two periods")
	ErrNonPositive = errors.New("multiplicative model requires positive values")
)

// Decompose runs a classical moving-average decomposition. The trend is a
// centered moving average (2xm for even periods), so the first and last
// period/2 trend and residual values are NaN.
func Decompose(values []float64, period int, m model.DecompositionModel) (model.Decomposition, error) {
	if period < 2 {
		return model.Decomposition{}, fmt.Errorf("period must be >= 2, got %d", period)
	}
	if len(values) < 2*period {
		return model.Decomposition{}, fmt.Errorf("%w: %d values, period %d", ErrShortSeries, len(values), period)
	}
	switch m {
	case model.Additive:
	case model.Multiplicative:
		for _, v := range values {
			if v <= 0 {
				return model.Decomposition{}, ErrNonPositive
			}
		}
	default:
		return model.Decomposition{}, fmt.Errorf("unknown decomposition model %q", m)
	}

	n := len(values)
	trend := centeredMA(values, period)

	sums := make([]float64, period)
	counts := make([]int, period)
	for i, t := range trend {
		if math.IsNaN(t) {
			continue
		}
		if m == model.Multiplicative {
			sums[i%period] += values[i] / t
		} else {
			sums[i%period] += values[i] - t
		}
		counts[i%period]++
	}
	index := make([]float64, period)
	var mean float64
	for j := range index {
		index[j] = sums[j] / float64(counts[j])
		mean += index[j]
	}
	mean /= float64(period)
	for j := range index {
		if m == model.Multiplicative {
			index[j] /= mean
		} else {
			index[j] -= mean
		}
	}

	seasonal := make([]float64, n)
	residual := make([]float64, n)
	for i := range values {
		seasonal[i] = index[i%period]
		switch {
		case math.IsNaN(trend[i]):
			residual[i] = math.NaN()
		case m == model.Multiplicative:
			residual[i] = values[i] / (trend[i] * seasonal[i])
		default:
			residual[i] = values[i] - trend[i] - seasonal[i]
		}
	}

	return model.Decomposition{
		Model:    m,
		Period:   period,
		Observed: append([]float64(nil), values...),
		Trend:    trend,
		Seasonal: seasonal,
		Residual: residual,
	}, nil
}

// Series decomposes the adjusted close of s.
func Series(s model.PriceSeries, period int, m model.DecompositionModel) (model.Decomposition, error) {
	d, err := Decompose(s.AdjCloses(), period, m)
	if err != nil {
		return d, fmt.Errorf("%s: %w", s.Symbol, err)
	}
	d.Symbol = s.Symbol
	d.Dates = s.Dates()
	return d, nil
}

func centeredMA(values []float64, period int) []float64 {
	n := len(values)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	half := period / 2
	for i := half; i < n-half; i++ {
		var sum float64
		if period%2 == 1 {
			for j := i - half; j <= i+half; j++ {
				sum += values[j]
			}
		} else {
			sum = 0.5*values[i-half] + 0.5*values[i+half]
			for j := i - half + 1; j < i+half; j++ {
				sum += values[j]
			}
		}
		out[i] = sum / float64(period)
	}
	return out
}
