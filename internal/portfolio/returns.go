// Package portfolio estimates expected returns and covariance, optimizes
// long-only weights, allocates cash and backtests the result.
package portfolio

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"FinForecast/internal/calculator"
	"FinForecast/internal/model"
)

var (
	ErrInfeasible          = errors.New("weight constraints are infeasible")
	ErrNotPositiveDefinite = errors.New("covariance matrix is not positive semi-definite")
)

// ForecastReturns annualizes the move from the last observed price to the end
// of each forecast: (end/last)^(252/h) - 1.
func ForecastReturns(forecasts []model.Forecast) (map[string]float64, error) {
	out := make(map[string]float64, len(forecasts))
	for _, f := range forecasts {
		h := len(f.Points)
		if h == 0 || f.LastValue <= 0 {
			return nil, fmt.Errorf("%s: empty forecast", f.Symbol)
		}
		end := f.End()
		if end <= 0 {
			end = math.SmallestNonzeroFloat64
		}
		out[f.Symbol] = math.Pow(end/f.LastValue, float64(calculator.TradingDays)/float64(h)) - 1
	}
	return out, nil
}

// HistoricalReturns annualizes the mean daily return of each series.
func HistoricalReturns(series []model.ProcessedSeries) (map[string]float64, error) {
	out := make(map[string]float64, len(series))
	for _, s := range series {
		r := fractions(s.Returns)
		if len(r) == 0 {
			return nil, fmt.Errorf("%s: %w", s.Symbol, calculator.ErrInsufficientData)
		}
		out[s.Symbol] = stat.Mean(r, nil) * calculator.TradingDays
	}
	return out, nil
}

// Covariance returns the annualized sample covariance of daily returns over the
// rows where every series has a return. Series must share a calendar.
func Covariance(series []model.ProcessedSeries) (*mat.SymDense, error) {
	if len(series) == 0 {
		return nil, errors.New("covariance: no series")
	}
	n := len(series[0].Returns)
	for _, s := range series {
		if len(s.Returns) != n {
			return nil, fmt.Errorf("covariance: %s has %d rows, want %d", s.Symbol, len(s.Returns), n)
		}
	}

	var rows [][]float64
	for t := 0; t < n; t++ {
		row := make([]float64, len(series))
		ok := true
		for j, s := range series {
			v := s.Returns[t]
			if math.IsNaN(v) {
				ok = false
				break
			}
			row[j] = v / 100
		}
		if ok {
			rows = append(rows, row)
		}
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("covariance: %w", calculator.ErrInsufficientData)
	}

	data := mat.NewDense(len(rows), len(series), nil)
	for i, row := range rows {
		data.SetRow(i, row)
	}
	cov := mat.NewSymDense(len(series), nil)
	stat.CovarianceMatrix(cov, data, nil)
	cov.ScaleSym(calculator.TradingDays, cov)
	return cov, nil
}

func fractions(percent []float64) []float64 {
	out := make([]float64, 0, len(percent))
	for _, v := range percent {
		if !math.IsNaN(v) {
			out = append(out, v/100)
		}
	}
	return out
}
