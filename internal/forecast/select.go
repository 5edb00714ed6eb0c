package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"FinForecast/internal/decompose"
	"FinForecast/internal/model"
)

// AutoOptions bounds the automatic order search.
type AutoOptions struct {
	MaxP, MaxQ, MaxD int
	Seasonal         SeasonalOrder
}

// ChooseD returns the smallest number of differences, up to maxD, after which
// the ADF test rejects a unit root at 5%.
func ChooseD(values []float64, maxD int) int {
	w := values
	for d := 0; d < maxD; d++ {
		res, err := decompose.ADF(w, -1)
		if err == nil && res.Stationary {
			return d
		}
		w = difference(w, 1)
	}
	return maxD
}

// AutoSelect picks d by ADF, then fits every (p,q) in the grid and keeps the
// model with the lowest AICc. Ties keep the simpler model.
func AutoSelect(values []float64, opts AutoOptions) (*Model, error) {
	seasonal := opts.Seasonal
	src := values
	for i := 0; seasonal.Enabled() && i < seasonal.D; i++ {
		src = difference(src, seasonal.S)
	}
	d := ChooseD(src, opts.MaxD)

	var best *Model
	var lastErr error
	for p := 0; p <= opts.MaxP; p++ {
		for q := 0; q <= opts.MaxQ; q++ {
			m := New(Order{P: p, D: d, Q: q}, seasonal)
			if err := m.Fit(values); err != nil {
				lastErr = err
				continue
			}
			log.Debug().Str("model", m.String()).Float64("aicc", m.AICc).Msg("candidate fitted")
			if best == nil || m.AICc < best.AICc {
				best = m
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("auto select: no candidate fitted: %w", lastErr)
	}
	return best, nil
}

// Accuracy compares predictions against actual values. MAPE skips zero actuals.
func Accuracy(actual, predicted []float64) model.Evaluation {
	n := len(actual)
	if len(predicted) < n {
		n = len(predicted)
	}
	ev := model.Evaluation{TestSize: n}
	if n == 0 {
		return ev
	}
	var sumAbs, sumSq, sumPct float64
	pctN := 0
	for i := 0; i < n; i++ {
		diff := actual[i] - predicted[i]
		sumAbs += math.Abs(diff)
		sumSq += diff * diff
		if actual[i] != 0 {
			sumPct += math.Abs(diff / actual[i])
			pctN++
		}
	}
	ev.MAE = sumAbs / float64(n)
	ev.RMSE = math.Sqrt(sumSq / float64(n))
	if pctN > 0 {
		ev.MAPE = sumPct / float64(pctN) * 100
	}
	return ev
}

// Evaluate fits order on all but the last testSize values and scores the
// forecast of the held-out tail. With logTarget the model is fitted on log
// values and scored on the original scale.
func Evaluate(values []float64, testSize int, order Order, seasonal SeasonalOrder, logTarget bool) (model.Evaluation, error) {
	if testSize <= 0 || testSize >= len(values) {
		return model.Evaluation{}, fmt.Errorf("evaluate: test size %d out of range for %d values", testSize, len(values))
	}
	split := len(values) - testSize
	train := transform(values[:split], logTarget)

	m := New(order, seasonal)
	if err := m.Fit(train); err != nil {
		return model.Evaluation{}, fmt.Errorf("evaluate: %w", err)
	}
	point, _, _, err := m.Forecast(testSize, 0.95)
	if err != nil {
		return model.Evaluation{}, fmt.Errorf("evaluate: %w", err)
	}
	if logTarget {
		point = exp(point)
	}
	return Accuracy(values[split:], point), nil
}

// FutureDates returns the h business days (Mon-Fri) after last.
func FutureDates(last time.Time, h int) []time.Time {
	out := make([]time.Time, 0, h)
	d := last
	for len(out) < h {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		out = append(out, d)
	}
	return out
}

func transform(values []float64, logTarget bool) []float64 {
	if !logTarget {
		return values
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Log(v)
	}
	return out
}

func exp(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Exp(v)
	}
	return out
}
