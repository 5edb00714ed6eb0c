package forecast

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"FinForecast/internal/model"
)

// Options configures Run.
type Options struct {
	Horizon    int
	Confidence float64
	TestSize   int
	LogTarget  bool
	Auto       bool
	Search     AutoOptions
	Order      Order
}

// Run selects or builds the model for one series, scores it on the hold-out
// window and forecasts Horizon business days past the last bar.
func Run(s model.PriceSeries, opts Options) (model.Forecast, error) {
	prices := s.AdjCloses()
	if len(prices) == 0 {
		return model.Forecast{}, fmt.Errorf("%s: %w", s.Symbol, ErrInsufficientData)
	}
	for _, p := range prices {
		if opts.LogTarget && p <= 0 {
			return model.Forecast{}, fmt.Errorf("%s: log target needs positive prices", s.Symbol)
		}
	}
	values := transform(prices, opts.LogTarget)

	started := time.Now()
	order, seasonal := opts.Order, opts.Search.Seasonal
	if opts.Auto {
		// The order search never sees the hold-out window.
		sel, err := AutoSelect(trainWindow(values, opts.TestSize), opts.Search)
		if err != nil {
			return model.Forecast{}, fmt.Errorf("%s: %w", s.Symbol, err)
		}
		order, seasonal = sel.Order, sel.Seasonal
	}
	m := New(order, seasonal)
	if err := m.Fit(values); err != nil {
		return model.Forecast{}, fmt.Errorf("%s: %w", s.Symbol, err)
	}

	fc := model.Forecast{
		Symbol:     s.Symbol,
		Model:      m.String(),
		AIC:        m.AIC,
		Confidence: opts.Confidence,
		LastTime:   s.Last(),
		LastValue:  prices[len(prices)-1],
	}

	if opts.TestSize > 0 {
		ev, err := Evaluate(prices, opts.TestSize, m.Order, m.Seasonal, opts.LogTarget)
		if err != nil {
			log.Warn().Err(err).Str("symbol", s.Symbol).Msg("hold-out evaluation skipped")
		} else {
			fc.Evaluation = &ev
		}
	}

	point, lower, upper, err := m.Forecast(opts.Horizon, opts.Confidence)
	if err != nil {
		return model.Forecast{}, fmt.Errorf("%s: %w", s.Symbol, err)
	}
	if opts.LogTarget {
		point, lower, upper = exp(point), exp(lower), exp(upper)
	}
	dates := FutureDates(s.Last(), opts.Horizon)
	fc.Points = make([]model.ForecastPoint, opts.Horizon)
	for i := range fc.Points {
		fc.Points[i] = model.ForecastPoint{Time: dates[i], Value: point[i], Lower: lower[i], Upper: upper[i]}
	}

	log.Info().
		Str("symbol", s.Symbol).
		Str("model", fc.Model).
		Float64("aic", m.AIC).
		Float64("end", fc.End()).
		Dur("elapsed", time.Since(started)).
		Msg("forecast complete")
	return fc, nil
}

// trainWindow drops the last testSize values when that leaves a series to fit.
func trainWindow(values []float64, testSize int) []float64 {
	if testSize <= 0 || testSize >= len(values) {
		return values
	}
	return values[:len(values)-testSize]
}
