// Package preprocess turns raw downloaded bars into aligned, gap-free series
// with derived columns.
package preprocess

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/guregu/null/v6"
	"gonum.org/v1/gonum/stat"

	"FinForecast/internal/model"
)

// ErrEmptySeries is returned when a series has no usable closes.
var ErrEmptySeries = errors.New("no usable prices")

// Options controls cleaning and derived columns.
type Options struct {
	Align            string  // intersect or union
	OutlierZ         float64 // robust z-score threshold on daily log returns; 0 disables
	RollingWindow    int
	VolatilityWindow int
	RSIPeriod        int
}

// Report counts what cleaning changed in one series.
type Report struct {
	Symbol     string
	Rows       int
	Duplicates int
	Filled     int
	Clipped    int
}

// Clean sorts, de-duplicates and fills a raw series. Duplicate dates keep the
// last row. Missing or non-positive cells are forward-filled, then back-filled
// at the head. A missing adjusted close falls back to the close. Daily moves
// whose robust z-score exceeds opts.OutlierZ are replaced by the previous bar.
func Clean(raw model.RawSeries, opts Options) (model.PriceSeries, Report, error) {
	rep := Report{Symbol: raw.Symbol}

	bars := append([]model.RawBar(nil), raw.Bars...)
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	dedup := bars[:0]
	for _, b := range bars {
		if n := len(dedup); n > 0 && dedup[n-1].Time.Equal(b.Time) {
			dedup[n-1] = b
			rep.Duplicates++
			continue
		}
		dedup = append(dedup, b)
	}
	bars = dedup
	rep.Rows = len(bars)

	columns := [][]null.Float{
		column(bars, func(b *model.RawBar) *null.Float { return &b.Open }),
		column(bars, func(b *model.RawBar) *null.Float { return &b.High }),
		column(bars, func(b *model.RawBar) *null.Float { return &b.Low }),
		column(bars, func(b *model.RawBar) *null.Float { return &b.Close }),
		column(bars, func(b *model.RawBar) *null.Float { return &b.AdjClose }),
	}
	closeIdx, adjIdx := 3, 4
	for i := range bars {
		if !columns[adjIdx][i].Valid && columns[closeIdx][i].Valid && columns[closeIdx][i].Float64 > 0 {
			columns[adjIdx][i] = columns[closeIdx][i]
		}
	}

	filled := make([][]float64, len(columns))
	for c, col := range columns {
		vals, n, ok := fill(col)
		if !ok {
			if c == closeIdx || c == adjIdx {
				return model.PriceSeries{}, rep, fmt.Errorf("%s: %w", raw.Symbol, ErrEmptySeries)
			}
			// Whole column missing: use the close.
			vals, n, _ = fill(columns[closeIdx])
		}
		filled[c] = vals
		rep.Filled += n
	}
	volume := make([]float64, len(bars))
	for i, b := range bars {
		if b.Volume.Valid && b.Volume.Float64 >= 0 {
			volume[i] = b.Volume.Float64
		} else {
			rep.Filled++
		}
	}

	out := model.PriceSeries{Symbol: raw.Symbol, Bars: make([]model.OHLCV, len(bars))}
	for i, b := range bars {
		out.Bars[i] = model.OHLCV{
			Time:     b.Time,
			Open:     filled[0][i],
			High:     filled[1][i],
			Low:      filled[2][i],
			Close:    filled[3][i],
			AdjClose: filled[4][i],
			Volume:   volume[i],
		}
	}
	rep.Clipped = clipOutliers(out.Bars, opts.OutlierZ)
	return out, rep, nil
}

func column(bars []model.RawBar, get func(*model.RawBar) *null.Float) []null.Float {
	out := make([]null.Float, len(bars))
	for i := range bars {
		out[i] = *get(&bars[i])
	}
	return out
}

// fill forward-fills then back-fills a column, treating non-positive prices as
// missing. It reports how many cells were filled and false when nothing was valid.
func fill(col []null.Float) ([]float64, int, bool) {
	out := make([]float64, len(col))
	first := -1
	n := 0
	last := math.NaN()
	for i, v := range col {
		if v.Valid && v.Float64 > 0 && !math.IsInf(v.Float64, 0) {
			last = v.Float64
			if first < 0 {
				first = i
			}
		} else {
			n++
		}
		out[i] = last
	}
	if first < 0 {
		return nil, 0, false
	}
	for i := 0; i < first; i++ {
		out[i] = out[first]
	}
	return out, n, true
}

// clipOutliers replaces bars whose adjusted-close log return is an outlier
// against the series' median absolute deviation.
func clipOutliers(bars []model.OHLCV, threshold float64) int {
	if threshold <= 0 || len(bars) < 3 {
		return 0
	}
	rets := make([]float64, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		rets[i-1] = math.Log(bars[i].AdjClose / bars[i-1].AdjClose)
	}
	med, mad := medianMAD(rets)
	if mad == 0 {
		return 0
	}

	clipped := 0
	for i := 1; i < len(bars); i++ {
		r := math.Log(bars[i].AdjClose / bars[i-1].AdjClose)
		z := 0.6745 * (r - med) / mad
		if math.Abs(z) <= threshold {
			continue
		}
		prev := bars[i-1]
		bars[i].Open = prev.Close
		bars[i].High = prev.Close
		bars[i].Low = prev.Close
		bars[i].Close = prev.Close
		bars[i].AdjClose = prev.AdjClose
		clipped++
	}
	return clipped
}

func medianMAD(values []float64) (float64, float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	med := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - med)
	}
	sort.Float64s(dev)
	return med, stat.Quantile(0.5, stat.Empirical, dev, nil)
}
