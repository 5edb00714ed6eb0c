package model

import (
	"time"

	"github.com/guregu/null/v6"
)

// OHLCV represents a single daily bar.
type OHLCV struct {
	Time     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   float64
}

// PriceSeries holds cleaned price data for one ticker.
// Bars are strictly increasing by date, one bar per trading day.
type PriceSeries struct {
	Symbol    string
	Bars      []OHLCV
	FetchedAt time.Time
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int { return len(s.Bars) }

// Dates returns the bar dates.
func (s *PriceSeries) Dates() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Time
	}
	return out
}

// AdjCloses returns the adjusted close column, falling back to close when the
// adjusted value is missing.
func (s *PriceSeries) AdjCloses() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		if b.AdjClose > 0 {
			out[i] = b.AdjClose
		} else {
			out[i] = b.Close
		}
	}
	return out
}

// First and Last return the date bounds. Zero time when empty.
func (s *PriceSeries) First() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[0].Time
}

func (s *PriceSeries) Last() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Time
}

// RawBar is a bar as read from disk, before cleaning. Any cell may be missing.
type RawBar struct {
	Time     time.Time
	Open     null.Float
	High     null.Float
	Low      null.Float
	Close    null.Float
	AdjClose null.Float
	Volume   null.Float
}

// Complete reports whether every price and volume cell is present.
func (b RawBar) Complete() bool {
	return b.Open.Valid && b.High.Valid && b.Low.Valid && b.Close.Valid && b.AdjClose.Valid && b.Volume.Valid
}

// RawSeries is the unclean series for one ticker.
type RawSeries struct {
	Symbol string
	Bars   []RawBar
}

// RawFromSeries lifts a clean series into its raw form.
func RawFromSeries(s PriceSeries) RawSeries {
	bars := make([]RawBar, len(s.Bars))
	for i, b := range s.Bars {
		bars[i] = RawBar{
			Time:     b.Time,
			Open:     null.FloatFrom(b.Open),
			High:     null.FloatFrom(b.High),
			Low:      null.FloatFrom(b.Low),
			Close:    null.FloatFrom(b.Close),
			AdjClose: null.FloatFrom(b.AdjClose),
			Volume:   null.FloatFrom(b.Volume),
		}
	}
	return RawSeries{Symbol: s.Symbol, Bars: bars}
}
