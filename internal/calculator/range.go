package calculator

import (
	"errors"
	"math"

	"FinForecast/internal/model"
)

// TradingDays52w is the number of sessions in a 52-week window.
const TradingDays52w = 252

// HighLow scans the most recent lookback bars and returns the high and low.
func HighLow(bars []model.OHLCV, lookback int) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errors.New("no bars provided")
	}
	n := len(bars)
	start := n - lookback
	if start < 0 {
		start = 0
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for i := start; i < n; i++ {
		if bars[i].High > high {
			high = bars[i].High
		}
		if bars[i].Low < low {
			low = bars[i].Low
		}
	}
	return high, low, nil
}

// RangePosition returns where the current price sits within [low, high] (0.0~1.0).
func RangePosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}

// Snap summarises where the series closes relative to its moving averages and
// its 52-week range.
func Snap(bars []model.OHLCV, rsiPeriod int) (model.Snapshot, error) {
	if len(bars) == 0 {
		return model.Snapshot{}, ErrInsufficientData
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	snap := model.Snapshot{Last: closes[len(closes)-1], SMA50: math.NaN(), SMA200: math.NaN()}
	if v, err := CalculateSMA(closes, 50); err == nil {
		snap.SMA50 = v
	}
	if v, err := CalculateSMA(closes, 200); err == nil {
		snap.SMA200 = v
	}

	var err error
	if snap.RSI, err = CalculateRSI(closes, rsiPeriod); err != nil {
		return snap, err
	}
	if snap.High52w, snap.Low52w, err = HighLow(bars, TradingDays52w); err != nil {
		return snap, err
	}
	if snap.RangePosition, err = RangePosition(snap.Last, snap.High52w, snap.Low52w); err != nil {
		return snap, err
	}
	return snap, nil
}
