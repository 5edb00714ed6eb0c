package preprocess

import (
	"fmt"
	"sort"
	"time"

	"FinForecast/internal/calculator"
	"FinForecast/internal/model"
)

// Align puts all series on a common calendar. "intersect" keeps dates present
// in every series; "union" keeps every date and carries the last bar forward
// (the first bar backward) with zero volume where a series has no trading.
func Align(series []model.PriceSeries, mode string) ([]model.PriceSeries, error) {
	if len(series) == 0 {
		return nil, nil
	}
	counts := map[time.Time]int{}
	for _, s := range series {
		for _, b := range s.Bars {
			counts[b.Time]++
		}
	}
	var dates []time.Time
	for d, n := range counts {
		if mode == "union" || n == len(series) {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("align: series share no common dates")
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]model.PriceSeries, len(series))
	for i, s := range series {
		byDate := make(map[time.Time]model.OHLCV, len(s.Bars))
		for _, b := range s.Bars {
			byDate[b.Time] = b
		}
		aligned := make([]model.OHLCV, len(dates))
		var prev *model.OHLCV
		for j, d := range dates {
			if b, ok := byDate[d]; ok {
				aligned[j] = b
				prev = &aligned[j]
				continue
			}
			src := s.Bars[0]
			if prev != nil {
				src = *prev
			}
			aligned[j] = model.OHLCV{Time: d, Open: src.Close, High: src.Close, Low: src.Close,
				Close: src.Close, AdjClose: src.AdjClose}
		}
		out[i] = model.PriceSeries{Symbol: s.Symbol, Bars: aligned, FetchedAt: s.FetchedAt}
	}
	return out, nil
}

// Enrich appends returns, rolling statistics, volatility and RSI.
func Enrich(s model.PriceSeries, opts Options) model.ProcessedSeries {
	prices := s.AdjCloses()
	var returns, logReturns []float64
	if len(prices) > 0 {
		returns = calculator.PadFront(calculator.DailyReturns(prices), 1)
		logReturns = calculator.PadFront(calculator.LogReturns(prices), 1)
	}
	rsiPeriod := opts.RSIPeriod
	if rsiPeriod == 0 {
		rsiPeriod = calculator.DefaultRSIPeriod
	}
	return model.ProcessedSeries{
		PriceSeries: s,
		Returns:     returns,
		LogReturns:  logReturns,
		RollingMean: calculator.RollingMean(prices, opts.RollingWindow),
		RollingStd:  calculator.RollingStd(prices, opts.RollingWindow),
		Volatility:  calculator.RollingVolatility(returns, opts.VolatilityWindow),
		RSI:         calculator.RSISeries(prices, rsiPeriod),
	}
}

// Process cleans, aligns and enriches every raw series.
func Process(raws []model.RawSeries, opts Options) ([]model.ProcessedSeries, []Report, error) {
	cleaned := make([]model.PriceSeries, 0, len(raws))
	reports := make([]Report, 0, len(raws))
	for _, r := range raws {
		s, rep, err := Clean(r, opts)
		if err != nil {
			return nil, nil, fmt.Errorf("clean: %w", err)
		}
		cleaned = append(cleaned, s)
		reports = append(reports, rep)
	}
	aligned, err := Align(cleaned, opts.Align)
	if err != nil {
		return nil, nil, err
	}
	out := make([]model.ProcessedSeries, len(aligned))
	for i, s := range aligned {
		out[i] = Enrich(s, opts)
	}
	return out, reports, nil
}
