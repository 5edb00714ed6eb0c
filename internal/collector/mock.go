package collector

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/guregu/null/v6"

	"FinForecast/internal/model"
)

// MockFetcher returns deterministic synthetic data for development and testing.
// Prices follow a per-symbol drift with a weekly and a monthly cycle.
type MockFetcher struct {
	Price float64
	Data  map[string][]model.RawBar
	Err   map[string]error
	Calls map[string]int

	mu sync.Mutex
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchDailyBars(_ context.Context, symbol string, start, end time.Time) ([]model.RawBar, error) {
	m.mu.Lock()
	if m.Calls == nil {
		m.Calls = map[string]int{}
	}
	m.Calls[symbol]++
	m.mu.Unlock()
	if err, ok := m.Err[symbol]; ok && err != nil {
		return nil, err
	}
	if bars, ok := m.Data[symbol]; ok {
		return inRange(append([]model.RawBar(nil), bars...), start, end), nil
	}
	base := m.Price
	if base == 0 {
		base = 100
	}
	return GenerateBars(symbol, base, start, end), nil
}

// GenerateBars builds one bar per weekday in [start, end).
func GenerateBars(symbol string, basePrice float64, start, end time.Time) []model.RawBar {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	seed := float64(h.Sum32()%1000) / 1000
	drift := 0.0002 + 0.0006*seed
	phase := seed * 2 * math.Pi

	var bars []model.RawBar
	i := 0
	for d := truncateDay(start); d.Before(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		x := float64(i)
		p := basePrice * math.Exp(drift*x) * (1 + 0.01*math.Sin(2*math.Pi*x/5+phase) + 0.03*math.Sin(2*math.Pi*x/21))
		bars = append(bars, model.RawBar{
			Time:     d,
			Open:     null.FloatFrom(p * 0.999),
			High:     null.FloatFrom(p * 1.005),
			Low:      null.FloatFrom(p * 0.995),
			Close:    null.FloatFrom(p),
			AdjClose: null.FloatFrom(p),
			Volume:   null.FloatFrom(1_000_000 + 1000*float64(i%7)),
		})
		i++
	}
	return bars
}
