package preprocess

import (
	"math"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinForecast/internal/collector"
	"FinForecast/internal/model"
)

func day(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func bar(d int, price float64) model.RawBar {
	v := null.FloatFrom(price)
	return model.RawBar{Time: day(d), Open: v, High: v, Low: v, Close: v, AdjClose: v, Volume: null.FloatFrom(100)}
}

func TestCleanSortsDedupsAndFills(t *testing.T) {
	missing := bar(3, 0)
	missing.Close = null.Float{}
	missing.AdjClose = null.Float{}
	missing.Open = null.Float{}
	missing.Volume = null.Float{}
	raw := model.RawSeries{Symbol: "TSLA", Bars: []model.RawBar{
		bar(4, 12), missing, bar(2, 10), bar(2, 11),
	}}

	s, rep, err := Clean(raw, Options{})
	require.NoError(t, err)
	require.Len(t, s.Bars, 3)
	assert.Equal(t, 1, rep.Duplicates)
	assert.Equal(t, day(2), s.Bars[0].Time)
	assert.Equal(t, 11.0, s.Bars[0].Close, "duplicate keeps the last row")
	assert.Equal(t, 11.0, s.Bars[1].Close, "gap is forward-filled")
	assert.Equal(t, 11.0, s.Bars[1].AdjClose)
	assert.Equal(t, 0.0, s.Bars[1].Volume)
	assert.Positive(t, rep.Filled)
}

func TestCleanBackFillsHeadAndFallsBackToClose(t *testing.T) {
	head := bar(2, 0)
	head.Close = null.Float{}
	head.AdjClose = null.Float{}
	second := bar(3, 20)
	second.AdjClose = null.Float{}
	raw := model.RawSeries{Symbol: "BND", Bars: []model.RawBar{head, second}}

	s, _, err := Clean(raw, Options{})
	require.NoError(t, err)
	assert.Equal(t, 20.0, s.Bars[0].Close)
	assert.Equal(t, 20.0, s.Bars[1].AdjClose)
}

func TestCleanRejectsEmptyCloses(t *testing.T) {
	b := bar(2, 0)
	b.Close = null.Float{}
	b.AdjClose = null.Float{}
	_, _, err := Clean(model.RawSeries{Symbol: "X", Bars: []model.RawBar{b}}, Options{})
	assert.ErrorIs(t, err, ErrEmptySeries)
}

func TestCleanClipsSpike(t *testing.T) {
	var bars []model.RawBar
	for i := 0; i < 30; i++ {
		p := 100 + math.Sin(float64(i))
		if i == 15 {
			p = 1000
		}
		bars = append(bars, model.RawBar{
			Time:     day(1).AddDate(0, 0, i),
			Open:     null.FloatFrom(p),
			High:     null.FloatFrom(p),
			Low:      null.FloatFrom(p),
			Close:    null.FloatFrom(p),
			AdjClose: null.FloatFrom(p),
			Volume:   null.FloatFrom(1),
		})
	}
	s, rep, err := Clean(model.RawSeries{Symbol: "SPY", Bars: bars}, Options{OutlierZ: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Clipped)
	assert.Equal(t, s.Bars[14].AdjClose, s.Bars[15].AdjClose)
	assert.InDelta(t, 100+math.Sin(16), s.Bars[16].AdjClose, 1e-12)
}

func series(sym string, days ...int) model.PriceSeries {
	s := model.PriceSeries{Symbol: sym}
	for _, d := range days {
		p := float64(d)
		s.Bars = append(s.Bars, model.OHLCV{Time: day(d), Open: p, High: p, Low: p, Close: p, AdjClose: p, Volume: 1})
	}
	return s
}

func TestAlignIntersect(t *testing.T) {
	out, err := Align([]model.PriceSeries{series("A", 2, 3, 4, 5), series("B", 3, 4, 6)}, "intersect")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []time.Time{day(3), day(4)}, out[0].Dates())
	assert.Equal(t, out[0].Dates(), out[1].Dates())
}

func TestAlignUnion(t *testing.T) {
	out, err := Align([]model.PriceSeries{series("A", 2, 3, 5), series("B", 3, 4)}, "union")
	require.NoError(t, err)
	b := out[1]
	require.Len(t, b.Bars, 4)
	assert.Equal(t, 3.0, b.Bars[0].Close, "leading gap back-filled")
	assert.Equal(t, 4.0, b.Bars[3].Close, "trailing gap forward-filled")
	assert.Equal(t, 0.0, b.Bars[3].Volume)
}

func TestAlignDisjoint(t *testing.T) {
	_, err := Align([]model.PriceSeries{series("A", 2), series("B", 3)}, "intersect")
	assert.Error(t, err)
}

func TestProcessHasNoNaNPrices(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 3, 0)
	var raws []model.RawSeries
	for _, sym := range []string{"TSLA", "BND", "SPY"} {
		raws = append(raws, model.RawSeries{Symbol: sym, Bars: collector.GenerateBars(sym, 100, start, end)})
	}
	raws[0].Bars[5].Close = null.Float{}
	raws[0].Bars[5].AdjClose = null.Float{}

	out, reports, err := Process(raws, Options{Align: "intersect", OutlierZ: 10, RollingWindow: 5, VolatilityWindow: 5})
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Len(t, reports, 3)
	for _, s := range out {
		n := s.Len()
		for _, b := range s.Bars {
			assert.False(t, math.IsNaN(b.Close) || math.IsNaN(b.AdjClose))
		}
		require.Len(t, s.Returns, n)
		require.Len(t, s.RollingMean, n)
		require.Len(t, s.Volatility, n)
		require.Len(t, s.RSI, n)
		assert.True(t, math.IsNaN(s.Returns[0]))
		assert.InDelta(t, (s.Bars[1].AdjClose/s.Bars[0].AdjClose-1)*100, s.Returns[1], 1e-9)
		assert.True(t, math.IsNaN(s.RollingMean[3]))
		assert.False(t, math.IsNaN(s.RollingMean[4]))
		assert.False(t, math.IsNaN(s.Volatility[5]))
	}
}
