package dataset

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinForecast/internal/model"
)

func day(d int) time.Time { return time.Date(2020, 1, d, 0, 0, 0, 0, time.UTC) }

func sampleRaw() []model.RawSeries {
	return []model.RawSeries{
		{Symbol: "TSLA", Bars: []model.RawBar{
			{Time: day(2), Open: null.FloatFrom(100), High: null.FloatFrom(105), Low: null.FloatFrom(95), Close: null.FloatFrom(102), AdjClose: null.FloatFrom(102), Volume: null.FloatFrom(1e6)},
			{Time: day(3), Open: null.FloatFrom(101), High: null.FloatFrom(106), Low: null.FloatFrom(96), Close: null.Float{}, AdjClose: null.FloatFrom(103), Volume: null.FloatFrom(2e6)},
		}},
		{Symbol: "SPY", Bars: []model.RawBar{
			{Time: day(2), Open: null.FloatFrom(300), High: null.FloatFrom(305), Low: null.FloatFrom(295), Close: null.FloatFrom(302), AdjClose: null.FloatFrom(302), Volume: null.FloatFrom(1e7)},
		}},
	}
}

func TestRawRoundTripKeepsMissingCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw", "combined.csv")
	require.NoError(t, WriteRaw(path, sampleRaw()))

	got, err := ReadRaw(path)
	require.NoError(t, err)
	assert.Equal(t, sampleRaw(), got)
}

func TestEncodeRawHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeRaw(&buf, sampleRaw()))
	first := strings.SplitN(buf.String(), "\n", 2)[0]
	assert.Equal(t, "Date,Ticker,Open,High,Low,Close,Adj Close,Volume", first)
	assert.Contains(t, buf.String(), "2020-01-03,TSLA,101,106,96,,103,2000000")
}

func TestDecodeWideFormat(t *testing.T) {
	in := "Date,TSLA_Open,TSLA_Close,TSLA_Adj Close,SPY_Open,SPY_Close,SPY_Adj Close,SPY_Volume\n" +
		"2020-01-02,100,102,102,300,302,302,10\n" +
		"2020-01-03 00:00:00,101,NaN,103,301,303,303,\n"
	got, err := DecodeRaw(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "TSLA", got[0].Symbol)
	assert.Equal(t, "SPY", got[1].Symbol)
	require.Len(t, got[0].Bars, 2)
	assert.Equal(t, day(3), got[0].Bars[1].Time)
	assert.False(t, got[0].Bars[1].Close.Valid)
	assert.False(t, got[0].Bars[0].Volume.Valid) // column absent
	assert.False(t, got[1].Bars[1].Volume.Valid)
	assert.Equal(t, 303.0, got[1].Bars[1].Close.Float64)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	_, err := DecodeRaw(strings.NewReader("Ticker,Close\nSPY,1\n"))
	assert.Error(t, err)

	_, err = DecodeRaw(strings.NewReader("Date,Ticker,Close\n2020-01-02,SPY,abc\n"))
	assert.Error(t, err)

	_, err = DecodeRaw(strings.NewReader("Date,Foo\n2020-01-02,1\n"))
	assert.Error(t, err)
}

func TestProcessedRoundTrip(t *testing.T) {
	nan := math.NaN()
	ps := model.ProcessedSeries{
		PriceSeries: model.PriceSeries{Symbol: "SPY", Bars: []model.OHLCV{
			{Time: day(2), Open: 1, High: 2, Low: 0.5, Close: 1.5, AdjClose: 1.5, Volume: 10},
			{Time: day(3), Open: 1.5, High: 2.5, Low: 1, Close: 2, AdjClose: 2, Volume: 12},
		}},
		Returns:     []float64{nan, 33.3},
		LogReturns:  []float64{nan, 0.28},
		RollingMean: []float64{nan, 1.75},
		RollingStd:  []float64{nan, 0.35},
		Volatility:  []float64{nan, nan},
		RSI:         []float64{nan, nan},
	}
	path := filepath.Join(t.TempDir(), "processed.csv")
	require.NoError(t, WriteProcessed(path, []model.ProcessedSeries{ps}))

	got, err := ReadProcessed(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ps.PriceSeries.Bars, got[0].Bars)
}

func TestForecastRoundTrip(t *testing.T) {
	fc := []model.Forecast{{Symbol: "SPY", Points: []model.ForecastPoint{
		{Time: day(6), Value: 10, Lower: 9, Upper: 11},
		{Time: day(7), Value: 10.5, Lower: 9.2, Upper: 11.8},
	}}}
	path := filepath.Join(t.TempDir(), "fc.csv")
	require.NoError(t, WriteForecasts(path, fc))
	got, err := ReadForecasts(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fc[0].Points, got[0].Points)
}

func TestWeightsRoundTrip(t *testing.T) {
	w := &model.PortfolioWeights{
		Objective: model.MaxSharpe,
		Tickers:   []string{"SPY", "BND"},
		Weights:   map[string]float64{"SPY": 0.7, "BND": 0.3},
		Leverage:  1,
		Sharpe:    1.2,
	}
	path := filepath.Join(t.TempDir(), "w.json")
	require.NoError(t, WriteWeights(path, w, map[string]string{"SPY": "7000.00"}))
	got, err := ReadWeights(path)
	require.NoError(t, err)
	assert.Equal(t, w.Weights, got.Weights)
	assert.Equal(t, w.Objective, got.Objective)
	assert.Equal(t, w.Tickers, got.Tickers)
}
