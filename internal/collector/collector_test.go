package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"FinForecast/internal/model"
)

var (
	start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
)

func TestMockFetcher_WeekdaysOnly(t *testing.T) {
	bars, err := (&MockFetcher{}).FetchDailyBars(context.Background(), "SPY", start, end)
	require.NoError(t, err)
	require.NotEmpty(t, bars)
	for i, b := range bars {
		assert.NotEqual(t, time.Saturday, b.Time.Weekday())
		assert.NotEqual(t, time.Sunday, b.Time.Weekday())
		assert.True(t, b.Complete())
		if i > 0 {
			assert.True(t, b.Time.After(bars[i-1].Time))
		}
	}
	assert.False(t, bars[len(bars)-1].Time.Before(start))
	assert.True(t, bars[len(bars)-1].Time.Before(end))
}

func TestGenerateBars_Deterministic(t *testing.T) {
	a := GenerateBars("TSLA", 100, start, end)
	b := GenerateBars("TSLA", 100, start, end)
	assert.Equal(t, a, b)
	c := GenerateBars("BND", 100, start, end)
	assert.NotEqual(t, a[10].Close, c[10].Close)
}

func newTestCollector(f Fetcher, symbols ...string) *Collector {
	c := NewCollector(f, symbols, start, end, 1000, 2, 2)
	c.Limiter = rate.NewLimiter(rate.Inf, 1)
	c.Backoff = time.Millisecond
	return c
}

func TestCollect_PreservesOrder(t *testing.T) {
	c := newTestCollector(&MockFetcher{}, "TSLA", "BND", "SPY")
	out, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "TSLA", out[0].Symbol)
	assert.Equal(t, "BND", out[1].Symbol)
	assert.Equal(t, "SPY", out[2].Symbol)
}

type flakyFetcher struct {
	failures int
	calls    int
}

func (f *flakyFetcher) Name() string { return "flaky" }

func (f *flakyFetcher) FetchDailyBars(ctx context.Context, symbol string, s, e time.Time) ([]model.RawBar, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("temporary")
	}
	return GenerateBars(symbol, 50, s, e), nil
}

func TestCollect_RetriesTransientErrors(t *testing.T) {
	f := &flakyFetcher{failures: 2}
	c := newTestCollector(f, "SPY")
	c.Concurrency = 1
	out, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, f.calls)
	assert.NotEmpty(t, out[0].Bars)
}

func TestCollect_GivesUpAfterMaxRetries(t *testing.T) {
	f := &flakyFetcher{failures: 10}
	c := newTestCollector(f, "SPY")
	_, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, f.calls)
}

func TestCollect_NoDataIsNotRetried(t *testing.T) {
	m := &MockFetcher{Data: map[string][]model.RawBar{"BND": {}}}
	c := newTestCollector(m, "BND")
	_, err := c.Collect(context.Background())
	require.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, 1, m.Calls["BND"])
}

func TestCheckCoverage(t *testing.T) {
	bars := GenerateBars("SPY", 100, start, end)
	cov := CheckCoverage(model.RawSeries{Symbol: "SPY", Bars: bars}, start, end, 4)
	assert.Empty(t, cov.Gaps)
	assert.Equal(t, len(bars), cov.Rows)

	// Remove two weeks in the middle.
	holed := append(append([]model.RawBar{}, bars[:10]...), bars[20:]...)
	cov = CheckCoverage(model.RawSeries{Symbol: "SPY", Bars: holed}, start, end, 4)
	require.Len(t, cov.Gaps, 1)
	assert.Equal(t, bars[9].Time, cov.Gaps[0].From)
}

const chartFixture = `{"chart":{"result":[{"meta":{"gmtoffset":-18000},
"timestamp":[1704205800,1704292200,1704378600],
"indicators":{"quote":[{"open":[100,null,102],"high":[101,null,103],"low":[99,null,101],"close":[100.5,null,102.5],"volume":[1000,null,1200]}],
"adjclose":[{"adjclose":[100.4,null,null]}]}}],"error":null}}`

func TestYahooFetcher_ParsesChart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v8/finance/chart/"))
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		w.Write([]byte(chartFixture))
	}))
	defer srv.Close()

	f := NewYahooFetcher("", nil)
	f.BaseURL = srv.URL
	bars, err := f.FetchDailyBars(context.Background(), "SPY", start, end)
	require.NoError(t, err)
	require.Len(t, bars, 2) // null bar skipped
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), bars[0].Time)
	assert.Equal(t, null.FloatFrom(100.4), bars[0].AdjClose)
	assert.False(t, bars[1].AdjClose.Valid)
	assert.Equal(t, 102.5, bars[1].Close.Float64)
}

func TestYahooFetcher_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	f := NewYahooFetcher("", nil)
	f.BaseURL = srv.URL
	_, err := f.FetchDailyBars(context.Background(), "NOPE", start, end)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No data found")
}

func TestRESTFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "SPY", r.URL.Query().Get("symbol"))
		w.Write([]byte(`[{"timestamp":1704326400,"open":2,"high":3,"low":1,"close":2.5,"adj_close":2.4,"volume":10},
{"timestamp":1704240000,"open":1,"high":2,"low":0.5,"close":1.5,"adj_close":null,"volume":5}]`))
	}))
	defer srv.Close()

	f := NewRESTFetcher(srv.URL, "k", "")
	bars, err := f.FetchDailyBars(context.Background(), "SPY", start, end)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Time.Before(bars[1].Time))
	assert.False(t, bars[0].AdjClose.Valid)
}
