package collector

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"FinForecast/internal/model"
)

// ErrNoData is returned when a provider has no bars for a symbol in range.
var ErrNoData = errors.New("no data returned")

// Fetcher defines the interface for fetching daily market data.
// Bars are returned in chronological order over [start, end).
type Fetcher interface {
	FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]model.RawBar, error)
	Name() string
}

// newHTTPClient builds a client with optional proxy support.
func newHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}

// truncateDay drops the clock part, keeping the calendar date in UTC.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// inRange keeps bars with start <= date < end.
func inRange(bars []model.RawBar, start, end time.Time) []model.RawBar {
	out := bars[:0]
	for _, b := range bars {
		if b.Time.Before(start) || !b.Time.Before(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}
