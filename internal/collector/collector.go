package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"FinForecast/internal/model"
)

// Collector fetches every configured symbol over a fixed date range.
type Collector struct {
	Fetcher     Fetcher
	Symbols     []string
	Start       time.Time
	End         time.Time
	Limiter     *rate.Limiter
	Concurrency int
	MaxRetries  int
	Backoff     time.Duration
}

// NewCollector creates a new Collector paced at rps requests per second.
func NewCollector(fetcher Fetcher, symbols []string, start, end time.Time, rps float64, concurrency, maxRetries int) *Collector {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Collector{
		Fetcher:     fetcher,
		Symbols:     symbols,
		Start:       start,
		End:         end,
		Limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		Concurrency: concurrency,
		MaxRetries:  maxRetries,
		Backoff:     time.Second,
	}
}

// Collect downloads all symbols. Results keep the configured symbol order.
func (c *Collector) Collect(ctx context.Context) ([]model.RawSeries, error) {
	out := make([]model.RawSeries, len(c.Symbols))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Concurrency)

	for i, sym := range c.Symbols {
		g.Go(func() error {
			log.Info().Str("symbol", sym).
				Str("start", c.Start.Format("2006-01-02")).
				Str("end", c.End.Format("2006-01-02")).
				Msg("fetching data")
			bars, err := c.fetchWithRetry(ctx, sym)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", sym, err)
			}
			log.Info().Str("symbol", sym).Int("rows", len(bars)).Msg("fetched data")
			out[i] = model.RawSeries{Symbol: sym, Bars: bars}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetchWithRetry retries transient failures with exponential backoff.
func (c *Collector) fetchWithRetry(ctx context.Context, symbol string) ([]model.RawBar, error) {
	var lastErr error
	for i := 0; i <= c.MaxRetries; i++ {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		bars, err := c.Fetcher.FetchDailyBars(ctx, symbol, c.Start, c.End)
		if err == nil && len(bars) == 0 {
			err = ErrNoData
		}
		if err == nil {
			return bars, nil
		}
		if errors.Is(err, ErrNoData) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if i == c.MaxRetries {
			break
		}
		backoff := c.Backoff * time.Duration(1<<uint(i))
		log.Warn().Err(err).Str("symbol", symbol).
			Int("attempt", i+1).Dur("backoff", backoff).
			Msg("fetch failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", c.MaxRetries+1, lastErr)
}

// Gap is a stretch between consecutive bars longer than the allowed closure.
type Gap struct {
	From time.Time
	To   time.Time
	Days int
}

// Coverage describes how well a series covers the requested range.
type Coverage struct {
	Symbol string
	First  time.Time
	Last   time.Time
	Rows   int
	Gaps   []Gap
}

// CheckCoverage reports date bounds and gaps longer than maxGapDays calendar
// days, including a late start or early finish against [start, end).
func CheckCoverage(s model.RawSeries, start, end time.Time, maxGapDays int) Coverage {
	cov := Coverage{Symbol: s.Symbol, Rows: len(s.Bars)}
	if len(s.Bars) == 0 {
		cov.Gaps = []Gap{{From: start, To: end, Days: int(end.Sub(start).Hours() / 24)}}
		return cov
	}
	cov.First = s.Bars[0].Time
	cov.Last = s.Bars[len(s.Bars)-1].Time

	check := func(from, to time.Time) {
		days := int(to.Sub(from).Hours() / 24)
		if days > maxGapDays {
			cov.Gaps = append(cov.Gaps, Gap{From: from, To: to, Days: days})
		}
	}
	check(truncateDay(start), cov.First)
	for i := 1; i < len(s.Bars); i++ {
		check(s.Bars[i-1].Time, s.Bars[i].Time)
	}
	check(cov.Last, truncateDay(end).AddDate(0, 0, -1))
	return cov
}
