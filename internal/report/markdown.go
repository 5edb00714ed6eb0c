// Package report renders a pipeline result as markdown, terminal output or an
// Excel workbook.
package report

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	md "github.com/nao1215/markdown"

	"FinForecast/internal/config"
	"FinForecast/internal/pipeline"
)

func pct(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", v*100)
}

func num(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v)
}

func price(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

// Markdown summarises a run: data coverage, cleaning, risk, stationarity,
// models, forecasts, weights and the backtest. Sections without data are
// omitted.
func Markdown(res *pipeline.Result) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1("Forecast Report")
	if res.RunID != "" {
		doc.PlainText(fmt.Sprintf("Run %s, finished %s", res.RunID, res.FinishedAt.Format("2006-01-02 15:04")))
	}

	if len(res.Coverage) > 0 {
		doc.H2("Data Coverage")
		table := md.TableSet{
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignLeft, md.AlignLeft, md.AlignRight, md.AlignRight},
			Header:    []string{"Ticker", "First", "Last", "Rows", "Gaps"},
		}
		for _, c := range res.Coverage {
			table.Rows = append(table.Rows, []string{
				c.Symbol,
				c.First.Format(config.DateLayout),
				c.Last.Format(config.DateLayout),
				fmt.Sprint(c.Rows),
				fmt.Sprint(len(c.Gaps)),
			})
		}
		doc.Table(table)
	}

	if len(res.Cleaning) > 0 {
		doc.H2("Cleaning")
		table := md.TableSet{
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight},
			Header:    []string{"Ticker", "Rows", "Duplicates", "Filled", "Clipped"},
		}
		for _, c := range res.Cleaning {
			table.Rows = append(table.Rows, []string{
				c.Symbol, fmt.Sprint(c.Rows), fmt.Sprint(c.Duplicates), fmt.Sprint(c.Filled), fmt.Sprint(c.Clipped),
			})
		}
		doc.Table(table)
	}

	if len(res.Analyses) > 0 {
		doc.H2("Risk Metrics")
		risk := md.TableSet{
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight},
			Header:    []string{"Ticker", "Return", "Volatility", "Sharpe", "VaR 95% (hist)", "VaR 95% (param)", "Max Drawdown"},
		}
		stationarity := md.TableSet{
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignLeft, md.AlignRight, md.AlignLeft},
			Header:    []string{"Ticker", "ADF (price)", "Price stationary", "ADF (returns)", "Returns stationary"},
		}
		for _, a := range res.Analyses {
			r := a.Risk
			risk.Rows = append(risk.Rows, []string{
				a.Symbol,
				pct(r.AnnualizedReturn),
				pct(r.AnnualizedVolatility),
				num(r.Sharpe),
				fmt.Sprintf("%.2f%%", r.HistoricalVaR95),
				fmt.Sprintf("%.2f%%", r.ParametricVaR95),
				pct(r.MaxDrawdown),
			})
			row := []string{a.Symbol, "n/a", "n/a", "n/a", "n/a"}
			if a.PriceADF != nil {
				row[1], row[2] = num(a.PriceADF.Statistic), yesNo(a.PriceADF.Stationary)
			}
			if a.ReturnADF != nil {
				row[3], row[4] = num(a.ReturnADF.Statistic), yesNo(a.ReturnADF.Stationary)
			}
			stationarity.Rows = append(stationarity.Rows, row)
		}
		doc.Table(risk)
		doc.H2("Stationarity")
		doc.Table(stationarity)

		doc.H2("Market Snapshot")
		snap := md.TableSet{
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight},
			Header:    []string{"Ticker", "Last", "SMA 50", "SMA 200", "RSI", "52w High", "52w Low", "52w Position"},
		}
		for _, a := range res.Analyses {
			s := a.Snapshot
			snap.Rows = append(snap.Rows, []string{
				a.Symbol, price(s.Last), price(s.SMA50), price(s.SMA200), fmt.Sprintf("%.1f", s.RSI),
				price(s.High52w), price(s.Low52w), fmt.Sprintf("%.0f%%", s.RangePosition*100),
			})
		}
		doc.Table(snap)
	}

	if len(res.Forecasts) > 0 {
		doc.H2("Forecasts")
		table := md.TableSet{
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignLeft, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight},
			Header:    []string{"Ticker", "Model", "Last", "Horizon End", "Lower", "Upper", "RMSE", "MAPE"},
		}
		for i := range res.Forecasts {
			f := &res.Forecasts[i]
			lower, upper := math.NaN(), math.NaN()
			if n := len(f.Points); n > 0 {
				lower, upper = f.Points[n-1].Lower, f.Points[n-1].Upper
			}
			rmse, mape := "n/a", "n/a"
			if f.Evaluation != nil {
				rmse = price(f.Evaluation.RMSE)
				mape = fmt.Sprintf("%.2f%%", f.Evaluation.MAPE)
			}
			table.Rows = append(table.Rows, []string{
				f.Symbol, f.Model, price(f.LastValue), price(f.End()), price(lower), price(upper), rmse, mape,
			})
		}
		doc.Table(table)
	}

	if w := res.Weights; w != nil {
		doc.H2("Portfolio")
		doc.PlainText(fmt.Sprintf("Objective %s, leverage %.2f: expected return %s, volatility %s, Sharpe %s",
			w.Objective, w.Leverage, pct(w.ExpectedReturn), pct(w.Volatility), num(w.Sharpe)))
		table := md.TableSet{
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignRight, md.AlignRight},
			Header:    []string{"Ticker", "Weight", "Expected Return", "Allocation"},
		}
		tickers := append([]string(nil), w.Tickers...)
		sort.Strings(tickers)
		for _, t := range tickers {
			alloc := "n/a"
			if a, ok := res.Allocation[t]; ok {
				alloc = a.StringFixed(2)
			}
			table.Rows = append(table.Rows, []string{t, pct(w.Weights[t]), pct(w.ExpectedReturns[t]), alloc})
		}
		doc.Table(table)
	}

	if b := res.Backtest; b != nil {
		doc.H2("Backtest")
		doc.PlainText(fmt.Sprintf("%s to %s", b.Start.Format(config.DateLayout), b.End.Format(config.DateLayout)))
		doc.Table(md.TableSet{
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignRight},
			Header:    []string{"", "Strategy", "Benchmark"},
			Rows: [][]string{
				{"Cumulative Return", pct(b.StrategyReturn), pct(b.BenchmarkReturn)},
				{"Annualized Return", pct(b.StrategyAnnual), pct(b.BenchmarkAnnual)},
				{"Sharpe", num(b.StrategySharpe), num(b.BenchmarkSharpe)},
				{"Max Drawdown", pct(b.StrategyDrawdown), pct(b.BenchmarkDrawdown)},
			},
		})
	}

	return doc.String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
