package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"FinForecast/internal/config"
	"FinForecast/internal/pipeline"
)

// Sheet names written by ExportXLSX.
const (
	SheetSummary   = "Summary"
	SheetForecasts = "Forecasts"
	SheetWeights   = "Weights"
	SheetMetrics   = "Metrics"
)

// ExportXLSX writes the run result to a workbook at path.
func ExportXLSX(path string, res *pipeline.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetForecasts, SheetWeights, SheetMetrics} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	if err := writeRows(f, SheetSummary, summaryRows(res)); err != nil {
		return err
	}
	if err := writeRows(f, SheetForecasts, forecastRows(res)); err != nil {
		return err
	}
	if err := writeRows(f, SheetWeights, weightRows(res)); err != nil {
		return err
	}
	if err := writeRows(f, SheetMetrics, metricRows(res)); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func summaryRows(res *pipeline.Result) [][]interface{} {
	rows := [][]interface{}{
		{"Run", res.RunID},
		{"Started", res.StartedAt.Format("2006-01-02 15:04:05")},
		{"Finished", res.FinishedAt.Format("2006-01-02 15:04:05")},
		{"Rows", res.Rows()},
	}
	if w := res.Weights; w != nil {
		rows = append(rows,
			[]interface{}{"Objective", string(w.Objective)},
			[]interface{}{"Leverage", w.Leverage},
			[]interface{}{"Expected Return", w.ExpectedReturn},
			[]interface{}{"Volatility", w.Volatility},
			[]interface{}{"Sharpe", w.Sharpe},
		)
	}
	if b := res.Backtest; b != nil {
		rows = append(rows,
			[]interface{}{"Backtest Start", b.Start.Format(config.DateLayout)},
			[]interface{}{"Backtest End", b.End.Format(config.DateLayout)},
			[]interface{}{"Strategy Return", b.StrategyReturn},
			[]interface{}{"Benchmark Return", b.BenchmarkReturn},
		)
	}
	return rows
}

func forecastRows(res *pipeline.Result) [][]interface{} {
	rows := [][]interface{}{{"Date", "Ticker", "Forecast", "Lower", "Upper"}}
	for _, f := range res.Forecasts {
		for _, p := range f.Points {
			rows = append(rows, []interface{}{p.Time.Format(config.DateLayout), f.Symbol, p.Value, p.Lower, p.Upper})
		}
	}
	return rows
}

func weightRows(res *pipeline.Result) [][]interface{} {
	rows := [][]interface{}{{"Ticker", "Weight", "Expected Return", "Allocation"}}
	if res.Weights == nil {
		return rows
	}
	tickers := append([]string(nil), res.Weights.Tickers...)
	sort.Strings(tickers)
	for _, t := range tickers {
		alloc := 0.0
		if a, ok := res.Allocation[t]; ok {
			alloc = a.InexactFloat64()
		}
		rows = append(rows, []interface{}{t, res.Weights.Weights[t], res.Weights.ExpectedReturns[t], alloc})
	}
	return rows
}

func metricRows(res *pipeline.Result) [][]interface{} {
	rows := [][]interface{}{{
		"Ticker", "Annualized Return", "Annualized Volatility", "Sharpe",
		"Historical VaR 95%", "Parametric VaR 95%", "Max Drawdown", "Model", "RMSE", "MAPE",
	}}
	models := make(map[string]int, len(res.Forecasts))
	for i, f := range res.Forecasts {
		models[f.Symbol] = i
	}
	for _, a := range res.Analyses {
		r := a.Risk
		row := []interface{}{
			a.Symbol, finite(r.AnnualizedReturn), finite(r.AnnualizedVolatility), finite(r.Sharpe),
			finite(r.HistoricalVaR95), finite(r.ParametricVaR95), finite(r.MaxDrawdown), "", "", "",
		}
		if i, ok := models[a.Symbol]; ok {
			f := res.Forecasts[i]
			row[7] = f.Model
			if f.Evaluation != nil {
				row[8], row[9] = finite(f.Evaluation.RMSE), finite(f.Evaluation.MAPE)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// finite maps NaN and infinities to an empty cell, which excelize cannot store.
func finite(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return v
}
