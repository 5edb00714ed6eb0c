package notifier

import (
	"fmt"
	"html"
	"strings"

	"FinForecast/internal/pipeline"
	"FinForecast/internal/recorder"
)

// FormatRunReport formats a finished run into a Telegram HTML message.
func FormatRunReport(res *pipeline.Result) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>FinForecast</b> | %s\n", res.FinishedAt.Format("2006-01-02 15:04")))
	if len(res.Series) > 0 {
		s := res.Series[0]
		b.WriteString(fmt.Sprintf("数据区间: %s → %s (%d 行)\n\n",
			s.First().Format("2006-01-02"), s.Last().Format("2006-01-02"), s.Len()))
	}

	if len(res.Forecasts) > 0 {
		b.WriteString("📈 <b>预测:</b>\n")
		for _, fc := range res.Forecasts {
			change := 0.0
			if fc.LastValue > 0 {
				change = (fc.End()/fc.LastValue - 1) * 100
			}
			b.WriteString(fmt.Sprintf("  %s %s: %.2f → %.2f (%+.1f%%, %d天)\n",
				html.EscapeString(fc.Symbol), fc.Model, fc.LastValue, fc.End(), change, len(fc.Points)))
			if ev := fc.Evaluation; ev != nil {
				b.WriteString(fmt.Sprintf("    回测 MAE %.2f | RMSE %.2f | MAPE %.1f%%\n", ev.MAE, ev.RMSE, ev.MAPE))
			}
		}
		b.WriteString("\n")
	}

	if w := res.Weights; w != nil {
		b.WriteString(fmt.Sprintf("💰 <b>组合权重</b> (%s):\n", w.Objective))
		for _, t := range w.Tickers {
			line := fmt.Sprintf("  %s: %.1f%%", html.EscapeString(t), w.Weights[t]*100)
			if amt, ok := res.Allocation[t]; ok {
				line += fmt.Sprintf(" ($%s)", amt.StringFixed(2))
			}
			b.WriteString(line + "\n")
		}
		b.WriteString(fmt.Sprintf("  预期收益 %.1f%% | 波动率 %.1f%% | 夏普 %.2f\n",
			w.ExpectedReturn*100, w.Volatility*100, w.Sharpe))
	}

	if bt := res.Backtest; bt != nil {
		b.WriteString(fmt.Sprintf("\n🧪 <b>回测</b> %s → %s\n", bt.Start.Format("2006-01-02"), bt.End.Format("2006-01-02")))
		b.WriteString(fmt.Sprintf("  策略 %+.1f%% (夏普 %.2f) | 基准 %+.1f%% (夏普 %.2f)\n",
			bt.StrategyReturn*100, bt.StrategySharpe, bt.BenchmarkReturn*100, bt.BenchmarkSharpe))
	}
	return b.String()
}

// FormatFailure formats a failed run.
func FormatFailure(runID string, err error) string {
	return fmt.Sprintf("❌ <b>FinForecast 运行失败</b>\n\nrun: %s\n%s", runID, html.EscapeString(err.Error()))
}

// FormatRunHistory lists recent runs, newest first.
func FormatRunHistory(runs []recorder.RunRecord) string {
	if len(runs) == 0 {
		return "暂无运行记录"
	}
	var b strings.Builder
	b.WriteString("🗂 <b>最近运行</b>\n\n")
	for _, r := range runs {
		status := "✅"
		if r.Status != recorder.StatusOK {
			status = "❌"
		}
		b.WriteString(fmt.Sprintf("%s %s  %d 行  %s\n", status, r.StartedAt.Format("2006-01-02 15:04"), r.Rows, r.ID[:min(8, len(r.ID))]))
	}
	return b.String()
}
