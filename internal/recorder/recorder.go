package recorder

import (
	"time"

	"FinForecast/internal/model"
)

// Run status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// RunRecord describes one pipeline execution.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Error      string
	Tickers    []string
	Rows       int
}

// Recorder persists run history for later analysis.
type Recorder interface {
	RecordRun(run *RunRecord) error
	RecordForecast(runID string, fc *model.Forecast) error
	RecordWeights(runID string, w *model.PortfolioWeights) error
	RecordMetrics(runID string, m *model.RiskMetrics) error
	Close() error
}
