// Package metrics collects per-run pipeline metrics and writes them in the
// node-exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "finforecast"

// Metrics holds the collectors of one pipeline run.
type Metrics struct {
	Registry *prometheus.Registry

	StageDuration *prometheus.HistogramVec
	StageErrors   *prometheus.CounterVec
	RowsFetched   *prometheus.GaugeVec
	ForecastRMSE  *prometheus.GaugeVec
	Weight        *prometheus.GaugeVec
	LastSuccess   prometheus.Gauge
}

// New returns metrics registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"stage"},
		),
		StageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_errors_total",
				Help:      "Failed pipeline stages",
			},
			[]string{"stage"},
		),
		RowsFetched: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "rows",
				Help:      "Daily bars fetched per ticker",
			},
			[]string{"ticker"},
		),
		ForecastRMSE: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "forecast",
				Name:      "holdout_rmse",
				Help:      "Hold-out RMSE of the fitted model",
			},
			[]string{"ticker"},
		),
		Weight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "portfolio",
				Name:      "weight",
				Help:      "Optimized portfolio weight",
			},
			[]string{"ticker"},
		),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
	}
	m.Registry.MustRegister(m.StageDuration, m.StageErrors, m.RowsFetched, m.ForecastRMSE, m.Weight, m.LastSuccess)
	return m
}

// ObserveStage records how long a stage took and whether it failed.
func (m *Metrics) ObserveStage(stage string, started time.Time, err error) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
	if err != nil {
		m.StageErrors.WithLabelValues(stage).Inc()
	}
}

// WriteTextfile writes the registry to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
