package recorder

import "FinForecast/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ *RunRecord) error                            { return nil }
func (n *NoopRecorder) RecordForecast(_ string, _ *model.Forecast) error        { return nil }
func (n *NoopRecorder) RecordWeights(_ string, _ *model.PortfolioWeights) error { return nil }
func (n *NoopRecorder) RecordMetrics(_ string, _ *model.RiskMetrics) error      { return nil }
func (n *NoopRecorder) Close() error                                            { return nil }
