package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStageAndTextfile(t *testing.T) {
	m := New()
	m.ObserveStage("fetch", time.Now(), nil)
	m.ObserveStage("forecast", time.Now(), errors.New("boom"))
	m.RowsFetched.WithLabelValues("SPY").Set(250)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageErrors.WithLabelValues("forecast")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.StageErrors.WithLabelValues("fetch")))

	path := filepath.Join(t.TempDir(), "node", "finforecast.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `finforecast_fetch_rows{ticker="SPY"} 250`)
	assert.Contains(t, string(data), "finforecast_pipeline_stage_duration_seconds")

	assert.NoError(t, m.WriteTextfile(""))
}
