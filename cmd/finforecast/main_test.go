package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/subcommands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinForecast/internal/recorder"
)

const testConfigYAML = `start_date: "2022-01-01"
end_date: "2023-07-01"
tickers: [TSLA, BND, SPY]
data_source:
  provider: mock
fetch:
  requests_per_second: 1000
paths:
  raw_csv: %[1]s/raw.csv
  processed_csv: %[1]s/processed.csv
  forecast_csv: %[1]s/forecasts.csv
  weights_json: %[1]s/weights.json
forecast:
  horizon: 20
  test_size: 10
  max_p: 1
  max_q: 1
log:
  output: stderr
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(fmt.Sprintf(testConfigYAML, dir))
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, "configs/config.yaml", defaultConfigPath())

	t.Setenv("CONFIG_PATH", "/etc/finforecast.yaml")
	assert.Equal(t, "/etc/finforecast.yaml", defaultConfigPath())
}

func TestStageCommands(t *testing.T) {
	path := writeConfig(t)
	old := *configPath
	*configPath = path
	defer func() { *configPath = old }()

	ctx := context.Background()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, cmd := range []subcommands.Command{&fetchCmd{}, &processCmd{}, &forecastCmd{}, &optimizeCmd{}} {
		assert.Equal(t, subcommands.ExitSuccess, cmd.Execute(ctx, fs), cmd.Name())
	}

	dir := filepath.Dir(path)
	for _, name := range []string{"raw.csv", "processed.csv", "forecasts.csv", "weights.json"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	xlsx := filepath.Join(dir, "report.xlsx")
	rep := &reportCmd{xlsx: xlsx, raw: true}
	assert.Equal(t, subcommands.ExitSuccess, rep.Execute(ctx, fs))
	assert.FileExists(t, xlsx)
}

func TestCommandFailsOnBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_source:\n  provider: carrier-pigeon\n"), 0o644))
	old := *configPath
	*configPath = path
	defer func() { *configPath = old }()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	assert.Equal(t, subcommands.ExitFailure, (&processCmd{}).Execute(context.Background(), fs))
}

func TestHistoryMarkdown(t *testing.T) {
	out := historyMarkdown([]recorder.RunRecord{
		{ID: "run-1", StartedAt: time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC), Status: recorder.StatusOK, Rows: 250},
		{ID: "run-2", StartedAt: time.Date(2024, 3, 2, 22, 0, 0, 0, time.UTC), Status: recorder.StatusFailed, Error: "fetch: no data"},
	})

	assert.Contains(t, out, "## Run History")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "2024-03-02 22:00")
	assert.Contains(t, out, "fetch: no data")
}
