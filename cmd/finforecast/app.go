package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"FinForecast/internal/config"
	"FinForecast/internal/logger"
	"FinForecast/internal/pipeline"
	"FinForecast/internal/recorder"
	"FinForecast/internal/report"
)

// The process is short lived, so global flags are fine.
var configPath = flag.String("config", defaultConfigPath(), "Path to the YAML configuration file (env CONFIG_PATH)")

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "configs/config.yaml"
}

// setup loads and validates the configuration and installs the logger.
// The returned closer flushes the log file.
func setup() (*config.Config, io.Closer, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation: %w", err)
	}
	closer, err := logger.Setup(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("setup logger: %w", err)
	}
	return cfg, closer, nil
}

// newRunner builds a runner that records nothing, for single-stage commands.
func newRunner(cfg *config.Config) *pipeline.Runner {
	fetcher := pipeline.NewFetcher(cfg)
	log.Debug().Str("provider", fetcher.Name()).Msg("data source")
	return pipeline.NewRunner(cfg, fetcher, nil)
}

// openRecorder opens the SQLite run history when configured. The SQLite
// recorder is returned separately for history queries and is nil otherwise.
func openRecorder(cfg *config.Config) (recorder.Recorder, *recorder.SQLiteRecorder) {
	if cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder(), nil
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
	if err != nil {
		log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder(), nil
	}
	return sr, sr
}

// printMarkdown renders markdown for the terminal, falling back to the raw
// text when rendering fails.
func printMarkdown(md string) {
	out, err := report.Render(md, "", 120)
	if err != nil {
		log.Warn().Err(err).Msg("render markdown")
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
