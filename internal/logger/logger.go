// Package logger configures the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config selects level, encoding and destination.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // json or console
	Output string // stdout, stderr, or file path
}

// Setup installs the global logger and returns a closer for the file output,
// if any. Console format on a file still writes to stderr so batch runs stay
// readable; the file always receives JSON.
func Setup(cfg Config) (io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var (
		writers []io.Writer
		closer  io.Closer = nopCloser{}
	)
	console := func(w io.Writer) io.Writer {
		if cfg.Format == "console" {
			return zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
		}
		return w
	}

	switch cfg.Output {
	case "", "stderr":
		writers = append(writers, console(os.Stderr))
	case "stdout":
		writers = append(writers, console(os.Stdout))
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		closer = f
		writers = append(writers, f)
		if cfg.Format == "console" {
			writers = append(writers, console(os.Stderr))
		}
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Logger()
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
