package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"FinForecast/internal/model"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so report readers do not block a scheduled run.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER,
			status      TEXT,
			error       TEXT,
			tickers     TEXT,
			rows        INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS forecasts (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL,
			ticker      TEXT NOT NULL,
			model       TEXT,
			aic         REAL,
			confidence  REAL,
			last_date   TEXT,
			last_value  REAL,
			horizon     INTEGER,
			end_value   REAL,
			end_lower   REAL,
			end_upper   REAL,
			mae         REAL,
			rmse        REAL,
			mape        REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_forecasts_run ON forecasts(run_id)`,

		`CREATE TABLE IF NOT EXISTS weights (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id          TEXT NOT NULL,
			objective       TEXT,
			ticker          TEXT NOT NULL,
			weight          REAL,
			expected_return REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_weights_run ON weights(run_id)`,

		`CREATE TABLE IF NOT EXISTS risk_metrics (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id            TEXT NOT NULL,
			ticker            TEXT NOT NULL,
			annual_return     REAL,
			annual_volatility REAL,
			sharpe            REAL,
			hist_var95        REAL,
			param_var95       REAL,
			max_drawdown      REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_run ON risk_metrics(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordRun inserts or updates a run row.
func (r *SQLiteRecorder) RecordRun(run *RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var finished any
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.Unix()
	}
	_, err := r.db.Exec(`INSERT INTO runs
		(id, started_at, finished_at, status, error, tickers, rows)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at=excluded.finished_at, status=excluded.status,
			error=excluded.error, rows=excluded.rows`,
		run.ID, run.StartedAt.Unix(), finished, run.Status, run.Error,
		strings.Join(run.Tickers, ","), run.Rows,
	)
	return err
}

func (r *SQLiteRecorder) RecordForecast(runID string, fc *model.Forecast) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var endValue, endLower, endUpper float64
	if n := len(fc.Points); n > 0 {
		p := fc.Points[n-1]
		endValue, endLower, endUpper = p.Value, p.Lower, p.Upper
	}
	var mae, rmse, mape any
	if ev := fc.Evaluation; ev != nil {
		mae, rmse, mape = ev.MAE, ev.RMSE, ev.MAPE
	}
	_, err := r.db.Exec(`INSERT INTO forecasts
		(run_id, ticker, model, aic, confidence, last_date, last_value, horizon,
		 end_value, end_lower, end_upper, mae, rmse, mape)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		runID, fc.Symbol, fc.Model, fc.AIC, fc.Confidence,
		fc.LastTime.Format("2006-01-02"), fc.LastValue, len(fc.Points),
		endValue, endLower, endUpper, mae, rmse, mape,
	)
	return err
}

func (r *SQLiteRecorder) RecordWeights(runID string, w *model.PortfolioWeights) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	tickers := make([]string, 0, len(w.Weights))
	for t := range w.Weights {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	for _, t := range tickers {
		if _, err := tx.Exec(`INSERT INTO weights
			(run_id, objective, ticker, weight, expected_return)
			VALUES (?,?,?,?,?)`,
			runID, string(w.Objective), t, w.Weights[t], w.ExpectedReturns[t],
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordMetrics(runID string, m *model.RiskMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO risk_metrics
		(run_id, ticker, annual_return, annual_volatility, sharpe, hist_var95, param_var95, max_drawdown)
		VALUES (?,?,?,?,?,?,?,?)`,
		runID, m.Symbol, m.AnnualizedReturn, m.AnnualizedVolatility, m.Sharpe,
		m.HistoricalVaR95, m.ParametricVaR95, m.MaxDrawdown,
	)
	return err
}

// RecentRuns returns up to limit runs, newest first.
func (r *SQLiteRecorder) RecentRuns(limit int) ([]RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT id, started_at, finished_at, status, error, tickers, rows
		FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec      RunRecord
			started  int64
			finished sql.NullInt64
			errText  sql.NullString
			tickers  sql.NullString
			count    sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &started, &finished, &rec.Status, &errText, &tickers, &count); err != nil {
			return nil, err
		}
		rec.StartedAt = time.Unix(started, 0)
		if finished.Valid {
			rec.FinishedAt = time.Unix(finished.Int64, 0)
		}
		rec.Error = errText.String
		if tickers.String != "" {
			rec.Tickers = strings.Split(tickers.String, ",")
		}
		rec.Rows = int(count.Int64)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
