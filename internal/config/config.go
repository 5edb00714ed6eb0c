package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DateLayout is the calendar date format used in config files and CSVs.
const DateLayout = "2006-01-02"

// Config holds all application configuration.
type Config struct {
	StartDate string   `yaml:"start_date" default:"2015-01-01" validate:"required,datetime=2006-01-02"`
	EndDate   string   `yaml:"end_date" default:"2025-01-31" validate:"required,datetime=2006-01-02"`
	Tickers   []string `yaml:"tickers" default:"[\"TSLA\",\"BND\",\"SPY\"]" validate:"required,min=1,unique,dive,required"`

	DataSource struct {
		Provider  string            `yaml:"provider" default:"yahoo" validate:"oneof=yahoo rest mock"`
		BaseURL   string            `yaml:"base_url" validate:"required_if=Provider rest"`
		APIKey    string            `yaml:"api_key"`
		Proxy     string            `yaml:"proxy"`
		SymbolMap map[string]string `yaml:"symbol_map"`
	} `yaml:"data_source"`

	Fetch struct {
		Concurrency       int     `yaml:"concurrency" default:"1" validate:"gte=1,lte=16"`
		RequestsPerSecond float64 `yaml:"requests_per_second" default:"2" validate:"gt=0"`
		MaxRetries        int     `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
		MaxGapDays        int     `yaml:"max_gap_days" default:"5" validate:"gte=1"`
	} `yaml:"fetch"`

	Paths struct {
		RawCSV       string `yaml:"raw_csv" default:"data/raw/combined_financial_data.csv"`
		ProcessedCSV string `yaml:"processed_csv" default:"data/processed/processed_financial_data.csv"`
		ForecastCSV  string `yaml:"forecast_csv" default:"data/processed/forecasts.csv"`
		WeightsJSON  string `yaml:"weights_json" default:"data/processed/portfolio_weights.json"`
		XLSX         string `yaml:"xlsx"`
	} `yaml:"paths"`

	Preprocess struct {
		Align            string  `yaml:"align" default:"intersect" validate:"oneof=intersect union"`
		OutlierZ         float64 `yaml:"outlier_z" default:"10" validate:"gt=0"`
		RollingWindow    int     `yaml:"rolling_window" default:"20" validate:"gte=2"`
		VolatilityWindow int     `yaml:"volatility_window" default:"20" validate:"gte=2"`
	} `yaml:"preprocess"`

	Decompose struct {
		Period int    `yaml:"period" default:"21" validate:"gte=2"`
		Model  string `yaml:"model" default:"additive" validate:"oneof=additive multiplicative"`
	} `yaml:"decompose"`

	Forecast struct {
		Horizon    int     `yaml:"horizon" default:"126" validate:"gte=1"`
		Confidence float64 `yaml:"confidence" default:"0.95" validate:"gt=0,lt=1"`
		TestSize   int     `yaml:"test_size" default:"60" validate:"gte=0"`
		Target     string  `yaml:"target" default:"adj_close" validate:"oneof=adj_close log_adj_close"`
		Auto       *bool   `yaml:"auto" default:"true"`
		MaxP       int     `yaml:"max_p" default:"3" validate:"gte=0,lte=8"`
		MaxQ       int     `yaml:"max_q" default:"3" validate:"gte=0,lte=8"`
		MaxD       int     `yaml:"max_d" default:"2" validate:"gte=0,lte=2"`
		Order      struct {
			P int `yaml:"p" validate:"gte=0"`
			D int `yaml:"d" validate:"gte=0,lte=2"`
			Q int `yaml:"q" validate:"gte=0"`
		} `yaml:"order"`
		Seasonal struct {
			P int `yaml:"p" validate:"gte=0"`
			D int `yaml:"d" validate:"gte=0,lte=1"`
			Q int `yaml:"q" validate:"gte=0"`
			S int `yaml:"s" validate:"gte=0"`
		} `yaml:"seasonal"`
	} `yaml:"forecast"`

	Portfolio struct {
		Objective    string             `yaml:"objective" default:"max_sharpe" validate:"oneof=max_sharpe min_variance equal_weight"`
		RiskFreeRate *float64           `yaml:"risk_free_rate" default:"0.02" validate:"omitempty,gte=0,lt=1"`
		Leverage     float64            `yaml:"leverage" default:"1" validate:"gt=0,lte=10"`
		MaxWeight    float64            `yaml:"max_weight" default:"1" validate:"gt=0"`
		ReturnSource string             `yaml:"return_source" default:"forecast" validate:"oneof=forecast historical"`
		Capital      float64            `yaml:"capital" default:"10000" validate:"gte=0"`
		Benchmark    map[string]float64 `yaml:"benchmark" default:"{\"SPY\":0.6,\"BND\":0.4}"`
		BacktestFrom string             `yaml:"backtest_from" validate:"omitempty,datetime=2006-01-02"`
	} `yaml:"portfolio"`

	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`

	Schedule struct {
		Cron       string `yaml:"cron" default:"0 0 22 * * 1-5"`
		RunOnStart bool   `yaml:"run_on_start"`
	} `yaml:"schedule"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`

	Metrics struct {
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"logs/finforecast.log"`
	} `yaml:"log"`
}

var validate = validator.New()

// Load applies defaults, then reads config from a YAML file and applies
// environment variable overrides. Values set in the file, including explicit
// zeros, win over defaults. A missing file yields the default configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		// yaml merges into an existing map, so the default benchmark is only
		// restored when the file does not set one.
		benchmark := cfg.Portfolio.Benchmark
		cfg.Portfolio.Benchmark = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if cfg.Portfolio.Benchmark == nil {
			cfg.Portfolio.Benchmark = benchmark
		}
	}

	// Environment variable overrides
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.DataSource.Proxy = v
	}
	if v := os.Getenv("DATA_PROVIDER"); v != "" {
		cfg.DataSource.Provider = v
	}
	if v := os.Getenv("DATA_BASE_URL"); v != "" {
		cfg.DataSource.BaseURL = v
	}
	if v := os.Getenv("DATA_API_KEY"); v != "" {
		cfg.DataSource.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CRON_SCHEDULE"); v != "" {
		cfg.Schedule.Cron = v
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field consistency.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%s: failed %q constraint (value %v)", e.Namespace(), e.Tag(), e.Value())
		}
		return err
	}

	if !c.End().After(c.Start()) {
		return fmt.Errorf("end_date %s must be after start_date %s", c.EndDate, c.StartDate)
	}
	if c.Portfolio.MaxWeight*float64(len(c.Tickers)) < c.Portfolio.Leverage-1e-9 {
		return fmt.Errorf("portfolio.max_weight %.3f too small to allocate leverage %.3f over %d tickers",
			c.Portfolio.MaxWeight, c.Portfolio.Leverage, len(c.Tickers))
	}
	if len(c.Portfolio.Benchmark) > 0 {
		sum := 0.0
		for sym, w := range c.Portfolio.Benchmark {
			if w < 0 {
				return fmt.Errorf("portfolio.benchmark[%s] must be non-negative", sym)
			}
			sum += w
		}
		if math.Abs(sum-1) > 1e-6 {
			return fmt.Errorf("portfolio.benchmark weights must sum to 1, got %.4f", sum)
		}
	}
	s := c.Forecast.Seasonal
	if (s.P > 0 || s.D > 0 || s.Q > 0) && s.S < 2 {
		return fmt.Errorf("forecast.seasonal.s must be >= 2 when a seasonal order is set")
	}
	return nil
}

// Start returns the parsed start date. Call Validate first.
func (c *Config) Start() time.Time {
	t, _ := time.Parse(DateLayout, c.StartDate)
	return t
}

// End returns the parsed end date (exclusive). Call Validate first.
func (c *Config) End() time.Time {
	t, _ := time.Parse(DateLayout, c.EndDate)
	return t
}

// BacktestStart returns the first backtest date, zero for the whole history.
func (c *Config) BacktestStart() time.Time {
	if c.Portfolio.BacktestFrom == "" {
		return time.Time{}
	}
	t, _ := time.Parse(DateLayout, c.Portfolio.BacktestFrom)
	return t
}

// AutoOrder reports whether ARIMA orders are selected automatically.
func (c *Config) AutoOrder() bool {
	return c.Forecast.Auto == nil || *c.Forecast.Auto
}

// RiskFree returns the annual risk-free rate as a fraction.
func (c *Config) RiskFree() float64 {
	if c.Portfolio.RiskFreeRate == nil {
		return 0
	}
	return *c.Portfolio.RiskFreeRate
}

// Seasonal reports whether a seasonal order is configured.
func (c *Config) Seasonal() bool {
	s := c.Forecast.Seasonal
	return s.S >= 2 && (s.P > 0 || s.D > 0 || s.Q > 0)
}
