package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"turtle_bot/internal/models"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	chatTelegramENV   = "TELEGRAM_CHAT_ID"
	databaseDSN       = "DATABASE_DSN"
	apiKeyENV         = "BITHUMB_API_KEY"
	apiSecretENV      = "BITHUMB_API_SECRET"
	logLevelENV       = "LOG_LEVEL"
)

// Config ...
type Config struct {
	Path string `yaml:"-"`

	Telegram struct {
		Token     string `yaml:"token"`
		ChatID    int64  `yaml:"chat_id"`
		QueueSize int    `yaml:"queue_size"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		Name      string `yaml:"name"`
		Host      string `yaml:"host"`
		AdminPort int    `yaml:"admin_port"`
		LogLevel  string `yaml:"log_level"`
	} `yaml:"service"`
	Tracing struct {
		Host       string  `yaml:"host"`
		Port       int     `yaml:"port"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Exchange struct {
		RestURL        string        `yaml:"rest_url"`
		WSURL          string        `yaml:"ws_url"`
		APIKey         string        `yaml:"api_key"`
		APISecret      string        `yaml:"api_secret"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		PollInterval   time.Duration `yaml:"poll_interval"`
	} `yaml:"exchange"`

	Feed struct {
		Instruments    []string `yaml:"instruments"`
		CandleInterval string   `yaml:"candle_interval"` // 1m, 30m, 1h, 24h ...
		Window         int      `yaml:"window"`          // сколько свечей держим на инструмент
	} `yaml:"feed"`

	Runner struct {
		QueueSize    int           `yaml:"queue_size"`
		QueuePolicy  string        `yaml:"queue_policy"` // block | drop_oldest
		TickInterval time.Duration `yaml:"tick_interval"`
	} `yaml:"runner"`

	Execution struct {
		SubmitTimeout time.Duration `yaml:"submit_timeout"`
		AckTimeout    time.Duration `yaml:"ack_timeout"`
		CancelTimeout time.Duration `yaml:"cancel_timeout"`
		MaxAttempts   int           `yaml:"max_attempts"`
		BackoffBase   time.Duration `yaml:"backoff_base"`
		BackoffMax    time.Duration `yaml:"backoff_max"`
		Market        bool          `yaml:"market"`
	} `yaml:"execution"`

	Risk Risk `yaml:"risk"`

	Strategies []models.StrategyConfig `yaml:"strategies"`

	Backtest struct {
		SlippageBps float64 `yaml:"slippage_bps"`
		FeeRate     float64 `yaml:"fee_rate"`
	} `yaml:"backtest"`

	Screener struct {
		Enabled    bool          `yaml:"enabled"`
		Term       string        `yaml:"term"` // long | short
		Every      time.Duration `yaml:"every"`
		Limit      int           `yaml:"limit"`
		Top        int           `yaml:"top"`
		MinCandles int           `yaml:"min_candles"`
	} `yaml:"screener"`
}

// Risk: риск-параметры в виде, удобном для yaml; в модель переводим через Model().
type Risk struct {
	Equity         float64 `yaml:"equity"`
	RiskPct        float64 `yaml:"risk_pct"` // 1.0 => 1% equity на стоп
	StopPct        float64 `yaml:"stop_pct"` // расстояние до стопа, % от цены
	Leverage       float64 `yaml:"leverage"`
	MaxPositionQty float64 `yaml:"max_position_qty"`
	QtyStep        float64 `yaml:"qty_step"`
	MinQty         float64 `yaml:"min_qty"`
	AllowShort     bool    `yaml:"allow_short"`
	KillSwitch     bool    `yaml:"kill_switch"`
}

func (r Risk) Model() models.RiskConfig {
	return models.RiskConfig{
		Equity:         decimal.NewFromFloat(r.Equity),
		RiskPct:        decimal.NewFromFloat(r.RiskPct),
		StopPct:        decimal.NewFromFloat(r.StopPct),
		Leverage:       decimal.NewFromFloat(r.Leverage),
		MaxPositionQty: decimal.NewFromFloat(r.MaxPositionQty),
		QtyStep:        decimal.NewFromFloat(r.QtyStep),
		MinQty:         decimal.NewFromFloat(r.MinQty),
		AllowShort:     r.AllowShort,
		KillSwitch:     r.KillSwitch,
	}
}

// Default: значения до чтения файла.
func Default() Config {
	var c Config
	c.Service.Name = "turtle_bot"
	c.Service.AdminPort = 8080
	c.Service.LogLevel = "info"
	c.Telegram.QueueSize = 64
	c.Exchange.RestURL = "https://api.bithumb.com"
	c.Exchange.WSURL = "wss://pubwss.bithumb.com/pub/ws"
	c.Exchange.RequestTimeout = 5 * time.Second
	c.Exchange.PollInterval = 2 * time.Second
	c.Feed.CandleInterval = "1h"
	c.Feed.Window = 250
	c.Runner.QueueSize = intFromEnv("RUNNER_QUEUE_SIZE", 256)
	c.Runner.QueuePolicy = getenvDefault("RUNNER_QUEUE_POLICY", "drop_oldest")
	c.Runner.TickInterval = durationFromEnv("TICK_INTERVAL", "1m")
	c.Execution.SubmitTimeout = 5 * time.Second
	c.Execution.AckTimeout = 10 * time.Second
	c.Execution.CancelTimeout = 5 * time.Second
	c.Execution.MaxAttempts = 3
	c.Execution.BackoffBase = 200 * time.Millisecond
	c.Execution.BackoffMax = 5 * time.Second
	c.Execution.Market = true
	c.Risk = Risk{
		Equity:         floatFromEnv("EQUITY", 1_000_000),
		RiskPct:        1,
		StopPct:        2,
		Leverage:       1,
		MaxPositionQty: 1,
		QtyStep:        0.0001,
		MinQty:         0.0001,
	}
	c.Backtest.SlippageBps = 2
	c.Backtest.FeeRate = 0.0004
	c.Screener.Term = "long"
	c.Screener.Every = time.Hour
	c.Screener.Limit = 100
	c.Screener.Top = 20
	c.Screener.MinCandles = 3
	return c
}

// NewConfig читает configs/$CONFIG_FILE (по умолчанию values_local.yaml).
func NewConfig() (*Config, error) {
	dir := getenvDefault(configDirENV, "configs")
	name := getenvDefault(configFilePathENV, "values_local.yaml")
	return Load(filepath.Join(dir, name))
}

// Load читает yaml поверх Default() и применяет env.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config file")
	}
	defer func() {
		_ = file.Close()
	}()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, errors.Wrap(err, "decode config file")
	}
	config.Path = path
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() {
	if token := os.Getenv(tokenTelegramENV); token != "" {
		c.Telegram.Token = token
	}
	if v := os.Getenv(chatTelegramENV); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		c.DB = dsn
	}
	c.Exchange.APIKey = getenvDefault(apiKeyENV, c.Exchange.APIKey)
	c.Exchange.APISecret = getenvDefault(apiSecretENV, c.Exchange.APISecret)
	c.Service.LogLevel = getenvDefault(logLevelENV, c.Service.LogLevel)
}

// Validate проверяет то, без чего движок не стартует.
func (c *Config) Validate() error {
	switch c.Runner.QueuePolicy {
	case "block", "drop_oldest":
	default:
		return errors.Errorf("runner.queue_policy: unknown %q", c.Runner.QueuePolicy)
	}
	if c.Runner.QueueSize <= 0 {
		return errors.New("runner.queue_size must be > 0")
	}
	if c.Execution.MaxAttempts <= 0 {
		return errors.New("execution.max_attempts must be > 0")
	}
	if c.Risk.Equity <= 0 || c.Risk.RiskPct <= 0 || c.Risk.StopPct <= 0 {
		return errors.New("risk: equity, risk_pct and stop_pct must be > 0")
	}
	switch c.Screener.Term {
	case "long", "short":
	default:
		return errors.Errorf("screener.term: unknown %q", c.Screener.Term)
	}
	seen := make(map[string]struct{}, len(c.Strategies))
	for _, s := range c.Strategies {
		if s.ID == "" {
			return errors.New("strategy without id")
		}
		if _, dup := seen[s.ID]; dup {
			return errors.Errorf("strategy %q declared twice", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
