// Package config loads the terminal configuration from a YAML file, a .env
// file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"market-terminal/internal/api"
	"market-terminal/internal/composite"
	"market-terminal/internal/gateway"
	"market-terminal/internal/indicator"
	"market-terminal/internal/marketdata"
	"market-terminal/internal/markethours"
	"market-terminal/internal/model"
	"market-terminal/internal/notification"
	"market-terminal/internal/portfolio"
	redisstore "market-terminal/internal/store/redis"
	sqlitestore "market-terminal/internal/store/sqlite"
	"market-terminal/internal/strategy"
	"market-terminal/internal/terminal"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Service string `yaml:"service" default:"market-terminal"`
	Log     struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	} `yaml:"log"`

	Instruments []InstrumentConfig `yaml:"instruments" validate:"required,min=1,dive"`

	Cycle      terminal.Config       `yaml:"cycle"`
	MarketData MarketDataConfig      `yaml:"market_data"`
	Composite  composite.Config      `yaml:"composite"`
	Indicators indicator.Config      `yaml:"indicators"`
	Scoring    strategy.Config       `yaml:"scoring"`
	Sizing     portfolio.SizerConfig `yaml:"sizing"`
	Limits     portfolio.Limits      `yaml:"limits"`
	Session    markethours.Config    `yaml:"session"`
	Store      StoreConfig           `yaml:"store"`
	Notify     NotifyConfig          `yaml:"notify"`
	API        api.Config            `yaml:"api"`
	Gateway    gateway.Config        `yaml:"gateway"`
	Metrics    MetricsConfig         `yaml:"metrics"`
}

// InstrumentConfig declares one instrument. Symbols are tried in order.
type InstrumentConfig struct {
	ID         string   `yaml:"id" validate:"required"`
	Symbols    []string `yaml:"symbols" validate:"required,min=1,dive,required"`
	Class      string   `yaml:"class" validate:"required"`
	Divergence bool     `yaml:"divergence"`
}

// MarketDataConfig configures the quote feed and its circuit breaker.
type MarketDataConfig struct {
	Yahoo   marketdata.YahooConfig `yaml:"yahoo"`
	Breaker struct {
		MaxFailures  int           `yaml:"max_failures" default:"5" validate:"min=1"`
		ResetTimeout time.Duration `yaml:"reset_timeout" default:"30s"`
	} `yaml:"breaker"`
}

// StoreConfig selects and configures the state store.
type StoreConfig struct {
	Backend  string             `yaml:"backend" default:"file" validate:"oneof=file redis sqlite"`
	FilePath string             `yaml:"file_path" default:"data/state.json"`
	Redis    redisstore.Config  `yaml:"redis"`
	SQLite   sqlitestore.Config `yaml:"sqlite"`
}

// NotifyConfig enables the alert channels. The log channel is always on.
type NotifyConfig struct {
	Telegram struct {
		Token   string `yaml:"token"`
		ChatID  string `yaml:"chat_id"`
		BaseURL string `yaml:"base_url" default:"https://api.telegram.org"`
	} `yaml:"telegram"`
	Webhook struct {
		URL string `yaml:"url" validate:"omitempty,url"`
	} `yaml:"webhook"`
	Kafka struct {
		Enabled                  bool `yaml:"enabled"`
		notification.KafkaConfig `yaml:",inline"`
	} `yaml:"kafka"`
}

// MetricsConfig configures the standalone /metrics + /healthz listener.
type MetricsConfig struct {
	Addr        string        `yaml:"addr" default:":9090"`
	ProbeEvery  time.Duration `yaml:"probe_every" default:"30s"`
	StaleAfter  time.Duration `yaml:"stale_after" default:"5m"`
	StatusEvery time.Duration `yaml:"status_every" default:"5s"`
}

// Default returns the configuration used when no file overrides it.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}
	c.Cycle = terminal.DefaultConfig()
	c.MarketData.Yahoo = marketdata.DefaultYahooConfig()
	c.Indicators = indicator.DefaultConfig()
	c.Scoring = strategy.DefaultConfig()
	c.Sizing = portfolio.DefaultSizerConfig()
	c.Limits = portfolio.DefaultLimits()
	c.Session = markethours.DefaultConfig()
	c.Instruments = DefaultInstruments()
	return &c, nil
}

// DefaultInstruments returns the metals, energy and index futures watched
// out of the box.
func DefaultInstruments() []InstrumentConfig {
	return []InstrumentConfig{
		{ID: "GOLD", Symbols: []string{"GC=F", "XAUUSD=X"}, Class: "precious_metal", Divergence: true},
		{ID: "SILVER", Symbols: []string{"SI=F", "XAGUSD=X"}, Class: "precious_metal"},
		{ID: "PLATINUM", Symbols: []string{"PL=F"}, Class: "precious_metal"},
		{ID: "WTI_OIL", Symbols: []string{"CL=F", "BZ=F"}, Class: "industrial_commodity"},
		{ID: "COPPER", Symbols: []string{"HG=F"}, Class: "industrial_commodity"},
		{ID: "DAX", Symbols: []string{"^GDAXI"}, Class: "equity_index"},
		{ID: "NASDAQ", Symbols: []string{"NQ=F", "^NDX"}, Class: "equity_index"},
	}
}

// Load reads .env (if present), the YAML file at path (skipped when path is
// empty), applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	c, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}
	c.fillComposite()
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// fillComposite keeps the default reference set and weight vectors for
// whatever the file left out. Vectors are replaced whole, never merged.
func (c *Config) fillComposite() {
	def := composite.DefaultConfig()
	if len(c.Composite.References) == 0 {
		c.Composite.References = def.References
	}
	if c.Composite.Standard == nil {
		c.Composite.Standard = def.Standard
	}
	if c.Composite.Economic == nil {
		c.Composite.Economic = def.Economic
	}
	if c.Composite.Crisis == nil {
		c.Composite.Crisis = def.Crisis
	}
	if c.Composite.FearThreshold == 0 {
		c.Composite.FearThreshold = def.FearThreshold
	}
}

func (c *Config) applyEnv() {
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Notify.Telegram.Token = getEnv("TELEGRAM_TOKEN", c.Notify.Telegram.Token)
	c.Notify.Telegram.ChatID = getEnv("TELEGRAM_CHAT_ID", c.Notify.Telegram.ChatID)
	c.Notify.Webhook.URL = getEnv("WEBHOOK_URL", c.Notify.Webhook.URL)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Notify.Kafka.Brokers = splitList(v)
		c.Notify.Kafka.Enabled = true
	}
	c.Notify.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Notify.Kafka.Topic)

	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.FilePath = getEnv("STATE_FILE", c.Store.FilePath)
	c.Store.Redis.Addr = getEnv("REDIS_ADDR", c.Store.Redis.Addr)
	c.Store.Redis.Password = getEnv("REDIS_PASSWORD", c.Store.Redis.Password)
	c.Store.SQLite.DBPath = getEnv("SQLITE_PATH", c.Store.SQLite.DBPath)

	c.API.Addr = getEnv("API_ADDR", c.API.Addr)
	c.API.TOTPSecret = getEnv("TOTP_SECRET", c.API.TOTPSecret)
	c.Metrics.Addr = getEnv("METRICS_ADDR", c.Metrics.Addr)

	if v := os.Getenv("ACCOUNT_SPREAD_PCT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Limits.SpreadPct = f
		}
	}
}

// Validate checks struct constraints, the composite weights and every
// instrument class.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Composite.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	seen := make(map[string]bool, len(c.Instruments))
	for _, ic := range c.Instruments {
		if seen[ic.ID] {
			return fmt.Errorf("config: duplicate instrument %q", ic.ID)
		}
		seen[ic.ID] = true
		if _, err := model.ParseAssetClass(ic.Class, ic.Divergence); err != nil {
			return fmt.Errorf("config: instrument %s: %w", ic.ID, err)
		}
	}
	if (c.Notify.Telegram.Token == "") != (c.Notify.Telegram.ChatID == "") {
		return fmt.Errorf("config: telegram needs both token and chat_id")
	}
	if c.Notify.Kafka.Enabled && len(c.Notify.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka enabled without brokers")
	}
	return nil
}

// BuildInstruments converts the instrument declarations into model values.
func (c *Config) BuildInstruments() ([]model.Instrument, error) {
	out := make([]model.Instrument, 0, len(c.Instruments))
	for _, ic := range c.Instruments {
		class, err := model.ParseAssetClass(ic.Class, ic.Divergence)
		if err != nil {
			return nil, fmt.Errorf("config: instrument %s: %w", ic.ID, err)
		}
		out = append(out, model.Instrument{ID: ic.ID, Symbols: ic.Symbols, Class: class})
	}
	return out, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
