package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/barsim/risk"
	"github.com/rustyeddy/barsim/strategies"
)

// Config represents the complete replay configuration
type Config struct {
	Account   AccountConfig   `json:"account" yaml:"account"`
	Indicator IndicatorConfig `json:"indicator" yaml:"indicator"`
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Strategy  StrategyConfig  `json:"strategy" yaml:"strategy"`
	Data      DataConfig      `json:"data" yaml:"data"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	StartingCash float64 `json:"starting_cash" yaml:"starting_cash"`
}

type IndicatorConfig struct {
	Window int `json:"window" yaml:"window"`
}

// RiskConfig mirrors risk.Policy. Fractions are in [0,1].
type RiskConfig struct {
	MaxDrawdown         float64 `json:"max_drawdown" yaml:"max_drawdown"`
	StopLossPct         float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct       float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
	MaxPositionFraction float64 `json:"max_position_fraction" yaml:"max_position_fraction"`
	PriceTolerance      float64 `json:"price_tolerance" yaml:"price_tolerance"`
	EnforceStops        bool    `json:"enforce_stops" yaml:"enforce_stops"`
}

// StrategyConfig contains strategy parameters
type StrategyConfig struct {
	Name       string `json:"name" yaml:"name"`
	Instrument string `json:"instrument" yaml:"instrument"`
	Size       int64  `json:"size" yaml:"size"`
}

// Data sources.
const (
	SourceCSV        = "csv"
	SourceSQLite     = "sqlite"
	SourceClickHouse = "clickhouse"
)

// DataConfig locates the bars to replay. From and To are inclusive and
// accept RFC3339 or a bare date.
type DataConfig struct {
	Source string `json:"source" yaml:"source"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"` // csv file or sqlite db
	Table  string `json:"table,omitempty" yaml:"table,omitempty"`

	ClickHouse ClickHouseConfig `json:"clickhouse,omitempty" yaml:"clickhouse,omitempty"`

	From string `json:"from,omitempty" yaml:"from,omitempty"`
	To   string `json:"to,omitempty" yaml:"to,omitempty"`
}

type ClickHouseConfig struct {
	Addr     string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LoadFromFile loads configuration from a file (YAML, or JSON as fallback)
// over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Environment variables read by ApplyEnv.
const (
	EnvDataDSN        = "BARSIM_DATA_DSN"
	EnvClickHouseAddr = "BARSIM_CLICKHOUSE_ADDR"
	EnvClickHouseUser = "BARSIM_CLICKHOUSE_USER"
	EnvClickHousePass = "BARSIM_CLICKHOUSE_PASSWORD"
	EnvJournalDB      = "BARSIM_JOURNAL_DB"
)

// ApplyEnv loads .env style files (default ".env", missing files are
// ignored) and lets the environment override the data and journal
// locations.
func (c *Config) ApplyEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}

	if v := os.Getenv(EnvDataDSN); v != "" {
		c.Data.Path = v
	}
	if v := os.Getenv(EnvClickHouseAddr); v != "" {
		c.Data.ClickHouse.Addr = v
	}
	if v := os.Getenv(EnvClickHouseUser); v != "" {
		c.Data.ClickHouse.Username = v
	}
	if v := os.Getenv(EnvClickHousePass); v != "" {
		c.Data.ClickHouse.Password = v
	}
	if v := os.Getenv(EnvJournalDB); v != "" {
		c.Journal.DBPath = v
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.StartingCash <= 0 {
		return fmt.Errorf("account.starting_cash must be positive")
	}
	if c.Indicator.Window <= 0 {
		return fmt.Errorf("indicator.window must be positive")
	}
	if err := c.Policy().Validate(); err != nil {
		return err
	}
	if c.Risk.TakeProfitPct > 1 {
		return fmt.Errorf("risk.take_profit_pct must be between 0 and 1")
	}
	if _, err := strategies.ByName(c.Strategy.Name, c.StrategyParams()); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if c.Strategy.Size <= 0 {
		return fmt.Errorf("strategy.size must be positive")
	}

	switch c.Data.Source {
	case "", SourceCSV, SourceSQLite:
	case SourceClickHouse:
		if c.Data.ClickHouse.Addr == "" {
			return fmt.Errorf("data.clickhouse.addr required for clickhouse source")
		}
	default:
		return fmt.Errorf("data.source must be 'csv', 'sqlite' or 'clickhouse'")
	}
	from, to, err := c.Range()
	if err != nil {
		return err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return fmt.Errorf("data.to is before data.from")
	}

	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}
	return nil
}

// Policy is the risk policy the configuration describes.
func (c *Config) Policy() risk.Policy {
	return risk.Policy{
		BaseCapital:         c.Account.StartingCash,
		MaxDrawdown:         c.Risk.MaxDrawdown,
		StopLossPct:         c.Risk.StopLossPct,
		TakeProfitPct:       c.Risk.TakeProfitPct,
		MaxPositionFraction: c.Risk.MaxPositionFraction,
		PriceTolerance:      c.Risk.PriceTolerance,
	}
}

func (c *Config) StrategyParams() strategies.Params {
	return strategies.Params{Instrument: c.Strategy.Instrument, Size: c.Strategy.Size}
}

// Redacted returns a copy safe to persist: credentials are cleared.
func (c *Config) Redacted() Config {
	r := *c
	r.Data.ClickHouse.Password = ""
	return r
}

// Range parses data.from and data.to. Empty bounds are zero.
func (c *Config) Range() (from, to time.Time, err error) {
	if from, err = parseBound("data.from", c.Data.From); err != nil {
		return
	}
	to, err = parseBound("data.to", c.Data.To)
	return
}

func parseBound(name, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%s: bad time %q", name, s)
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	p := risk.DefaultPolicy()
	return &Config{
		Account: AccountConfig{
			StartingCash: p.BaseCapital,
		},
		Indicator: IndicatorConfig{
			Window: 50,
		},
		Risk: RiskConfig{
			MaxDrawdown:         p.MaxDrawdown,
			StopLossPct:         p.StopLossPct,
			TakeProfitPct:       p.TakeProfitPct,
			MaxPositionFraction: p.MaxPositionFraction,
			PriceTolerance:      p.PriceTolerance,
		},
		Strategy: StrategyConfig{
			Name:       "sma-cross",
			Instrument: "NATGAS",
			Size:       1000,
		},
		Data: DataConfig{
			Source: SourceCSV,
			Path:   "./data/bars.csv",
			Table:  "bars",
		},
		Journal: JournalConfig{
			Type: "none",
		},
	}
}
