package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/predictsim/decision"
	"github.com/rustyeddy/predictsim/market"
	"github.com/rustyeddy/predictsim/prediction"
	"github.com/rustyeddy/predictsim/sim"
)

// Config represents the complete simulation configuration
type Config struct {
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Account    AccountConfig    `json:"account" yaml:"account"`
	Decision   DecisionConfig   `json:"decision" yaml:"decision"`
	Model      ModelConfig      `json:"model" yaml:"model"`
	Data       DataConfig       `json:"data" yaml:"data"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// SimulationConfig contains the date range and loop parameters
type SimulationConfig struct {
	Start             string   `json:"start" yaml:"start"` // 2006-01-02
	End               string   `json:"end" yaml:"end"`
	Assets            []string `json:"assets,omitempty" yaml:"assets,omitempty"`
	OperateInWeekends bool     `json:"operate_in_weekends" yaml:"operate_in_weekends"`
	MinHistory        int      `json:"min_history" yaml:"min_history"`
	Workers           int      `json:"workers" yaml:"workers"`
	Horizon           int      `json:"horizon" yaml:"horizon"`
	Seed              *uint64  `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// AccountConfig contains the starting cash
type AccountConfig struct {
	Liquidity float64 `json:"liquidity" yaml:"liquidity"`
	Reserve   float64 `json:"reserve" yaml:"reserve"`
}

// DecisionConfig contains the trading thresholds and buy sizing
type DecisionConfig struct {
	Strategy      string  `json:"strategy" yaml:"strategy"`
	TakeProfitMin float64 `json:"take_profit_min" yaml:"take_profit_min"`
	TakeProfitMax float64 `json:"take_profit_max" yaml:"take_profit_max"`
	StopLossMin   float64 `json:"stop_loss_min" yaml:"stop_loss_min"`
	StopLossMax   float64 `json:"stop_loss_max" yaml:"stop_loss_max"`
	Alpha         float64 `json:"alpha" yaml:"alpha"`
	FixedPct      float64 `json:"fixed_pct" yaml:"fixed_pct"`
	Fixed         float64 `json:"fixed" yaml:"fixed"`
}

// ModelConfig selects the forecasting algorithm and its tuning
type ModelConfig struct {
	Algorithm string       `json:"algorithm" yaml:"algorithm"`
	Random    RandomConfig `json:"random" yaml:"random"`
	ARIMA     ARIMAConfig  `json:"arima" yaml:"arima"`
	Shift     ShiftConfig  `json:"shift" yaml:"shift"`
	LSTM      LSTMConfig   `json:"lstm" yaml:"lstm"`
}

type RandomConfig struct {
	Volatility float64 `json:"volatility" yaml:"volatility"`
}

type ARIMAConfig struct {
	Window int `json:"window" yaml:"window"`
	MaxP   int `json:"max_p" yaml:"max_p"`
	MaxD   int `json:"max_d" yaml:"max_d"`
	MaxQ   int `json:"max_q" yaml:"max_q"`
}

type ShiftConfig struct {
	Shift  int `json:"shift" yaml:"shift"`
	Window int `json:"window" yaml:"window"`
}

type LSTMConfig struct {
	Lookback     int     `json:"lookback" yaml:"lookback"`
	Epochs       int     `json:"epochs" yaml:"epochs"`
	BatchSize    int     `json:"batch_size" yaml:"batch_size"`
	Units        int     `json:"units" yaml:"units"`
	DenseUnits   int     `json:"dense_units" yaml:"dense_units"`
	Dropout      float64 `json:"dropout" yaml:"dropout"`
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
}

// DataConfig points at the wide time-series table (CSV or Parquet)
type DataConfig struct {
	Path string `json:"path" yaml:"path"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type             string `json:"type" yaml:"type"` // "csv", "sqlite", "postgres" or "none"
	TransactionsFile string `json:"transactions_file,omitempty" yaml:"transactions_file,omitempty"`
	EquityFile       string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath           string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	DSN              string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	OrgPath          string `json:"org_path,omitempty" yaml:"org_path,omitempty"`
}

type LoggingConfig struct {
	Verbose bool   `json:"verbose" yaml:"verbose"`
	Level   string `json:"level" yaml:"level"`
	Format  string `json:"format" yaml:"format"` // "text" or "json"
}

// Environment variables applied by Load on top of the file.
const (
	EnvDataPath    = "PREDICTSIM_DATA_PATH"
	EnvDBPath      = "PREDICTSIM_DB_PATH"
	EnvPostgresDSN = "PREDICTSIM_POSTGRES_DSN"
	EnvLogLevel    = "PREDICTSIM_LOG_LEVEL"
	EnvAlgorithm   = "PREDICTSIM_ALGORITHM"
	EnvSeed        = "PREDICTSIM_SEED"
)

// Load reads the configuration like Read and validates it.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg, err := Read(path, envFiles...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Read loads .env files (missing ones are ignored), parses path and applies
// the PREDICTSIM_* environment overrides. An empty path starts from Default.
// The result is not validated.
func Read(path string, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = parseFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a file (YAML, or JSON as a fallback).
// Keys missing from the file keep their Default values.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDataPath); ok && v != "" {
		c.Data.Path = v
	}
	if v, ok := lookup(EnvDBPath); ok && v != "" {
		c.Journal.DBPath = v
	}
	if v, ok := lookup(EnvPostgresDSN); ok && v != "" {
		c.Journal.DSN = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvAlgorithm); ok && v != "" {
		c.Model.Algorithm = v
	}
	if v, ok := lookup(EnvSeed); ok && v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSeed, err)
		}
		c.Simulation.Seed = &seed
	}
	return nil
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, else JSON)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
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

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	start, end, err := c.Range()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("simulation.end must not be before simulation.start")
	}
	if c.Simulation.MinHistory < 0 || c.Simulation.Workers < 0 || c.Simulation.Horizon < 0 {
		return fmt.Errorf("simulation min_history, workers and horizon must not be negative")
	}
	if c.Account.Liquidity <= 0 {
		return fmt.Errorf("account.liquidity must be positive")
	}
	if c.Account.Reserve < 0 || c.Account.Reserve >= 1 {
		return fmt.Errorf("account.reserve must be in [0, 1)")
	}
	if _, err := decision.ParseStrategy(c.Decision.Strategy); err != nil {
		return fmt.Errorf("decision.strategy: %w", err)
	}
	d := c.Decision
	for name, v := range map[string]float64{
		"take_profit_min": d.TakeProfitMin,
		"take_profit_max": d.TakeProfitMax,
		"stop_loss_min":   d.StopLossMin,
		"stop_loss_max":   d.StopLossMax,
	} {
		if v < 0 {
			return fmt.Errorf("decision.%s must not be negative", name)
		}
	}
	if _, err := prediction.ParseKind(c.Model.Algorithm); err != nil {
		return fmt.Errorf("model.algorithm: %w", err)
	}
	_, pc, err := c.ToPrediction()
	if err != nil {
		return err
	}
	if err := pc.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if c.Data.Path == "" {
		return fmt.Errorf("data.path is required")
	}

	switch c.Journal.Type {
	case "none", "":
	case "csv":
		if c.Journal.TransactionsFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal transactions_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "postgres":
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal dsn required for Postgres type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite', 'postgres' or 'none'")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be 'text' or 'json'")
	}
	return nil
}

// Range parses the simulation start and end dates.
func (c *Config) Range() (start, end time.Time, err error) {
	if c.Simulation.Start == "" || c.Simulation.End == "" {
		return start, end, fmt.Errorf("simulation.start and simulation.end are required")
	}
	if start, err = market.ParseDate(c.Simulation.Start); err != nil {
		return start, end, fmt.Errorf("simulation.start: %w", err)
	}
	if end, err = market.ParseDate(c.Simulation.End); err != nil {
		return start, end, fmt.Errorf("simulation.end: %w", err)
	}
	return start, end, nil
}

// ToDecision maps the decision and account sections onto the manager
// settings.
func (c *Config) ToDecision() (decision.Config, error) {
	s, err := decision.ParseStrategy(c.Decision.Strategy)
	if err != nil {
		return decision.Config{}, err
	}
	return decision.Config{
		Strategy:      s,
		TakeProfitMin: c.Decision.TakeProfitMin,
		TakeProfitMax: c.Decision.TakeProfitMax,
		StopLossMin:   c.Decision.StopLossMin,
		StopLossMax:   c.Decision.StopLossMax,
		Reserve:       c.Account.Reserve,
		Alpha:         c.Decision.Alpha,
		FixedPct:      c.Decision.FixedPct,
		Fixed:         c.Decision.Fixed,
	}, nil
}

// ToPrediction returns the selected algorithm and its settings.
func (c *Config) ToPrediction() (prediction.Kind, prediction.Config, error) {
	kind, err := prediction.ParseKind(c.Model.Algorithm)
	if err != nil {
		return "", prediction.Config{}, err
	}
	m := c.Model
	return kind, prediction.Config{
		Seed:   c.Simulation.Seed,
		Random: prediction.RandomConfig{Volatility: m.Random.Volatility},
		ARIMA: prediction.ARIMAConfig{
			Window: m.ARIMA.Window,
			MaxP:   m.ARIMA.MaxP,
			MaxD:   m.ARIMA.MaxD,
			MaxQ:   m.ARIMA.MaxQ,
		},
		Shift: prediction.ShiftConfig{Shift: m.Shift.Shift, Window: m.Shift.Window},
		LSTM: prediction.LSTMConfig{
			Lookback:     m.LSTM.Lookback,
			Epochs:       m.LSTM.Epochs,
			BatchSize:    m.LSTM.BatchSize,
			Units:        m.LSTM.Units,
			DenseUnits:   m.LSTM.DenseUnits,
			Dropout:      m.LSTM.Dropout,
			LearningRate: m.LSTM.LearningRate,
		},
	}, nil
}

func (c *Config) ToSim() sim.Config {
	return sim.Config{
		InitialLiquidity:  c.Account.Liquidity,
		Assets:            c.Simulation.Assets,
		OperateInWeekends: c.Simulation.OperateInWeekends,
		MinHistory:        c.Simulation.MinHistory,
		Horizon:           c.Simulation.Horizon,
		Workers:           c.Simulation.Workers,
		Verbose:           c.Logging.Verbose,
	}
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	dc := decision.DefaultConfig()
	pc := prediction.DefaultConfig()

	return &Config{
		Simulation: SimulationConfig{
			Start:      "2019-01-01",
			End:        "2019-01-30",
			MinHistory: sim.DefaultMinHistory,
			Workers:    1,
			Horizon:    1,
		},
		Account: AccountConfig{
			Liquidity: 100000,
			Reserve:   dc.Reserve,
		},
		Decision: DecisionConfig{
			Strategy:      string(dc.Strategy),
			TakeProfitMin: dc.TakeProfitMin,
			TakeProfitMax: dc.TakeProfitMax,
			StopLossMin:   dc.StopLossMin,
			StopLossMax:   dc.StopLossMax,
			Alpha:         dc.Alpha,
			FixedPct:      dc.FixedPct,
			Fixed:         dc.Fixed,
		},
		Model: ModelConfig{
			Algorithm: string(prediction.ARIMA),
			Random:    RandomConfig{Volatility: pc.Random.Volatility},
			ARIMA: ARIMAConfig{
				Window: pc.ARIMA.Window,
				MaxP:   pc.ARIMA.MaxP,
				MaxD:   pc.ARIMA.MaxD,
				MaxQ:   pc.ARIMA.MaxQ,
			},
			Shift: ShiftConfig{Shift: pc.Shift.Shift, Window: pc.Shift.Window},
			LSTM: LSTMConfig{
				Lookback:     pc.LSTM.Lookback,
				Epochs:       pc.LSTM.Epochs,
				BatchSize:    pc.LSTM.BatchSize,
				Units:        pc.LSTM.Units,
				DenseUnits:   pc.LSTM.DenseUnits,
				Dropout:      pc.LSTM.Dropout,
				LearningRate: pc.LSTM.LearningRate,
			},
		},
		Data: DataConfig{
			Path: "./data/dataset.csv",
		},
		Journal: JournalConfig{
			Type:             "csv",
			TransactionsFile: "./transactions.csv",
			EquityFile:       "./equity.csv",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
