package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/predictsim/decision"
	"github.com/rustyeddy/predictsim/prediction"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, 100000.0, cfg.Account.Liquidity)
	assert.Equal(t, 0.1, cfg.Account.Reserve)
	assert.Equal(t, "ARIMA", cfg.Model.Algorithm)
	assert.Equal(t, "PROPORTIONAL", cfg.Decision.Strategy)
	assert.Equal(t, 0.01, cfg.Decision.TakeProfitMin)
	assert.Equal(t, 0.05, cfg.Decision.StopLossMax)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name:   "missing start",
			mutate: func(c *Config) { c.Simulation.Start = "" },
			errMsg: "simulation.start and simulation.end are required",
		},
		{
			name:   "bad end date",
			mutate: func(c *Config) { c.Simulation.End = "30/01/2019" },
			errMsg: "simulation.end",
		},
		{
			name:   "end before start",
			mutate: func(c *Config) { c.Simulation.End = "2018-12-31" },
			errMsg: "simulation.end must not be before simulation.start",
		},
		{
			name:   "non positive liquidity",
			mutate: func(c *Config) { c.Account.Liquidity = 0 },
			errMsg: "account.liquidity must be positive",
		},
		{
			name:   "reserve out of range",
			mutate: func(c *Config) { c.Account.Reserve = 1 },
			errMsg: "account.reserve must be in [0, 1)",
		},
		{
			name:   "unknown strategy",
			mutate: func(c *Config) { c.Decision.Strategy = "MARTINGALE" },
			errMsg: "decision.strategy",
		},
		{
			name:   "negative threshold",
			mutate: func(c *Config) { c.Decision.StopLossMax = -0.1 },
			errMsg: "decision.stop_loss_max must not be negative",
		},
		{
			name:   "unknown algorithm",
			mutate: func(c *Config) { c.Model.Algorithm = "PROPHET" },
			errMsg: "model.algorithm",
		},
		{
			name:   "shift below one",
			mutate: func(c *Config) { c.Model.Shift.Shift = -1 },
			errMsg: "model: invalid model config: shift.shift must be at least 1",
		},
		{
			name:   "negative shift window",
			mutate: func(c *Config) { c.Model.Shift.Window = -2 },
			errMsg: "shift.window must not be negative",
		},
		{
			name:   "negative arima order",
			mutate: func(c *Config) { c.Model.ARIMA.MaxQ = -1 },
			errMsg: "arima max_p, max_d and max_q must not be negative",
		},
		{
			name:   "negative arima window",
			mutate: func(c *Config) { c.Model.ARIMA.Window = -1 },
			errMsg: "arima.window must not be negative",
		},
		{
			name:   "negative volatility",
			mutate: func(c *Config) { c.Model.Random.Volatility = -0.01 },
			errMsg: "random.volatility must not be negative",
		},
		{
			name:   "zero lstm units",
			mutate: func(c *Config) { c.Model.LSTM.Units = 0 },
			errMsg: "lstm.units must be at least 1",
		},
		{
			name:   "zero lstm epochs",
			mutate: func(c *Config) { c.Model.LSTM.Epochs = 0 },
			errMsg: "lstm.epochs must be at least 1",
		},
		{
			name:   "zero lstm lookback",
			mutate: func(c *Config) { c.Model.LSTM.Lookback = 0 },
			errMsg: "lstm.lookback must be at least 1",
		},
		{
			name:   "zero batch size",
			mutate: func(c *Config) { c.Model.LSTM.BatchSize = 0 },
			errMsg: "lstm.batch_size must be at least 1",
		},
		{
			name:   "zero dense units",
			mutate: func(c *Config) { c.Model.LSTM.DenseUnits = 0 },
			errMsg: "lstm.dense_units must be at least 1",
		},
		{
			name:   "dropout of one",
			mutate: func(c *Config) { c.Model.LSTM.Dropout = 1 },
			errMsg: "lstm.dropout must be in [0, 1)",
		},
		{
			name:   "negative dropout",
			mutate: func(c *Config) { c.Model.LSTM.Dropout = -0.1 },
			errMsg: "lstm.dropout must be in [0, 1)",
		},
		{
			name:   "zero learning rate",
			mutate: func(c *Config) { c.Model.LSTM.LearningRate = 0 },
			errMsg: "lstm.learning_rate must be positive",
		},
		{
			name:   "bad lstm settings with another algorithm",
			mutate: func(c *Config) { c.Model.Algorithm = "SHIFT"; c.Model.LSTM.Units = 0 },
			errMsg: "lstm.units must be at least 1",
		},
		{
			name:   "missing data path",
			mutate: func(c *Config) { c.Data.Path = "" },
			errMsg: "data.path is required",
		},
		{
			name:   "csv journal without files",
			mutate: func(c *Config) { c.Journal.EquityFile = "" },
			errMsg: "journal transactions_file and equity_file required for CSV type",
		},
		{
			name:   "sqlite journal without path",
			mutate: func(c *Config) { c.Journal = JournalConfig{Type: "sqlite"} },
			errMsg: "journal db_path required for SQLite type",
		},
		{
			name:   "postgres journal without dsn",
			mutate: func(c *Config) { c.Journal = JournalConfig{Type: "postgres"} },
			errMsg: "journal dsn required for Postgres type",
		},
		{
			name:   "unknown journal",
			mutate: func(c *Config) { c.Journal = JournalConfig{Type: "kafka"} },
			errMsg: "journal.type must be",
		},
		{name: "no journal", mutate: func(c *Config) { c.Journal = JournalConfig{Type: "none"} }},
		{
			name:   "bad log format",
			mutate: func(c *Config) { c.Logging.Format = "xml" },
			errMsg: "logging.format must be 'text' or 'json'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			seed := uint64(7)
			cfg.Simulation.Seed = &seed
			cfg.Simulation.Assets = []string{"apple", "gold"}
			path := filepath.Join(tmpDir, "test"+tt.ext)

			require.NoError(t, cfg.SaveToFile(path))
			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
simulation:
  start: "2019-03-01"
  end: "2019-03-31"
decision:
  strategy: fixed_percent
model:
  algorithm: shift
  shift:
    window: 5
data:
  path: ./prices.parquet
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "2019-03-01", cfg.Simulation.Start)
	assert.Equal(t, 100000.0, cfg.Account.Liquidity)
	assert.Equal(t, 5, cfg.Model.Shift.Window)
	assert.Equal(t, 1, cfg.Model.Shift.Shift)
	assert.Equal(t, "csv", cfg.Journal.Type)

	dc, err := cfg.ToDecision()
	require.NoError(t, err)
	assert.Equal(t, decision.FixedPercent, dc.Strategy)
	assert.Equal(t, 0.1, dc.Reserve)

	kind, pc, err := cfg.ToPrediction()
	require.NoError(t, err)
	assert.Equal(t, prediction.Shift, kind)
	assert.Equal(t, 5, pc.Shift.Window)
}

func TestLoadInvalidFile(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("simulation: [unclosed"), 0644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvDataPath:    "/data/wide.csv",
		EnvDBPath:      "/tmp/j.sqlite",
		EnvPostgresDSN: "postgres://u:p@localhost/sim",
		EnvLogLevel:    "debug",
		EnvAlgorithm:   "LSTM",
		EnvSeed:        "42",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, "/data/wide.csv", cfg.Data.Path)
	assert.Equal(t, "/tmp/j.sqlite", cfg.Journal.DBPath)
	assert.Equal(t, "postgres://u:p@localhost/sim", cfg.Journal.DSN)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "LSTM", cfg.Model.Algorithm)
	require.NotNil(t, cfg.Simulation.Seed)
	assert.Equal(t, uint64(42), *cfg.Simulation.Seed)

	env[EnvSeed] = "minus one"
	assert.Error(t, Default().ApplyEnv(lookup))
}

// Not parallel: Load reads the process environment.
func TestLoadWithDotEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sim.yaml")
	require.NoError(t, Default().SaveToFile(cfgPath))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("PREDICTSIM_ALGORITHM=RANDOM\n"), 0644))
	t.Cleanup(func() { os.Unsetenv(EnvAlgorithm) })

	cfg, err := Load(cfgPath, envPath)
	require.NoError(t, err)
	assert.Equal(t, "RANDOM", cfg.Model.Algorithm)

	_, err = Load(cfgPath, filepath.Join(dir, "missing.env"))
	assert.NoError(t, err)
}

func TestToSim(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Simulation.Workers = 3
	cfg.Logging.Verbose = true

	sc := cfg.ToSim()
	assert.Equal(t, 100000.0, sc.InitialLiquidity)
	assert.Equal(t, 3, sc.Workers)
	assert.Equal(t, 40, sc.MinHistory)
	assert.True(t, sc.Verbose)
}
