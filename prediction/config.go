package prediction

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrInvalidConfig wraps every rejected model setting.
var ErrInvalidConfig = errors.New("invalid model config")

// Config carries the tunables for every model variant.
type Config struct {
	// Seed makes the random components reproducible. Nil seeds from
	// crypto/rand.
	Seed *uint64

	Random RandomConfig
	ARIMA  ARIMAConfig
	Shift  ShiftConfig
	LSTM   LSTMConfig
}

type RandomConfig struct {
	Volatility float64 // stddev of the daily return draw
}

type ARIMAConfig struct {
	Window int // trailing daily observations used for the fit
	MaxP   int
	MaxD   int
	MaxQ   int
}

type ShiftConfig struct {
	Shift  int // rows ahead the label is taken from
	Window int // number of lagged value features
}

type LSTMConfig struct {
	Lookback     int
	Epochs       int
	BatchSize    int
	Units        int
	DenseUnits   int
	Dropout      float64
	LearningRate float64
}

func DefaultConfig() Config {
	return Config{
		Random: RandomConfig{Volatility: 0.02},
		ARIMA:  ARIMAConfig{Window: 30, MaxP: 6, MaxD: 6, MaxQ: 6},
		Shift:  ShiftConfig{Shift: 1, Window: 30},
		LSTM: LSTMConfig{
			Lookback:     30,
			Epochs:       6,
			BatchSize:    16,
			Units:        64,
			DenseUnits:   32,
			Dropout:      0.2,
			LearningRate: 0.001,
		},
	}
}

// Validate checks the settings of every variant.
func (c Config) Validate() error {
	return errors.Join(c.Random.Validate(), c.ARIMA.Validate(), c.Shift.Validate(), c.LSTM.Validate())
}

// validate checks only the settings kind reads.
func (c Config) validate(kind Kind) error {
	switch kind {
	case Random:
		return c.Random.Validate()
	case ARIMA:
		return c.ARIMA.Validate()
	case Shift:
		return c.Shift.Validate()
	case LSTM:
		return c.LSTM.Validate()
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func (c RandomConfig) Validate() error {
	if c.Volatility < 0 {
		return invalid("random.volatility must not be negative, got %v", c.Volatility)
	}
	return nil
}

func (c ARIMAConfig) Validate() error {
	if c.Window < 0 {
		return invalid("arima.window must not be negative, got %d", c.Window)
	}
	if c.MaxP < 0 || c.MaxD < 0 || c.MaxQ < 0 {
		return invalid("arima max_p, max_d and max_q must not be negative")
	}
	return nil
}

func (c ShiftConfig) Validate() error {
	if c.Shift < 1 {
		return invalid("shift.shift must be at least 1, got %d", c.Shift)
	}
	if c.Window < 0 {
		return invalid("shift.window must not be negative, got %d", c.Window)
	}
	return nil
}

func (c LSTMConfig) Validate() error {
	for _, f := range []struct {
		name string
		v    int
	}{
		{"lookback", c.Lookback},
		{"epochs", c.Epochs},
		{"batch_size", c.BatchSize},
		{"units", c.Units},
		{"dense_units", c.DenseUnits},
	} {
		if f.v < 1 {
			return invalid("lstm.%s must be at least 1, got %d", f.name, f.v)
		}
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return invalid("lstm.dropout must be in [0, 1), got %v", c.Dropout)
	}
	if c.LearningRate <= 0 {
		return invalid("lstm.learning_rate must be positive, got %v", c.LearningRate)
	}
	return nil
}

// ForStream derives a config whose seed is distinct for each stream.
func (c Config) ForStream(stream uint64) Config {
	if c.Seed == nil {
		return c
	}
	s := *c.Seed + stream*0x9E3779B97F4A7C15
	c.Seed = &s
	return c
}

// NewRand returns a PCG generator for seed, or a crypto-seeded one when seed
// is nil.
func NewRand(seed *uint64) *rand.Rand { return newRand(seed) }

func newRand(seed *uint64) *rand.Rand {
	var s uint64
	if seed != nil {
		s = *seed
	} else if err := binary.Read(cryptoRand.Reader, binary.LittleEndian, &s); err != nil || s == 0 {
		s = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(s, s^0xDA3E39CB94B95BDB))
}
