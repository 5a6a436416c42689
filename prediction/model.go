// Package prediction holds the price-forecasting models the simulator
// retrains on every simulated day.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/predictsim/market"
)

var (
	// ErrUnsupportedAlgorithm is returned by New for an unknown Kind.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

	// ErrNoPredictableData means no complete feature row was left to predict
	// from after pruning incomplete rows.
	ErrNoPredictableData = errors.New("no valid data to predict")

	// ErrNotTrained is returned by Predict before a successful Train.
	ErrNotTrained = errors.New("model not trained")
)

// Model is the train/predict contract every forecasting variant satisfies.
// Train always starts from scratch; history must only contain rows strictly
// before the simulated date.
type Model interface {
	Name() string
	Train(ctx context.Context, history *market.Frame, asset string) error
	Predict(ctx context.Context, history *market.Frame, asset string, horizon int) (Forecast, error)
}

// Forecast is a short sequence of daily predictions.
type Forecast struct {
	Dates  []time.Time
	Values []float64
}

// Next returns the first forecast value.
func (f Forecast) Next() (float64, bool) {
	if len(f.Values) == 0 {
		return 0, false
	}
	return f.Values[0], true
}

func dailyForecast(last time.Time, step int, values []float64) Forecast {
	dates := make([]time.Time, len(values))
	for i := range values {
		dates[i] = last.AddDate(0, 0, step*(i+1))
	}
	return Forecast{Dates: dates, Values: values}
}

type Kind string

const (
	ARIMA  Kind = "ARIMA"
	Random Kind = "RANDOM"
	Shift  Kind = "SHIFT"
	LSTM   Kind = "LSTM"
)

// Kinds lists the supported algorithms.
func Kinds() []Kind { return []Kind{ARIMA, Random, Shift, LSTM} }

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w %q (supported: ARIMA, RANDOM, SHIFT, LSTM)", ErrUnsupportedAlgorithm, s)
}

// New builds the model for kind after checking the settings it reads.
func New(kind Kind, cfg Config) (Model, error) {
	if err := cfg.validate(kind); err != nil {
		return nil, err
	}
	switch kind {
	case ARIMA:
		return NewAutoARIMA(cfg.ARIMA), nil
	case Random:
		return NewRandomWalk(cfg.Random, newRand(cfg.Seed)), nil
	case Shift:
		return NewLaggedRegression(cfg.Shift), nil
	case LSTM:
		return NewSequenceModel(cfg.LSTM, newRand(cfg.Seed)), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedAlgorithm, kind)
	}
}

// Factory builds independent model instances, one per stream. Instances from
// the same factory and stream draw identical random sequences.
type Factory func(stream uint64) (Model, error)

// NewFactory validates kind up front and returns a Factory for it.
func NewFactory(kind Kind, cfg Config) (Factory, error) {
	if _, err := New(kind, cfg); err != nil {
		return nil, err
	}
	return func(stream uint64) (Model, error) {
		return New(kind, cfg.ForStream(stream))
	}, nil
}
