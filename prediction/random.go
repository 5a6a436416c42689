package prediction

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rustyeddy/predictsim/market"
)

// RandomWalk perturbs the last observed moving average by a normal daily
// return. It is a baseline for comparing the other models.
type RandomWalk struct {
	cfg RandomConfig
	rng *rand.Rand

	last     float64
	lastDate time.Time
	trained  bool
}

func NewRandomWalk(cfg RandomConfig, rng *rand.Rand) *RandomWalk {
	return &RandomWalk{cfg: cfg, rng: rng}
}

func (m *RandomWalk) Name() string { return string(Random) }

func (m *RandomWalk) Train(_ context.Context, history *market.Frame, asset string) error {
	m.trained = false
	dates, vals, err := observed(history, market.MovingAverageColumn(asset))
	if err != nil {
		return fmt.Errorf("random: %w", err)
	}
	if len(vals) == 0 {
		return fmt.Errorf("random: no observations for %s", asset)
	}
	m.last = vals[len(vals)-1]
	m.lastDate = dates[len(dates)-1]
	m.trained = true
	return nil
}

func (m *RandomWalk) Predict(_ context.Context, _ *market.Frame, _ string, horizon int) (Forecast, error) {
	if !m.trained {
		return Forecast{}, ErrNotTrained
	}
	if horizon < 1 {
		return Forecast{}, fmt.Errorf("random: horizon must be positive, got %d", horizon)
	}
	values := make([]float64, horizon)
	for i := range values {
		values[i] = m.last * (1 + m.rng.NormFloat64()*m.cfg.Volatility)
	}
	return dailyForecast(m.lastDate, 1, values), nil
}
