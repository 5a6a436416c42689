// Package decision turns a price forecast into a buy, sell or hold action.
package decision

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy selects how a buy signal is sized.
type Strategy string

const (
	Proportional Strategy = "PROPORTIONAL"
	FixedPercent Strategy = "FIXED_PERCENT"
	Fixed        Strategy = "FIXED"
	Random       Strategy = "RANDOM"
)

func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case Proportional, FixedPercent, Fixed, Random:
		return st, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownStrategy, s)
}

// Config holds the thresholds and sizing parameters. All thresholds are
// fractions; Reserve is the share of liquidity never spent on a buy.
type Config struct {
	Strategy      Strategy
	TakeProfitMin float64 // expected return that triggers a buy
	TakeProfitMax float64 // realised gain that triggers a sell
	StopLossMin   float64
	StopLossMax   float64 // realised loss that triggers a sell
	Reserve       float64

	Alpha    float64 // PROPORTIONAL
	FixedPct float64 // FIXED_PERCENT
	Fixed    float64 // FIXED notional
}

func DefaultConfig() Config {
	return Config{
		Strategy:      Proportional,
		TakeProfitMin: 0.01,
		TakeProfitMax: 0.05,
		StopLossMin:   0,
		StopLossMax:   0.05,
		Reserve:       0.1,
		Alpha:         0.5,
		FixedPct:      0.1,
		Fixed:         10000,
	}
}

type Kind int

const (
	None Kind = iota
	Buy
	Sell
)

func (k Kind) String() string {
	switch k {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "none"
	}
}

// Action is the outcome of one decision. Price is always the current price.
type Action struct {
	Kind     Kind
	Quantity int
	Price    float64
}

// Portfolio is the read-only view of holdings a decision needs.
type Portfolio interface {
	Holding(asset string) (quantity int, avgPrice float64, ok bool)
}

// Manager is stateless apart from the random draws of the RANDOM strategy.
type Manager struct {
	cfg Config
	rng *rand.Rand
}

// NewManager validates cfg. rng is only used by the RANDOM strategy; nil
// picks a randomly seeded generator.
func NewManager(cfg Config, rng *rand.Rand) (*Manager, error) {
	if _, err := ParseStrategy(string(cfg.Strategy)); err != nil {
		return nil, err
	}
	if cfg.Reserve < 0 || cfg.Reserve >= 1 {
		return nil, fmt.Errorf("reserve must be in [0, 1), got %v", cfg.Reserve)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Manager{cfg: cfg, rng: rng}, nil
}

func (m *Manager) Config() Config { return m.cfg }

// Decide applies the policy. A positive buy takes precedence over any sell
// signal on the same asset.
func (m *Manager) Decide(asset string, predicted, current, liquidity float64, portfolio Portfolio) Action {
	action := Action{Kind: None, Price: current}
	if current <= 0 || math.IsNaN(current) || math.IsNaN(predicted) {
		return action
	}

	expected := (predicted - current) / current
	if expected > m.cfg.TakeProfitMin {
		if q := m.buyQuantity(expected, current, liquidity); q > 0 {
			action.Kind = Buy
			action.Quantity = q
			return action
		}
	}

	if portfolio == nil {
		return action
	}
	qty, avg, ok := portfolio.Holding(asset)
	if !ok || qty <= 0 || avg <= 0 {
		return action
	}
	perf := (current - avg) / avg
	if perf <= -m.cfg.StopLossMax || perf >= m.cfg.TakeProfitMax {
		action.Kind = Sell
		action.Quantity = qty
	}
	return action
}

func (m *Manager) buyQuantity(expected, current, liquidity float64) int {
	maxLiquidity := liquidity * (1 - m.cfg.Reserve)
	if maxLiquidity <= 0 {
		return 0
	}

	var q float64
	switch m.cfg.Strategy {
	case Proportional:
		q = math.Floor(m.cfg.Alpha * expected * (maxLiquidity / current))
	case FixedPercent:
		q = math.Floor(m.cfg.FixedPct * maxLiquidity / current)
	case Fixed:
		q = math.Floor(m.cfg.Fixed / current)
	case Random:
		pct := 0.05 + m.rng.Float64()*0.45
		q = math.Floor(pct * maxLiquidity / current)
	}

	budget := math.Floor(maxLiquidity / current)
	q = math.Min(q, budget)
	if q <= 0 || math.IsNaN(q) {
		return 0
	}
	return int(q)
}
