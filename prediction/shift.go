package prediction

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rustyeddy/predictsim/market"
)

// LaggedRegression regresses the value Shift rows ahead on the asset's
// features, the macro columns and Window lags of the value itself. One
// linear model is kept per asset.
type LaggedRegression struct {
	cfg ShiftConfig

	mu     sync.Mutex
	models map[string]*linearModel
}

func NewLaggedRegression(cfg ShiftConfig) *LaggedRegression {
	return &LaggedRegression{cfg: cfg, models: make(map[string]*linearModel)}
}

func (m *LaggedRegression) Name() string { return string(Shift) }

// dataset builds the feature matrix and shifted label for asset. Missing
// entries are NaN.
func (m *LaggedRegression) dataset(history *market.Frame, asset string) ([][]float64, []float64, error) {
	values, ok := history.Column(market.ValueColumn(asset))
	if !ok {
		return nil, nil, fmt.Errorf("shift: column %s not found", market.ValueColumn(asset))
	}

	var static [][]float64
	for _, c := range history.Columns() {
		if market.IsAssetFeature(asset, c) || market.IsMacro(c) {
			col, _ := history.Column(c)
			static = append(static, col)
		}
	}

	n := history.Len()
	rows := make([][]float64, n)
	labels := make([]float64, n)
	for t := 0; t < n; t++ {
		row := make([]float64, 0, len(static)+m.cfg.Window)
		for _, col := range static {
			row = append(row, col[t])
		}
		for k := 1; k <= m.cfg.Window; k++ {
			if t-k >= 0 {
				row = append(row, values[t-k])
			} else {
				row = append(row, math.NaN())
			}
		}
		rows[t] = row
		if t+m.cfg.Shift < n {
			labels[t] = values[t+m.cfg.Shift]
		} else {
			labels[t] = math.NaN()
		}
	}
	return rows, labels, nil
}

func finite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (m *LaggedRegression) Train(_ context.Context, history *market.Frame, asset string) error {
	rows, labels, err := m.dataset(history, asset)
	if err != nil {
		return err
	}

	var x [][]float64
	var y []float64
	for t, row := range rows {
		if finite(row) && !math.IsNaN(labels[t]) {
			x = append(x, row)
			y = append(y, labels[t])
		}
	}
	if len(x) == 0 {
		return fmt.Errorf("shift: no complete training rows for %s", asset)
	}

	lm, err := fitLinear(x, y)
	if err != nil {
		return fmt.Errorf("shift: %w", err)
	}

	m.mu.Lock()
	m.models[asset] = lm
	m.mu.Unlock()
	return nil
}

// Predict uses the most recent complete feature row. The horizon is fixed by
// Shift, so one value is returned regardless of horizon.
func (m *LaggedRegression) Predict(_ context.Context, history *market.Frame, asset string, _ int) (Forecast, error) {
	m.mu.Lock()
	lm, ok := m.models[asset]
	m.mu.Unlock()
	if !ok {
		return Forecast{}, fmt.Errorf("shift: %w for %s", ErrNotTrained, asset)
	}

	rows, _, err := m.dataset(history, asset)
	if err != nil {
		return Forecast{}, err
	}
	for t := len(rows) - 1; t >= 0; t-- {
		if finite(rows[t]) {
			v := lm.predict(rows[t])
			return dailyForecast(history.Date(t), m.cfg.Shift, []float64{v}), nil
		}
	}
	return Forecast{}, fmt.Errorf("shift: %w for %s", ErrNoPredictableData, asset)
}
