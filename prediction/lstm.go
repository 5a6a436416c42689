package prediction

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/rustyeddy/predictsim/market"
)

// SequenceModel is an LSTM regressor over sliding windows of the asset's
// features and the macro columns. Inputs and target are min-max scaled on
// the training rows.
type SequenceModel struct {
	cfg LSTMConfig
	rng *rand.Rand

	net      *lstmNet
	scaler   *minMaxScaler
	features []string
	asset    string
}

func NewSequenceModel(cfg LSTMConfig, rng *rand.Rand) *SequenceModel {
	return &SequenceModel{cfg: cfg, rng: rng}
}

func (m *SequenceModel) Name() string { return string(LSTM) }

func (m *SequenceModel) columns(history *market.Frame, asset string) []string {
	cols := history.FeatureColumns(asset)
	return append(cols, history.MacroColumns()...)
}

// matrix returns the complete rows of cols, in date order.
func matrix(history *market.Frame, cols []string) [][]float64 {
	idx := completeRows(history, cols)
	data := make([][]float64, len(cols))
	for c, name := range cols {
		data[c], _ = history.Column(name)
	}
	out := make([][]float64, len(idx))
	for r, i := range idx {
		row := make([]float64, len(cols))
		for c := range cols {
			row[c] = data[c][i]
		}
		out[r] = row
	}
	return out
}

func (m *SequenceModel) Train(ctx context.Context, history *market.Frame, asset string) error {
	m.net = nil
	features := m.columns(history, asset)
	if len(features) == 0 {
		return fmt.Errorf("lstm: no feature columns for %s", asset)
	}
	target := market.ValueColumn(asset)
	if !history.HasColumn(target) {
		return fmt.Errorf("lstm: column %s not found", target)
	}

	rows := matrix(history, append(append([]string(nil), features...), target))
	lb := m.cfg.Lookback
	nwin := len(rows) - lb - 1
	if lb < 1 || nwin < 1 {
		return fmt.Errorf("lstm: need more than %d complete rows for %s, have %d", lb+1, asset, len(rows))
	}

	scaler := fitMinMax(rows)
	scaled := make([][]float64, len(rows))
	for i, r := range rows {
		scaled[i] = scaler.transform(r)
	}
	nf := len(features)

	xs := make([][][]float64, nwin)
	ys := make([]float64, nwin)
	for i := 0; i < nwin; i++ {
		win := make([][]float64, lb)
		for t := 0; t < lb; t++ {
			win[t] = scaled[i+t][:nf]
		}
		xs[i] = win
		ys[i] = scaled[i+lb][nf]
	}

	net := newLSTMNet(nf, m.cfg.Units, m.cfg.DenseUnits, m.cfg.Dropout, m.rng)
	opt := newAdam(m.cfg.LearningRate, net.params())
	batch := m.cfg.BatchSize
	if batch < 1 {
		batch = 1
	}

	var cache lstmCache
	for epoch := 0; epoch < m.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		perm := m.rng.Perm(nwin)
		for start := 0; start < nwin; start += batch {
			end := min(start+batch, nwin)
			grads := net.zeroGrads()
			bsz := float64(end - start)
			for _, idx := range perm[start:end] {
				mask := m.dropoutMask()
				y := net.forward(xs[idx], mask, &cache)
				net.backward(&cache, 2*(y-ys[idx])/bsz, grads)
			}
			opt.step(net.params(), grads)
		}
	}

	m.net = net
	m.scaler = scaler
	m.features = features
	m.asset = asset
	return nil
}

// dropoutMask draws an inverted-dropout mask for the final hidden state.
func (m *SequenceModel) dropoutMask() []float64 {
	p := m.cfg.Dropout
	if p <= 0 {
		return nil
	}
	mask := make([]float64, m.cfg.Units)
	for j := range mask {
		if m.rng.Float64() >= p {
			mask[j] = 1 / (1 - p)
		}
	}
	return mask
}

// Predict forecasts one step from the last Lookback complete rows.
func (m *SequenceModel) Predict(_ context.Context, history *market.Frame, asset string, _ int) (Forecast, error) {
	if m.net == nil || asset != m.asset {
		return Forecast{}, fmt.Errorf("lstm: %w for %s", ErrNotTrained, asset)
	}

	cols := append(append([]string(nil), m.features...), market.ValueColumn(asset))
	idx := completeRows(history, cols)
	rows := matrix(history, cols)
	lb := m.cfg.Lookback
	if len(rows) < lb {
		return Forecast{}, fmt.Errorf("lstm: %w for %s: %d complete rows, lookback %d",
			ErrNoPredictableData, asset, len(rows), lb)
	}

	nf := len(m.features)
	win := make([][]float64, lb)
	for t, r := range rows[len(rows)-lb:] {
		win[t] = m.scaler.transform(r[:nf])
	}

	var cache lstmCache
	y := m.net.forward(win, nil, &cache)
	v := m.scaler.inverse(nf, y)
	return dailyForecast(history.Date(idx[len(idx)-1]), 1, []float64{v}), nil
}
