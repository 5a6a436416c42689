package prediction

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/predictsim/market"
	"gonum.org/v1/gonum/stat"
)

// kpssCritical is the 5% critical value of the level-stationarity KPSS test.
const kpssCritical = 0.463

// minARIMAObservations is the shortest daily window the order search accepts.
const minARIMAObservations = 8

// Order is a fitted (p, d, q) model order.
type Order struct {
	P, D, Q int
}

func (o Order) String() string { return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q) }

// AutoARIMA fits a non-seasonal ARIMA to a trailing daily window of the
// moving-average column, choosing d with repeated KPSS tests and (p, q) by
// AIC.
type AutoARIMA struct {
	cfg ARIMAConfig

	order    Order
	fit      *armaFit
	levels   [][]float64 // levels[k] is the window differenced k times
	lastDate time.Time
}

func NewAutoARIMA(cfg ARIMAConfig) *AutoARIMA { return &AutoARIMA{cfg: cfg} }

func (m *AutoARIMA) Name() string { return string(ARIMA) }

// Order returns the order selected by the last Train.
func (m *AutoARIMA) Order() Order { return m.order }

func (m *AutoARIMA) Train(ctx context.Context, history *market.Frame, asset string) error {
	m.fit = nil
	dates, vals, err := observed(history, market.MovingAverageColumn(asset))
	if err != nil {
		return fmt.Errorf("arima: %w", err)
	}

	series := resampleDaily(dates, vals)
	if w := m.cfg.Window; w > 0 && len(series) > w {
		series = series[len(series)-w:]
	}
	if len(series) < minARIMAObservations {
		return fmt.Errorf("arima: need %d daily observations for %s, have %d",
			minARIMAObservations, asset, len(series))
	}

	levels := [][]float64{series}
	for d := 0; d < m.cfg.MaxD; d++ {
		x := levels[d]
		if len(x) < minARIMAObservations || kpssStationary(x) {
			break
		}
		levels = append(levels, diff(x))
	}
	y := levels[len(levels)-1]

	var best *armaFit
	for p := 0; p <= m.cfg.MaxP; p++ {
		for q := 0; q <= m.cfg.MaxQ; q++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fit, ok := fitARMA(y, p, q)
			if !ok {
				continue
			}
			if best == nil || fit.aic < best.aic {
				best = fit
			}
		}
	}
	if best == nil {
		return fmt.Errorf("arima: no admissible order for %s", asset)
	}

	m.fit = best
	m.levels = levels
	m.order = Order{P: best.p, D: len(levels) - 1, Q: best.q}
	m.lastDate = dates[len(dates)-1]
	return nil
}

func (m *AutoARIMA) Predict(_ context.Context, _ *market.Frame, _ string, horizon int) (Forecast, error) {
	if m.fit == nil {
		return Forecast{}, ErrNotTrained
	}
	if horizon < 1 {
		return Forecast{}, fmt.Errorf("arima: horizon must be positive, got %d", horizon)
	}

	f := m.fit.forecast(m.levels[len(m.levels)-1], horizon)
	for k := len(m.levels) - 1; k > 0; k-- {
		prev := m.levels[k-1]
		acc := prev[len(prev)-1]
		for i := range f {
			acc += f[i]
			f[i] = acc
		}
	}
	return dailyForecast(m.lastDate, 1, f), nil
}

// kpssStationary reports whether the KPSS level-stationarity null is not
// rejected at the 5% level.
func kpssStationary(x []float64) bool {
	n := len(x)
	mean := stat.Mean(x, nil)
	e := make([]float64, n)
	for i, v := range x {
		e[i] = v - mean
	}

	var s, eta float64
	for _, v := range e {
		s += v
		eta += s * s
	}
	eta /= float64(n * n)

	lags := int(3 * math.Sqrt(float64(n)) / 13)
	var lrv float64
	for _, v := range e {
		lrv += v * v
	}
	for k := 1; k <= lags; k++ {
		var acc float64
		for t := k; t < n; t++ {
			acc += e[t] * e[t-k]
		}
		w := 1 - float64(k)/float64(lags+1)
		lrv += 2 * w * acc
	}
	lrv /= float64(n)

	if lrv <= 1e-12 {
		return true
	}
	return eta/lrv < kpssCritical
}

type armaFit struct {
	p, q  int
	c     float64
	phi   []float64
	theta []float64
	resid []float64
	aic   float64
}

// fitARMA estimates an ARMA(p, q) with constant by Hannan-Rissanen: a long
// autoregression supplies residual estimates, which then enter an OLS fit
// as the moving-average regressors.
func fitARMA(y []float64, p, q int) (*armaFit, bool) {
	m := len(y)
	params := p + q + 1

	var resid []float64
	start := p
	if q > 0 {
		k := p + q
		if k < 2 {
			k = 2
		}
		if k > m/3 {
			return nil, false
		}
		longAR, ok := fitAR(y, k)
		if !ok {
			return nil, false
		}
		resid = longAR.residuals(y)
		if k+q > start {
			start = k + q
		}
	}
	if m-start < params+2 {
		return nil, false
	}

	var rows [][]float64
	var target []float64
	for t := start; t < m; t++ {
		row := make([]float64, 0, p+q)
		for i := 1; i <= p; i++ {
			row = append(row, y[t-i])
		}
		for j := 1; j <= q; j++ {
			row = append(row, resid[t-j])
		}
		rows = append(rows, row)
		target = append(target, y[t])
	}

	lm, err := fitLinear(rows, target)
	if err != nil {
		return nil, false
	}

	fit := &armaFit{
		p:     p,
		q:     q,
		c:     lm.intercept,
		phi:   append([]float64(nil), lm.coef[:p]...),
		theta: append([]float64(nil), lm.coef[p:]...),
	}
	fit.resid = fit.residuals(y)

	var sse float64
	for t := p; t < m; t++ {
		sse += fit.resid[t] * fit.resid[t]
	}
	nobs := float64(m - p)
	sigma2 := sse / nobs
	if sigma2 < 1e-12 {
		sigma2 = 1e-12
	}
	fit.aic = nobs*math.Log(sigma2) + 2*float64(params)
	if math.IsNaN(fit.aic) || math.IsInf(fit.aic, 0) {
		return nil, false
	}
	return fit, true
}

// fitAR is an ARMA(k, 0) fit used as the first Hannan-Rissanen stage.
func fitAR(y []float64, k int) (*armaFit, bool) {
	var rows [][]float64
	var target []float64
	for t := k; t < len(y); t++ {
		row := make([]float64, k)
		for i := 1; i <= k; i++ {
			row[i-1] = y[t-i]
		}
		rows = append(rows, row)
		target = append(target, y[t])
	}
	lm, err := fitLinear(rows, target)
	if err != nil {
		return nil, false
	}
	return &armaFit{p: k, c: lm.intercept, phi: lm.coef}, true
}

// residuals computes conditional one-step residuals; the first p are zero.
func (f *armaFit) residuals(y []float64) []float64 {
	e := make([]float64, len(y))
	for t := f.p; t < len(y); t++ {
		e[t] = y[t] - f.step(y, e, t)
	}
	return e
}

// step is the one-step prediction of position t from the values before it.
func (f *armaFit) step(y, e []float64, t int) float64 {
	v := f.c
	for i, phi := range f.phi {
		if t-i-1 >= 0 {
			v += phi * y[t-i-1]
		}
	}
	for j, theta := range f.theta {
		if t-j-1 >= 0 {
			v += theta * e[t-j-1]
		}
	}
	return v
}

// forecast extends y recursively; future shocks are zero.
func (f *armaFit) forecast(y []float64, horizon int) []float64 {
	ext := append(append([]float64(nil), y...), make([]float64, horizon)...)
	e := append(append([]float64(nil), f.resid...), make([]float64, horizon)...)
	out := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		t := len(y) + h
		ext[t] = f.step(ext, e, t)
		out[h] = ext[t]
	}
	return out
}
