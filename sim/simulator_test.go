package sim

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/predictsim/decision"
	"github.com/rustyeddy/predictsim/journal"
	"github.com/rustyeddy/predictsim/market"
	"github.com/rustyeddy/predictsim/prediction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)

func at(i int) time.Time { return day0.AddDate(0, 0, i) }

// dailyFrame builds n consecutive calendar days of prices.
func dailyFrame(t *testing.T, n int, prices map[string]func(i int) float64) *market.Frame {
	t.Helper()

	var cols []string
	for _, a := range []string{"apple", "gold"} {
		if _, ok := prices[a]; ok {
			cols = append(cols, market.ValueColumn(a), market.MovingAverageColumn(a))
		}
	}

	rows := make([]market.Row, n)
	for i := range rows {
		vals := map[string]float64{}
		for a, fn := range prices {
			v := fn(i)
			vals[market.ValueColumn(a)] = v
			vals[market.MovingAverageColumn(a)] = v
		}
		rows[i] = market.Row{Time: at(i), Values: vals}
	}

	f, err := market.NewFrame(cols, rows)
	require.NoError(t, err)
	return f
}

func constant(v float64) func(int) float64 { return func(int) float64 { return v } }

// stubModel predicts from the index of the simulated date, which is the
// length of the history it is given.
type stubModel struct {
	mu      sync.Mutex
	predict func(asset string, n int) (float64, error)
	trained int
}

func (m *stubModel) Name() string { return "STUB" }

func (m *stubModel) Train(context.Context, *market.Frame, string) error {
	m.mu.Lock()
	m.trained++
	m.mu.Unlock()
	return nil
}

func (m *stubModel) Predict(_ context.Context, h *market.Frame, asset string, horizon int) (prediction.Forecast, error) {
	v, err := m.predict(asset, h.Len())
	if err != nil {
		return prediction.Forecast{}, err
	}
	return prediction.Forecast{Dates: []time.Time{h.Last().AddDate(0, 0, 1)}, Values: []float64{v}}, nil
}

type memJournal struct {
	txns   []journal.TransactionRecord
	equity []journal.EquitySnapshot
	fail   error
}

func (j *memJournal) RecordTransaction(_ context.Context, r journal.TransactionRecord) error {
	if j.fail != nil {
		return j.fail
	}
	j.txns = append(j.txns, r)
	return nil
}

func (j *memJournal) RecordEquity(_ context.Context, e journal.EquitySnapshot) error {
	j.equity = append(j.equity, e)
	return nil
}

func (j *memJournal) RecordRun(context.Context, journal.RunSummary) error { return nil }
func (j *memJournal) Close() error                                       { return nil }

func manager(t *testing.T, mutate func(*decision.Config)) *decision.Manager {
	t.Helper()

	cfg := decision.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := decision.NewManager(cfg, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	return m
}

func baseConfig() Config {
	return Config{InitialLiquidity: 100000, OperateInWeekends: true}
}

func TestMinimumHistoryBoundary(t *testing.T) {
	t.Parallel()

	f := dailyFrame(t, 60, map[string]func(int) float64{"apple": constant(50)})
	model := &stubModel{predict: func(string, int) (float64, error) { return 60, nil }}

	s, err := New(baseConfig(), f, model, manager(t, nil))
	require.NoError(t, err)

	res, err := s.Step(context.Background(), at(DefaultMinHistory-1))
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, Skipped, res[0].Status)
	assert.Equal(t, InsufficientHistory, res[0].Reason)
	assert.Equal(t, 0, model.trained)

	res, err = s.Step(context.Background(), at(DefaultMinHistory))
	require.NoError(t, err)
	assert.Equal(t, Traded, res[0].Status)
	assert.Equal(t, 1, model.trained)
}

func TestShortHistoryRangeDoesNothing(t *testing.T) {
	t.Parallel()

	f := dailyFrame(t, 60, map[string]func(int) float64{"apple": constant(50), "gold": constant(10)})
	model := &stubModel{predict: func(string, int) (float64, error) { return 1000, nil }}

	s, err := New(baseConfig(), f, model, manager(t, nil))
	require.NoError(t, err)

	res, err := s.Run(context.Background(), at(0), at(DefaultMinHistory-1))
	require.NoError(t, err)

	assert.Empty(t, res.Transactions)
	assert.Equal(t, 0, res.Accuracy.Total)
	_, ok := res.Accuracy.Percent()
	assert.False(t, ok)
	assert.Equal(t, 2*DefaultMinHistory, res.Skips[InsufficientHistory])
	assert.Equal(t, 100000.0, res.Liquidity)
}

func TestFixedPercentScenario(t *testing.T) {
	t.Parallel()

	f := dailyFrame(t, 41, map[string]func(int) float64{"apple": constant(50)})
	model := &stubModel{predict: func(string, int) (float64, error) { return 60, nil }}
	dm := manager(t, func(c *decision.Config) { c.Strategy = decision.FixedPercent })

	s, err := New(baseConfig(), f, model, dm)
	require.NoError(t, err)

	res, err := s.Run(context.Background(), at(40), at(40))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)

	tx := res.Transactions[0]
	assert.Equal(t, decision.Buy, tx.Type)
	assert.Equal(t, 180, tx.Quantity)
	assert.Equal(t, 50.0, tx.Price)
	assert.Equal(t, 100000.0-180*50, res.Liquidity)
	assert.Equal(t, Position{Quantity: 180, AvgPrice: 50}, res.Portfolio["apple"])
}

func TestBuysStayWithinBudgetAndAverageCost(t *testing.T) {
	t.Parallel()

	price := func(i int) float64 { return 40 + float64(i%7) }
	f := dailyFrame(t, 70, map[string]func(int) float64{"apple": price})
	model := &stubModel{predict: func(_ string, n int) (float64, error) { return price(n) * 1.3, nil }}
	dm := manager(t, func(c *decision.Config) {
		c.Strategy = decision.FixedPercent
		c.FixedPct = 0.5
		c.TakeProfitMax = 10
		c.StopLossMax = 10
	})

	s, err := New(baseConfig(), f, model, dm)
	require.NoError(t, err)

	res, err := s.Run(context.Background(), at(40), at(69))
	require.NoError(t, err)
	require.NotEmpty(t, res.Transactions)

	liquidity := 100000.0
	var qty int
	var cost float64
	for _, tx := range res.Transactions {
		require.Equal(t, decision.Buy, tx.Type)
		assert.LessOrEqual(t, tx.Price*float64(tx.Quantity), liquidity*(1-dm.Config().Reserve)+1e-9)
		liquidity -= tx.Price * float64(tx.Quantity)
		qty += tx.Quantity
		cost += tx.Price * float64(tx.Quantity)
	}
	assert.GreaterOrEqual(t, res.Liquidity, 0.0)
	assert.InDelta(t, liquidity, res.Liquidity, 1e-6)

	pos := res.Portfolio["apple"]
	assert.Equal(t, qty, pos.Quantity)
	assert.InDelta(t, cost/float64(qty), pos.AvgPrice, 1e-9)
}

func TestTakeProfitSellCreditsExactly(t *testing.T) {
	t.Parallel()

	price := func(i int) float64 {
		if i < 45 {
			return 100
		}
		return 110
	}
	f := dailyFrame(t, 50, map[string]func(int) float64{"apple": price})
	model := &stubModel{predict: func(_ string, n int) (float64, error) {
		if n == 40 {
			return 120, nil
		}
		return price(n), nil
	}}
	dm := manager(t, func(c *decision.Config) { c.Strategy = decision.Fixed; c.Fixed = 10000 })

	s, err := New(baseConfig(), f, model, dm)
	require.NoError(t, err)

	res, err := s.Run(context.Background(), at(40), at(49))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)

	buy, sell := res.Transactions[0], res.Transactions[1]
	assert.Equal(t, decision.Buy, buy.Type)
	assert.Equal(t, 100, buy.Quantity)
	assert.Equal(t, decision.Sell, sell.Type)
	assert.Equal(t, at(45), sell.Timestamp)
	assert.Equal(t, 100, sell.Quantity)
	assert.InDelta(t, 10, sell.GainPct, 1e-9)

	assert.Empty(t, res.Portfolio)
	assert.InDelta(t, 100000+100*10, res.Liquidity, 1e-9)
}

func TestStopLossSellsWholePosition(t *testing.T) {
	t.Parallel()

	price := func(i int) float64 {
		if i < 42 {
			return 100
		}
		return 90
	}
	f := dailyFrame(t, 45, map[string]func(int) float64{"apple": price})
	model := &stubModel{predict: func(_ string, n int) (float64, error) {
		if n <= 41 {
			return 120, nil
		}
		return price(n), nil
	}}
	dm := manager(t, func(c *decision.Config) { c.Strategy = decision.Fixed; c.Fixed = 1000 })

	s, err := New(baseConfig(), f, model, dm)
	require.NoError(t, err)

	res, err := s.Run(context.Background(), at(40), at(44))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 3)

	sell := res.Transactions[2]
	assert.Equal(t, decision.Sell, sell.Type)
	assert.Equal(t, 20, sell.Quantity)
	assert.InDelta(t, -10, sell.GainPct, 1e-9)
	assert.Empty(t, res.Portfolio)
	assert.InDelta(t, 100000-20*100+20*90, res.Liquidity, 1e-9)
}

func TestDirectionalAccuracy(t *testing.T) {
	t.Parallel()

	// Price rises on even days and falls on odd days.
	price := func(i int) float64 {
		if i%2 == 0 {
			return 100
		}
		return 90
	}
	f := dailyFrame(t, 50, map[string]func(int) float64{"apple": price})
	// Always predicts a rise over yesterday's close.
	model := &stubModel{predict: func(_ string, n int) (float64, error) { return price(n-1) + 5, nil }}
	dm := manager(t, func(c *decision.Config) { c.TakeProfitMin = 10 })

	s, err := New(baseConfig(), f, model, dm)
	require.NoError(t, err)

	res, err := s.Run(context.Background(), at(40), at(49))
	require.NoError(t, err)

	assert.Equal(t, 10, res.Accuracy.Total)
	assert.Equal(t, 5, res.Accuracy.Hits)
	acc, ok := res.Accuracy.Percent()
	require.True(t, ok)
	assert.Equal(t, 50.0, acc)
}

func TestAccuracyRecordRule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                   string
		real, prior, predicted float64
		hit                    bool
	}{
		{"both up", 11, 10, 12, true},
		{"both down", 9, 10, 8, true},
		{"opposite", 11, 10, 9, false},
		{"flat real", 10, 10, 12, false},
		{"flat prediction", 11, 10, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var a Accuracy
			assert.Equal(t, tt.hit, a.Record(tt.real, tt.prior, tt.predicted))
			assert.Equal(t, 1, a.Total)
			pct, ok := a.Percent()
			require.True(t, ok)
			assert.GreaterOrEqual(t, pct, 0.0)
			assert.LessOrEqual(t, pct, 100.0)
		})
	}
}

func TestModelFailureIsSkipped(t *testing.T) {
	t.Parallel()

	f := dailyFrame(t, 50, map[string]func(int) float64{"apple": constant(50), "gold": constant(10)})
	model := &stubModel{predict: func(asset string, _ int) (float64, error) {
		if asset == "apple" {
			return 0, prediction.ErrNoPredictableData
		}
		return 20, nil
	}}

	s, err := New(baseConfig(), f, model, manager(t, nil))
	require.NoError(t, err)

	res, err := s.Step(context.Background(), at(45))
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, Skipped, res[0].Status)
	assert.Equal(t, ModelFailure, res[0].Reason)
	assert.ErrorIs(t, res[0].Err, prediction.ErrNoPredictableData)
	assert.Equal(t, Traded, res[1].Status)
	assert.Equal(t, "gold", res[1].Asset)
}

func TestModelPanicIsSkipped(t *testing.T) {
	t.Parallel()

	f := dailyFrame(t, 50, map[string]func(int) float64{"apple": constant(50), "gold": constant(10)})
	model := &stubModel{predict: func(asset string, _ int) (float64, error) {
		if asset == "apple" {
			var values []float64
			return values[-1+len(values)], nil
		}
		return 20, nil
	}}

	s, err := New(baseConfig(), f, model, manager(t, nil))
	require.NoError(t, err)

	res, err := s.Step(context.Background(), at(45))
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, ModelFailure, res[0].Reason)
	assert.ErrorContains(t, res[0].Err, "STUB panicked")
	assert.Equal(t, Traded, res[1].Status)
}

func TestMissingPriceIsSkipped(t *testing.T) {
	t.Parallel()

	price := func(i int) float64 {
		if i == 45 {
			return math.NaN()
		}
		return 50
	}
	f := dailyFrame(t, 50, map[string]func(int) float64{"apple": price})
	model := &stubModel{predict: func(string, int) (float64, error) { return 60, nil }}

	s, err := New(baseConfig(), f, model, manager(t, nil))
	require.NoError(t, err)

	res, err := s.Run(context.Background(), at(45), at(46))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Skips[MissingPrice])
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, at(46), res.Transactions[0].Timestamp)
	// Day 46 has no usable prior close either.
	assert.Equal(t, 0, res.Accuracy.Total)
}

func TestWeekendsSkipped(t *testing.T) {
	t.Parallel()

	f := dailyFrame(t, 60, map[string]func(int) float64{"apple": constant(50)})
	model := &stubModel{predict: func(string, int) (float64, error) { return 50, nil }}
	cfg := baseConfig()
	cfg.OperateInWeekends = false

	s, err := New(cfg, f, model, manager(t, nil))
	require.NoError(t, err)

	// 2019-02-11 is a Monday; the range covers one full week.
	res, err := s.Run(context.Background(), at(41), at(47))
	require.NoError(t, err)
	require.Len(t, res.Equity, 5)
	for _, e := range res.Equity {
		assert.False(t, market.IsWeekend(e.Time))
	}
}

func seededRandomSim(t *testing.T, f *market.Frame, workers int) *Result {
	t.Helper()

	cfg := prediction.DefaultConfig()
	seed := uint64(2024)
	cfg.Seed = &seed
	factory, err := prediction.NewFactory(prediction.Random, cfg)
	require.NoError(t, err)

	dm, err := decision.NewManager(decision.Config{
		Strategy:      decision.Random,
		TakeProfitMin: 0.005,
		TakeProfitMax: 0.03,
		StopLossMax:   0.03,
		Reserve:       0.1,
	}, rand.New(rand.NewPCG(seed, seed)))
	require.NoError(t, err)

	sc := baseConfig()
	sc.Workers = workers
	s, err := New(sc, f, nil, dm, WithFactory(factory))
	require.NoError(t, err)

	res, err := s.Run(context.Background(), at(40), at(89))
	require.NoError(t, err)
	return res
}

func TestSeededRunsAreRepeatable(t *testing.T) {
	t.Parallel()

	f := dailyFrame(t, 90, map[string]func(int) float64{
		"apple": func(i int) float64 { return 100 + 10*math.Sin(float64(i)/4) },
		"gold":  func(i int) float64 { return 50 + 5*math.Cos(float64(i)/3) },
	})

	a := seededRandomSim(t, f, 1)
	b := seededRandomSim(t, f, 1)
	c := seededRandomSim(t, f, 4)

	require.NotEmpty(t, a.Transactions)
	assert.Equal(t, a.Transactions, b.Transactions)
	assert.Equal(t, a.Liquidity, b.Liquidity)
	assert.Equal(t, a.Accuracy, b.Accuracy)

	assert.Equal(t, a.Transactions, c.Transactions, "concurrent forecasts must not change the ledger")
	assert.Equal(t, a.Accuracy, c.Accuracy)
}

func TestJournalReceivesLedgerAndEquity(t *testing.T) {
	t.Parallel()

	f := dailyFrame(t, 45, map[string]func(int) float64{"apple": constant(50)})
	model := &stubModel{predict: func(string, int) (float64, error) { return 60, nil }}
	j := &memJournal{}

	s, err := New(baseConfig(), f, model, manager(t, nil), WithJournal(j), WithRunID("RUN1"))
	require.NoError(t, err)

	res, err := s.Run(context.Background(), at(40), at(42))
	require.NoError(t, err)

	require.Len(t, j.txns, len(res.Transactions))
	for i, rec := range j.txns {
		assert.Equal(t, "RUN1", rec.RunID)
		assert.Len(t, rec.ID, 26)
		assert.Equal(t, "buy", rec.Type)
		assert.Equal(t, res.Transactions[i].Quantity, rec.Quantity)
	}

	require.Len(t, j.equity, 3)
	last := j.equity[2]
	assert.InDelta(t, res.Liquidity, last.Liquidity, 1e-9)
	assert.InDelta(t, 100000, last.Equity, 1e-6, "flat prices keep equity constant")
}

func TestJournalErrorEndsRun(t *testing.T) {
	t.Parallel()

	f := dailyFrame(t, 45, map[string]func(int) float64{"apple": constant(50)})
	model := &stubModel{predict: func(string, int) (float64, error) { return 60, nil }}
	boom := errors.New("disk full")

	s, err := New(baseConfig(), f, model, manager(t, nil), WithJournal(&memJournal{fail: boom}))
	require.NoError(t, err)

	_, err = s.Run(context.Background(), at(40), at(42))
	assert.ErrorIs(t, err, boom)
}

func TestRunHonoursCancellation(t *testing.T) {
	t.Parallel()

	f := dailyFrame(t, 45, map[string]func(int) float64{"apple": constant(50)})
	model := &stubModel{predict: func(string, int) (float64, error) { return 60, nil }}

	s, err := New(baseConfig(), f, model, manager(t, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Run(ctx, at(40), at(42))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	f := dailyFrame(t, 5, map[string]func(int) float64{"apple": constant(50)})
	model := &stubModel{predict: func(string, int) (float64, error) { return 1, nil }}
	dm := manager(t, nil)

	_, err := New(Config{}, f, model, dm)
	assert.Error(t, err, "liquidity")

	_, err = New(baseConfig(), nil, model, dm)
	assert.Error(t, err, "frame")

	_, err = New(baseConfig(), f, nil, dm)
	assert.Error(t, err, "model")

	cfg := baseConfig()
	cfg.Workers = 4
	_, err = New(cfg, f, model, dm)
	assert.Error(t, err, "workers without factory")

	cfg = baseConfig()
	cfg.Assets = []string{"tesla"}
	_, err = New(cfg, f, model, dm)
	assert.Error(t, err, "unknown asset")

	s, err := New(baseConfig(), f, model, dm)
	require.NoError(t, err)
	_, err = s.Run(context.Background(), at(3), at(1))
	assert.Error(t, err, "end before start")
}

func TestPortfolioAverageCost(t *testing.T) {
	t.Parallel()

	p := NewPortfolio()
	p.add("apple", 10, 100)
	p.add("apple", 30, 120)

	pos, ok := p.Get("apple")
	require.True(t, ok)
	assert.Equal(t, 40, pos.Quantity)
	assert.InDelta(t, 115, pos.AvgPrice, 1e-9)

	qty, avg, ok := p.Holding("apple")
	assert.True(t, ok)
	assert.Equal(t, 40, qty)
	assert.InDelta(t, 115, avg, 1e-9)

	removed, ok := p.remove("apple")
	assert.True(t, ok)
	assert.Equal(t, pos, removed)
	_, ok = p.Get("apple")
	assert.False(t, ok)
	assert.Equal(t, 0, p.Len())
}
