// Package sim replays a date range day by day, retraining the forecasting
// model on strictly earlier history and trading on its predictions.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/predictsim/decision"
	"github.com/rustyeddy/predictsim/internal/id"
	"github.com/rustyeddy/predictsim/journal"
	"github.com/rustyeddy/predictsim/market"
	"github.com/rustyeddy/predictsim/prediction"
)

// DefaultMinHistory is the fewest prior rows an asset needs before it is
// traded.
const DefaultMinHistory = 40

type Config struct {
	InitialLiquidity  float64
	Assets            []string // empty means every asset in the frame
	OperateInWeekends bool
	MinHistory        int
	Horizon           int
	Workers           int
	// Verbose logs model failures and missing prices at warn instead of
	// debug.
	Verbose bool
}

type Option func(*Simulator)

// WithJournal forwards every transaction and equity mark to j.
func WithJournal(j journal.Journal) Option {
	return func(s *Simulator) { s.journal = j }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.log = l }
}

// WithRunID fixes the run ID stamped on journal rows.
func WithRunID(runID string) Option {
	return func(s *Simulator) { s.runID = runID }
}

// WithFactory gives each asset its own model instance. It is required for
// concurrent forecasting with Workers > 1.
func WithFactory(f prediction.Factory) Option {
	return func(s *Simulator) { s.factory = f }
}

// Simulator owns the liquidity, the portfolio, the ledger and the accuracy
// counters. Only Run mutates them.
type Simulator struct {
	cfg   Config
	frame *market.Frame
	model prediction.Model
	dm    *decision.Manager

	factory prediction.Factory
	models  []prediction.Model // per asset when a factory is set
	assets  []string

	journal journal.Journal
	log     *slog.Logger
	runID   string

	liquidity    float64
	portfolio    *Portfolio
	transactions []Transaction
	accuracy     Accuracy
	skips        map[SkipReason]int
	equity       []journal.EquitySnapshot
}

func New(cfg Config, frame *market.Frame, model prediction.Model, dm *decision.Manager, opts ...Option) (*Simulator, error) {
	if frame == nil {
		return nil, errors.New("sim: frame is required")
	}
	if dm == nil {
		return nil, errors.New("sim: decision manager is required")
	}
	if cfg.InitialLiquidity <= 0 {
		return nil, fmt.Errorf("sim: initial liquidity must be positive, got %v", cfg.InitialLiquidity)
	}
	if cfg.MinHistory <= 0 {
		cfg.MinHistory = DefaultMinHistory
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	s := &Simulator{
		cfg:     cfg,
		frame:   frame,
		model:   model,
		dm:      dm,
		journal: journal.Discard{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	if s.runID == "" {
		s.runID = id.New()
	}

	s.assets = cfg.Assets
	if len(s.assets) == 0 {
		s.assets = frame.Assets()
	}
	for _, a := range s.assets {
		if !frame.HasColumn(market.ValueColumn(a)) {
			return nil, fmt.Errorf("sim: asset %q has no %s column", a, market.ValueColumn(a))
		}
	}

	if s.factory != nil {
		s.models = make([]prediction.Model, len(s.assets))
		for i := range s.assets {
			m, err := s.factory(uint64(i))
			if err != nil {
				return nil, fmt.Errorf("sim: model for %s: %w", s.assets[i], err)
			}
			s.models[i] = m
		}
	} else if model == nil {
		return nil, errors.New("sim: model is required")
	} else if cfg.Workers > 1 {
		return nil, errors.New("sim: concurrent forecasting needs a model factory")
	}

	s.reset()
	return s, nil
}

func (s *Simulator) reset() {
	s.liquidity = s.cfg.InitialLiquidity
	s.portfolio = NewPortfolio()
	s.transactions = nil
	s.accuracy = Accuracy{}
	s.skips = make(map[SkipReason]int)
	s.equity = nil
}

func (s *Simulator) RunID() string { return s.runID }

func (s *Simulator) Assets() []string { return s.assets }

func (s *Simulator) Liquidity() float64 { return s.liquidity }

func (s *Simulator) Portfolio() *Portfolio { return s.portfolio }

// Result is the state at the end of a run.
type Result struct {
	RunID            string
	Start, End       time.Time
	Assets           []string
	InitialLiquidity float64
	Liquidity        float64
	Portfolio        map[string]Position
	Transactions     []Transaction
	Accuracy         Accuracy
	Skips            map[SkipReason]int
	Equity           []journal.EquitySnapshot
}

// Run simulates every calendar date in [start, end]. Model failures and
// missing prices skip the affected step; journal errors and cancellation end
// the run.
func (s *Simulator) Run(ctx context.Context, start, end time.Time) (*Result, error) {
	start, end = market.Day(start), market.Day(end)
	if end.Before(start) {
		return nil, fmt.Errorf("sim: end %s is before start %s",
			end.Format(market.DateLayout), start.Format(market.DateLayout))
	}

	s.reset()
	s.log.Info("simulation started",
		"run", s.runID,
		"start", start.Format(market.DateLayout),
		"end", end.Format(market.DateLayout),
		"assets", len(s.assets))

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.cfg.OperateInWeekends && market.IsWeekend(d) {
			continue
		}
		if _, err := s.Step(ctx, d); err != nil {
			return nil, err
		}
	}

	if acc, ok := s.accuracy.Percent(); ok {
		s.log.Info("directional accuracy",
			"pct", acc, "hits", s.accuracy.Hits, "total", s.accuracy.Total)
	}

	return &Result{
		RunID:            s.runID,
		Start:            start,
		End:              end,
		Assets:           s.assets,
		InitialLiquidity: s.cfg.InitialLiquidity,
		Liquidity:        s.liquidity,
		Portfolio:        s.portfolio.Snapshot(),
		Transactions:     append([]Transaction(nil), s.transactions...),
		Accuracy:         s.accuracy,
		Skips:            s.skips,
		Equity:           s.equity,
	}, nil
}

// forecast is the phase-one outcome for one asset.
type forecast struct {
	value float64
	err   error
	short bool
}

// Step simulates one date for every asset. Forecasts may run concurrently;
// decisions and state changes are applied in asset order.
func (s *Simulator) Step(ctx context.Context, date time.Time) ([]StepResult, error) {
	date = market.Day(date)
	history := s.frame.Before(date)

	forecasts, err := s.forecastAll(ctx, date, history)
	if err != nil {
		return nil, err
	}

	results := make([]StepResult, len(s.assets))
	for i, asset := range s.assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.settle(ctx, date, asset, forecasts[i])
		if err != nil {
			return nil, err
		}
		if res.Status == Skipped {
			s.skips[res.Reason]++
		}
		results[i] = res
	}

	if err := s.markEquity(ctx, date); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Simulator) forecastAll(ctx context.Context, date time.Time, history *market.Frame) ([]forecast, error) {
	out := make([]forecast, len(s.assets))

	if s.cfg.Workers <= 1 || len(s.assets) < 2 {
		for i, asset := range s.assets {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out[i] = s.forecastOne(ctx, s.modelFor(i), date, history, asset)
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, asset := range s.assets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = s.forecastOne(gctx, s.models[i], date, history, asset)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Simulator) modelFor(i int) prediction.Model {
	if s.models != nil {
		return s.models[i]
	}
	return s.model
}

func (s *Simulator) forecastOne(ctx context.Context, m prediction.Model, date time.Time, history *market.Frame, asset string) (out forecast) {
	// A panicking model fails only its own step.
	defer func() {
		if r := recover(); r != nil {
			out = forecast{err: fmt.Errorf("%s panicked: %v", m.Name(), r)}
		}
	}()

	if history.Len() < s.cfg.MinHistory {
		return forecast{short: true}
	}

	s.log.Debug("training", "date", date.Format(market.DateLayout), "asset", asset, "model", m.Name())
	if err := m.Train(ctx, history, asset); err != nil {
		return forecast{err: fmt.Errorf("train: %w", err)}
	}
	fc, err := m.Predict(ctx, history, asset, s.cfg.Horizon)
	if err != nil {
		return forecast{err: fmt.Errorf("predict: %w", err)}
	}
	v, ok := fc.Next()
	if !ok {
		return forecast{err: errors.New("predict: empty forecast")}
	}
	s.log.Debug("forecast", "date", date.Format(market.DateLayout), "asset", asset, "value", v)
	return forecast{value: v}
}

// settle scores the forecast, asks for a decision and executes it.
func (s *Simulator) settle(ctx context.Context, date time.Time, asset string, fc forecast) (StepResult, error) {
	if fc.short {
		return skipped(date, asset, InsufficientHistory, nil), nil
	}
	if fc.err != nil {
		if errors.Is(fc.err, context.Canceled) || errors.Is(fc.err, context.DeadlineExceeded) {
			return StepResult{}, fc.err
		}
		s.notice("prediction failed", "date", date.Format(market.DateLayout), "asset", asset, "err", fc.err)
		return skipped(date, asset, ModelFailure, fc.err), nil
	}

	real, ok := s.frame.PriceAt(asset, date)
	prior, priorOK := s.frame.PriceAt(asset, date.AddDate(0, 0, -1))
	if ok && priorOK {
		s.accuracy.Record(real, prior, fc.value)
	}
	if !ok {
		s.notice("no price data", "date", date.Format(market.DateLayout), "asset", asset)
		return skipped(date, asset, MissingPrice, nil), nil
	}

	action := s.dm.Decide(asset, fc.value, real, s.liquidity, s.portfolio)
	s.log.Debug("decision",
		"date", date.Format(market.DateLayout),
		"asset", asset,
		"current", real,
		"predicted", fc.value,
		"action", action.Kind.String())

	res := StepResult{Date: date, Asset: asset, Status: Held, Predicted: fc.value, Price: real, Action: action}
	if action.Kind == decision.None || action.Quantity <= 0 {
		return res, nil
	}

	executed, err := s.execute(ctx, date, asset, action)
	if err != nil {
		return StepResult{}, err
	}
	if executed {
		res.Status = Traded
	}
	return res, nil
}

// execute applies an action to the liquidity and the portfolio and records
// the transaction.
func (s *Simulator) execute(ctx context.Context, date time.Time, asset string, a decision.Action) (bool, error) {
	tx := Transaction{
		Timestamp: date,
		Asset:     asset,
		Price:     a.Price,
		Quantity:  a.Quantity,
		Type:      a.Kind,
	}

	switch a.Kind {
	case decision.Buy:
		s.liquidity -= a.Price * float64(a.Quantity)
		s.portfolio.add(asset, a.Quantity, a.Price)
		s.log.Info("buy",
			"date", date.Format(market.DateLayout),
			"asset", asset,
			"qty", a.Quantity,
			"price", a.Price)

	case decision.Sell:
		pos, ok := s.portfolio.remove(asset)
		if !ok {
			return false, nil
		}
		tx.GainPct = (a.Price - pos.AvgPrice) / pos.AvgPrice * 100
		s.liquidity += a.Price * float64(a.Quantity)
		s.log.Info("sell",
			"date", date.Format(market.DateLayout),
			"asset", asset,
			"qty", a.Quantity,
			"price", a.Price,
			"gain_pct", tx.GainPct)

	default:
		return false, nil
	}

	s.transactions = append(s.transactions, tx)

	err := s.journal.RecordTransaction(ctx, journal.TransactionRecord{
		ID:       id.NewAt(date),
		RunID:    s.runID,
		Time:     date,
		Asset:    asset,
		Type:     a.Kind.String(),
		Price:    a.Price,
		Quantity: a.Quantity,
		GainPct:  tx.GainPct,
	})
	if err != nil {
		return true, fmt.Errorf("sim: record transaction: %w", err)
	}
	return true, nil
}

// markEquity values the holdings at the latest known price, or at cost when
// none is known.
func (s *Simulator) markEquity(ctx context.Context, date time.Time) error {
	var holdings float64
	for _, asset := range s.portfolio.Assets() {
		pos, _ := s.portfolio.Get(asset)
		price, ok := s.frame.PriceAt(asset, date)
		if !ok {
			price = pos.AvgPrice
		}
		holdings += price * float64(pos.Quantity)
	}

	snap := journal.EquitySnapshot{
		RunID:     s.runID,
		Time:      date,
		Liquidity: s.liquidity,
		Holdings:  holdings,
		Equity:    s.liquidity + holdings,
	}
	s.equity = append(s.equity, snap)

	if err := s.journal.RecordEquity(ctx, snap); err != nil {
		return fmt.Errorf("sim: record equity: %w", err)
	}
	return nil
}

func (s *Simulator) notice(msg string, args ...any) {
	if s.cfg.Verbose {
		s.log.Warn(msg, args...)
		return
	}
	s.log.Debug(msg, args...)
}
