// Package journal persists the simulation ledger, the daily equity marks and
// the run summaries.
package journal

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// TransactionRecord is one executed buy or sell.
type TransactionRecord struct {
	ID       string
	RunID    string
	Time     time.Time
	Asset    string
	Type     string // buy | sell
	Price    float64
	Quantity int
	GainPct  float64 // realised gain on sells, 0 on buys
}

// EquitySnapshot marks the account to market after a simulated date.
type EquitySnapshot struct {
	RunID     string
	Time      time.Time
	Liquidity float64
	Holdings  float64
	Equity    float64
}

// RunSummary is the headline result of one simulation run.
type RunSummary struct {
	RunID     string
	Created   time.Time
	Algorithm string
	Strategy  string
	Dataset   string
	Assets    []string

	Start time.Time
	End   time.Time

	InitialLiquidity float64
	FinalLiquidity   float64
	FinalValue       float64
	NetPL            float64
	ReturnPct        float64

	Buys   int
	Sells  int
	Wins   int
	Losses int

	// Directional accuracy counters; accuracy is undefined when Total is 0.
	Hits  int
	Total int

	Skipped int

	OrgPath string
	Notes   []string
}

// Accuracy returns the directional hit rate in percent.
func (r RunSummary) Accuracy() (float64, bool) {
	if r.Total == 0 {
		return 0, false
	}
	return 100 * float64(r.Hits) / float64(r.Total), true
}

type Journal interface {
	RecordTransaction(context.Context, TransactionRecord) error
	RecordEquity(context.Context, EquitySnapshot) error
	RecordRun(context.Context, RunSummary) error
	Close() error
}

// Discard drops everything written to it.
type Discard struct{}

func (Discard) RecordTransaction(context.Context, TransactionRecord) error { return nil }
func (Discard) RecordEquity(context.Context, EquitySnapshot) error         { return nil }
func (Discard) RecordRun(context.Context, RunSummary) error                { return nil }
func (Discard) Close() error                                               { return nil }
