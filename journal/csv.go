package journal

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"

	"github.com/rustyeddy/predictsim/market"
)

// CSVJournal writes the ledger and the equity curve to two CSV files. Run
// summaries are not stored; use the org report for those.
type CSVJournal struct {
	txns   *csv.Writer
	equity *csv.Writer
	tf, ef *os.File
}

var (
	transactionHeader = []string{"id", "timestamp", "code", "price", "quantity", "type", "gain_pct"}
	equityHeader      = []string{"time", "liquidity", "holdings", "equity"}
)

func NewCSV(transactionsPath, equityPath string) (*CSVJournal, error) {
	tf, err := os.Create(transactionsPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		tf.Close()
		return nil, err
	}

	tw := csv.NewWriter(tf)
	ew := csv.NewWriter(ef)

	if err := tw.Write(transactionHeader); err != nil {
		return nil, err
	}
	if err := ew.Write(equityHeader); err != nil {
		return nil, err
	}

	tw.Flush()
	if err := tw.Error(); err != nil {
		return nil, err
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{tw, ew, tf, ef}, nil
}

func (j *CSVJournal) RecordTransaction(_ context.Context, t TransactionRecord) error {
	err := j.txns.Write([]string{
		t.ID,
		t.Time.Format(market.DateLayout),
		t.Asset,
		f(t.Price),
		strconv.Itoa(t.Quantity),
		t.Type,
		f(t.GainPct),
	})
	if err != nil {
		return err
	}
	j.txns.Flush()
	return j.txns.Error()
}

func (j *CSVJournal) RecordEquity(_ context.Context, e EquitySnapshot) error {
	err := j.equity.Write([]string{
		e.Time.Format(market.DateLayout),
		f(e.Liquidity),
		f(e.Holdings),
		f(e.Equity),
	})
	if err != nil {
		return err
	}

	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) RecordRun(context.Context, RunSummary) error { return nil }

func (j *CSVJournal) Close() error {
	j.txns.Flush()
	if err := j.txns.Error(); err != nil {
		return err
	}
	j.equity.Flush()
	if err := j.equity.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	return j.ef.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
