package journal

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteJournal struct {
	db *sql.DB
}


func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

const (
	transactionColumns = `id, run_id, time, asset, type, price, quantity, gain_pct`
	equityColumns      = `run_id, time, liquidity, holdings, equity`
	runColumns         = `run_id, created, algorithm, strategy, dataset, assets, start_date, end_date,
		initial_liquidity, final_liquidity, final_value, net_pl, return_pct,
		buys, sells, wins, losses, hits, total, skipped`
)

func (j *SQLiteJournal) RecordTransaction(ctx context.Context, t TransactionRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.RunID, t.Time, t.Asset, t.Type, t.Price, t.Quantity, t.GainPct,
	)
	return err
}

func (j *SQLiteJournal) RecordEquity(ctx context.Context, e EquitySnapshot) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO equity (`+equityColumns+`)
		VALUES (?, ?, ?, ?, ?)`,
		e.RunID, e.Time, e.Liquidity, e.Holdings, e.Equity,
	)
	return err
}

func (j *SQLiteJournal) RecordRun(ctx context.Context, r RunSummary) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Algorithm, r.Strategy, r.Dataset, strings.Join(r.Assets, ","),
		r.Start, r.End,
		r.InitialLiquidity, r.FinalLiquidity, r.FinalValue, r.NetPL, r.ReturnPct,
		r.Buys, r.Sells, r.Wins, r.Losses, r.Hits, r.Total, r.Skipped,
	)
	return err
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
