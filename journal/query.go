package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// rowScanner is satisfied by both database/sql and pgx rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner) (TransactionRecord, error) {
	var rec TransactionRecord
	err := s.Scan(
		&rec.ID,
		&rec.RunID,
		&rec.Time,
		&rec.Asset,
		&rec.Type,
		&rec.Price,
		&rec.Quantity,
		&rec.GainPct,
	)
	rec.Time = rec.Time.UTC()
	return rec, err
}

func scanEquity(s rowScanner) (EquitySnapshot, error) {
	var e EquitySnapshot
	err := s.Scan(&e.RunID, &e.Time, &e.Liquidity, &e.Holdings, &e.Equity)
	e.Time = e.Time.UTC()
	return e, err
}

func scanRun(s rowScanner) (RunSummary, error) {
	var r RunSummary
	var assets string
	err := s.Scan(
		&r.RunID, &r.Created, &r.Algorithm, &r.Strategy, &r.Dataset, &assets,
		&r.Start, &r.End,
		&r.InitialLiquidity, &r.FinalLiquidity, &r.FinalValue, &r.NetPL, &r.ReturnPct,
		&r.Buys, &r.Sells, &r.Wins, &r.Losses, &r.Hits, &r.Total, &r.Skipped,
	)
	if assets != "" {
		r.Assets = strings.Split(assets, ",")
	}
	r.Created = r.Created.UTC()
	r.Start = r.Start.UTC()
	r.End = r.End.UTC()
	return r, err
}

// ListTransactions returns the ledger of a run in execution order.
func (j *SQLiteJournal) ListTransactions(ctx context.Context, runID string) ([]TransactionRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE run_id = ?
		ORDER BY time ASC, id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransactionRecord
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquity returns the equity curve of a run.
func (j *SQLiteJournal) ListEquity(ctx context.Context, runID string) ([]EquitySnapshot, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+equityColumns+`
		FROM equity
		WHERE run_id = ?
		ORDER BY time ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		e, err := scanEquity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRun returns a single run summary by ID.
func (j *SQLiteJournal) GetRun(ctx context.Context, runID string) (RunSummary, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE run_id = ?`, runID)

	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunSummary{}, fmt.Errorf("run %q: %w", runID, ErrNotFound)
		}
		return RunSummary{}, err
	}
	return r, nil
}

// ListRuns returns every recorded run, newest first.
func (j *SQLiteJournal) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY created DESC, run_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
