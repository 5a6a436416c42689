package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresJournal stores the same tables as the SQLite journal in Postgres.
type PostgresJournal struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn, verifies the connection and applies the
// schema.
func NewPostgres(ctx context.Context, dsn string) (*PostgresJournal, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}

	return &PostgresJournal{pool: pool}, nil
}

func (j *PostgresJournal) RecordTransaction(ctx context.Context, t TransactionRecord) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.RunID, t.Time, t.Asset, t.Type, t.Price, t.Quantity, t.GainPct,
	)
	return err
}

func (j *PostgresJournal) RecordEquity(ctx context.Context, e EquitySnapshot) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO equity (`+equityColumns+`)
		VALUES ($1, $2, $3, $4, $5)`,
		e.RunID, e.Time, e.Liquidity, e.Holdings, e.Equity,
	)
	return err
}

func (j *PostgresJournal) RecordRun(ctx context.Context, r RunSummary) error {
	_, err := j.pool.Exec(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (run_id) DO UPDATE SET
			final_liquidity = EXCLUDED.final_liquidity,
			final_value = EXCLUDED.final_value,
			net_pl = EXCLUDED.net_pl,
			return_pct = EXCLUDED.return_pct,
			buys = EXCLUDED.buys,
			sells = EXCLUDED.sells,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			hits = EXCLUDED.hits,
			total = EXCLUDED.total,
			skipped = EXCLUDED.skipped`,
		r.RunID, r.Created, r.Algorithm, r.Strategy, r.Dataset, strings.Join(r.Assets, ","),
		r.Start, r.End,
		r.InitialLiquidity, r.FinalLiquidity, r.FinalValue, r.NetPL, r.ReturnPct,
		r.Buys, r.Sells, r.Wins, r.Losses, r.Hits, r.Total, r.Skipped,
	)
	return err
}

func (j *PostgresJournal) ListTransactions(ctx context.Context, runID string) ([]TransactionRecord, error) {
	rows, err := j.pool.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE run_id = $1
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
	return out, rows.Err()
}

func (j *PostgresJournal) GetRun(ctx context.Context, runID string) (RunSummary, error) {
	row := j.pool.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE run_id = $1`, runID)

	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RunSummary{}, fmt.Errorf("run %q: %w", runID, ErrNotFound)
		}
		return RunSummary{}, err
	}
	return r, nil
}

func (j *PostgresJournal) Close() error {
	j.pool.Close()
	return nil
}
