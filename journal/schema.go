package journal

// Schema is the SQLite layout.
const Schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	asset TEXT NOT NULL,
	type TEXT NOT NULL,
	price REAL NOT NULL,
	quantity INTEGER NOT NULL,
	gain_pct REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_run ON transactions(run_id, time);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	liquidity REAL NOT NULL,
	holdings REAL NOT NULL,
	equity REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_run ON equity(run_id, time);

CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	algorithm TEXT NOT NULL,
	strategy TEXT NOT NULL,
	dataset TEXT NOT NULL,
	assets TEXT NOT NULL,
	start_date DATETIME NOT NULL,
	end_date DATETIME NOT NULL,
	initial_liquidity REAL NOT NULL,
	final_liquidity REAL NOT NULL,
	final_value REAL NOT NULL,
	net_pl REAL NOT NULL,
	return_pct REAL NOT NULL,
	buys INTEGER NOT NULL,
	sells INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	hits INTEGER NOT NULL,
	total INTEGER NOT NULL,
	skipped INTEGER NOT NULL
);
`

// PostgresSchema is the same layout with Postgres column types.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	time TIMESTAMPTZ NOT NULL,
	asset TEXT NOT NULL,
	type TEXT NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	quantity BIGINT NOT NULL,
	gain_pct DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_run ON transactions(run_id, time);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	time TIMESTAMPTZ NOT NULL,
	liquidity DOUBLE PRECISION NOT NULL,
	holdings DOUBLE PRECISION NOT NULL,
	equity DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_run ON equity(run_id, time);

CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created TIMESTAMPTZ NOT NULL,
	algorithm TEXT NOT NULL,
	strategy TEXT NOT NULL,
	dataset TEXT NOT NULL,
	assets TEXT NOT NULL,
	start_date TIMESTAMPTZ NOT NULL,
	end_date TIMESTAMPTZ NOT NULL,
	initial_liquidity DOUBLE PRECISION NOT NULL,
	final_liquidity DOUBLE PRECISION NOT NULL,
	final_value DOUBLE PRECISION NOT NULL,
	net_pl DOUBLE PRECISION NOT NULL,
	return_pct DOUBLE PRECISION NOT NULL,
	buys BIGINT NOT NULL,
	sells BIGINT NOT NULL,
	wins BIGINT NOT NULL,
	losses BIGINT NOT NULL,
	hits BIGINT NOT NULL,
	total BIGINT NOT NULL,
	skipped BIGINT NOT NULL
);
`
