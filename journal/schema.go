package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT NOT NULL,
	run_id TEXT NOT NULL DEFAULT '',
	instrument TEXT NOT NULL,
	action TEXT NOT NULL,
	side TEXT NOT NULL,
	units INTEGER NOT NULL,
	price REAL NOT NULL,
	time DATETIME NOT NULL,
	reason TEXT NOT NULL,
	net_profit REAL NOT NULL,
	bars_held INTEGER NOT NULL,
	PRIMARY KEY (run_id, trade_id)
);

CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, time);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL DEFAULT '',
	seq INTEGER NOT NULL,
	time DATETIME NOT NULL,
	cash REAL NOT NULL,
	unrealized REAL NOT NULL,
	equity REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_run ON equity(run_id, seq);

CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	dataset TEXT NOT NULL,
	instrument TEXT NOT NULL,
	strategy TEXT NOT NULL,
	sma_window INTEGER NOT NULL,
	config BLOB,
	stop_loss_pct REAL NOT NULL,
	take_profit_pct REAL NOT NULL,
	max_position_fraction REAL NOT NULL,
	max_drawdown REAL NOT NULL,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	bars INTEGER NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	start_balance REAL NOT NULL,
	end_balance REAL NOT NULL,
	net_pl REAL NOT NULL,
	return_pct REAL NOT NULL,
	win_rate REAL NOT NULL,
	profit_factor REAL,
	max_dd REAL NOT NULL,
	org_path TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT ''
);
`
