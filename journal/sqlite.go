package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

type SQLite struct {
	db *sql.DB

	mu  sync.Mutex
	seq map[string]int64
}

var _ Journal = (*SQLite)(nil)

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}

	return &SQLite{db: db, seq: make(map[string]int64)}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, run_id, instrument, action, side, units, price, time, reason, net_profit, bars_held)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.RunID, t.Instrument, t.Action, t.Side, t.Units,
		t.Price, t.Time.UTC(), t.Reason, t.NetProfit, t.BarsHeld,
	)
	if err != nil {
		return fmt.Errorf("journal: record trade %s: %w", t.TradeID, err)
	}
	return nil
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	j.seq[e.RunID]++
	seq := j.seq[e.RunID]
	j.mu.Unlock()

	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, seq, time, cash, unrealized, equity)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.RunID, seq, e.Time.UTC(), e.Cash, e.Unrealized, e.Equity,
	)
	if err != nil {
		return fmt.Errorf("journal: record equity: %w", err)
	}
	return nil
}

const tradeColumns = `trade_id, run_id, instrument, action, side, units, price, time, reason, net_profit, bars_held`

func scanTrade(s interface{ Scan(...any) error }) (TradeRecord, error) {
	var rec TradeRecord
	err := s.Scan(
		&rec.TradeID,
		&rec.RunID,
		&rec.Instrument,
		&rec.Action,
		&rec.Side,
		&rec.Units,
		&rec.Price,
		&rec.Time,
		&rec.Reason,
		&rec.NetProfit,
		&rec.BarsHeld,
	)
	return rec, err
}

// GetTrade returns a single trade record by ID. Replays of the same data
// reuse IDs, so the most recently recorded row wins.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE trade_id = ? ORDER BY rowid DESC LIMIT 1`, tradeID)
	rec, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q: %w", tradeID, ErrNotFound)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTrades returns the ledger rows of a run in insertion order.
func (j *SQLite) ListTrades(ctx context.Context, runID string) ([]TradeRecord, error) {
	return j.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades WHERE run_id = ? ORDER BY rowid ASC`, runID)
}

// ListTradesBetween returns trades whose time is within [start, end).
func (j *SQLite) ListTradesBetween(ctx context.Context, start, end time.Time) ([]TradeRecord, error) {
	return j.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades
		WHERE time >= ? AND time < ?
		ORDER BY time ASC, rowid ASC`, start.UTC(), end.UTC())
}

func (j *SQLite) queryTrades(ctx context.Context, q string, args ...any) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
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

// ListEquity returns the equity curve of a run, seed first.
func (j *SQLite) ListEquity(ctx context.Context, runID string) ([]EquitySnapshot, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, time, cash, unrealized, equity
		FROM equity
		WHERE run_id = ?
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.RunID, &e.Time, &e.Cash, &e.Unrealized, &e.Equity); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RecordBacktest upserts the summary row of a run.
func (j *SQLite) RecordBacktest(ctx context.Context, r BacktestRun) error {
	var pf sql.NullFloat64
	if !math.IsInf(r.ProfitFactor, 0) && !math.IsNaN(r.ProfitFactor) {
		pf = sql.NullFloat64{Float64: r.ProfitFactor, Valid: true}
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO backtest_runs
		(run_id, created, dataset, instrument, strategy, sma_window, config,
		 stop_loss_pct, take_profit_pct, max_position_fraction, max_drawdown,
		 start_time, end_time, bars, trades, wins, losses,
		 start_balance, end_balance, net_pl, return_pct, win_rate, profit_factor, max_dd,
		 org_path, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created.UTC(), r.Dataset, r.Instrument, r.Strategy, r.Window, r.Config,
		r.StopLossPct, r.TakeProfitPct, r.MaxPositionFraction, r.MaxDrawdown,
		r.Start.UTC(), r.End.UTC(), r.Bars, r.Trades, r.Wins, r.Losses,
		r.StartBalance, r.EndBalance, r.NetPL, r.ReturnPct, r.WinRate, pf, r.MaxDD,
		r.OrgPath, strings.Join(r.Notes, "\n"),
	)
	if err != nil {
		return fmt.Errorf("journal: record backtest %s: %w", r.RunID, err)
	}
	return nil
}

// GetBacktestRun loads the summary row of a run.
func (j *SQLite) GetBacktestRun(ctx context.Context, runID string) (BacktestRun, error) {
	var (
		r     BacktestRun
		pf    sql.NullFloat64
		notes string
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT run_id, created, dataset, instrument, strategy, sma_window, config,
		 stop_loss_pct, take_profit_pct, max_position_fraction, max_drawdown,
		 start_time, end_time, bars, trades, wins, losses,
		 start_balance, end_balance, net_pl, return_pct, win_rate, profit_factor, max_dd,
		 org_path, notes
		FROM backtest_runs WHERE run_id = ?`, runID).Scan(
		&r.RunID, &r.Created, &r.Dataset, &r.Instrument, &r.Strategy, &r.Window, &r.Config,
		&r.StopLossPct, &r.TakeProfitPct, &r.MaxPositionFraction, &r.MaxDrawdown,
		&r.Start, &r.End, &r.Bars, &r.Trades, &r.Wins, &r.Losses,
		&r.StartBalance, &r.EndBalance, &r.NetPL, &r.ReturnPct, &r.WinRate, &pf, &r.MaxDD,
		&r.OrgPath, &notes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BacktestRun{}, fmt.Errorf("backtest run %q: %w", runID, ErrNotFound)
		}
		return BacktestRun{}, err
	}
	r.ProfitFactor = math.Inf(1)
	if pf.Valid {
		r.ProfitFactor = pf.Float64
	}
	if notes != "" {
		r.Notes = strings.Split(notes, "\n")
	}
	return r, nil
}

// ListBacktestRuns returns run summaries, newest first.
func (j *SQLite) ListBacktestRuns(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT run_id FROM backtest_runs ORDER BY created DESC, run_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ExportBacktestOrg renders the run summary followed by its trades.
func (j *SQLite) ExportBacktestOrg(ctx context.Context, runID string) (string, error) {
	r, err := j.GetBacktestRun(ctx, runID)
	if err != nil {
		return "", err
	}
	trades, err := j.ListTrades(ctx, runID)
	if err != nil {
		return "", err
	}

	head, err := r.Org()
	if err != nil {
		return "", err
	}
	if len(trades) == 0 {
		return head, nil
	}
	return head + "\n" + FormatTradesOrg(trades), nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
