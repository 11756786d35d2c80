package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/rustyeddy/barsim/pricing"
)

// ClickHouseConfig locates an OHLCV table in ClickHouse.
type ClickHouseConfig struct {
	Addr     string // host:9000
	Database string
	Username string
	Password string
	Table    string
}

// rowSource is the subset of driver.Rows the feed reads.
type rowSource interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// ClickHouseBarFeed streams bars from ClickHouse, oldest first.
type ClickHouseBarFeed struct {
	conn       clickhouse.Conn
	rows       rowSource
	instrument string
}

// NewClickHouseBarFeed runs
//
//	SELECT time, open, high, low, close, volume FROM <table>
//	WHERE time BETWEEN ? AND ? ORDER BY time
//
// A zero bound leaves that side of the range open.
//
// close should be Nullable(Float64); NULL yields a bar marked NoClose.
func NewClickHouseBarFeed(ctx context.Context, cfg ClickHouseConfig, instrument string, from, to time.Time) (*ClickHouseBarFeed, error) {
	if cfg.Table == "" {
		cfg.Table = "bars"
	}
	if !identRE.MatchString(cfg.Table) {
		return nil, fmt.Errorf("clickhouse feed: bad table name %q", cfg.Table)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse feed: open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	q, args := clickHouseQuery(cfg.Table, from, to)
	rows, err := conn.Query(ctx, q, args...)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse feed: query: %w", err)
	}
	return &ClickHouseBarFeed{conn: conn, rows: rows, instrument: instrument}, nil
}

func clickHouseQuery(table string, from, to time.Time) (string, []any) {
	q := `SELECT time, open, high, low, close, volume FROM ` + table
	var args []any
	switch {
	case !from.IsZero() && !to.IsZero():
		q += ` WHERE time BETWEEN ? AND ?`
		args = append(args, from.UTC(), endOfDay(to).UTC())
	case !from.IsZero():
		q += ` WHERE time >= ?`
		args = append(args, from.UTC())
	case !to.IsZero():
		q += ` WHERE time <= ?`
		args = append(args, endOfDay(to).UTC())
	}
	return q + ` ORDER BY time`, args
}

func (f *ClickHouseBarFeed) Next() (pricing.Bar, bool, error) {
	if !f.rows.Next() {
		return pricing.Bar{}, false, f.rows.Err()
	}
	var (
		t          time.Time
		o, h, l, v float64
		c          *float64
	)
	if err := f.rows.Scan(&t, &o, &h, &l, &c, &v); err != nil {
		return pricing.Bar{}, false, fmt.Errorf("clickhouse feed: %w: %v", ErrMalformedRow, err)
	}
	b := pricing.Bar{
		Instrument: f.instrument,
		Time:       t.UTC(),
		Open:       o,
		High:       h,
		Low:        l,
		Volume:     v,
		NoClose:    c == nil,
	}
	if c != nil {
		b.Close = *c
	}
	return b, true, nil
}

func (f *ClickHouseBarFeed) Close() error {
	if f.rows != nil {
		_ = f.rows.Close()
	}
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}
