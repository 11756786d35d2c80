package backtest

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/barsim/pricing"
)

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteBarFeed streams bars from a table with columns
// time, open, high, low, close, volume. A NULL close yields a bar marked
// NoClose.
type SQLiteBarFeed struct {
	db         *sql.DB
	rows       *sql.Rows
	instrument string
}

// NewSQLiteBarFeed queries table for the inclusive range [from, to]. When
// the table has an instrument column, pass it to filter on.
func NewSQLiteBarFeed(ctx context.Context, path, table, instrument string, from, to time.Time) (*SQLiteBarFeed, error) {
	if table == "" {
		table = "bars"
	}
	if !identRE.MatchString(table) {
		return nil, fmt.Errorf("sqlite feed: bad table name %q", table)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite feed: open %s: %w", path, err)
	}

	q := `SELECT time, open, high, low, close, volume FROM ` + table + ` WHERE 1=1`
	var args []any
	if !from.IsZero() {
		q += ` AND time >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		q += ` AND time <= ?`
		args = append(args, endOfDay(to).UTC())
	}
	if instrument != "" {
		if ok, err := hasColumn(ctx, db, table, "instrument"); err != nil {
			_ = db.Close()
			return nil, err
		} else if ok {
			q += ` AND instrument = ?`
			args = append(args, instrument)
		}
	}
	q += ` ORDER BY time ASC`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite feed: query: %w", err)
	}
	return &SQLiteBarFeed{db: db, rows: rows, instrument: instrument}, nil
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, fmt.Errorf("sqlite feed: table info: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (f *SQLiteBarFeed) Next() (pricing.Bar, bool, error) {
	if !f.rows.Next() {
		return pricing.Bar{}, false, f.rows.Err()
	}
	var (
		t             time.Time
		o, h, l, c, v sql.NullFloat64
	)
	if err := f.rows.Scan(&t, &o, &h, &l, &c, &v); err != nil {
		return pricing.Bar{}, false, fmt.Errorf("sqlite feed: %w: %v", ErrMalformedRow, err)
	}
	return pricing.Bar{
		Instrument: f.instrument,
		Time:       t.UTC(),
		Open:       o.Float64,
		High:       h.Float64,
		Low:        l.Float64,
		Close:      c.Float64,
		Volume:     v.Float64,
		NoClose:    !c.Valid,
	}, true, nil
}

func (f *SQLiteBarFeed) Close() error {
	if f.rows != nil {
		_ = f.rows.Close()
	}
	return f.db.Close()
}
