package backtest

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/rustyeddy/barsim/pricing"
)

const barsCSV = `time,open,high,low,close,volume
2023-04-19,2.1,2.3,2.0,2.2,100
2023-04-20,2.2,2.6,2.1,2.5,120
2023-04-21,2.5,2.7,2.4,,90
2023-04-22 12:00:00,2.4,2.5,2.3,2.45,80
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func drain(t *testing.T, f BarFeed) []pricing.Bar {
	t.Helper()
	var out []pricing.Bar
	for {
		b, ok, err := f.Next()
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, b)
	}
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2023-04-20", time.Date(2023, 4, 20, 0, 0, 0, 0, time.UTC)},
		{"2023-04-20 13:30:00", time.Date(2023, 4, 20, 13, 30, 0, 0, time.UTC)},
		{"2023-04-20T13:30:00Z", time.Date(2023, 4, 20, 13, 30, 0, 0, time.UTC)},
		{"2023-04-20T15:30:00+02:00", time.Date(2023, 4, 20, 13, 30, 0, 0, time.UTC)},
		{"1681997400", time.Date(2023, 4, 20, 13, 30, 0, 0, time.UTC)},
		{"1681997400000", time.Date(2023, 4, 20, 13, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTime(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := ParseTime("yesterday")
	assert.Error(t, err)
	_, err = ParseTime(" ")
	assert.Error(t, err)
}

func TestCSVBarFeed(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "bars.csv", barsCSV)
	f, err := NewCSVBarFeed(path, "NATGAS", time.Time{}, time.Time{})
	require.NoError(t, err)
	defer f.Close()

	bars := drain(t, f)
	require.Len(t, bars, 4)

	assert.Equal(t, "NATGAS", bars[0].Instrument)
	assert.Equal(t, time.Date(2023, 4, 19, 0, 0, 0, 0, time.UTC), bars[0].Time)
	assert.InDelta(t, 2.1, bars[0].Open, 1e-12)
	assert.InDelta(t, 2.3, bars[0].High, 1e-12)
	assert.InDelta(t, 2.0, bars[0].Low, 1e-12)
	assert.InDelta(t, 2.2, bars[0].Close, 1e-12)
	assert.InDelta(t, 100.0, bars[0].Volume, 1e-12)
	assert.False(t, bars[0].NoClose)

	assert.True(t, bars[2].NoClose, "empty close is flagged")
	assert.ErrorIs(t, bars[2].Validate(), pricing.ErrMissingClose)

	assert.Equal(t, time.Date(2023, 4, 22, 12, 0, 0, 0, time.UTC), bars[3].Time)
}

func TestCSVBarFeedRangeIsInclusive(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "bars.csv", barsCSV)
	from := time.Date(2023, 4, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, 4, 22, 0, 0, 0, 0, time.UTC)

	f, err := NewCSVBarFeed(path, "NATGAS", from, to)
	require.NoError(t, err)
	defer f.Close()

	bars := drain(t, f)
	require.Len(t, bars, 3)
	assert.Equal(t, from, bars[0].Time)
	// a date-only upper bound covers the whole day
	assert.Equal(t, time.Date(2023, 4, 22, 12, 0, 0, 0, time.UTC), bars[2].Time)
}

func TestCSVBarFeedHeaderOrderAndNoHeader(t *testing.T) {
	t.Parallel()

	t.Run("reordered header", func(t *testing.T) {
		t.Parallel()
		f := newCSVBarFeed(strings.NewReader("Date,Close,Volume\n2023-04-20,2.5,10\n"), "X", time.Time{}, time.Time{})
		bars := drain(t, f)
		require.Len(t, bars, 1)
		assert.InDelta(t, 2.5, bars[0].Close, 1e-12)
		assert.InDelta(t, 10.0, bars[0].Volume, 1e-12)
	})

	t.Run("no header", func(t *testing.T) {
		t.Parallel()
		f := newCSVBarFeed(strings.NewReader("2023-04-20,1,2,0.5,1.5,7\n"), "X", time.Time{}, time.Time{})
		bars := drain(t, f)
		require.Len(t, bars, 1)
		assert.InDelta(t, 1.5, bars[0].Close, 1e-12)
	})
}

func TestCSVBarFeedUTF16(t *testing.T) {
	t.Parallel()

	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	body, err := enc.String(barsCSV)
	require.NoError(t, err)

	path := writeFile(t, "bars16.csv", body)
	f, err := NewCSVBarFeed(path, "NATGAS", time.Time{}, time.Time{})
	require.NoError(t, err)
	defer f.Close()

	bars := drain(t, f)
	require.Len(t, bars, 4)
	assert.InDelta(t, 2.5, bars[1].Close, 1e-12)
}

func TestCSVBarFeedUTF8BOM(t *testing.T) {
	t.Parallel()

	f := newCSVBarFeed(strings.NewReader("\ufeff"+barsCSV), "NATGAS", time.Time{}, time.Time{})
	bars := drain(t, f)
	assert.Len(t, bars, 4)
}

func TestCSVBarFeedMalformedRow(t *testing.T) {
	t.Parallel()

	f := newCSVBarFeed(strings.NewReader("time,open,high,low,close,volume\n2023-04-20,1,1,1,abc,1\n2023-04-21,1,1,1,2,1\n"), "X", time.Time{}, time.Time{})

	_, _, err := f.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedRow)

	b, ok, err := f.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 2.0, b.Close, 1e-12)
}

func TestCSVBarFeedRejectsInfinitePrice(t *testing.T) {
	t.Parallel()

	f := newCSVBarFeed(strings.NewReader("time,open,high,low,close,volume\n2023-04-20,1,1,1,inf,1\n2023-04-21,1,-Inf,1,2,1\n2023-04-22,1,1,1,3,1\n"), "X", time.Time{}, time.Time{})

	for i := 0; i < 2; i++ {
		_, _, err := f.Next()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedRow)
	}

	b, ok, err := f.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 3.0, b.Close, 1e-12)
}

func TestSliceFeed(t *testing.T) {
	t.Parallel()

	f := NewSliceFeed([]pricing.Bar{{Close: 1}, {Close: 2}})
	bars := drain(t, f)
	assert.Len(t, bars, 2)
	_, ok, err := f.Next()
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, f.Close())
}

func TestSQLiteBarFeed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bars.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE bars (
		instrument TEXT, time TIMESTAMP, open REAL, high REAL, low REAL, close REAL, volume REAL)`)
	require.NoError(t, err)

	day := func(d int) time.Time { return time.Date(2023, 4, d, 0, 0, 0, 0, time.UTC) }
	rows := []struct {
		instr string
		t     time.Time
		close any
	}{
		{"NATGAS", day(21), 2.6},
		{"NATGAS", day(19), 2.2},
		{"NATGAS", day(20), nil},
		{"OIL", day(20), 80.0},
		{"NATGAS", day(25), 3.0},
	}
	for _, r := range rows {
		_, err := db.Exec(`INSERT INTO bars VALUES (?, ?, 1, 1, 1, ?, 10)`, r.instr, r.t, r.close)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	f, err := NewSQLiteBarFeed(context.Background(), path, "bars", "NATGAS", day(19), day(21))
	require.NoError(t, err)
	defer f.Close()

	bars := drain(t, f)
	require.Len(t, bars, 3)
	assert.Equal(t, day(19), bars[0].Time)
	assert.True(t, bars[1].NoClose)
	assert.Equal(t, day(21), bars[2].Time)
	assert.InDelta(t, 2.6, bars[2].Close, 1e-12)
	assert.Equal(t, "NATGAS", bars[2].Instrument)
}

func TestSQLiteBarFeedRejectsBadTable(t *testing.T) {
	t.Parallel()
	_, err := NewSQLiteBarFeed(context.Background(), ":memory:", "bars; DROP TABLE x", "", time.Time{}, time.Time{})
	assert.Error(t, err)
}

type fakeRows struct {
	rows [][]any
	i    int
}

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.i-1]
	*dest[0].(*time.Time) = row[0].(time.Time)
	*dest[1].(*float64) = row[1].(float64)
	*dest[2].(*float64) = row[2].(float64)
	*dest[3].(*float64) = row[3].(float64)
	if c, ok := row[4].(float64); ok {
		*dest[4].(**float64) = &c
	} else {
		*dest[4].(**float64) = nil
	}
	*dest[5].(*float64) = row[5].(float64)
	return nil
}

func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { return nil }

func TestClickHouseBarFeedScan(t *testing.T) {
	t.Parallel()

	ts := time.Date(2023, 4, 20, 0, 0, 0, 0, time.UTC)
	f := &ClickHouseBarFeed{
		instrument: "NATGAS",
		rows: &fakeRows{rows: [][]any{
			{ts, 1.0, 2.0, 0.5, 1.5, 10.0},
			{ts.Add(24 * time.Hour), 1.0, 2.0, 0.5, nil, 10.0},
		}},
	}

	bars := drain(t, f)
	require.Len(t, bars, 2)
	assert.Equal(t, "NATGAS", bars[0].Instrument)
	assert.InDelta(t, 1.5, bars[0].Close, 1e-12)
	assert.False(t, bars[0].NoClose)
	assert.True(t, bars[1].NoClose)
	assert.NoError(t, f.Close())
}

func TestClickHouseConfigRejectsBadTable(t *testing.T) {
	t.Parallel()
	_, err := NewClickHouseBarFeed(context.Background(), ClickHouseConfig{Addr: "127.0.0.1:9000", Table: "x y"}, "", time.Time{}, time.Time{})
	assert.Error(t, err)
}

func TestClickHouseQueryBounds(t *testing.T) {
	t.Parallel()

	from := time.Date(2023, 4, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, 4, 22, 0, 0, 0, 0, time.UTC)
	toEnd := endOfDay(to)

	tests := []struct {
		name     string
		from, to time.Time
		where    string
		args     []any
	}{
		{"open range", time.Time{}, time.Time{}, "", nil},
		{"both", from, to, " WHERE time BETWEEN ? AND ?", []any{from, toEnd}},
		{"from only", from, time.Time{}, " WHERE time >= ?", []any{from}},
		{"to only", time.Time{}, to, " WHERE time <= ?", []any{toEnd}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q, args := clickHouseQuery("bars", tt.from, tt.to)
			assert.Equal(t, "SELECT time, open, high, low, close, volume FROM bars"+tt.where+" ORDER BY time", q)
			assert.Equal(t, tt.args, args)
		})
	}
}
