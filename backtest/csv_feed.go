package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/rustyeddy/barsim/pricing"
)

// CSVBarFeed reads OHLCV rows:
//
//	time,open,high,low,close,volume
//
// A header row is detected by its first cell. Column order follows the
// header when there is one. Files may be UTF-8 or UTF-16 with a BOM.
//
// Rows outside the inclusive range [From, To] are dropped. A date-only To
// covers that whole day.
type CSVBarFeed struct {
	f          *os.File
	r          *csv.Reader
	instrument string
	from, to   time.Time

	cols    map[string]int
	started bool
	line    int
}

func NewCSVBarFeed(path, instrument string, from, to time.Time) (*CSVBarFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	feed := newCSVBarFeed(f, instrument, from, to)
	feed.f = f
	return feed, nil
}

func newCSVBarFeed(r io.Reader, instrument string, from, to time.Time) *CSVBarFeed {
	// BOMOverride switches to UTF-16 when a UTF-16 BOM is present and strips
	// a UTF-8 BOM.
	dec := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(dec)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	return &CSVBarFeed{
		r:          cr,
		instrument: instrument,
		from:       from,
		to:         endOfDay(to),
		cols:       defaultColumns(),
	}
}

func defaultColumns() map[string]int {
	return map[string]int{"time": 0, "open": 1, "high": 2, "low": 3, "close": 4, "volume": 5}
}

func (f *CSVBarFeed) Close() error {
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

func (f *CSVBarFeed) Next() (pricing.Bar, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return pricing.Bar{}, false, nil
		}
		f.line++
		if err != nil {
			return pricing.Bar{}, false, err
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}

		if !f.started {
			f.started = true
			if isHeader(row) {
				f.cols = headerColumns(row)
				continue
			}
		}

		b, err := f.parseRow(row)
		if err != nil {
			return pricing.Bar{}, false, fmt.Errorf("line %d: %w: %v", f.line, ErrMalformedRow, err)
		}
		if !inRange(b.Time, f.from, f.to) {
			continue
		}
		return b, true, nil
	}
}

func isHeader(row []string) bool {
	h := strings.ToLower(strings.TrimSpace(row[0]))
	return h == "time" || h == "date" || h == "datetime" || h == "timestamp"
}

func headerColumns(row []string) map[string]int {
	cols := map[string]int{}
	for i, c := range row {
		name := strings.ToLower(strings.TrimSpace(c))
		switch name {
		case "date", "datetime", "timestamp":
			name = "time"
		case "o":
			name = "open"
		case "h":
			name = "high"
		case "l":
			name = "low"
		case "c":
			name = "close"
		case "v", "vol":
			name = "volume"
		}
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	return cols
}

func (f *CSVBarFeed) cell(row []string, name string) string {
	i, ok := f.cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func (f *CSVBarFeed) parseRow(row []string) (pricing.Bar, error) {
	t, err := ParseTime(f.cell(row, "time"))
	if err != nil {
		return pricing.Bar{}, err
	}
	b := pricing.Bar{Instrument: f.instrument, Time: t}

	fields := []struct {
		name string
		dst  *float64
	}{
		{"open", &b.Open},
		{"high", &b.High},
		{"low", &b.Low},
		{"volume", &b.Volume},
	}
	for _, fl := range fields {
		v, _, err := parsePrice(f.cell(row, fl.name))
		if err != nil {
			return pricing.Bar{}, fmt.Errorf("bad %s: %w", fl.name, err)
		}
		*fl.dst = v
	}

	c, ok, err := parsePrice(f.cell(row, "close"))
	if err != nil {
		return pricing.Bar{}, fmt.Errorf("bad close: %w", err)
	}
	b.Close = c
	b.NoClose = !ok
	return b, nil
}
