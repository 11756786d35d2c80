package backtest

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/barsim/pricing"
)

// BarFeed yields bars in ascending time order. Implementations return
// (ok=false, err=nil) at EOF. An error wrapping ErrMalformedRow means the
// row was unusable and the feed can continue.
type BarFeed interface {
	Next() (b pricing.Bar, ok bool, err error)
	Close() error
}

// ErrMalformedRow marks a source row that could not be decoded.
var ErrMalformedRow = errors.New("malformed row")

// SliceFeed replays bars held in memory.
type SliceFeed struct {
	bars []pricing.Bar
	i    int
}

func NewSliceFeed(bars []pricing.Bar) *SliceFeed {
	return &SliceFeed{bars: bars}
}

func (f *SliceFeed) Next() (pricing.Bar, bool, error) {
	if f.i >= len(f.bars) {
		return pricing.Bar{}, false, nil
	}
	b := f.bars[f.i]
	f.i++
	return b, true, nil
}

func (f *SliceFeed) Close() error { return nil }

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime accepts RFC3339, "2006-01-02 15:04:05", or a bare date. Times
// without a zone are UTC. Integer values are unix seconds, or milliseconds
// when they are too large to be seconds.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

// inRange reports whether t lies in the inclusive range [from, to]. Zero
// bounds are open.
func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

// endOfDay widens a date-only upper bound to cover the whole day.
func endOfDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Add(24*time.Hour - time.Nanosecond)
	}
	return t
}

func parsePrice(s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "nan") {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(v) {
		return 0, false, nil
	}
	if math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("price %q is not finite", s)
	}
	return v, true, nil
}
