package pricing

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrMissingClose is returned for bars whose close price was never set.
	ErrMissingClose = errors.New("bar has no close price")
	// ErrMissingTime is returned for bars without a timestamp.
	ErrMissingTime = errors.New("bar has no time")
	// ErrNonFinite is returned for bars with an infinite price.
	ErrNonFinite = errors.New("bar has a non-finite price")
)

// Bar is one time-stepped OHLCV observation for an instrument.
//
// Bars are values: enrichment (WithSMA) returns a copy, so a bar handed to
// one stage is never mutated by another.
type Bar struct {
	Instrument string
	Time       time.Time

	Open  float64
	High  float64
	Low   float64
	Close float64

	Volume float64

	// NoClose marks a bar decoded from a source row whose close was NULL or empty.
	NoClose bool

	// SMA is nil until the indicator window is full.
	SMA *float64
}

// Validate reports malformed bars. Only close and time are required, and
// prices must be finite.
func (b Bar) Validate() error {
	if b.NoClose || math.IsNaN(b.Close) {
		return ErrMissingClose
	}
	if b.Time.IsZero() {
		return ErrMissingTime
	}
	for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return ErrNonFinite
		}
	}
	return nil
}

// WithSMA returns a copy of the bar carrying the moving average v.
func (b Bar) WithSMA(v float64) Bar {
	b.SMA = &v
	return b
}

// HasSMA reports whether an indicator value is attached.
func (b Bar) HasSMA() bool { return b.SMA != nil }

// Mid is the midpoint of the bar's range.
func (b Bar) Mid() float64 {
	return (b.High + b.Low) / 2
}
