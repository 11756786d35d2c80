package indicators

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/barsim/pricing"
)

// PriceHook receives the latest close of every accepted bar.
type PriceHook func(instrument string, close float64)

// Engine keeps a bounded rolling window of bars per instrument and enriches
// the newest bar with the simple moving average of close once the window is
// full.
type Engine struct {
	window int
	series map[string]*SimpleMA
	hook   PriceHook
	log    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPriceHook registers a callback fed with each accepted bar's close.
func WithPriceHook(h PriceHook) Option {
	return func(e *Engine) { e.hook = h }
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine returns an engine computing MA(window).
func NewEngine(window int, opts ...Option) (*Engine, error) {
	if window <= 0 {
		return nil, fmt.Errorf("indicators: window must be positive, got %d", window)
	}
	e := &Engine{
		window: window,
		series: make(map[string]*SimpleMA),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Window is the configured moving average period.
func (e *Engine) Window() int { return e.window }

// OnBar appends bar to the instrument's buffer and returns it, enriched with
// SMA when at least window bars have been seen. A bar without close is
// rejected with pricing.ErrMissingClose and is not buffered.
func (e *Engine) OnBar(instrument string, bar pricing.Bar) (pricing.Bar, error) {
	if err := bar.Validate(); err != nil {
		return bar, fmt.Errorf("indicators: %s at %s: %w", instrument, bar.Time.Format("2006-01-02T15:04:05Z07:00"), err)
	}

	ma, ok := e.series[instrument]
	if !ok {
		ma = NewMA(e.window)
		e.series[instrument] = ma
	}
	ma.Update(bar)

	out := bar
	if ma.Ready() {
		out = bar.WithSMA(ma.Value())
	} else {
		e.log.Debug("indicator warming up",
			zap.String("instrument", instrument),
			zap.Int("have", ma.Len()),
			zap.Int("need", e.window))
	}

	if e.hook != nil {
		e.hook(instrument, bar.Close)
	}
	return out, nil
}

// History returns a copy of the instrument's buffered bars, oldest first.
func (e *Engine) History(instrument string) []pricing.Bar {
	ma, ok := e.series[instrument]
	if !ok {
		return nil
	}
	return ma.Bars()
}

// Reset drops the instrument's buffer.
func (e *Engine) Reset(instrument string) {
	delete(e.series, instrument)
}
