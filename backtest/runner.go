package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/barsim/performance"
	"github.com/rustyeddy/barsim/portfolio"
)

// Options controls how the runner ends a replay.
type Options struct {
	// If true, close all open positions at the last seen close once the
	// feed is exhausted. Close reason will be CloseReason (or "EndOfReplay"
	// if empty).
	CloseEnd    bool
	CloseReason string
}

// Runner drives a Pipeline with bars from a Feed.
type Runner struct {
	Pipeline *Pipeline
	Feed     BarFeed
	Options  Options
	Logger   *zap.Logger
}

// Result summarizes a finished replay.
type Result struct {
	Start time.Time
	End   time.Time

	Bars       int
	Skipped    int
	Signals    int
	Rejections int

	StartingCash float64
	Cash         float64
	Equity       float64
	Realized     float64
	Unrealized   float64

	Trades      []portfolio.Trade
	EquityCurve []portfolio.EquityPoint

	Metrics    performance.Metrics
	HasMetrics bool

	// Rejected holds the last risk rejection per instrument.
	Rejected map[string]string
	// NoTrade counts the strategy's no-trade reasons when it keeps them.
	NoTrade map[string]int
}

// Closed counts ledger rows that closed a position.
func (r Result) Closed() (trades, wins, losses int) {
	for _, t := range r.Trades {
		if !t.Closing() {
			continue
		}
		trades++
		switch {
		case t.NetProfit > 0:
			wins++
		case t.NetProfit < 0:
			losses++
		}
	}
	return trades, wins, losses
}

// Run executes the replay loop:
//  1. read next bar
//  2. pipeline.ProcessBar(bar)
//
// A malformed row reported by the feed is skipped. The loop stops on the
// first other error or when ctx is done.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Pipeline == nil {
		return Result{}, fmt.Errorf("backtest: Pipeline is required")
	}
	if r.Feed == nil {
		return Result{}, fmt.Errorf("backtest: Feed is required")
	}
	defer r.Feed.Close()

	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var start, end time.Time
	skippedRows := 0

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		b, ok, err := r.Feed.Next()
		if errors.Is(err, ErrMalformedRow) {
			skippedRows++
			log.Warn("skipping row", zap.Error(err))
			continue
		}
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}

		step, err := r.Pipeline.ProcessBar(ctx, b)
		if err != nil {
			return Result{}, err
		}
		if step.Skipped {
			continue
		}

		if start.IsZero() || b.Time.Before(start) {
			start = b.Time
		}
		if end.IsZero() || b.Time.After(end) {
			end = b.Time
		}
	}

	if r.Options.CloseEnd {
		reason := r.Options.CloseReason
		if reason == "" {
			reason = "EndOfReplay"
		}
		if _, err := r.Pipeline.Flatten(reason); err != nil {
			return Result{}, err
		}
	}

	res := r.result(start, end)
	res.Skipped += skippedRows
	return res, nil
}

func (r *Runner) result(start, end time.Time) Result {
	p := r.Pipeline
	acct := p.Portfolio
	bars, skipped, signals, rejections := p.Counts()

	res := Result{
		Start:        start,
		End:          end,
		Bars:         bars,
		Skipped:      skipped,
		Signals:      signals,
		Rejections:   rejections,
		StartingCash: acct.StartingCash(),
		Cash:         acct.Cash(),
		Equity:       acct.Equity(),
		Realized:     acct.RealizedPnL(),
		Unrealized:   acct.UnrealizedPnL(),
		Trades:       acct.Trades(),
		EquityCurve:  acct.EquityCurve(),
		Rejected:     p.Risk.Reasons(),
	}
	res.Metrics, res.HasMetrics = performance.Analyze(res.Trades, acct.EquityValues(), res.StartingCash)

	if nt, ok := p.Strategy.(interface{ NoTradeReasons() map[string]int }); ok {
		res.NoTrade = nt.NoTradeReasons()
	}
	return res
}
