// Package portfolio keeps the trade ledger, realized and unrealized P&L,
// and the equity curve of a replay.
package portfolio

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/barsim/journal"
	"github.com/rustyeddy/barsim/risk"
	"github.com/rustyeddy/barsim/sim"
)

// Trade is one ledger row. NetProfit and BarsHeld are zero unless the fill
// closed a position.
type Trade struct {
	ID          string
	Instrument  string
	Action      string // buy | sell
	Side        string // side of the position the fill opened, added to or closed
	Size        int64
	FilledPrice float64
	Time        time.Time
	Reason      string
	NetProfit   float64
	BarsHeld    int
}

// Closing reports whether the row closed a position.
func (t Trade) Closing() bool { return t.BarsHeld > 0 }

type EquityPoint struct {
	Time   time.Time
	Equity float64
}

// Accountant books fills through a sim.Ledger and keeps the append-only
// ledger rows and equity curve.
type Accountant struct {
	mu sync.Mutex

	ledger       *sim.Ledger
	startingCash float64
	realized     float64
	marks        map[string]float64

	trades []Trade
	curve  []EquityPoint
	peak   float64

	journal journal.Journal
	runID   string
	log     *zap.Logger
}

type Option func(*Accountant)

// WithJournal mirrors every ledger row and equity point to j.
func WithJournal(j journal.Journal) Option {
	return func(a *Accountant) { a.journal = j }
}

// WithRunID stamps journal records with the run ID.
func WithRunID(id string) Option {
	return func(a *Accountant) { a.runID = id }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Accountant) {
		if l != nil {
			a.log = l
		}
	}
}

// New seeds the equity curve with the ledger's starting cash at time
// start. A journal, if any, receives the seed point too.
func New(ledger *sim.Ledger, start time.Time, opts ...Option) (*Accountant, error) {
	if ledger == nil {
		return nil, fmt.Errorf("portfolio: ledger is required")
	}
	a := &Accountant{
		ledger:       ledger,
		startingCash: ledger.Cash(),
		marks:        make(map[string]float64),
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	seed := EquityPoint{Time: start, Equity: a.startingCash}
	a.curve = []EquityPoint{seed}
	a.peak = seed.Equity
	if err := a.record(nil, seed, 0); err != nil {
		return nil, err
	}
	return a, nil
}

// StartingCash is the seed of the equity curve.
func (a *Accountant) StartingCash() float64 { return a.startingCash }

// Ledger is the execution ledger the accountant books through.
func (a *Accountant) Ledger() *sim.Ledger { return a.ledger }

// OnFill executes order and books the fill.
func (a *Accountant) OnFill(order risk.Order) (Trade, error) {
	f, err := a.ledger.Execute(order)
	if err != nil {
		return Trade{}, err
	}
	if f.Reason == "" {
		f.Reason = "order_filled"
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	before := a.ledger.OpenSize(f.Instrument)
	closed, err := a.ledger.Apply(f)
	if err != nil {
		return Trade{}, err
	}
	return a.bookLocked(f, before, closed)
}

// OnStop forces a close of instrument at level. It reports false when there
// is no position to close.
func (a *Accountant) OnStop(instrument string, level float64, t time.Time, reason string) (Trade, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	before := a.ledger.OpenSize(instrument)
	if before == 0 {
		return Trade{}, false, nil
	}
	f, closed, err := a.ledger.StopClose(instrument, level, t, reason)
	if err != nil {
		return Trade{}, false, err
	}
	tr, err := a.bookLocked(f, before, closed)
	return tr, true, err
}

func (a *Accountant) bookLocked(f sim.Fill, before int64, closed *sim.Closed) (Trade, error) {
	side := sideFor(before, f)
	tr := Trade{
		ID:          f.ID,
		Instrument:  f.Instrument,
		Action:      f.Action,
		Side:        side,
		Size:        f.Size,
		FilledPrice: f.Price,
		Time:        f.Time,
		Reason:      f.Reason,
	}
	if closed != nil {
		tr.NetProfit = closed.NetProfit
		tr.BarsHeld = closed.BarsHeld
		a.realized += closed.NetProfit
	}

	a.marks[f.Instrument] = f.Price
	pt := EquityPoint{Time: f.Time, Equity: a.equityLocked()}

	a.trades = append(a.trades, tr)
	a.curve = append(a.curve, pt)
	if pt.Equity > a.peak {
		a.peak = pt.Equity
	}

	a.log.Info("fill",
		zap.String("id", tr.ID),
		zap.String("instrument", tr.Instrument),
		zap.String("action", tr.Action),
		zap.String("side", tr.Side),
		zap.Int64("size", tr.Size),
		zap.Float64("price", tr.FilledPrice),
		zap.String("reason", tr.Reason),
		zap.Float64("net_profit", tr.NetProfit),
		zap.Float64("equity", pt.Equity))

	return tr, a.record(&tr, pt, a.unrealizedLocked())
}

// sideFor names the position a fill acted on: the existing one when there
// was one, otherwise the one it opened.
func sideFor(before int64, f sim.Fill) string {
	switch {
	case before > 0:
		return sim.SideLong
	case before < 0:
		return sim.SideShort
	case f.Action == sim.ActionSell:
		return sim.SideShort
	default:
		return sim.SideLong
	}
}

func (a *Accountant) record(tr *Trade, pt EquityPoint, unrealized float64) error {
	if a.journal == nil {
		return nil
	}
	if tr != nil {
		if err := a.journal.RecordTrade(journal.TradeRecord{
			RunID:      a.runID,
			TradeID:    tr.ID,
			Instrument: tr.Instrument,
			Action:     tr.Action,
			Side:       tr.Side,
			Units:      tr.Size,
			Price:      tr.FilledPrice,
			Time:       tr.Time,
			Reason:     tr.Reason,
			NetProfit:  tr.NetProfit,
			BarsHeld:   tr.BarsHeld,
		}); err != nil {
			return fmt.Errorf("portfolio: journal trade: %w", err)
		}
	}
	cash := a.ledger.Cash()
	if err := a.journal.RecordEquity(journal.EquitySnapshot{
		RunID:      a.runID,
		Time:       pt.Time,
		Cash:       cash,
		Unrealized: unrealized,
		Equity:     pt.Equity,
	}); err != nil {
		return fmt.Errorf("portfolio: journal equity: %w", err)
	}
	return nil
}

// Mark records the latest known price of instrument.
func (a *Accountant) Mark(instrument string, price float64) {
	if !(price > 0) {
		return
	}
	a.mu.Lock()
	a.marks[instrument] = price
	a.mu.Unlock()
}

// UnrealizedPnL marks open positions at the latest known prices. A position
// without a mark is valued at its entry.
func (a *Accountant) UnrealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unrealizedLocked()
}

func (a *Accountant) unrealizedLocked() float64 {
	var u float64
	for _, p := range a.ledger.Positions() {
		mark, ok := a.marks[p.Instrument]
		if !ok {
			mark = p.EntryPrice
		}
		u += sim.UnrealizedPL(p, mark)
	}
	return u
}

// RealizedPnL is the sum of net profits of closed positions.
func (a *Accountant) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realized
}

func (a *Accountant) TotalPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realized + a.unrealizedLocked()
}

func (a *Accountant) Cash() float64 { return a.ledger.Cash() }

// Equity is cash plus unrealized P&L.
func (a *Accountant) Equity() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.equityLocked()
}

func (a *Accountant) equityLocked() float64 {
	return a.ledger.Cash() + a.unrealizedLocked()
}

// CurrentDrawdown is (peak - last) / peak over the equity curve, in [0,1]
// for a positive peak.
func (a *Accountant) CurrentDrawdown() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	last := a.curve[len(a.curve)-1].Equity
	if a.peak <= 0 {
		return 0
	}
	return math.Max(0, (a.peak-last)/a.peak)
}

// Trades returns a copy of the ledger rows in fill order.
func (a *Accountant) Trades() []Trade {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Trade(nil), a.trades...)
}

// EquityCurve returns a copy of the curve, seed first.
func (a *Accountant) EquityCurve() []EquityPoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]EquityPoint(nil), a.curve...)
}

// EquityValues is the curve without timestamps.
func (a *Accountant) EquityValues() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(a.curve))
	for i, p := range a.curve {
		out[i] = p.Equity
	}
	return out
}

// OpenInstruments lists instruments with an open position, sorted.
func (a *Accountant) OpenInstruments() []string {
	ps := a.ledger.Positions()
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Instrument)
	}
	sort.Strings(out)
	return out
}
