package sim

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/barsim/internal/id"
	"github.com/rustyeddy/barsim/risk"
)

const (
	ActionBuy  = risk.ActionBuy
	ActionSell = risk.ActionSell
)

var (
	// ErrInvalidOrder is risk.ErrInvalidOrder, re-exported for callers that
	// only import sim.
	ErrInvalidOrder = risk.ErrInvalidOrder
	// ErrNoPosition is returned when closing an instrument with nothing open.
	ErrNoPosition = errors.New("no open position")
)

// Ledger owns open positions and cash. Fills are applied in call order.
type Ledger struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]*Position

	ids *id.Generator
	log *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithLogger(l *zap.Logger) Option {
	return func(lg *Ledger) {
		if l != nil {
			lg.log = l
		}
	}
}

// WithIDs sets the generator for fill IDs.
func WithIDs(g *id.Generator) Option {
	return func(lg *Ledger) {
		if g != nil {
			lg.ids = g
		}
	}
}

func NewLedger(startingCash float64, opts ...Option) *Ledger {
	l := &Ledger{
		cash:      decimal.NewFromFloat(startingCash),
		positions: make(map[string]*Position),
		ids:       id.NewGenerator(2),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Execute fills order at its entry price. It does not touch positions;
// pass the fill to Apply.
func (l *Ledger) Execute(order risk.Order) (Fill, error) {
	if err := order.Validate(); err != nil {
		l.log.Warn("order refused", zap.String("id", order.ID), zap.Error(err))
		return Fill{}, err
	}
	fid := order.ID
	if fid == "" {
		fid = l.ids.At(order.Time)
	}
	return Fill{
		ID:         fid,
		Instrument: order.Instrument,
		Action:     order.Action,
		Size:       order.Size,
		Price:      order.EntryPrice,
		Time:       order.Time,
		Reason:     string(order.Intent),
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
	}, nil
}

// Apply books fill against the position map and cash. It returns the closed
// trade when the fill takes the position to exactly zero.
func (l *Ledger) Apply(f Fill) (*Closed, error) {
	if err := validateFill(f); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	notional := decimal.NewFromFloat(f.Price).Mul(decimal.NewFromInt(f.Size))
	if f.Action == ActionBuy {
		l.cash = l.cash.Sub(notional)
	} else {
		l.cash = l.cash.Add(notional)
	}

	change := f.Signed()
	pos, ok := l.positions[f.Instrument]
	if !ok {
		l.positions[f.Instrument] = &Position{
			Instrument: f.Instrument,
			Size:       change,
			EntryPrice: f.Price,
			EntryTime:  f.Time,
			StopLoss:   f.StopLoss,
			TakeProfit: f.TakeProfit,
		}
		l.log.Debug("position opened",
			zap.String("instrument", f.Instrument),
			zap.Int64("size", change),
			zap.Float64("price", f.Price))
		return nil, nil
	}

	newSize := pos.Size + change
	if newSize == 0 {
		side := pos.Side()
		c := &Closed{
			Instrument: f.Instrument,
			Side:       side,
			Entry:      pos.EntryPrice,
			Exit:       f.Price,
			Size:       abs64(change),
			EntryTime:  pos.EntryTime,
			ExitTime:   f.Time,
			NetProfit:  NetProfit(side, pos.EntryPrice, f.Price, change),
			BarsHeld:   BarsHeld(pos.EntryTime, f.Time),
		}
		delete(l.positions, f.Instrument)
		l.log.Debug("position closed",
			zap.String("instrument", f.Instrument),
			zap.String("side", side),
			zap.Float64("net_profit", c.NetProfit),
			zap.Int("bars_held", c.BarsHeld))
		return c, nil
	}

	// Scaling in, partially out, or through zero: the entry becomes the
	// weighted average of the old entry and this fill. Nothing is realized
	// until the position closes exactly.
	pos.EntryPrice = (pos.EntryPrice*float64(pos.Size) + f.Price*float64(change)) / float64(newSize)
	pos.Size = newSize
	l.log.Debug("position adjusted",
		zap.String("instrument", f.Instrument),
		zap.Int64("size", newSize),
		zap.Float64("entry", pos.EntryPrice))
	return nil, nil
}

// StopClose flattens instrument at level, as if a resting stop or take
// order had filled there.
func (l *Ledger) StopClose(instrument string, level float64, t time.Time, reason string) (Fill, *Closed, error) {
	l.mu.Lock()
	pos, ok := l.positions[instrument]
	var size int64
	if ok {
		size = pos.Size
	}
	l.mu.Unlock()

	if !ok {
		return Fill{}, nil, fmt.Errorf("stop close %s: %w", instrument, ErrNoPosition)
	}

	action := ActionBuy
	if size > 0 {
		action = ActionSell
	}
	f := Fill{
		ID:         l.ids.At(t),
		Instrument: instrument,
		Action:     action,
		Size:       abs64(size),
		Price:      level,
		Time:       t,
		Reason:     reason,
	}
	c, err := l.Apply(f)
	if err != nil {
		return Fill{}, nil, fmt.Errorf("stop close %s: %w", instrument, err)
	}
	return f, c, nil
}

// Position returns a copy of the open position in instrument.
func (l *Ledger) Position(instrument string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[instrument]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// OpenSize is the signed open size, 0 when flat.
func (l *Ledger) OpenSize(instrument string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.positions[instrument]; ok {
		return p.Size
	}
	return 0
}

// Positions returns copies of all open positions sorted by instrument.
func (l *Ledger) Positions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}

// Cash is the running cash balance.
func (l *Ledger) Cash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash.InexactFloat64()
}

// CashDecimal is Cash without float rounding.
func (l *Ledger) CashDecimal() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

func validateFill(f Fill) error {
	switch {
	case f.Instrument == "":
		return fmt.Errorf("%w: fill has no instrument", ErrInvalidOrder)
	case f.Action != ActionBuy && f.Action != ActionSell:
		return fmt.Errorf("%w: fill action %q", ErrInvalidOrder, f.Action)
	case f.Size <= 0:
		return fmt.Errorf("%w: fill size %d", ErrInvalidOrder, f.Size)
	case !(f.Price > 0):
		return fmt.Errorf("%w: fill price %v", ErrInvalidOrder, f.Price)
	}
	return nil
}
