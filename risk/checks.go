package risk

import (
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/rustyeddy/barsim/internal/id"
	"github.com/rustyeddy/barsim/strategies"
)

// Violation codes.
const (
	CodeDrawdownLimit = "DRAWDOWN_LIMIT"
	CodeNoInstrument  = "NO_INSTRUMENT"
	CodeInvalidPrice  = "INVALID_PRICE"
	CodeStalePrice    = "STALE_PRICE"
	CodeZeroSize      = "ZERO_SIZE"
	CodeInvalidAction = "INVALID_ACTION"
)

type Violation struct {
	Code string
	Msg  string
}

func (v Violation) String() string { return v.Code + ": " + v.Msg }

// Decision is the outcome of Apply. Order is set only when Allowed.
type Decision struct {
	Allowed   bool
	Order     Order
	Violation *Violation

	PlannedRiskUSD float64
	PlannedRR      float64
}

// Reason is the violation text, empty when allowed.
func (d Decision) Reason() string {
	if d.Violation == nil {
		return ""
	}
	return d.Violation.String()
}

// PositionReader exposes the signed open size per instrument.
type PositionReader interface {
	OpenSize(instrument string) int64
}

// Validator turns signals into sized, bracketed orders or rejections.
type Validator struct {
	policy Policy

	mu       sync.Mutex
	prices   map[string]float64
	drawdown float64
	reasons  map[string]string

	positions PositionReader
	ids       *id.Generator
	log       *zap.Logger
}

// Option configures a Validator.
type Option func(*Validator)

func WithLogger(l *zap.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.log = l
		}
	}
}

// WithPositions lets the validator size closing orders to the open position.
func WithPositions(r PositionReader) Option {
	return func(v *Validator) { v.positions = r }
}

// WithIDs sets the order ID generator.
func WithIDs(g *id.Generator) Option {
	return func(v *Validator) {
		if g != nil {
			v.ids = g
		}
	}
}

func NewValidator(p Policy, opts ...Option) *Validator {
	v := &Validator{
		policy:  p,
		prices:  make(map[string]float64),
		reasons: make(map[string]string),
		ids:     id.NewGenerator(1),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Policy returns the active limits.
func (v *Validator) Policy() Policy { return v.policy }

// UpdatePrice records the last known price for instrument.
func (v *Validator) UpdatePrice(instrument string, price float64) {
	if !(price > 0) || math.IsInf(price, 0) {
		v.log.Warn("ignoring non-positive price", zap.String("instrument", instrument), zap.Float64("price", price))
		return
	}
	v.mu.Lock()
	v.prices[instrument] = price
	v.mu.Unlock()
}

// LastPrice returns the last known price for instrument.
func (v *Validator) LastPrice(instrument string) (float64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.prices[instrument]
	return p, ok
}

// SetDrawdown sets the current drawdown as a fraction of peak equity.
func (v *Validator) SetDrawdown(fraction float64) {
	v.mu.Lock()
	v.drawdown = fraction
	v.mu.Unlock()
}

func (v *Validator) Drawdown() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.drawdown
}

// LastReason returns the most recent rejection for instrument.
func (v *Validator) LastReason(instrument string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	r, ok := v.reasons[instrument]
	return r, ok
}

// Reasons returns a copy of the last rejection per instrument.
func (v *Validator) Reasons() map[string]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]string, len(v.reasons))
	for k, r := range v.reasons {
		out[k] = r
	}
	return out
}

// Apply runs the checks in order and stops at the first failure.
func (v *Validator) Apply(sig strategies.Signal) Decision {
	v.mu.Lock()
	defer v.mu.Unlock()

	p := v.policy

	if v.drawdown > p.MaxDrawdown {
		return v.reject(sig, CodeDrawdownLimit,
			fmt.Sprintf("drawdown %.2f%% exceeds max %.2f%%", 100*v.drawdown, 100*p.MaxDrawdown))
	}

	if sig.Instrument == "" {
		return v.reject(sig, CodeNoInstrument, "signal has no instrument")
	}

	last, known := v.prices[sig.Instrument]
	price := sig.Price
	if known {
		price = last
	}

	if !(price > 0) {
		return v.reject(sig, CodeInvalidPrice, fmt.Sprintf("price %v is not positive", price))
	}

	if known && sig.Price > 0 && math.Abs(last-sig.Price) > p.PriceTolerance*sig.Price {
		return v.reject(sig, CodeStalePrice,
			fmt.Sprintf("last price %.5f diverges from signal price %.5f by more than %.2f%%", last, sig.Price, 100*p.PriceTolerance))
	}

	// A closing order takes the full open size, so the capital-based
	// size only has to be positive for orders that open or add.
	action, known := Normalize(sig.Action)
	var open int64
	if known && v.positions != nil {
		open = v.positions.OpenSize(sig.Instrument)
	}
	closing := (open > 0 && action == ActionSell) || (open < 0 && action == ActionBuy)

	size := PositionSize(p.BaseCapital, p.MaxPositionFraction, price)
	if closing {
		size = abs64(open)
	} else if size <= 0 {
		return v.reject(sig, CodeZeroSize,
			fmt.Sprintf("size %d from capital %.2f x %.4f at %.5f", size, p.BaseCapital, p.MaxPositionFraction, price))
	}

	if !known {
		return v.reject(sig, CodeInvalidAction, fmt.Sprintf("action %q is not buy or sell", sig.Action))
	}

	stop, take := StopTake(action, price, p.StopLossPct, p.TakeProfitPct)
	o := Order{
		ID:         v.ids.At(sig.Time),
		Instrument: sig.Instrument,
		Action:     action,
		Intent:     sig.Action,
		Size:       size,
		EntryPrice: price,
		StopLoss:   stop,
		TakeProfit: take,
		Time:       sig.Time,
	}

	d := Decision{
		Allowed:        true,
		Order:          o,
		PlannedRiskUSD: PlannedRiskUSD(float64(size), price, stop),
		PlannedRR:      RR(price, stop, take),
	}
	v.log.Debug("order approved",
		zap.String("id", o.ID),
		zap.String("instrument", o.Instrument),
		zap.String("action", o.Action),
		zap.String("intent", string(o.Intent)),
		zap.Int64("size", o.Size),
		zap.Float64("price", o.EntryPrice),
		zap.Float64("stop", o.StopLoss),
		zap.Float64("take", o.TakeProfit))
	return d
}

func (v *Validator) reject(sig strategies.Signal, code, msg string) Decision {
	viol := &Violation{Code: code, Msg: msg}
	v.reasons[sig.Instrument] = viol.String()
	v.log.Info("signal rejected",
		zap.String("instrument", sig.Instrument),
		zap.String("action", string(sig.Action)),
		zap.String("code", code),
		zap.String("reason", msg))
	return Decision{Violation: viol}
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
