package strategies

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/barsim/pricing"
)

// State is the per-instrument position state of SMACross.
type State int

const (
	StateFlat State = iota
	StateLong
	StateShort
)

func (s State) String() string {
	switch s {
	case StateLong:
		return "LONG"
	case StateShort:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// No-trade reasons recorded by SMACross.
const (
	ReasonIncompleteData = "incomplete data"
	ReasonInvalidTime    = "invalid time"
	ReasonNoCondition    = "no trade condition met"
)

// SMACross trades close against its simple moving average.
//
// Rules are evaluated in this order, first match wins:
//  1. close > sma, not LONG  -> buy,   LONG
//  2. close < sma, not SHORT -> short, SHORT
//  3. close <= sma, LONG     -> sell,  FLAT
//  4. close >= sma, SHORT    -> cover, FLAT
//
// Rules 3 and 4 therefore only fire when close == sma.
type SMACross struct {
	Instrument string
	Size       int64

	state   map[string]State
	reasons map[string]int
	log     *zap.Logger
}

var (
	_ Strategy         = (*SMACross)(nil)
	_ PositionListener = (*SMACross)(nil)
)

// NewSMACross returns an SMA cross strategy emitting signals of the given
// fixed size. An empty instrument accepts bars of any instrument.
func NewSMACross(instrument string, size int64) (*SMACross, error) {
	if size <= 0 {
		return nil, fmt.Errorf("sma-cross: size must be positive, got %d", size)
	}
	return &SMACross{
		Instrument: instrument,
		Size:       size,
		state:      make(map[string]State),
		reasons:    make(map[string]int),
		log:        zap.NewNop(),
	}, nil
}

// SetLogger replaces the strategy logger.
func (s *SMACross) SetLogger(l *zap.Logger) {
	if l != nil {
		s.log = l
	}
}

func (s *SMACross) Name() string { return "sma-cross" }

func (s *SMACross) Reset() {
	s.state = make(map[string]State)
	s.reasons = make(map[string]int)
}

// State returns the current state for instrument.
func (s *SMACross) State(instrument string) State {
	return s.state[instrument]
}

func (s *SMACross) GenerateSignal(bar pricing.Bar, _ []pricing.Bar) (Signal, bool) {
	inst := bar.Instrument
	if inst == "" {
		inst = s.Instrument
	}
	if s.Instrument != "" && inst != s.Instrument {
		// single-instrument strategy
		return Signal{}, false
	}

	if inst == "" || bar.NoClose || !bar.HasSMA() {
		s.noTrade(ReasonIncompleteData, bar)
		return Signal{}, false
	}
	if bar.Time.IsZero() {
		s.noTrade(ReasonInvalidTime, bar)
		return Signal{}, false
	}

	c, sma := bar.Close, *bar.SMA
	st := s.state[inst]

	var action Action
	switch {
	case c > sma && st != StateLong:
		action, s.state[inst] = Buy, StateLong
	case c < sma && st != StateShort:
		action, s.state[inst] = Short, StateShort
	case c <= sma && st == StateLong:
		action, s.state[inst] = Sell, StateFlat
	case c >= sma && st == StateShort:
		action, s.state[inst] = Cover, StateFlat
	default:
		s.noTrade(ReasonNoCondition, bar)
		return Signal{}, false
	}

	sig, err := NewSignal(inst, action, s.Size, c, bar.Time)
	if err != nil {
		// Only reachable with a non-positive close; restore state.
		s.state[inst] = st
		s.noTrade(ReasonIncompleteData, bar)
		return Signal{}, false
	}

	s.log.Debug("signal",
		zap.String("instrument", inst),
		zap.String("action", string(action)),
		zap.Float64("close", c),
		zap.Float64("sma", sma),
		zap.Stringer("state", s.state[inst]))
	return sig, true
}

// OnPositionClosed moves the instrument to FLAT once the ledger has no
// position, whether it closed on a signal or a stop.
func (s *SMACross) OnPositionClosed(instrument, reason string) {
	if s.state[instrument] != StateFlat {
		s.log.Debug("position closed, strategy flat",
			zap.String("instrument", instrument),
			zap.String("reason", reason),
			zap.Stringer("was", s.state[instrument]))
	}
	s.state[instrument] = StateFlat
}

// NoTradeReasons returns a copy of the no-trade reason counters.
func (s *SMACross) NoTradeReasons() map[string]int {
	out := make(map[string]int, len(s.reasons))
	for k, v := range s.reasons {
		out[k] = v
	}
	return out
}

func (s *SMACross) noTrade(reason string, bar pricing.Bar) {
	s.reasons[reason]++
	if reason == ReasonNoCondition {
		s.log.Debug("no trade", zap.String("reason", reason), zap.Time("time", bar.Time))
		return
	}
	s.log.Warn("no trade", zap.String("reason", reason), zap.String("instrument", bar.Instrument), zap.Time("time", bar.Time))
}
