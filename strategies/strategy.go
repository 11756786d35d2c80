package strategies

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/barsim/pricing"
)

// Strategy maps an enriched bar to at most one trading signal.
// It is called once per accepted bar, in arrival order.
type Strategy interface {
	Name() string
	Reset()
	GenerateSignal(bar pricing.Bar, history []pricing.Bar) (Signal, bool)
}

// PositionListener is implemented by strategies that track position state
// and must be told when the ledger flattens a position (a closing fill or a
// stop).
type PositionListener interface {
	OnPositionClosed(instrument string, reason string)
}

// Params carries the construction parameters shared by the built-in
// strategies.
type Params struct {
	Instrument string
	Size       int64
}

var registry = map[string]func(Params) (Strategy, error){}

// Register makes a strategy constructor available to ByName.
func Register(name string, fn func(Params) (Strategy, error)) {
	registry[strings.ToLower(name)] = fn
}

func init() {
	Register("noop", func(Params) (Strategy, error) { return Noop{}, nil })
	Register("none", func(Params) (Strategy, error) { return Noop{}, nil })

	sma := func(p Params) (Strategy, error) { return NewSMACross(p.Instrument, p.Size) }
	Register("sma-cross", sma)
	Register("smacross", sma)
	Register("sma", sma)
}

// ByName builds a registered strategy.
func ByName(name string, p Params) (Strategy, error) {
	fn, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: noop, sma-cross)", name)
	}
	return fn(p)
}
