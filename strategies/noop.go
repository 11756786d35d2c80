package strategies

import "github.com/rustyeddy/barsim/pricing"

// Noop never signals. It is the baseline for a replay: no fills, flat equity.
type Noop struct{}

func (Noop) Name() string { return "noop" }

func (Noop) Reset() {}

func (Noop) GenerateSignal(pricing.Bar, []pricing.Bar) (Signal, bool) {
	return Signal{}, false
}
