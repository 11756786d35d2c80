package risk

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/barsim/strategies"
)

// Order actions after normalization. Only these reach execution.
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
)

// ErrInvalidOrder marks orders execution must refuse.
var ErrInvalidOrder = errors.New("invalid order")

// Order is a risk-approved signal, sized and bracketed.
type Order struct {
	ID         string
	Instrument string
	Action     string            // buy | sell
	Intent     strategies.Action // what the strategy asked for
	Size       int64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Time       time.Time
}

// Validate checks that the order can be filled.
func (o Order) Validate() error {
	switch {
	case o.Instrument == "":
		return fmt.Errorf("%w: missing instrument", ErrInvalidOrder)
	case o.Action != ActionBuy && o.Action != ActionSell:
		return fmt.Errorf("%w: action %q", ErrInvalidOrder, o.Action)
	case o.Size <= 0:
		return fmt.Errorf("%w: size %d", ErrInvalidOrder, o.Size)
	case !(o.EntryPrice > 0):
		return fmt.Errorf("%w: entry price %v", ErrInvalidOrder, o.EntryPrice)
	case o.Time.IsZero():
		return fmt.Errorf("%w: missing time", ErrInvalidOrder)
	}
	return nil
}

// Signed is the position delta the order applies: +Size for buys, -Size
// for sells.
func (o Order) Signed() int64 {
	if o.Action == ActionSell {
		return -o.Size
	}
	return o.Size
}

// Normalize maps a strategy action onto the two executable ones.
// short opens or extends a short and is a sell; cover closes it and is a buy.
func Normalize(a strategies.Action) (string, bool) {
	switch a {
	case strategies.Buy, strategies.Cover:
		return ActionBuy, true
	case strategies.Sell, strategies.Short:
		return ActionSell, true
	}
	return string(a), false
}
