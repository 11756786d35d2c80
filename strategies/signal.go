package strategies

import (
	"errors"
	"fmt"
	"time"
)

// Action is the trade direction a strategy proposes.
type Action string

const (
	Buy   Action = "buy"
	Sell  Action = "sell"
	Short Action = "short"
	Cover Action = "cover"
)

// Valid reports whether a is one of the four known actions.
func (a Action) Valid() bool {
	switch a {
	case Buy, Sell, Short, Cover:
		return true
	}
	return false
}

var ErrInvalidSignal = errors.New("invalid signal")

// Signal is a proposed trade emitted by a strategy. Size is the strategy's
// fixed size, not the risk-adjusted one.
type Signal struct {
	Instrument string
	Action     Action
	Size       int64
	Price      float64
	Time       time.Time
}

// NewSignal builds a Signal, rejecting malformed fields.
func NewSignal(instrument string, action Action, size int64, price float64, t time.Time) (Signal, error) {
	s := Signal{
		Instrument: instrument,
		Action:     action,
		Size:       size,
		Price:      price,
		Time:       t,
	}
	if err := s.Validate(); err != nil {
		return Signal{}, err
	}
	return s, nil
}

// Validate checks the signal invariants.
func (s Signal) Validate() error {
	switch {
	case s.Instrument == "":
		return fmt.Errorf("%w: missing instrument", ErrInvalidSignal)
	case !s.Action.Valid():
		return fmt.Errorf("%w: unknown action %q", ErrInvalidSignal, s.Action)
	case s.Size <= 0:
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidSignal, s.Size)
	case s.Price <= 0:
		return fmt.Errorf("%w: price must be positive, got %v", ErrInvalidSignal, s.Price)
	case s.Time.IsZero():
		return fmt.Errorf("%w: missing time", ErrInvalidSignal)
	}
	return nil
}

func (s Signal) String() string {
	return fmt.Sprintf("%s %s %d @ %.5f (%s)", s.Action, s.Instrument, s.Size, s.Price, s.Time.UTC().Format(time.RFC3339))
}
