package sim

import "time"

// Sides of a position.
const (
	SideLong  = "long"
	SideShort = "short"
	SideFlat  = "flat"
)

// Position is the open exposure in one instrument. Size is signed:
// positive long, negative short. A position never has Size 0 while it is
// held by a Ledger.
type Position struct {
	Instrument string
	Size       int64
	EntryPrice float64
	EntryTime  time.Time

	// Bracket from the opening fill; 0 means unset.
	StopLoss   float64
	TakeProfit float64
}

// Side reports long, short or flat from the sign of Size.
func (p Position) Side() string {
	return sideOf(p.Size)
}

func sideOf(size int64) string {
	switch {
	case size > 0:
		return SideLong
	case size < 0:
		return SideShort
	default:
		return SideFlat
	}
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
