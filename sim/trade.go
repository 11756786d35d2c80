package sim

import "time"

// Fill is an executed order. Action is buy or sell, Size is positive.
type Fill struct {
	ID         string
	Instrument string
	Action     string
	Size       int64
	Price      float64
	Time       time.Time
	Reason     string

	// Bracket carried onto a newly opened position.
	StopLoss   float64
	TakeProfit float64
}

// Signed is the position delta of the fill.
func (f Fill) Signed() int64 {
	if f.Action == ActionSell {
		return -f.Size
	}
	return f.Size
}

// Closed describes a position that a fill took to exactly zero.
type Closed struct {
	Instrument string
	Side       string // side of the position that was closed
	Entry      float64
	Exit       float64
	Size       int64
	EntryTime  time.Time
	ExitTime   time.Time
	NetProfit  float64
	BarsHeld   int
}
