package journal

import "time"

// TradeRecord is one ledger row: a fill, and for closing fills the
// realized result of the position it closed.
type TradeRecord struct {
	RunID      string
	TradeID    string
	Instrument string
	Action     string // buy | sell
	Side       string // long | short, side of the position affected
	Units      int64
	Price      float64
	Time       time.Time
	Reason     string
	NetProfit  float64
	BarsHeld   int
}

// Closing reports whether the row closed a position.
func (t TradeRecord) Closing() bool { return t.BarsHeld > 0 }

// EquitySnapshot is one point of the equity curve.
type EquitySnapshot struct {
	RunID      string
	Time       time.Time
	Cash       float64
	Unrealized float64
	Equity     float64
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}
