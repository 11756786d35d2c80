package sim

import "github.com/rustyeddy/barsim/pricing"

// Exit reasons.
const (
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
)

// CheckExit tests the position's bracket against the bar's range. A long
// stops out when low <= stop and takes profit when high >= take; a short is
// the mirror. When one bar touches both levels the stop wins, since the
// intrabar path is unknown.
func CheckExit(pos Position, bar pricing.Bar) (price float64, reason string, hit bool) {
	high, low := bar.High, bar.Low
	if high == 0 && low == 0 {
		high, low = bar.Close, bar.Close
	}

	switch {
	case pos.Size > 0:
		if pos.StopLoss > 0 && low <= pos.StopLoss {
			return pos.StopLoss, ReasonStopLoss, true
		}
		if pos.TakeProfit > 0 && high >= pos.TakeProfit {
			return pos.TakeProfit, ReasonTakeProfit, true
		}
	case pos.Size < 0:
		if pos.StopLoss > 0 && high >= pos.StopLoss {
			return pos.StopLoss, ReasonStopLoss, true
		}
		if pos.TakeProfit > 0 && low <= pos.TakeProfit {
			return pos.TakeProfit, ReasonTakeProfit, true
		}
	}
	return 0, "", false
}
