package risk

import "math"

// PositionSize is floor(capital*fraction/price). It returns 0 for a
// non-positive price.
func PositionSize(capital, fraction, price float64) int64 {
	if price <= 0 {
		return 0
	}
	return int64(math.Floor(capital * fraction / price))
}

// StopTake brackets price for the given executable action.
// Buys stop below and take above; sells the reverse.
func StopTake(action string, price, stopPct, takePct float64) (stop, take float64) {
	if action == ActionSell {
		return price * (1 + stopPct), price * (1 - takePct)
	}
	return price * (1 - stopPct), price * (1 + takePct)
}

// PlannedRiskUSD is the absolute loss if the stop is hit.
func PlannedRiskUSD(units, entry, stop float64) float64 {
	return math.Abs(units) * math.Abs(entry-stop)
}

// RR is reward over risk; 0 when there is no risk.
func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	if risk == 0 {
		return 0
	}
	return math.Abs(takeProfit-entry) / risk
}
