package sim

import "time"

// UnrealizedPL marks an open position at mark.
func UnrealizedPL(pos Position, mark float64) float64 {
	return float64(pos.Size) * (mark - pos.EntryPrice)
}

// NetProfit of closing size units of a position on side at exit.
func NetProfit(side string, entry, exit float64, size int64) float64 {
	n := float64(abs64(size))
	if side == SideShort {
		return (entry - exit) * n
	}
	return (exit - entry) * n
}

// BarsHeld is the whole-day span between entry and exit, at least 1.
func BarsHeld(entry, exit time.Time) int {
	days := int(exit.Sub(entry) / (24 * time.Hour))
	if days < 1 {
		return 1
	}
	return days
}
