package performance

import (
	"fmt"
	"io"
	"math"
	"strconv"
)

// Entry is one report line.
type Entry struct {
	Key   string
	Value float64
	Count bool // integral value
}

// Format renders the value the way the report prints it.
func (e Entry) Format() string {
	switch {
	case e.Count:
		return strconv.Itoa(int(e.Value))
	case math.IsInf(e.Value, 1):
		return "inf"
	case math.IsInf(e.Value, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(e.Value, 'f', -1, 64)
	}
}

func val(k string, v float64) Entry { return Entry{Key: k, Value: v} }
func cnt(k string, v int) Entry     { return Entry{Key: k, Value: float64(v), Count: true} }

// Entries lists the metrics in report order.
func (m Metrics) Entries() []Entry {
	return []Entry{
		val("Total Net Profit (All Trades)", m.All.NetProfit),
		val("Total Net Profit (Long Trades)", m.Long.NetProfit),
		val("Total Net Profit (Short Trades)", m.Short.NetProfit),

		val("Gross Profit (All Trades)", m.All.GrossProfit),
		val("Gross Profit (Long Trades)", m.Long.GrossProfit),
		val("Gross Profit (Short Trades)", m.Short.GrossProfit),

		val("Gross Loss (All Trades)", m.All.GrossLoss),
		val("Gross Loss (Long Trades)", m.Long.GrossLoss),
		val("Gross Loss (Short Trades)", m.Short.GrossLoss),

		val("Profit Factor (All Trades)", m.All.ProfitFactor),
		val("Profit Factor (Long Trades)", m.Long.ProfitFactor),
		val("Profit Factor (Short Trades)", m.Short.ProfitFactor),

		cnt("Number of Trades (All)", m.All.Trades),
		cnt("Number of Trades (Long)", m.Long.Trades),
		cnt("Number of Trades (Short)", m.Short.Trades),

		val("Winning Percentage (All Trades)", m.All.WinPct),
		val("Winning Percentage (Long Trades)", m.Long.WinPct),
		val("Winning Percentage (Short Trades)", m.Short.WinPct),

		val("Losing Percentage (All Trades)", m.All.LossPct),
		val("Losing Percentage (Long Trades)", m.Long.LossPct),
		val("Losing Percentage (Short Trades)", m.Short.LossPct),

		val("Average Trade Net Profit (All)", m.All.AvgTrade),
		val("Average Trade Net Profit (Long)", m.Long.AvgTrade),
		val("Average Trade Net Profit (Short)", m.Short.AvgTrade),

		val("Largest Winning Trade (All)", m.All.LargestWin),
		val("Largest Winning Trade (Long)", m.Long.LargestWin),
		val("Largest Winning Trade (Short)", m.Short.LargestWin),

		val("Largest Losing Trade (All)", m.All.LargestLoss),
		val("Largest Losing Trade (Long)", m.Long.LargestLoss),
		val("Largest Losing Trade (Short)", m.Short.LargestLoss),

		cnt("Max Consecutive Winning Trades (All)", m.MaxConsecutiveWins),
		cnt("Max Consecutive Losing Trades (All)", m.MaxConsecutiveLosses),

		val("Average Bars in Winning Trades (All)", m.AvgBarsWin),
		val("Average Bars in Losing Trades (All)", m.AvgBarsLoss),

		val("Max Drawdown (All Trades)", m.MaxDrawdown),
		val("Return on Initial Capital", m.ReturnOnInitial),
		val("Annual Rate of Return", m.AnnualReturn),
		val("Return Retracement Ratio", m.ReturnRetracement),
		val("RINA Index", m.RINA),
		val("Max Equity Run-up", m.MaxRunUp),
	}
}

// Map returns the metrics keyed by report label.
func (m Metrics) Map() map[string]float64 {
	es := m.Entries()
	out := make(map[string]float64, len(es))
	for _, e := range es {
		out[e.Key] = e.Value
	}
	return out
}

// WriteReport prints one "Key: Value" line per metric under a header.
func WriteReport(w io.Writer, m Metrics) error {
	if _, err := fmt.Fprintln(w, "\n=== PERFORMANCE REPORT ==="); err != nil {
		return err
	}
	for _, e := range m.Entries() {
		if _, err := fmt.Fprintf(w, "%s: %s\n", e.Key, e.Format()); err != nil {
			return err
		}
	}
	return nil
}
