package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a TradeRecord as an Org-mode block suitable for pasting into a journal.
// Structured facts go in a PROPERTIES drawer; the Review section is left for notes.
func FormatTradeOrg(t TradeRecord) string {
	heading := fmt.Sprintf("** Trade: %s %s %s (%s)", strings.ToUpper(t.Action), t.Instrument, t.Side, shortID(t.TradeID))

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TRADE_ID: %s\n", t.TradeID)
	fmt.Fprintf(&b, ":ID: %s\n", t.TradeID)
	if t.RunID != "" {
		fmt.Fprintf(&b, ":RUN_ID: %s\n", t.RunID)
	}
	fmt.Fprintf(&b, ":INSTRUMENT: %s\n", t.Instrument)
	fmt.Fprintf(&b, ":ACTION: %s\n", t.Action)
	fmt.Fprintf(&b, ":SIDE: %s\n", t.Side)
	fmt.Fprintf(&b, ":UNITS: %d\n", t.Units)
	fmt.Fprintf(&b, ":PRICE: %.5f\n", t.Price)
	fmt.Fprintf(&b, ":TIME: %s\n", t.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":NET_PROFIT: %.2f\n", t.NetProfit)
	fmt.Fprintf(&b, ":BARS_HELD: %d\n", t.BarsHeld)
	fmt.Fprintf(&b, ":REASON: %s\n", t.Reason)
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

// shortID keeps the tail of an ID; ULIDs share their time prefix.
func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
