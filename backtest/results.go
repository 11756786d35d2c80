package backtest

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/barsim/journal"
	"github.com/rustyeddy/barsim/performance"
	"github.com/rustyeddy/barsim/risk"
)

// PrintResult writes a human readable summary of r.
func PrintResult(w io.Writer, r Result) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", fmtTime(r.Start))
	fmt.Fprintf(w, "End:           %s\n", fmtTime(r.End))
	fmt.Fprintf(w, "Bars:          %d\n", r.Bars)
	fmt.Fprintf(w, "Skipped:       %d\n", r.Skipped)

	trades, wins, losses := r.Closed()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Signals:       %d\n", r.Signals)
	fmt.Fprintf(w, "Rejected:      %d\n", r.Rejections)
	fmt.Fprintf(w, "Fills:         %d\n", len(r.Trades))
	fmt.Fprintf(w, "Trades:        %d\n", trades)
	fmt.Fprintf(w, "Wins:          %d\n", wins)
	fmt.Fprintf(w, "Losses:        %d\n", losses)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Balance: %.2f\n", r.StartingCash)
	fmt.Fprintf(w, "Cash:          %.2f\n", r.Cash)
	fmt.Fprintf(w, "Equity:        %.2f\n", r.Equity)
	fmt.Fprintf(w, "Realized P/L:  %.2f\n", r.Realized)
	fmt.Fprintf(w, "Open P/L:      %.2f\n", r.Unrealized)

	if len(r.Rejected) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Last Rejections")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, k := range sortedKeys(r.Rejected) {
			fmt.Fprintf(w, "%-13s  %s\n", k+":", r.Rejected[k])
		}
	}

	if r.HasMetrics {
		_ = performance.WriteReport(w, r.Metrics)
	} else {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "No trades, no performance report.")
	}
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RunInfo describes a replay for the run journal.
type RunInfo struct {
	RunID      string
	Dataset    string
	Instrument string
	Strategy   string
	Window     int
	Config     []byte
	Policy     risk.Policy
	OrgPath    string
}

// BacktestRun converts r into the row stored in the backtest_runs table.
func (r Result) BacktestRun(info RunInfo, created time.Time) journal.BacktestRun {
	p := r.Metrics
	run := journal.BacktestRun{
		RunID:      info.RunID,
		Created:    created,
		Dataset:    info.Dataset,
		Instrument: info.Instrument,
		Strategy:   info.Strategy,
		Window:     info.Window,
		Config:     info.Config,

		StopLossPct:         info.Policy.StopLossPct,
		TakeProfitPct:       info.Policy.TakeProfitPct,
		MaxPositionFraction: info.Policy.MaxPositionFraction,
		MaxDrawdown:         info.Policy.MaxDrawdown,

		Start:        r.Start,
		End:          r.End,
		Bars:         r.Bars,
		StartBalance: r.StartingCash,
		EndBalance:   r.Equity,
		NetPL:        r.Equity - r.StartingCash,
		ProfitFactor: math.Inf(1),
		OrgPath:      info.OrgPath,
	}
	run.Trades, run.Wins, run.Losses = r.Closed()
	if r.StartingCash != 0 {
		run.ReturnPct = run.NetPL / r.StartingCash * 100
	}
	if r.HasMetrics {
		run.WinRate = p.All.WinPct
		run.ProfitFactor = p.All.ProfitFactor
		run.MaxDD = p.MaxDrawdown
	}
	for _, k := range sortedKeys(r.Rejected) {
		run.Notes = append(run.Notes, fmt.Sprintf("rejected %s: %s", k, r.Rejected[k]))
	}
	return run
}
