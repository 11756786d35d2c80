// Package performance computes the summary statistics of a finished replay
// from its trade ledger and equity curve.
package performance

import (
	"math"
	"time"

	"github.com/rustyeddy/barsim/portfolio"
	"github.com/rustyeddy/barsim/sim"
)

// Partition holds the per-direction statistics.
type Partition struct {
	NetProfit    float64
	GrossProfit  float64
	GrossLoss    float64 // <= 0
	ProfitFactor float64 // +Inf without losses
	Trades       int
	Wins         int
	Losses       int
	WinPct       float64
	LossPct      float64
	AvgTrade     float64
	LargestWin   float64
	LargestLoss  float64
}

// Metrics is the full report.
type Metrics struct {
	All, Long, Short Partition

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AvgBarsWin           float64
	AvgBarsLoss          float64

	MaxDrawdown       float64 // <= 0, currency
	MaxRunUp          float64
	ReturnOnInitial   float64 // percent
	AnnualReturn      float64 // percent
	ReturnRetracement float64
	RINA              float64

	TotalDays   int
	FinalEquity float64
}

// Analyze computes Metrics. It reports false for an empty ledger, in which
// case there is nothing to report.
func Analyze(trades []portfolio.Trade, curve []float64, startingCash float64) (Metrics, bool) {
	if len(trades) == 0 {
		return Metrics{}, false
	}

	// Rows split by action: buys are long, sells are short.
	var long, short []portfolio.Trade
	for _, t := range trades {
		if t.Action == sim.ActionSell {
			short = append(short, t)
		} else {
			long = append(long, t)
		}
	}

	m := Metrics{
		All:   partition(trades),
		Long:  partition(long),
		Short: partition(short),
	}

	m.MaxConsecutiveWins, m.MaxConsecutiveLosses = streaks(trades)
	m.AvgBarsWin, m.AvgBarsLoss = avgBars(trades)

	if len(curve) == 0 {
		curve = []float64{startingCash}
	}
	m.MaxDrawdown, m.MaxRunUp = drawdownRunUp(curve, startingCash)
	m.FinalEquity = curve[len(curve)-1]
	m.TotalDays = totalDays(trades)

	if startingCash != 0 {
		m.ReturnOnInitial = (m.FinalEquity - startingCash) / startingCash * 100
		m.AnnualReturn = annualReturn(m.FinalEquity/startingCash, m.TotalDays)
	}

	m.ReturnRetracement = math.Inf(1)
	m.RINA = math.Inf(1)
	if m.MaxDrawdown < 0 {
		dd := math.Abs(m.MaxDrawdown)
		m.ReturnRetracement = m.All.NetProfit / dd
		m.RINA = m.All.NetProfit * (m.All.WinPct / 100) / dd
	}
	return m, true
}

// annualReturn compounds growth over days to a yearly percentage. A wiped
// out account is -100.
func annualReturn(growth float64, days int) float64 {
	if !(growth > 0) {
		return -100
	}
	return (math.Pow(growth, 365/float64(days)) - 1) * 100
}

func partition(trades []portfolio.Trade) Partition {
	var p Partition
	p.Trades = len(trades)
	for i, t := range trades {
		n := t.NetProfit
		switch {
		case n > 0:
			p.GrossProfit += n
			p.Wins++
		case n < 0:
			p.GrossLoss += n
			p.Losses++
		}
		if i == 0 || n > p.LargestWin {
			p.LargestWin = n
		}
		if i == 0 || n < p.LargestLoss {
			p.LargestLoss = n
		}
	}
	p.NetProfit = p.GrossProfit + p.GrossLoss
	p.ProfitFactor = profitFactor(p.GrossProfit, p.GrossLoss)
	p.WinPct = pct(p.Wins, p.Trades)
	p.LossPct = 100 - p.WinPct
	if p.Trades > 0 {
		p.AvgTrade = p.NetProfit / float64(p.Trades)
	}
	return p
}

func profitFactor(gp, gl float64) float64 {
	if gl == 0 {
		return math.Inf(1)
	}
	return gp / math.Abs(gl)
}

func pct(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

// streaks scans in ledger order. Rows with zero profit break a winning
// streak and count toward the losing one.
func streaks(trades []portfolio.Trade) (wins, losses int) {
	var w, l int
	for _, t := range trades {
		if t.NetProfit > 0 {
			w++
			l = 0
			wins = max(wins, w)
		} else {
			l++
			w = 0
			losses = max(losses, l)
		}
	}
	return wins, losses
}

func avgBars(trades []portfolio.Trade) (win, loss float64) {
	var ws, ls, wn, ln int
	for _, t := range trades {
		switch {
		case t.NetProfit > 0:
			ws += t.BarsHeld
			wn++
		case t.NetProfit < 0:
			ls += t.BarsHeld
			ln++
		}
	}
	if wn > 0 {
		win = float64(ws) / float64(wn)
	}
	if ln > 0 {
		loss = float64(ls) / float64(ln)
	}
	return win, loss
}

// drawdownRunUp returns min(equity - running max) and
// max(running max) - startingCash.
func drawdownRunUp(curve []float64, startingCash float64) (dd, runUp float64) {
	peak := curve[0]
	for _, e := range curve {
		if e > peak {
			peak = e
		}
		if d := e - peak; d < dd {
			dd = d
		}
	}
	return dd, peak - startingCash
}

// totalDays is the whole-day span between the first and last trade, at
// least 1.
func totalDays(trades []portfolio.Trade) int {
	var first, last time.Time
	for _, t := range trades {
		if t.Time.IsZero() {
			continue
		}
		if first.IsZero() || t.Time.Before(first) {
			first = t.Time
		}
		if t.Time.After(last) {
			last = t.Time
		}
	}
	days := int(last.Sub(first) / (24 * time.Hour))
	if days < 1 {
		return 1
	}
	return days
}
