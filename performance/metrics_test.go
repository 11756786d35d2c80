package performance

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/barsim/portfolio"
	"github.com/rustyeddy/barsim/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func tr(action string, net float64, bars int, day int) portfolio.Trade {
	return portfolio.Trade{
		Instrument: "NATGAS",
		Action:     action,
		Size:       100,
		Time:       t0.Add(time.Duration(day) * 24 * time.Hour),
		NetProfit:  net,
		BarsHeld:   bars,
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	t.Parallel()

	m, ok := Analyze(nil, []float64{100000}, 100000)
	assert.False(t, ok)
	assert.Equal(t, Metrics{}, m)
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	trades := []portfolio.Trade{
		tr(sim.ActionBuy, 0, 0, 0),    // open long
		tr(sim.ActionSell, 300, 2, 2), // close long, win
		tr(sim.ActionSell, 0, 0, 3),   // open short
		tr(sim.ActionBuy, -100, 1, 4), // cover, loss
		tr(sim.ActionBuy, 0, 0, 5),    // open long
		tr(sim.ActionSell, 50, 4, 9),  // close long, win
	}
	curve := []float64{1000, 900, 1200, 1250, 1100, 1050, 1250}

	m, ok := Analyze(trades, curve, 1000)
	require.True(t, ok)

	assert.InDelta(t, 250.0, m.All.NetProfit, 1e-9)
	assert.InDelta(t, 350.0, m.All.GrossProfit, 1e-9)
	assert.InDelta(t, -100.0, m.All.GrossLoss, 1e-9)
	assert.InDelta(t, 3.5, m.All.ProfitFactor, 1e-9)
	assert.Equal(t, 6, m.All.Trades)
	assert.Equal(t, 2, m.All.Wins)
	assert.Equal(t, 1, m.All.Losses)
	assert.InDelta(t, 100.0/3.0, m.All.WinPct, 1e-9)
	assert.InDelta(t, 100.0, m.All.WinPct+m.All.LossPct, 1e-9)
	assert.InDelta(t, 250.0/6.0, m.All.AvgTrade, 1e-9)
	assert.InDelta(t, 300.0, m.All.LargestWin, 1e-9)
	assert.InDelta(t, -100.0, m.All.LargestLoss, 1e-9)

	// buy rows are long, sell rows are short
	assert.Equal(t, 3, m.Long.Trades)
	assert.InDelta(t, -100.0, m.Long.NetProfit, 1e-9)
	assert.InDelta(t, 0.0, m.Long.ProfitFactor, 1e-9)
	assert.InDelta(t, 0.0, m.Long.LargestWin, 1e-9)
	assert.Equal(t, 3, m.Short.Trades)
	assert.InDelta(t, 350.0, m.Short.NetProfit, 1e-9)
	assert.True(t, math.IsInf(m.Short.ProfitFactor, 1))
	assert.InDelta(t, 300.0, m.Short.LargestWin, 1e-9)

	// 0,+,0,-,0,+ : zero rows extend the losing streak
	assert.Equal(t, 1, m.MaxConsecutiveWins)
	assert.Equal(t, 3, m.MaxConsecutiveLosses)
	assert.InDelta(t, 3.0, m.AvgBarsWin, 1e-9)
	assert.InDelta(t, 1.0, m.AvgBarsLoss, 1e-9)

	assert.InDelta(t, -200.0, m.MaxDrawdown, 1e-9) // 1050 - 1250
	assert.InDelta(t, 250.0, m.MaxRunUp, 1e-9)
	assert.Equal(t, 9, m.TotalDays)
	assert.InDelta(t, 25.0, m.ReturnOnInitial, 1e-9)
	assert.InDelta(t, (math.Pow(1.25, 365.0/9.0)-1)*100, m.AnnualReturn, 1e-6)
	assert.InDelta(t, 1.25, m.ReturnRetracement, 1e-9)
	assert.InDelta(t, 250*(100.0/3.0/100)/200, m.RINA, 1e-9)
}

func TestProfitFactorInfiniteWithoutLosses(t *testing.T) {
	t.Parallel()

	m, ok := Analyze([]portfolio.Trade{tr(sim.ActionBuy, 10, 1, 0)}, []float64{100, 110}, 100)
	require.True(t, ok)
	assert.True(t, math.IsInf(m.All.ProfitFactor, 1))
	assert.True(t, math.IsInf(m.ReturnRetracement, 1), "no drawdown")
	assert.True(t, math.IsInf(m.RINA, 1))
	assert.Equal(t, 1, m.TotalDays, "single trade spans at least one day")
	assert.InDelta(t, 100.0, m.All.WinPct, 1e-12)
	assert.InDelta(t, 0.0, m.All.LossPct, 1e-12)
}

func TestWinLossPercentagesSumTo100(t *testing.T) {
	t.Parallel()

	trades := []portfolio.Trade{
		tr(sim.ActionBuy, 1, 1, 0),
		tr(sim.ActionSell, -1, 1, 1),
		tr(sim.ActionSell, 0, 0, 2),
	}
	m, ok := Analyze(trades, nil, 100)
	require.True(t, ok)
	for _, p := range []Partition{m.All, m.Long, m.Short} {
		assert.InDelta(t, 100.0, p.WinPct+p.LossPct, 1e-9)
	}
	assert.Equal(t, 0.0, m.MaxDrawdown)
	assert.Equal(t, 100.0, m.FinalEquity)
}

func TestEntriesOrderAndReport(t *testing.T) {
	t.Parallel()

	m, ok := Analyze([]portfolio.Trade{tr(sim.ActionBuy, 10, 1, 0)}, []float64{100, 110}, 100)
	require.True(t, ok)

	es := m.Entries()
	require.Len(t, es, 40)
	assert.Equal(t, "Total Net Profit (All Trades)", es[0].Key)
	assert.Equal(t, "Max Equity Run-up", es[len(es)-1].Key)
	assert.Len(t, m.Map(), 40)

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, m))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 41)
	assert.Equal(t, "=== PERFORMANCE REPORT ===", lines[0])
	assert.Equal(t, "Total Net Profit (All Trades): 10", lines[1])
	assert.Contains(t, buf.String(), "Profit Factor (All Trades): inf\n")
	assert.Contains(t, buf.String(), "Number of Trades (All): 1\n")
}

func TestPartitionByAction(t *testing.T) {
	t.Parallel()

	open := tr(sim.ActionBuy, 0, 0, 0)
	open.Side = sim.SideLong
	closing := tr(sim.ActionSell, 20, 1, 1)
	closing.Side = sim.SideLong

	m, ok := Analyze([]portfolio.Trade{open, closing}, []float64{100, 90, 120}, 100)
	require.True(t, ok)
	assert.Equal(t, 1, m.Long.Trades)
	assert.InDelta(t, 0.0, m.Long.NetProfit, 1e-9)
	assert.Equal(t, 1, m.Short.Trades)
	assert.InDelta(t, 20.0, m.Short.NetProfit, 1e-9)
}

func TestAnnualReturnWipedOut(t *testing.T) {
	t.Parallel()

	trades := []portfolio.Trade{tr(sim.ActionSell, 0, 0, 0), tr(sim.ActionBuy, -150, 5, 5)}
	for _, final := range []float64{0, -50} {
		m, ok := Analyze(trades, []float64{100, final}, 100)
		require.True(t, ok)
		assert.False(t, math.IsNaN(m.AnnualReturn))
		assert.InDelta(t, -100.0, m.AnnualReturn, 1e-12)
	}
}
