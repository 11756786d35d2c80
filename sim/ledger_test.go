package sim

import (
	"testing"
	"time"

	"github.com/rustyeddy/barsim/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2023, 4, 20, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return day0.Add(time.Duration(n) * 24 * time.Hour) }

func fill(action string, size int64, price float64, t time.Time) Fill {
	return Fill{Instrument: "NATGAS", Action: action, Size: size, Price: price, Time: t}
}

func TestExecuteUsesEntryPrice(t *testing.T) {
	t.Parallel()

	l := NewLedger(100000)
	o := risk.Order{
		ID:         "o1",
		Instrument: "NATGAS",
		Action:     risk.ActionBuy,
		Intent:     "buy",
		Size:       100,
		EntryPrice: 2.5,
		StopLoss:   2.475,
		TakeProfit: 2.625,
		Time:       day(0),
	}
	f, err := l.Execute(o)
	require.NoError(t, err)
	assert.Equal(t, "o1", f.ID)
	assert.Equal(t, 2.5, f.Price)
	assert.Equal(t, int64(100), f.Size)
	assert.Equal(t, 2.475, f.StopLoss)

	// Execute alone books nothing
	assert.Equal(t, int64(0), l.OpenSize("NATGAS"))
	assert.Equal(t, 100000.0, l.Cash())
}

func TestExecuteRejectsMalformed(t *testing.T) {
	t.Parallel()

	l := NewLedger(100000)
	_, err := l.Execute(risk.Order{Instrument: "NATGAS", Action: "short", Size: 1, EntryPrice: 1, Time: day(0)})
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = l.Apply(fill(ActionBuy, 0, 1, day(0)))
	assert.ErrorIs(t, err, ErrInvalidOrder)
	_, err = l.Apply(fill(ActionBuy, 1, 0, day(0)))
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestApplyOpenAndAdd(t *testing.T) {
	t.Parallel()

	l := NewLedger(100000)
	c, err := l.Apply(fill(ActionBuy, 100, 10, day(0)))
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = l.Apply(fill(ActionBuy, 300, 12, day(1)))
	require.NoError(t, err)
	assert.Nil(t, c)

	p, ok := l.Position("NATGAS")
	require.True(t, ok)
	assert.Equal(t, int64(400), p.Size)
	assert.InDelta(t, 11.5, p.EntryPrice, 1e-12) // (10*100 + 12*300)/400
	assert.Equal(t, day(0), p.EntryTime)
	assert.Equal(t, SideLong, p.Side())
	assert.InDelta(t, 100000-1000-3600, l.Cash(), 1e-9)
}

func TestApplyCloseLong(t *testing.T) {
	t.Parallel()

	l := NewLedger(100000)
	_, err := l.Apply(fill(ActionBuy, 1000, 12, day(0)))
	require.NoError(t, err)

	c, err := l.Apply(fill(ActionSell, 1000, 9, day(0).Add(time.Hour)))
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, SideLong, c.Side)
	assert.InDelta(t, -3000.0, c.NetProfit, 1e-9)
	assert.Equal(t, 1, c.BarsHeld, "same-day close counts as one bar")
	assert.Equal(t, int64(1000), c.Size)
	_, ok := l.Position("NATGAS")
	assert.False(t, ok)
	assert.InDelta(t, 97000.0, l.Cash(), 1e-9)
}

func TestApplyCloseShort(t *testing.T) {
	t.Parallel()

	l := NewLedger(100000)
	_, err := l.Apply(fill(ActionSell, 50, 20, day(0)))
	require.NoError(t, err)
	assert.InDelta(t, 101000.0, l.Cash(), 1e-9)

	c, err := l.Apply(fill(ActionBuy, 50, 18, day(5)))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, SideShort, c.Side)
	assert.InDelta(t, 100.0, c.NetProfit, 1e-9)
	assert.Equal(t, 5, c.BarsHeld)
	assert.InDelta(t, 100100.0, l.Cash(), 1e-9)
	assert.Empty(t, l.Positions())
}

func TestApplyPartialReductionUsesWeightedEntry(t *testing.T) {
	t.Parallel()

	l := NewLedger(100000)
	_, err := l.Apply(fill(ActionBuy, 100, 10, day(0)))
	require.NoError(t, err)

	c, err := l.Apply(fill(ActionSell, 40, 12, day(1)))
	require.NoError(t, err)
	assert.Nil(t, c, "partial reductions realize nothing")

	p, ok := l.Position("NATGAS")
	require.True(t, ok)
	assert.Equal(t, int64(60), p.Size)
	// (10*100 + 12*-40) / 60
	assert.InDelta(t, (1000.0-480.0)/60.0, p.EntryPrice, 1e-12)
}

func TestStopClose(t *testing.T) {
	t.Parallel()

	l := NewLedger(100000)
	_, _, err := l.StopClose("NATGAS", 9, day(1), ReasonStopLoss)
	assert.ErrorIs(t, err, ErrNoPosition)

	_, err = l.Apply(fill(ActionBuy, 200, 10, day(0)))
	require.NoError(t, err)

	f, c, err := l.StopClose("NATGAS", 9.9, day(2), ReasonStopLoss)
	require.NoError(t, err)
	assert.Equal(t, ActionSell, f.Action)
	assert.Equal(t, int64(200), f.Size)
	assert.Equal(t, ReasonStopLoss, f.Reason)
	require.NotNil(t, c)
	assert.InDelta(t, -20.0, c.NetProfit, 1e-9)
	assert.Equal(t, 2, c.BarsHeld)
	assert.Equal(t, int64(0), l.OpenSize("NATGAS"))

	_, err = l.Apply(fill(ActionSell, 10, 10, day(3)))
	require.NoError(t, err)
	f, _, err = l.StopClose("NATGAS", 10.1, day(3), ReasonStopLoss)
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, f.Action)
}

func TestPositionsSorted(t *testing.T) {
	t.Parallel()

	l := NewLedger(0)
	for _, inst := range []string{"XAU_USD", "EUR_USD", "NATGAS"} {
		_, err := l.Apply(Fill{Instrument: inst, Action: ActionBuy, Size: 1, Price: 1, Time: day(0)})
		require.NoError(t, err)
	}
	ps := l.Positions()
	require.Len(t, ps, 3)
	assert.Equal(t, "EUR_USD", ps[0].Instrument)
	assert.Equal(t, "XAU_USD", ps[2].Instrument)
	assert.True(t, l.CashDecimal().IsNegative())
}
