package strategies

import (
	"testing"
	"time"

	"github.com/rustyeddy/barsim/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2023, 4, 20, 0, 0, 0, 0, time.UTC)

func bar(i int, close float64, sma *float64) pricing.Bar {
	return pricing.Bar{
		Instrument: "NATGAS",
		Time:       t0.Add(time.Duration(i) * 24 * time.Hour),
		Close:      close,
		SMA:        sma,
	}
}

func f(v float64) *float64 { return &v }

func TestNewSMACrossRejectsBadSize(t *testing.T) {
	t.Parallel()
	_, err := NewSMACross("NATGAS", 0)
	require.Error(t, err)
}

func TestSMACrossTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		start State
		close float64
		sma   float64
		want  Action
		ok    bool
		newSt State
	}{
		{"flat above buys", StateFlat, 12, 11, Buy, true, StateLong},
		{"flat below shorts", StateFlat, 9, 11, Short, true, StateShort},
		{"flat equal holds", StateFlat, 11, 11, "", false, StateFlat},
		{"long above holds", StateLong, 12, 11, "", false, StateLong},
		{"long below shorts", StateLong, 9, 11, Short, true, StateShort},
		{"long equal sells", StateLong, 11, 11, Sell, true, StateFlat},
		{"short below holds", StateShort, 9, 11, "", false, StateShort},
		{"short above buys", StateShort, 12, 11, Buy, true, StateLong},
		{"short equal covers", StateShort, 11, 11, Cover, true, StateFlat},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := NewSMACross("NATGAS", 1000)
			require.NoError(t, err)
			s.state["NATGAS"] = tt.start

			sig, ok := s.GenerateSignal(bar(1, tt.close, f(tt.sma)), nil)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.newSt, s.State("NATGAS"))
			if !tt.ok {
				assert.Equal(t, 1, s.NoTradeReasons()[ReasonNoCondition])
				return
			}
			assert.Equal(t, tt.want, sig.Action)
			assert.Equal(t, int64(1000), sig.Size)
			assert.Equal(t, tt.close, sig.Price)
			assert.Equal(t, "NATGAS", sig.Instrument)
		})
	}
}

func TestSMACrossIncompleteData(t *testing.T) {
	t.Parallel()

	s, err := NewSMACross("NATGAS", 1000)
	require.NoError(t, err)

	_, ok := s.GenerateSignal(bar(0, 10, nil), nil)
	assert.False(t, ok)

	nc := bar(1, 0, f(11))
	nc.NoClose = true
	_, ok = s.GenerateSignal(nc, nil)
	assert.False(t, ok)

	_, ok = s.GenerateSignal(pricing.Bar{Instrument: "NATGAS", Close: 12, SMA: f(11)}, nil)
	assert.False(t, ok)

	reasons := s.NoTradeReasons()
	assert.Equal(t, 2, reasons[ReasonIncompleteData])
	assert.Equal(t, 1, reasons[ReasonInvalidTime])
	assert.Equal(t, StateFlat, s.State("NATGAS"))

	// callers cannot mutate the counters
	reasons[ReasonIncompleteData] = 99
	assert.Equal(t, 2, s.NoTradeReasons()[ReasonIncompleteData])
}

func TestSMACrossConstantAboveSignalsOnce(t *testing.T) {
	t.Parallel()

	s, err := NewSMACross("NATGAS", 10)
	require.NoError(t, err)

	n := 0
	for i := 0; i < 20; i++ {
		sig, ok := s.GenerateSignal(bar(i, 12, f(11)), nil)
		if ok {
			n++
			assert.Equal(t, Buy, sig.Action)
		}
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, 19, s.NoTradeReasons()[ReasonNoCondition])
}

func TestSMACrossScenario(t *testing.T) {
	t.Parallel()

	s, err := NewSMACross("NATGAS", 1000)
	require.NoError(t, err)

	_, ok := s.GenerateSignal(bar(0, 10, nil), nil)
	assert.False(t, ok)

	sig, ok := s.GenerateSignal(bar(1, 12, f(11)), nil)
	require.True(t, ok)
	assert.Equal(t, Buy, sig.Action)

	// close below sma while long: rule 2 wins over rule 3
	sig, ok = s.GenerateSignal(bar(2, 9, f(11)), nil)
	require.True(t, ok)
	assert.Equal(t, Short, sig.Action)
	assert.Equal(t, StateShort, s.State("NATGAS"))
}

func TestSMACrossPositionClosed(t *testing.T) {
	t.Parallel()

	s, err := NewSMACross("NATGAS", 1000)
	require.NoError(t, err)

	_, ok := s.GenerateSignal(bar(0, 12, f(11)), nil)
	require.True(t, ok)
	assert.Equal(t, StateLong, s.State("NATGAS"))

	s.OnPositionClosed("NATGAS", "stop_loss")
	assert.Equal(t, StateFlat, s.State("NATGAS"))

	// re-entry is allowed once flat
	sig, ok := s.GenerateSignal(bar(1, 12, f(11)), nil)
	require.True(t, ok)
	assert.Equal(t, Buy, sig.Action)
}

func TestSMACrossInstrumentFilter(t *testing.T) {
	t.Parallel()

	s, err := NewSMACross("NATGAS", 1000)
	require.NoError(t, err)

	b := bar(0, 12, f(11))
	b.Instrument = "EUR_USD"
	_, ok := s.GenerateSignal(b, nil)
	assert.False(t, ok)

	// empty bar instrument falls back to the configured one
	b.Instrument = ""
	sig, ok := s.GenerateSignal(b, nil)
	require.True(t, ok)
	assert.Equal(t, "NATGAS", sig.Instrument)
}

func TestSMACrossReset(t *testing.T) {
	t.Parallel()

	s, err := NewSMACross("", 1)
	require.NoError(t, err)
	_, _ = s.GenerateSignal(bar(0, 12, f(11)), nil)
	_, _ = s.GenerateSignal(bar(1, 12, f(11)), nil)

	s.Reset()
	assert.Equal(t, StateFlat, s.State("NATGAS"))
	assert.Empty(t, s.NoTradeReasons())
}
