package indicators

import (
	"fmt"

	"github.com/rustyeddy/barsim/pricing"
)

// SimpleMA is a streaming Simple Moving Average indicator. It keeps the
// last period bars, which doubles as the rolling history handed to
// strategies.
type SimpleMA struct {
	period int
	bars   []pricing.Bar
}

var _ Indicator = (*SimpleMA)(nil)

// NewMA creates a new Simple Moving Average indicator with the given period
func NewMA(period int) *SimpleMA {
	return &SimpleMA{
		period: period,
		bars:   make([]pricing.Bar, 0, period),
	}
}

func (m *SimpleMA) Name() string {
	return fmt.Sprintf("MA(%d)", m.period)
}

func (m *SimpleMA) Warmup() int {
	return m.period
}

func (m *SimpleMA) Reset() {
	m.bars = m.bars[:0]
}

func (m *SimpleMA) Update(b pricing.Bar) {
	m.bars = append(m.bars, b)
	// Keep only the last 'period' bars
	if len(m.bars) > m.period {
		copy(m.bars, m.bars[1:])
		m.bars = m.bars[:m.period]
	}
}

func (m *SimpleMA) Ready() bool {
	return len(m.bars) >= m.period
}

func (m *SimpleMA) Value() float64 {
	v, err := MA(m.bars, m.period)
	if err != nil {
		return 0
	}
	return v
}

// Len is the number of buffered bars.
func (m *SimpleMA) Len() int { return len(m.bars) }

// Bars returns a copy of the buffered bars, oldest first.
func (m *SimpleMA) Bars() []pricing.Bar {
	out := make([]pricing.Bar, len(m.bars))
	copy(out, m.bars)
	return out
}
