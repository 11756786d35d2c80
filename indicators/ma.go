package indicators

import (
	"fmt"

	"github.com/rustyeddy/barsim/pricing"
)

// MA calculates the Simple Moving Average of close over the last period bars.
func MA(bars []pricing.Bar, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(bars) < period {
		return 0, fmt.Errorf("not enough bars: need %d, got %d", period, len(bars))
	}

	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Close
	}
	return sum / float64(period), nil
}
