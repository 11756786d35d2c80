package risk

import (
	"errors"
	"fmt"
)

// Policy holds the account-level limits applied to every signal.
type Policy struct {
	BaseCapital float64 // 100000

	// Circuit breaker: reject while the drawdown fraction exceeds this.
	MaxDrawdown float64 // 0.20

	StopLossPct         float64 // 0.01
	TakeProfitPct       float64 // 0.05
	MaxPositionFraction float64 // 0.05

	// Max relative divergence between last seen price and signal price.
	PriceTolerance float64 // 0.01
}

// DefaultPolicy returns the stock limits.
func DefaultPolicy() Policy {
	return Policy{
		BaseCapital:         100000,
		MaxDrawdown:         0.2,
		StopLossPct:         0.01,
		TakeProfitPct:       0.05,
		MaxPositionFraction: 0.05,
		PriceTolerance:      0.01,
	}
}

// Validate rejects policies that can never produce a sane order.
func (p Policy) Validate() error {
	var errs []error
	if p.BaseCapital <= 0 {
		errs = append(errs, fmt.Errorf("base capital must be positive, got %v", p.BaseCapital))
	}
	if p.MaxDrawdown < 0 || p.MaxDrawdown > 1 {
		errs = append(errs, fmt.Errorf("max drawdown must be within [0,1], got %v", p.MaxDrawdown))
	}
	if p.StopLossPct < 0 || p.StopLossPct >= 1 {
		errs = append(errs, fmt.Errorf("stop loss pct must be within [0,1), got %v", p.StopLossPct))
	}
	if p.TakeProfitPct < 0 {
		errs = append(errs, fmt.Errorf("take profit pct must not be negative, got %v", p.TakeProfitPct))
	}
	if p.MaxPositionFraction <= 0 || p.MaxPositionFraction > 1 {
		errs = append(errs, fmt.Errorf("max position fraction must be within (0,1], got %v", p.MaxPositionFraction))
	}
	if p.PriceTolerance < 0 {
		errs = append(errs, fmt.Errorf("price tolerance must not be negative, got %v", p.PriceTolerance))
	}
	if len(errs) > 0 {
		return fmt.Errorf("risk policy: %w", errors.Join(errs...))
	}
	return nil
}
