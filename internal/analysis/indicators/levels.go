package indicators

import (
	"fmt"

	"bist-sentinel/internal/models"
)

// RollingHigh tracks the highest high over the prior N bars, excluding
// the current bar. A close above this level is a breakout.
type RollingHigh struct {
	period int
}

// NewRollingHigh creates a new RollingHigh indicator.
func NewRollingHigh(period int) *RollingHigh {
	return &RollingHigh{period: period}
}

func (r *RollingHigh) Name() string {
	return fmt.Sprintf("RollingHigh_%d", r.period)
}

func (r *RollingHigh) Period() int {
	return r.period + 1
}

func (r *RollingHigh) Calculate(bars []models.PriceBar) ([]float64, error) {
	if r.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(bars) < r.period+1 {
		return nil, ErrInsufficientData
	}

	n := len(bars)
	result := make([]float64, n)
	highs := highPrices(bars)

	// result[i] looks back at the window ending just before bar i
	for i := r.period; i < n; i++ {
		result[i] = highest(highs[i-r.period : i])
	}

	return result, nil
}
