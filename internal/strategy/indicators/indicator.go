package indicators

import (
	"context"
	"cryptoLifecycleBot/internal/domain"
)

// Indicator reduces a kline series to its most recent value.
type Indicator interface {
	Calculate(ctx context.Context, klines []*domain.Kline) (float64, error)
	RequiredDataPoints() int
	Name() string
}

// SeriesIndicator also produces one value per kline, oldest first.
// Positions where the indicator is undefined hold NaN.
type SeriesIndicator interface {
	Indicator
	Series(ctx context.Context, klines []*domain.Kline) ([]float64, error)
}

var (
	_ SeriesIndicator = (*MovingAverage)(nil)
	_ SeriesIndicator = (*RSI)(nil)
)

// IndicatorConfig is shared by all indicators.
type IndicatorConfig struct {
	Period int
}

// BaseIndicator carries the shared config.
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints defaults to the period.
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}
