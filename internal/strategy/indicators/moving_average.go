package indicators

import (
	"context"
	"cryptoLifecycleBot/internal/domain"
	"fmt"
	"math"
)

// MovingAverageType selects the averaging rule.
type MovingAverageType string

const (
	SimpleMovingAverage      MovingAverageType = "SMA"
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig configures a MovingAverage.
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage computes SMA or EMA over kline closes.
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a moving average for config.
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns "SMA" or "EMA".
func (m *MovingAverage) Name() string {
	return string(m.config.Type)
}

// Calculate returns the average at the last kline.
func (m *MovingAverage) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	series, err := m.Series(ctx, klines)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// Series computes the average at every kline, oldest first.
// The first Period-1 values are NaN. The EMA is seeded with the SMA of the
// first Period closes and then follows ema = ema + k*(close-ema), k = 2/(n+1).
func (m *MovingAverage) Series(ctx context.Context, klines []*domain.Kline) ([]float64, error) {
	n := m.Config.Period
	if n <= 0 {
		return nil, fmt.Errorf("invalid period %d", n)
	}
	if m.config.Type != SimpleMovingAverage && m.config.Type != ExponentialMovingAverage {
		return nil, fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
	if len(klines) < n {
		return nil, fmt.Errorf("not enough data (%d) to calculate %s for period %d", len(klines), m.config.Type, n)
	}

	out := make([]float64, len(klines))
	window := 0.0
	for i, kl := range klines[:n] {
		window += kl.Close
		if i < n-1 {
			out[i] = math.NaN()
		}
	}
	out[n-1] = window / float64(n)

	k := 2.0 / float64(n+1)
	for i := n; i < len(klines); i++ {
		c := klines[i].Close
		if m.config.Type == SimpleMovingAverage {
			window += c - klines[i-n].Close
			out[i] = window / float64(n)
			continue
		}
		out[i] = out[i-1] + k*(c-out[i-1])
	}
	return out, nil
}
