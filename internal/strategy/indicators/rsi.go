package indicators

import (
	"context"
	"cryptoLifecycleBot/internal/domain"
	"fmt"
	"math"
)

// RSIConfig holds the period and the zone thresholds.
// A zero threshold disables that side of the guard.
type RSIConfig struct {
	IndicatorConfig
	Overbought float64
	Oversold   float64
}

// RSI is the Relative Strength Index with Wilder smoothing.
type RSI struct {
	BaseIndicator
	config RSIConfig
}

// NewRSI creates an RSI for config.
func NewRSI(config RSIConfig) *RSI {
	return &RSI{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

func (r *RSI) Name() string { return "RSI" }

// RequiredDataPoints is one more than the period, since RSI works on close-to-close changes.
func (r *RSI) RequiredDataPoints() int {
	return r.Config.Period + 1
}

// Calculate returns the RSI of the last kline.
func (r *RSI) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	series, err := r.Series(ctx, klines)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// Series returns the RSI for every kline. The first Period values are NaN.
// The seed averages are plain means of the first Period changes; later
// values use avg = (prev*(n-1) + change) / n.
func (r *RSI) Series(ctx context.Context, klines []*domain.Kline) ([]float64, error) {
	n := r.Config.Period
	if n <= 0 {
		return nil, fmt.Errorf("invalid period %d", n)
	}
	if len(klines) < r.RequiredDataPoints() {
		return nil, fmt.Errorf("not enough data (%d) to calculate RSI for period %d", len(klines), n)
	}

	out := make([]float64, len(klines))
	for i := 0; i < n; i++ {
		out[i] = math.NaN()
	}

	var gain, loss float64
	for i := 1; i <= n; i++ {
		up, down := split(klines[i].Close - klines[i-1].Close)
		gain += up
		loss += down
	}
	gain /= float64(n)
	loss /= float64(n)
	out[n] = strength(gain, loss)

	for i := n + 1; i < len(klines); i++ {
		up, down := split(klines[i].Close - klines[i-1].Close)
		gain = (gain*float64(n-1) + up) / float64(n)
		loss = (loss*float64(n-1) + down) / float64(n)
		out[i] = strength(gain, loss)
	}
	return out, nil
}

// IsOverbought reports value >= Overbought.
func (r *RSI) IsOverbought(value float64) bool {
	return r.config.Overbought > 0 && value >= r.config.Overbought
}

// IsOversold reports value <= Oversold.
func (r *RSI) IsOversold(value float64) bool {
	return r.config.Oversold > 0 && value <= r.config.Oversold
}

func split(change float64) (up, down float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

// strength maps average gain and loss to 0..100. A flat window reads 50.
func strength(gain, loss float64) float64 {
	switch {
	case loss == 0 && gain == 0:
		return 50
	case loss == 0:
		return 100
	}
	return 100 - 100/(1+gain/loss)
}
