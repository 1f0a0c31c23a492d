package indicators

import (
	"context"
	"cryptoLifecycleBot/internal/domain"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closes(values ...float64) []*domain.Kline {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]*domain.Kline, len(values))
	for i, v := range values {
		out[i] = &domain.Kline{Symbol: "BTCUSDT", OpenTime: start.Add(time.Duration(i) * 5 * time.Minute), Close: v}
	}
	return out
}

func TestRSI_Calculate(t *testing.T) {
	tests := []struct {
		name    string
		period  int
		klines  []*domain.Kline
		want    float64
		wantErr bool
	}{
		// +2 -1 +2 -1 +2: seed 4/3 vs 1/3, then two smoothing steps give RS 3.4
		{name: "wilder smoothing", period: 3, klines: closes(100, 102, 101, 103, 102, 104), want: 77.272727},
		{name: "only gains", period: 3, klines: closes(100, 102, 104, 106), want: 100},
		{name: "only losses", period: 3, klines: closes(106, 104, 102, 100), want: 0},
		{name: "flat", period: 3, klines: closes(100, 100, 100, 100), want: 50},
		{name: "exactly period klines", period: 3, klines: closes(100, 102, 104), wantErr: true},
		{name: "zero period", period: 0, klines: closes(100, 102), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: tt.period}})
			got, err := rsi.Calculate(context.Background(), tt.klines)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-4)
		})
	}
}

func TestRSI_Series(t *testing.T) {
	rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: 3}})
	klines := closes(100, 102, 101, 103, 102, 104)

	series, err := rsi.Series(context.Background(), klines)
	require.NoError(t, err)
	require.Len(t, series, len(klines))

	for i := 0; i < 3; i++ {
		assert.True(t, math.IsNaN(series[i]), "index %d should be undefined", i)
	}
	assert.InDelta(t, 80.0, series[3], 1e-4)     // 4/3 vs 1/3
	assert.InDelta(t, 61.538462, series[4], 1e-4) // 8/9 vs 5/9
	assert.InDelta(t, 77.272727, series[5], 1e-4)

	last, err := rsi.Calculate(context.Background(), klines)
	require.NoError(t, err)
	assert.Equal(t, series[5], last)
}

func TestRSI_Zones(t *testing.T) {
	rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: 14}, Overbought: 70, Oversold: 30})

	tests := []struct {
		value      float64
		overbought bool
		oversold   bool
	}{
		{value: 75, overbought: true},
		{value: 70, overbought: true},
		{value: 50},
		{value: 30, oversold: true},
		{value: 25, oversold: true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.overbought, rsi.IsOverbought(tt.value), "overbought at %v", tt.value)
		assert.Equal(t, tt.oversold, rsi.IsOversold(tt.value), "oversold at %v", tt.value)
	}
}

func TestRSI_ZeroThresholdsNeverTrip(t *testing.T) {
	rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: 14}})
	assert.False(t, rsi.IsOverbought(100))
	assert.False(t, rsi.IsOversold(0))
}

func TestRSI_Metadata(t *testing.T) {
	rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: 14}})
	assert.Equal(t, "RSI", rsi.Name())
	assert.Equal(t, 15, rsi.RequiredDataPoints())
}
