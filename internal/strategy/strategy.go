package strategy

import (
	"context"
	"fmt"
	"math"

	"cryptoLifecycleBot/internal/domain"
	"cryptoLifecycleBot/internal/ports"
	"cryptoLifecycleBot/internal/strategy/indicators"
)

// Indicator series keys produced by EMAMomentum.
const (
	KeyEMA = "ema"
	KeyRSI = "rsi"
)

// Global evaluation modes.
const (
	GlobalCandle = "candle" // direction of the last reference bar
	GlobalLong   = "long"
	GlobalShort  = "short"
	GlobalNone   = "none"
)

// Config holds parameters for the EMA momentum evaluator.
type Config struct {
	EMAPeriod     int     // e.g., 20
	GlobalMode    string  // candle, long, short or none
	RSIPeriod     int     // 0 disables the RSI guard
	RSIOverbought float64 // LONG is rejected at or above this value
	RSIOversold   float64 // SHORT is rejected at or below this value
}

// EMAMomentum implements ports.SignalEvaluator.
// A candidate goes LONG when its last close is above the EMA on a bullish bar,
// and SHORT when below the EMA on a bearish bar.
type EMAMomentum struct {
	cfg    Config
	ema    *indicators.MovingAverage
	rsi    *indicators.RSI
	logger ports.Logger
}

// Compile-time check
var _ ports.SignalEvaluator = (*EMAMomentum)(nil)

// New creates a new EMAMomentum instance.
func New(cfg Config, logger ports.Logger) (*EMAMomentum, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if cfg.EMAPeriod <= 0 {
		return nil, fmt.Errorf("EMA period must be positive")
	}
	if cfg.RSIPeriod < 0 {
		return nil, fmt.Errorf("RSI period cannot be negative")
	}
	switch cfg.GlobalMode {
	case GlobalCandle, GlobalLong, GlobalShort, GlobalNone:
	case "":
		cfg.GlobalMode = GlobalCandle
	default:
		return nil, fmt.Errorf("unknown global mode %q", cfg.GlobalMode)
	}

	s := &EMAMomentum{
		cfg: cfg,
		ema: indicators.NewMovingAverage(indicators.MovingAverageConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.EMAPeriod},
			Type:            indicators.ExponentialMovingAverage,
		}),
		logger: logger,
	}
	if cfg.RSIPeriod > 0 {
		s.rsi = indicators.NewRSI(indicators.RSIConfig{
			IndicatorConfig: indicators.IndicatorConfig{Period: cfg.RSIPeriod},
			Overbought:      cfg.RSIOverbought,
			Oversold:        cfg.RSIOversold,
		})
	}
	return s, nil
}

// RequiredDataPoints returns the minimum number of candidate klines needed.
func (s *EMAMomentum) RequiredDataPoints() int {
	n := s.cfg.EMAPeriod
	if s.rsi != nil && s.rsi.RequiredDataPoints() > n {
		n = s.rsi.RequiredDataPoints()
	}
	return n
}

// Indicators computes the EMA series, plus the RSI series when enabled, for klines.
// The global step passes nil klines and gets an empty set.
func (s *EMAMomentum) Indicators(ctx context.Context, reference, klines []*domain.Kline) (domain.Indicators, error) {
	ind := domain.Indicators{}
	if klines == nil {
		return ind, nil
	}

	series, err := s.ema.Series(ctx, klines)
	if err != nil {
		return ind, fmt.Errorf("ema: %w", err)
	}
	ind[KeyEMA] = series

	if s.rsi != nil {
		series, err := s.rsi.Series(ctx, klines)
		if err != nil {
			return ind, fmt.Errorf("rsi: %w", err)
		}
		ind[KeyRSI] = series
	}
	return ind, nil
}

// EvaluateGlobal decides the cycle-wide direction.
func (s *EMAMomentum) EvaluateGlobal(ctx context.Context, reference []*domain.Kline, ind domain.Indicators) (domain.Signal, error) {
	switch s.cfg.GlobalMode {
	case GlobalLong:
		return domain.SignalLong, nil
	case GlobalShort:
		return domain.SignalShort, nil
	case GlobalNone:
		return domain.SignalNone, nil
	}

	if len(reference) == 0 {
		return domain.SignalNone, fmt.Errorf("no reference klines")
	}
	last := reference[len(reference)-1]
	switch {
	case last.Bullish():
		return domain.SignalLong, nil
	case last.Bearish():
		return domain.SignalShort, nil
	default:
		return domain.SignalNone, nil
	}
}

// EvaluateSymbol decides the direction for one candidate.
func (s *EMAMomentum) EvaluateSymbol(ctx context.Context, reference, klines []*domain.Kline, ind domain.Indicators) (domain.Signal, error) {
	if len(klines) == 0 {
		return domain.SignalNone, fmt.Errorf("no candidate klines")
	}
	ema, ok := ind.Last(KeyEMA)
	if !ok || math.IsNaN(ema) {
		return domain.SignalNone, fmt.Errorf("ema not available")
	}

	last := klines[len(klines)-1]
	signal := domain.SignalNone
	switch {
	case last.Close > ema && last.Bullish():
		signal = domain.SignalLong
	case last.Close < ema && last.Bearish():
		signal = domain.SignalShort
	}

	if signal.Definite() && s.rsi != nil {
		if rsi, ok := ind.Last(KeyRSI); ok {
			if (signal == domain.SignalLong && s.rsi.IsOverbought(rsi)) || (signal == domain.SignalShort && s.rsi.IsOversold(rsi)) {
				s.logger.Debug(ctx, "RSI guard rejected signal", map[string]interface{}{"symbol": last.Symbol, "signal": signal, "rsi": rsi})
				return domain.SignalNone, nil
			}
		}
	}
	return signal, nil
}
