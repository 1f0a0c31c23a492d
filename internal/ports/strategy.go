package ports

import (
	"context"

	"cryptoLifecycleBot/internal/domain"
)

// SignalEvaluator is the pluggable decision logic of the engine.
// Implementations must be deterministic for a given input and hold no position state.
type SignalEvaluator interface {
	// Indicators precomputes indicator series. klines is nil for the global evaluation.
	Indicators(ctx context.Context, reference, klines []*domain.Kline) (domain.Indicators, error)

	// EvaluateGlobal decides the cycle-wide direction from the reference series only.
	EvaluateGlobal(ctx context.Context, reference []*domain.Kline, ind domain.Indicators) (domain.Signal, error)

	// EvaluateSymbol decides the direction for one candidate.
	EvaluateSymbol(ctx context.Context, reference, klines []*domain.Kline, ind domain.Indicators) (domain.Signal, error)
}
