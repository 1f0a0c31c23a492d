package ports

import "errors"

// Sentinels returned (wrapped with %w) by adapters. The engine classifies
// failures with errors.Is and never inspects adapter-specific types.
var (
	ErrUnknown            = errors.New("unclassified failure")
	ErrInvalidRequest     = errors.New("request rejected as invalid")
	ErrTimeout            = errors.New("deadline exceeded")
	ErrContextCanceled    = errors.New("context canceled")
	ErrConfigurationError = errors.New("configuration invalid")

	// Exchange
	ErrExchangeUnavailable  = errors.New("exchange unavailable")
	ErrConnectionFailed     = errors.New("exchange connection failed")
	ErrRateLimited          = errors.New("exchange rate limit hit")
	ErrAuthenticationFailed = errors.New("exchange rejected credentials")
	ErrInvalidAPIKeys       = errors.New("API key invalid or lacks permission")
	ErrInsufficientFunds    = errors.New("insufficient margin")
	ErrOrderNotFound        = errors.New("order does not exist")
	ErrPositionNotFound     = errors.New("position does not exist")
	ErrOrderPlacementFailed = errors.New("order placement failed")
	ErrOrderCancelFailed    = errors.New("order cancel failed")
	ErrSymbolNotFound       = errors.New("symbol not listed")
	ErrNoPrice              = errors.New("no price available")

	// Storage
	ErrSnapshotCorrupt = errors.New("position snapshot unreadable")
	ErrDBConnection    = errors.New("journal database unavailable")
	ErrQueryFailed     = errors.New("journal query failed")
)
