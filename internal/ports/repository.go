package ports

import (
	"context"

	"cryptoLifecycleBot/internal/domain"
)

// PositionStore persists the whole position snapshot.
// There are no partial updates: callers load, mutate and save the full snapshot.
type PositionStore interface {
	// Load reads current and historical positions, creating an empty snapshot if none exists.
	Load(ctx context.Context) (*domain.Snapshot, error)
	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap *domain.Snapshot) error
}

// TradeJournal is the append-only log of closed trades.
type TradeJournal interface {
	// CreateTrade saves a new trade record and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindBySymbol retrieves the most recent trades for a given symbol, up to a limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)
	// GetTotalProfit sums PNL over every journaled trade.
	GetTotalProfit(ctx context.Context) (float64, error)
}
