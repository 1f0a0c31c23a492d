package ports

import (
	"context"

	"cryptoLifecycleBot/internal/domain"
)

// BatchOrderResult is the outcome of one order inside a batch submission.
// Exactly one of Order and Err is set.
type BatchOrderResult struct {
	Order *domain.PlacedOrder
	Err   error
}

// Accepted reports whether the exchange assigned an order ID.
func (r BatchOrderResult) Accepted() bool {
	return r.Err == nil && r.Order != nil && r.Order.OrderID != 0
}

// CloseResult describes a market close executed by the exchange.
type CloseResult struct {
	OrderID   int64
	ExitPrice float64
}

// ExchangeClient defines the capabilities the lifecycle engine needs from a futures exchange.
// Every method is a blocking network call; implementations must not retry on their own.
type ExchangeClient interface {
	// GetKlines retrieves the most recent klines for symbol, oldest first.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error)

	// GetTopMovers returns up to limit symbols ranked by 24h price change, strongest first.
	GetTopMovers(ctx context.Context, limit int) ([]domain.Mover, error)

	// GetTickerPrice retrieves the last traded price for symbol.
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)

	// PlaceBatchOrders submits orders in a single request.
	// A returned error means the whole request failed; otherwise each order has its own result.
	PlaceBatchOrders(ctx context.Context, orders []domain.OrderRequest) ([]BatchOrderResult, error)

	// CancelOrder cancels an open order by its ID.
	CancelOrder(ctx context.Context, symbol string, orderID int64) error

	// CancelAllOpenOrders cancels every resting order on symbol.
	CancelAllOpenOrders(ctx context.Context, symbol string) error

	// GetAccountPositions returns the per-symbol-and-side position amounts of the account.
	GetAccountPositions(ctx context.Context) ([]domain.ExchangePosition, error)

	// GetOpenOrders returns all resting orders of the account.
	GetOpenOrders(ctx context.Context) ([]domain.OpenOrder, error)

	// ClosePosition reduces the position on symbol and side by quantity at market.
	ClosePosition(ctx context.Context, symbol string, side domain.PositionSide, quantity float64) (*CloseResult, error)

	// FormatQuantity rounds raw to the symbol's quantity step.
	FormatQuantity(ctx context.Context, symbol string, raw float64) (string, error)

	// FormatPrice rounds raw to the symbol's price tick.
	FormatPrice(ctx context.Context, symbol string, raw float64) (string, error)
}
