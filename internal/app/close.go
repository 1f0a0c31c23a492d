package app

import (
	"context"
	"errors"

	"cryptoLifecycleBot/internal/domain"
	"cryptoLifecycleBot/internal/ports"
)

// closePosition exits pos at market and moves it to history.
// It never returns an error: failures are logged and pos stays open for the next cycle.
// A position no longer in current is ignored without touching the exchange.
func (e *Engine) closePosition(ctx context.Context, pos *domain.Position, reason domain.CloseReason) (*domain.CloseSummary, bool) {
	op := "closePosition"
	fields := map[string]interface{}{
		"symbol":   pos.Symbol,
		"side":     pos.PositionSide,
		"quantity": pos.Quantity,
		"reason":   reason,
	}

	if !e.tracked(pos) {
		e.logger.Debug(ctx, op+": position no longer open, skipping", fields)
		return nil, false
	}

	res, err := e.exchange.ClosePosition(ctx, pos.Symbol, pos.PositionSide, pos.Quantity)
	if err != nil {
		e.logger.Error(ctx, err, op+": exchange close failed", fields)
		return nil, false
	}

	exitTime := e.now().UTC()
	pos.ExitTime = &exitTime
	pos.ExitPrice = res.ExitPrice
	pos.PNL = pos.RealizedPNL(res.ExitPrice)
	pos.ExitReason = reason

	e.snapshot.Remove(pos)
	e.snapshot.History = append(e.snapshot.History, pos)
	e.save(ctx, op)

	fields["exitPrice"] = pos.ExitPrice
	fields["pnl"] = pos.PNL
	e.logger.Info(ctx, "Position closed", fields)

	if e.journal != nil {
		if _, err := e.journal.CreateTrade(ctx, domain.TradeFromPosition(pos)); err != nil {
			e.logger.Error(ctx, err, op+": failed to journal closed trade", map[string]interface{}{"symbol": pos.Symbol})
		}
	}

	for _, id := range pos.StopLossOrderIDs {
		e.cancelOrderWarn(ctx, pos.Symbol, id, "stop-loss")
	}
	for _, id := range pos.TakeProfitOrderIDs {
		e.cancelOrderWarn(ctx, pos.Symbol, id, "take-profit")
	}

	e.metrics.PositionClosed(string(reason))
	return &domain.CloseSummary{Symbol: pos.Symbol, Reason: reason, PNL: pos.PNL}, true
}

// cancelOrderWarn cancels a protective order. An order that is already gone is the
// expected race with a triggered stop and only logged as a warning.
func (e *Engine) cancelOrderWarn(ctx context.Context, symbol string, orderID int64, kind string) {
	fields := map[string]interface{}{"symbol": symbol, "orderID": orderID, "kind": kind}
	err := e.exchange.CancelOrder(ctx, symbol, orderID)
	switch {
	case err == nil:
		e.logger.Debug(ctx, "Cancelled protective order", fields)
	case errors.Is(err, ports.ErrOrderNotFound):
		e.logger.Warn(ctx, "Protective order already gone", fields)
	default:
		e.logger.Error(ctx, err, "Failed to cancel protective order", fields)
	}
}
