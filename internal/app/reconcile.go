package app

import (
	"context"
	"fmt"
	"math"

	"cryptoLifecycleBot/internal/domain"
)

// ReconcileReport lists what one reconciliation pass changed.
type ReconcileReport struct {
	Evicted   []string // symbols dropped from current without a history entry
	Adopted   []string // exchange positions taken under local tracking
	Resized   []string // tracked positions whose quantity followed the exchange amount
	Closed    []*domain.CloseSummary
	Cancelled []string // symbols whose open orders were cancelled as orphans
	Errors    []error
}

// reconcile aligns local state with the exchange after entries had time to settle.
// Each step is isolated: a failure in one is recorded and the next still runs.
func (e *Engine) reconcile(ctx context.Context) *ReconcileReport {
	report := &ReconcileReport{}

	positions, err := e.exchange.GetAccountPositions(ctx)
	if err != nil {
		e.logger.Error(ctx, err, "Reconciliation aborted: cannot fetch account positions")
		report.Errors = append(report.Errors, fmt.Errorf("fetch positions: %w", err))
		return report
	}
	orders, ordersErr := e.exchange.GetOpenOrders(ctx)

	e.step(ctx, "evict phantoms", report, func() { e.evictPhantoms(ctx, positions, report) })

	if ordersErr != nil {
		e.logger.Error(ctx, ordersErr, "Cannot fetch open orders, skipping protection and orphan checks")
		report.Errors = append(report.Errors, fmt.Errorf("fetch open orders: %w", ordersErr))
		return report
	}

	flattened := make(map[string]bool)
	e.step(ctx, "close unprotected", report, func() { e.closeUnprotected(ctx, positions, orders, flattened, report) })
	e.step(ctx, "cancel orphans", report, func() { e.cancelOrphans(ctx, positions, orders, flattened, report) })

	if len(report.Closed) > 0 {
		e.notify(ctx, e.closeMessage("Closed (unprotected)", report.Closed))
	}
	if len(report.Evicted)+len(report.Resized)+len(report.Adopted)+len(report.Closed)+len(report.Cancelled) > 0 {
		e.logger.Info(ctx, "Reconciliation changed state", map[string]interface{}{
			"evicted":   len(report.Evicted),
			"resized":   len(report.Resized),
			"adopted":   len(report.Adopted),
			"closed":    len(report.Closed),
			"cancelled": len(report.Cancelled),
		})
	}
	return report
}

func (e *Engine) step(ctx context.Context, name string, report *ReconcileReport, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%s: panic: %v", name, r)
			e.logger.Error(ctx, err, "Reconciliation step panicked")
			report.Errors = append(report.Errors, err)
		}
	}()
	fn()
}

// evictPhantoms drops local positions the exchange no longer holds and
// brings the quantity of the remaining ones in line with the exchange amount.
func (e *Engine) evictPhantoms(ctx context.Context, positions []domain.ExchangePosition, report *ReconcileReport) {
	tracked := make([]*domain.Position, len(e.snapshot.Current))
	copy(tracked, e.snapshot.Current)

	for _, pos := range tracked {
		if amount, ok := heldOnExchange(positions, pos.Symbol, pos.PositionSide); ok {
			if !sameQuantity(pos.Quantity, amount) {
				e.logger.Warn(ctx, "Position quantity differs from exchange, resizing", map[string]interface{}{
					"symbol":   pos.Symbol,
					"side":     pos.PositionSide,
					"local":    pos.Quantity,
					"exchange": amount,
				})
				pos.Quantity = amount
				report.Resized = append(report.Resized, pos.Symbol)
				e.metrics.ReconcileAction("resized")
			}
			continue
		}
		e.snapshot.Remove(pos)
		report.Evicted = append(report.Evicted, pos.Symbol)
		e.metrics.ReconcileAction("evicted")
		e.logger.Warn(ctx, "Evicted position closed outside the engine", map[string]interface{}{
			"symbol": pos.Symbol,
			"side":   pos.PositionSide,
		})
	}
	if len(report.Evicted)+len(report.Resized) > 0 {
		e.save(ctx, "sync")
	}
}

// closeUnprotected closes every open exchange position without a stop-loss resting.
// Untracked positions are adopted first so they share the close path.
func (e *Engine) closeUnprotected(ctx context.Context, positions []domain.ExchangePosition, orders []domain.OpenOrder, flattened map[string]bool, report *ReconcileReport) {
	for _, ep := range positions {
		if !ep.Open() {
			continue
		}
		side := ep.Side()
		if hasStopLoss(orders, ep.Symbol, side) {
			continue
		}

		pos := e.snapshot.Find(ep.Symbol, side)
		if pos == nil {
			pos = e.adopt(ep, side)
			e.save(ctx, "adopt")
			report.Adopted = append(report.Adopted, ep.Symbol)
			e.metrics.ReconcileAction("adopted")
			e.logger.Warn(ctx, "Adopted untracked exchange position", map[string]interface{}{
				"symbol": ep.Symbol,
				"side":   side,
				"amount": ep.Amount,
			})
		}

		e.logger.Warn(ctx, "Position has no stop-loss, closing", map[string]interface{}{"symbol": ep.Symbol, "side": side})
		summary, ok := e.closePosition(ctx, pos, domain.CloseReasonUnprotected)
		if !ok {
			report.Errors = append(report.Errors, fmt.Errorf("close unprotected %s %s failed", ep.Symbol, side))
			continue
		}
		flattened[positionKey(ep.Symbol, side)] = true
		report.Closed = append(report.Closed, summary)
		e.metrics.ReconcileAction("closed_unprotected")
	}
}

func (e *Engine) adopt(ep domain.ExchangePosition, side domain.PositionSide) *domain.Position {
	pos := &domain.Position{
		Symbol:             ep.Symbol,
		PositionSide:       side,
		EntryTime:          e.now().UTC(),
		EntryPrice:         ep.EntryPrice,
		Quantity:           math.Abs(ep.Amount),
		MaxHoldBars:        e.cfg.MaxHoldBars,
		TakeProfitRatio:    e.cfg.TakeProfitPct,
		StopLossRatio:      e.cfg.StopLossPct,
		StopLossOrderIDs:   []int64{},
		TakeProfitOrderIDs: []int64{},
	}
	e.snapshot.Current = append(e.snapshot.Current, pos)
	return pos
}

// cancelOrphans clears resting orders on symbols the account is flat on, once per symbol.
func (e *Engine) cancelOrphans(ctx context.Context, positions []domain.ExchangePosition, orders []domain.OpenOrder, flattened map[string]bool, report *ReconcileReport) {
	open := make(map[string]bool)
	for _, ep := range positions {
		if ep.Open() && !flattened[positionKey(ep.Symbol, ep.Side())] {
			open[ep.Symbol] = true
		}
	}

	done := make(map[string]bool)
	for _, o := range orders {
		if open[o.Symbol] || done[o.Symbol] {
			continue
		}
		done[o.Symbol] = true

		if err := e.exchange.CancelAllOpenOrders(ctx, o.Symbol); err != nil {
			e.logger.Error(ctx, err, "Failed to cancel orphan orders", map[string]interface{}{"symbol": o.Symbol})
			report.Errors = append(report.Errors, fmt.Errorf("cancel orphans %s: %w", o.Symbol, err))
			continue
		}
		report.Cancelled = append(report.Cancelled, o.Symbol)
		e.metrics.ReconcileAction("cancelled_orphans")
		e.logger.Info(ctx, "Cancelled orphan orders", map[string]interface{}{"symbol": o.Symbol})
	}
}

// heldOnExchange returns the absolute amount of the open exchange row covering symbol and side.
func heldOnExchange(positions []domain.ExchangePosition, symbol string, side domain.PositionSide) (float64, bool) {
	for _, ep := range positions {
		if ep.Open() && ep.Covers(symbol, side) {
			return math.Abs(ep.Amount), true
		}
	}
	return 0, false
}

func sameQuantity(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

func hasStopLoss(orders []domain.OpenOrder, symbol string, side domain.PositionSide) bool {
	for _, o := range orders {
		if o.Protects(symbol, side) {
			return true
		}
	}
	return false
}

func positionKey(symbol string, side domain.PositionSide) string {
	return symbol + "/" + string(side)
}
