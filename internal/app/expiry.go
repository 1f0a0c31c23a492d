package app

import (
	"context"

	"cryptoLifecycleBot/internal/domain"
)

// expirePositions closes every position that reached its holding limit and ages the rest.
// The limit is checked before the counter moves, so a position at 9 of 10 survives this
// cycle at 10 of 10 and is closed on the next one.
func (e *Engine) expirePositions(ctx context.Context) []*domain.CloseSummary {
	var closed []*domain.CloseSummary
	aged := false

	open := make([]*domain.Position, len(e.snapshot.Current))
	copy(open, e.snapshot.Current)

	for _, pos := range open {
		if pos.Expired() {
			summary, ok := e.closePosition(ctx, pos, domain.CloseReasonExpired)
			if ok {
				closed = append(closed, summary)
			}
			continue
		}
		pos.HoldBars++
		aged = true
	}

	if aged {
		e.save(ctx, "expiry")
	}
	if len(closed) > 0 {
		e.logger.Info(ctx, "Expired positions closed", map[string]interface{}{"count": len(closed)})
		e.notify(ctx, e.closeMessage("Closed (expired)", closed))
	}
	return closed
}
