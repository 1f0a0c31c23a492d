package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoLifecycleBot/internal/domain"
	"cryptoLifecycleBot/internal/ports"
)

// protectedOnExchange mirrors pos on the mock account with a resting stop-loss.
func protectedOnExchange(r *testRig, pos *domain.Position, stopID int64) {
	r.exchange.positions = append(r.exchange.positions, domain.ExchangePosition{
		Symbol: pos.Symbol, PositionSide: pos.PositionSide, Amount: pos.Quantity, EntryPrice: pos.EntryPrice,
	})
	r.exchange.orders = append(r.exchange.orders, domain.OpenOrder{
		OrderID: stopID, Symbol: pos.Symbol, Type: domain.OrderTypeStopMarket,
		Side: pos.PositionSide.ExitSide(), PositionSide: pos.PositionSide,
	})
	pos.StopLossOrderIDs = append(pos.StopLossOrderIDs, stopID)
}

func TestExpiry_ClosesOneCycleAfterReachingLimit(t *testing.T) {
	r := newTestRig(t, testConfig())
	r.eval.global = domain.SignalNone
	r.exchange.klines["BTCUSDT"] = bars("BTCUSDT", 1, 2)
	pos := openPosition("ETHUSDT", domain.Long, 100, 1)
	pos.HoldBars = 9
	protectedOnExchange(r, pos, 501)
	r.store.seed(t, pos)
	r.exchange.closePrice["ETHUSDT"] = 110

	// 9/10 -> 10/10, still open
	report, err := r.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Expired)
	stored := r.store.stored(t)
	require.Len(t, stored.Current, 1)
	assert.Equal(t, 10, stored.Current[0].HoldBars)
	assert.Empty(t, r.exchange.closeCalls)

	// 10/10 -> closed
	report, err = r.engine.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Expired, 1)
	assert.Equal(t, &domain.CloseSummary{Symbol: "ETHUSDT", Reason: domain.CloseReasonExpired, PNL: 10}, report.Expired[0])

	stored = r.store.stored(t)
	assert.Empty(t, stored.Current)
	require.Len(t, stored.History, 1)
	closed := stored.History[0]
	assert.Equal(t, domain.CloseReasonExpired, closed.ExitReason)
	assert.Equal(t, 110.0, closed.ExitPrice)
	assert.Equal(t, 10.0, closed.PNL)
	require.NotNil(t, closed.ExitTime)

	assert.Equal(t, []int64{501}, r.exchange.cancelCalls)
	require.Len(t, r.journal.trades, 1)
	assert.Equal(t, domain.CloseReasonExpired, r.journal.trades[0].CloseReason)
	require.Len(t, r.notifier.messages, 1)
	assert.Contains(t, r.notifier.messages[0], "Closed (expired)")
	assert.Contains(t, r.notifier.messages[0], "Total PnL: 10.00 USDT")

	// closed exactly once
	_, err = r.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ETHUSDT"}, r.exchange.closeCalls)
	assert.Len(t, r.store.stored(t).History, 1)
	assert.Equal(t, []string{string(domain.CloseReasonExpired)}, r.metrics.closed)
}

func TestExpiry_AggregatesNotifications(t *testing.T) {
	r := newTestRig(t, testConfig())
	a := openPosition("AAAUSDT", domain.Long, 10, 2)
	b := openPosition("BBBUSDT", domain.Short, 10, 1)
	c := openPosition("CCCUSDT", domain.Long, 10, 1)
	a.HoldBars, b.HoldBars, c.HoldBars = 10, 12, 3
	r.store.seed(t, a, b, c)
	r.load(t)
	r.exchange.closePrice["AAAUSDT"] = 11
	r.exchange.closePrice["BBBUSDT"] = 12

	closed := r.engine.expirePositions(context.Background())

	require.Len(t, closed, 2)
	assert.Equal(t, 2.0, closed[0].PNL)
	assert.Equal(t, -2.0, closed[1].PNL)
	require.Len(t, r.notifier.messages, 1)
	assert.Contains(t, r.notifier.messages[0], "AAAUSDT pnl 2.00 USDT")
	assert.Contains(t, r.notifier.messages[0], "BBBUSDT pnl -2.00 USDT")
	assert.Contains(t, r.notifier.messages[0], "Total PnL: 0.00 USDT")

	stored := r.store.stored(t)
	require.Len(t, stored.Current, 1)
	assert.Equal(t, "CCCUSDT", stored.Current[0].Symbol)
	assert.Equal(t, 4, stored.Current[0].HoldBars)
}

func TestExpiry_CloseFailureLeavesPositionUnchanged(t *testing.T) {
	r := newTestRig(t, testConfig())
	pos := openPosition("ETHUSDT", domain.Long, 100, 1)
	pos.HoldBars = 10
	r.store.seed(t, pos)
	r.load(t)
	r.exchange.closeErr["ETHUSDT"] = ports.ErrExchangeUnavailable

	closed := r.engine.expirePositions(context.Background())

	assert.Empty(t, closed)
	assert.Empty(t, r.notifier.messages)
	require.Len(t, r.engine.snapshot.Current, 1)
	assert.Equal(t, 10, r.engine.snapshot.Current[0].HoldBars)
	assert.Empty(t, r.engine.snapshot.History)
	assert.Contains(t, r.logger.errorMsgs, "closePosition: exchange close failed")
}
