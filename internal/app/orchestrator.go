package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"cryptoLifecycleBot/internal/domain"
	"cryptoLifecycleBot/internal/ports"
)

// OutcomeStatus is the fate of one order the orchestrator attempted.
type OutcomeStatus string

const (
	OutcomePlaced  OutcomeStatus = "placed"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

const (
	kindStopLoss   = "stop_loss"
	kindTakeProfit = "take_profit"
)

// OrderOutcome records what happened to one entry or protective order.
type OrderOutcome struct {
	Symbol    string
	Direction domain.PositionSide
	Status    OutcomeStatus
	Reason    string
	OrderID   int64
	Filled    bool
	Err       error
}

// EntryReport aggregates the orchestrator's results for one cycle.
type EntryReport struct {
	Rejected    string // set when the whole phase was refused
	Entries     []OrderOutcome
	StopLosses  []OrderOutcome
	TakeProfits []OrderOutcome
	Opened      []*domain.Position
}

// Count returns how many outcomes in list have status.
func Count(list []OrderOutcome, status OutcomeStatus) int {
	n := 0
	for _, o := range list {
		if o.Status == status {
			n++
		}
	}
	return n
}

type pendingOrder struct {
	symbol    string
	direction domain.PositionSide
	req       domain.OrderRequest
}

// openPositions places entries for candidates within capacity and protects what opened.
func (e *Engine) openPositions(ctx context.Context, candidates []domain.Candidate) *EntryReport {
	report := &EntryReport{}
	open := len(e.snapshot.Current)
	if open >= e.cfg.MaxOpenPositions {
		report.Rejected = fmt.Sprintf("max open positions reached (%d/%d)", open, e.cfg.MaxOpenPositions)
		e.logger.Info(ctx, "Max open positions reached, no entries", map[string]interface{}{
			"open": open,
			"max":  e.cfg.MaxOpenPositions,
		})
		return report
	}

	eligible := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if e.inCooldown(c.Symbol) {
			report.Entries = append(report.Entries, OrderOutcome{
				Symbol: c.Symbol, Direction: c.Direction, Status: OutcomeSkipped, Reason: "cooldown",
			})
			continue
		}
		eligible = append(eligible, c)
	}
	if room := e.cfg.MaxOpenPositions - open; len(eligible) > room {
		e.logger.Info(ctx, "Truncating candidates to capacity", map[string]interface{}{
			"candidates": len(eligible),
			"room":       room,
		})
		eligible = eligible[:room]
	}

	var pending []pendingOrder
	for _, c := range eligible {
		req, reason, err := e.buildEntryOrder(ctx, c)
		if reason != "" {
			e.logger.Warn(ctx, "Skipping entry", map[string]interface{}{
				"symbol": c.Symbol,
				"reason": reason,
				"error":  errString(err),
			})
			report.Entries = append(report.Entries, OrderOutcome{
				Symbol: c.Symbol, Direction: c.Direction, Status: OutcomeSkipped, Reason: reason, Err: err,
			})
			e.metrics.EntryOrder(string(OutcomeSkipped))
			continue
		}
		pending = append(pending, pendingOrder{symbol: c.Symbol, direction: c.Direction, req: req})
	}

	for _, batch := range batches(pending, e.cfg.BatchSize) {
		e.submitEntries(ctx, batch, report)
	}
	if len(report.Opened) == 0 {
		return report
	}

	e.pause()
	report.StopLosses = e.protect(ctx, report.Opened, kindStopLoss)
	if e.cfg.TakeProfitPct > 0 {
		e.pause()
		report.TakeProfits = e.protect(ctx, report.Opened, kindTakeProfit)
	}

	e.notifyFilled(ctx, report.Entries)
	return report
}

// buildEntryOrder prices and sizes one entry. A non-empty reason means skip.
func (e *Engine) buildEntryOrder(ctx context.Context, c domain.Candidate) (domain.OrderRequest, string, error) {
	price, err := e.exchange.GetTickerPrice(ctx, c.Symbol)
	if err != nil {
		return domain.OrderRequest{}, "no live price", err
	}

	qty, err := e.exchange.FormatQuantity(ctx, c.Symbol, e.cfg.NotionalPerEntry/price)
	if err != nil {
		return domain.OrderRequest{}, "quantity formatting failed", err
	}
	if isZeroAmount(qty) {
		return domain.OrderRequest{}, "quantity rounds to zero", nil
	}

	limit := price * (1 + e.cfg.EntrySpreadPct/100)
	if c.Direction == domain.Short {
		limit = price * (1 - e.cfg.EntrySpreadPct/100)
	}
	limitStr, err := e.exchange.FormatPrice(ctx, c.Symbol, limit)
	if err != nil {
		return domain.OrderRequest{}, "price formatting failed", err
	}

	return domain.OrderRequest{
		Symbol:        c.Symbol,
		Side:          c.Direction.EntrySide(),
		PositionSide:  c.Direction,
		Type:          domain.OrderTypeLimit,
		Quantity:      qty,
		Price:         limitStr,
		ClientOrderID: fmt.Sprintf("QUANT_%s_%d", c.Symbol, e.now().UnixMilli()),
	}, "", nil
}

// submitEntries places one batch of entries and records every accepted order as a position.
func (e *Engine) submitEntries(ctx context.Context, batch []pendingOrder, report *EntryReport) {
	reqs := requestsOf(batch)
	results, err := e.exchange.PlaceBatchOrders(ctx, reqs)
	if err != nil {
		e.logger.Error(ctx, err, "Entry batch rejected", map[string]interface{}{"orders": len(batch)})
		for _, p := range batch {
			report.Entries = append(report.Entries, OrderOutcome{
				Symbol: p.symbol, Direction: p.direction, Status: OutcomeFailed, Reason: "batch rejected", Err: err,
			})
			e.metrics.EntryOrder(string(OutcomeFailed))
		}
		return
	}

	opened := 0
	for i, p := range batch {
		res := resultAt(results, i)
		if !res.Accepted() {
			e.logger.Warn(ctx, "Entry order not accepted", map[string]interface{}{
				"symbol": p.symbol,
				"error":  errString(res.Err),
			})
			report.Entries = append(report.Entries, OrderOutcome{
				Symbol: p.symbol, Direction: p.direction, Status: OutcomeFailed, Reason: "order rejected", Err: res.Err,
			})
			e.metrics.EntryOrder(string(OutcomeFailed))
			continue
		}

		pos := e.newPosition(p, res.Order)
		e.snapshot.Current = append(e.snapshot.Current, pos)
		e.cooldowns[p.symbol] = e.now()
		report.Opened = append(report.Opened, pos)
		report.Entries = append(report.Entries, OrderOutcome{
			Symbol: p.symbol, Direction: p.direction, Status: OutcomePlaced,
			OrderID: res.Order.OrderID, Filled: res.Order.Filled(),
		})
		e.metrics.EntryOrder(string(OutcomePlaced))
		e.logger.Info(ctx, "Entry order placed", map[string]interface{}{
			"symbol":  p.symbol,
			"side":    p.direction,
			"orderID": res.Order.OrderID,
			"status":  res.Order.Status,
			"price":   pos.EntryPrice,
		})
		opened++
	}
	if opened > 0 {
		e.save(ctx, "entry")
	}
}

func (e *Engine) newPosition(p pendingOrder, order *domain.PlacedOrder) *domain.Position {
	entry := order.AvgPrice
	if entry <= 0 {
		entry = order.Price
	}
	if entry <= 0 {
		entry, _ = strconv.ParseFloat(p.req.Price, 64)
	}
	qty := order.OrigQuantity
	if qty <= 0 {
		qty, _ = strconv.ParseFloat(p.req.Quantity, 64)
	}
	clientID := order.ClientOrderID
	if clientID == "" {
		clientID = p.req.ClientOrderID
	}

	return &domain.Position{
		Symbol:             p.symbol,
		PositionSide:       p.direction,
		EntryTime:          e.now().UTC(),
		EntryPrice:         entry,
		Quantity:           qty,
		OrderID:            order.OrderID,
		ClientOrderID:      clientID,
		HoldBars:           1,
		MaxHoldBars:        e.cfg.MaxHoldBars,
		TakeProfitRatio:    e.cfg.TakeProfitPct,
		StopLossRatio:      e.cfg.StopLossPct,
		StopLossOrderIDs:   []int64{},
		TakeProfitOrderIDs: []int64{},
	}
}

// protect places one kind of protective order for every opened position.
// IDs are attached to the owning position and saved after each batch.
func (e *Engine) protect(ctx context.Context, opened []*domain.Position, kind string) []OrderOutcome {
	var outcomes []OrderOutcome
	var pending []pendingOrder
	for _, pos := range opened {
		req, err := e.buildProtectiveOrder(ctx, pos, kind)
		if err != nil {
			e.logger.Error(ctx, err, "Failed to build protective order", map[string]interface{}{"symbol": pos.Symbol, "kind": kind})
			outcomes = append(outcomes, OrderOutcome{
				Symbol: pos.Symbol, Direction: pos.PositionSide, Status: OutcomeFailed, Reason: "formatting failed", Err: err,
			})
			e.metrics.ProtectiveOrder(kind, string(OutcomeFailed))
			continue
		}
		pending = append(pending, pendingOrder{symbol: pos.Symbol, direction: pos.PositionSide, req: req})
	}

	for _, batch := range batches(pending, e.cfg.BatchSize) {
		results, err := e.exchange.PlaceBatchOrders(ctx, requestsOf(batch))
		if err != nil {
			e.logger.Error(ctx, err, "Protective batch rejected", map[string]interface{}{"kind": kind, "orders": len(batch)})
			for _, p := range batch {
				outcomes = append(outcomes, OrderOutcome{
					Symbol: p.symbol, Direction: p.direction, Status: OutcomeFailed, Reason: "batch rejected", Err: err,
				})
				e.metrics.ProtectiveOrder(kind, string(OutcomeFailed))
			}
			continue
		}

		attached := 0
		for i, p := range batch {
			res := resultAt(results, i)
			if !res.Accepted() {
				e.logger.Warn(ctx, "Protective order not accepted", map[string]interface{}{
					"symbol": p.symbol,
					"kind":   kind,
					"error":  errString(res.Err),
				})
				outcomes = append(outcomes, OrderOutcome{
					Symbol: p.symbol, Direction: p.direction, Status: OutcomeFailed, Reason: "order rejected", Err: res.Err,
				})
				e.metrics.ProtectiveOrder(kind, string(OutcomeFailed))
				continue
			}

			owner := e.snapshot.Find(p.symbol, p.direction)
			if owner == nil {
				e.logger.Warn(ctx, "Protective order placed for untracked position", map[string]interface{}{
					"symbol":  p.symbol,
					"kind":    kind,
					"orderID": res.Order.OrderID,
				})
			} else {
				if kind == kindStopLoss {
					owner.StopLossOrderIDs = append(owner.StopLossOrderIDs, res.Order.OrderID)
				} else {
					owner.TakeProfitOrderIDs = append(owner.TakeProfitOrderIDs, res.Order.OrderID)
				}
				attached++
			}
			outcomes = append(outcomes, OrderOutcome{
				Symbol: p.symbol, Direction: p.direction, Status: OutcomePlaced, OrderID: res.Order.OrderID,
			})
			e.metrics.ProtectiveOrder(kind, string(OutcomePlaced))
		}
		if attached > 0 {
			e.save(ctx, kind)
		}
	}
	return outcomes
}

func (e *Engine) buildProtectiveOrder(ctx context.Context, pos *domain.Position, kind string) (domain.OrderRequest, error) {
	qty, err := e.exchange.FormatQuantity(ctx, pos.Symbol, pos.Quantity)
	if err != nil {
		return domain.OrderRequest{}, err
	}
	req := domain.OrderRequest{
		Symbol:       pos.Symbol,
		Side:         pos.PositionSide.ExitSide(),
		PositionSide: pos.PositionSide,
		Quantity:     qty,
		ReduceOnly:   true,
	}
	millis := e.now().UnixMilli()

	if kind == kindStopLoss {
		stop, err := e.exchange.FormatPrice(ctx, pos.Symbol, domain.StopLossPrice(pos.PositionSide, pos.EntryPrice, e.cfg.StopLossPct))
		if err != nil {
			return domain.OrderRequest{}, err
		}
		req.Type = domain.OrderTypeStopMarket
		req.StopPrice = stop
		req.ClientOrderID = fmt.Sprintf("SL_%s_%d", pos.Symbol, millis)
		return req, nil
	}

	price, err := e.exchange.FormatPrice(ctx, pos.Symbol, domain.TakeProfitPrice(pos.PositionSide, pos.EntryPrice, e.cfg.TakeProfitPct))
	if err != nil {
		return domain.OrderRequest{}, err
	}
	req.Type = domain.OrderTypeLimit
	req.Price = price
	req.ClientOrderID = fmt.Sprintf("TP_%s_%d", pos.Symbol, millis)
	return req, nil
}

// notifyFilled reports entries the exchange filled at placement.
func (e *Engine) notifyFilled(ctx context.Context, entries []OrderOutcome) {
	var filled []string
	for _, o := range entries {
		if o.Status == OutcomePlaced && o.Filled {
			filled = append(filled, fmt.Sprintf("%s(%s)", o.Symbol, o.Direction))
		}
	}
	if len(filled) == 0 {
		return
	}
	e.notify(ctx, fmt.Sprintf("Opened: %s --- %s", strings.Join(filled, ", "), e.timestamp()))
}

func (e *Engine) pause() {
	if e.cfg.ProtectiveDelay > 0 {
		e.sleep(e.cfg.ProtectiveDelay)
	}
}

func batches[T any](items []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

func requestsOf(batch []pendingOrder) []domain.OrderRequest {
	reqs := make([]domain.OrderRequest, len(batch))
	for i, p := range batch {
		reqs[i] = p.req
	}
	return reqs
}

func resultAt(results []ports.BatchOrderResult, i int) ports.BatchOrderResult {
	if i < len(results) {
		r := results[i]
		if r.Err == nil && (r.Order == nil || r.Order.OrderID == 0) {
			r.Err = errors.New("no order id returned")
		}
		return r
	}
	return ports.BatchOrderResult{Err: errors.New("missing result for order")}
}

func isZeroAmount(formatted string) bool {
	d, err := decimal.NewFromString(formatted)
	return err != nil || d.IsZero()
}
