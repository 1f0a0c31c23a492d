package domain

import (
	"math"
	"time"
)

// Position is a position opened by the engine and tracked in the position store.
// While open it lives in Snapshot.Current; once closed it is moved to Snapshot.History.
type Position struct {
	Symbol        string       `json:"symbol"`
	PositionSide  PositionSide `json:"position_side"`
	EntryTime     time.Time    `json:"entry_time"`
	ExitTime      *time.Time   `json:"exit_time,omitempty"`
	EntryPrice    float64      `json:"entry_price"`
	ExitPrice     float64      `json:"exit_price,omitempty"`
	Quantity      float64      `json:"quantity"`
	OrderID       int64        `json:"order_id"`
	ClientOrderID string       `json:"client_order_id"`

	// Elapsed and maximum holding period, counted in scheduler cycles.
	HoldBars    int `json:"hold_bars"`
	MaxHoldBars int `json:"max_hold_bars"`

	// Percentages relative to the entry price.
	TakeProfitRatio float64 `json:"take_profit_ratio"`
	StopLossRatio   float64 `json:"stop_loss_ratio"`

	// Protective orders in placement order. Either list may be empty.
	StopLossOrderIDs   []int64 `json:"stop_loss_order_ids"`
	TakeProfitOrderIDs []int64 `json:"take_profit_order_ids"`

	ExitReason CloseReason `json:"exit_reason,omitempty"`
	PNL        float64     `json:"pnl,omitempty"`
}

// Expired reports whether the position reached its holding limit.
func (p *Position) Expired() bool {
	return p.HoldBars >= p.MaxHoldBars
}

// Matches reports whether the position is the one held for symbol on side.
func (p *Position) Matches(symbol string, side PositionSide) bool {
	return p.Symbol == symbol && p.PositionSide == side
}

// RealizedPNL computes the quote-currency result of exiting at exitPrice, rounded to cents.
func (p *Position) RealizedPNL(exitPrice float64) float64 {
	diff := exitPrice - p.EntryPrice
	if p.PositionSide == Short {
		diff = -diff
	}
	return math.Round(diff*p.Quantity*100) / 100
}

// StopLossPrice returns the stop trigger for the given percentage.
func StopLossPrice(side PositionSide, entry, pct float64) float64 {
	if side == Short {
		return entry * (1 + pct/100)
	}
	return entry * (1 - pct/100)
}

// TakeProfitPrice returns the take-profit limit for the given percentage.
func TakeProfitPrice(side PositionSide, entry, pct float64) float64 {
	if side == Short {
		return entry * (1 - pct/100)
	}
	return entry * (1 + pct/100)
}

// Snapshot is the whole persisted position state.
type Snapshot struct {
	Current []*Position `json:"current"`
	History []*Position `json:"history"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{Current: []*Position{}, History: []*Position{}}
}

// Holds reports whether any current position is on symbol.
func (s *Snapshot) Holds(symbol string) bool {
	for _, p := range s.Current {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

// Find returns the current position for symbol and side, or nil.
func (s *Snapshot) Find(symbol string, side PositionSide) *Position {
	for _, p := range s.Current {
		if p.Matches(symbol, side) {
			return p
		}
	}
	return nil
}

// Remove drops pos from Current, returning false if it was not there.
func (s *Snapshot) Remove(pos *Position) bool {
	for i, p := range s.Current {
		if p == pos {
			s.Current = append(s.Current[:i], s.Current[i+1:]...)
			return true
		}
	}
	return false
}

// CloseSummary is what a successful close reports to notifications.
type CloseSummary struct {
	Symbol string
	Reason CloseReason
	PNL    float64
}
