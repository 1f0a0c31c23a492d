package domain

import "time"

// Trade represents a completed round trip, appended to the trade journal on close.
type Trade struct {
	ID            int64        // Unique identifier for the trade (usually from DB)
	Symbol        string       // Trading symbol (e.g., "ETHUSDT")
	PositionSide  PositionSide // LONG or SHORT
	EntryPrice    float64      // Price at which the position was entered
	ExitPrice     float64      // Price at which the position was exited
	Quantity      float64      // Size of the position traded
	PNL           float64      // Profit and Loss for this trade
	EntryTime     time.Time    // Timestamp when the position was entered
	ExitTime      time.Time    // Timestamp when the position was exited
	HoldBars      int          // Cycles the position was held
	ClientOrderID string       // Client ID of the entry order
	CloseReason   CloseReason  // Reason why the position was closed
}

// TradeFromPosition builds the journal record for a closed position.
func TradeFromPosition(p *Position) *Trade {
	t := &Trade{
		Symbol:        p.Symbol,
		PositionSide:  p.PositionSide,
		EntryPrice:    p.EntryPrice,
		ExitPrice:     p.ExitPrice,
		Quantity:      p.Quantity,
		PNL:           p.PNL,
		EntryTime:     p.EntryTime,
		HoldBars:      p.HoldBars,
		ClientOrderID: p.ClientOrderID,
		CloseReason:   p.ExitReason,
	}
	if p.ExitTime != nil {
		t.ExitTime = *p.ExitTime
	}
	return t
}

// ReasonSummary aggregates journaled trades that share a close reason.
type ReasonSummary struct {
	Reason CloseReason
	Trades int
	Wins   int
	PNL    float64
}

// WinRate is Wins/Trades, 0 when there are no trades.
func (s ReasonSummary) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}
