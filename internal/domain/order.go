package domain

// OrderRequest is a fully formatted order ready for submission.
// Quantity, Price and StopPrice are precision-correct strings produced by the gateway.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	PositionSide  PositionSide
	Type          OrderType
	Quantity      string
	Price         string
	StopPrice     string
	ClientOrderID string
	ReduceOnly    bool // Exit orders; only sent for one-way mode accounts
}

// PlacedOrder is the exchange acknowledgement of an accepted order.
type PlacedOrder struct {
	OrderID       int64
	Symbol        string
	ClientOrderID string
	PositionSide  PositionSide
	Price         float64
	AvgPrice      float64
	OrigQuantity  float64
	Status        string
	Type          string
}

// Filled reports whether the exchange filled the order at placement.
func (o *PlacedOrder) Filled() bool {
	return o.Status == "FILLED"
}

// ExchangePosition is the exchange-reported amount for one symbol and side.
// Amount is signed: negative for shorts in one-way mode.
type ExchangePosition struct {
	Symbol       string
	PositionSide PositionSide
	Amount       float64
	EntryPrice   float64
}

// Open reports whether the exchange holds a non-zero amount.
func (p ExchangePosition) Open() bool {
	return p.Amount != 0
}

// Covers reports whether this exchange row describes a local position on symbol and side.
func (p ExchangePosition) Covers(symbol string, side PositionSide) bool {
	if p.Symbol != symbol {
		return false
	}
	if p.PositionSide == side {
		return true
	}
	if p.PositionSide == Both {
		return (side == Long && p.Amount > 0) || (side == Short && p.Amount < 0)
	}
	return false
}

// Side resolves the directional side, translating one-way mode rows by sign.
func (p ExchangePosition) Side() PositionSide {
	if p.PositionSide != Both && p.PositionSide != "" {
		return p.PositionSide
	}
	if p.Amount < 0 {
		return Short
	}
	return Long
}

// OpenOrder is a resting order reported by the exchange.
type OpenOrder struct {
	OrderID      int64
	Symbol       string
	Type         OrderType
	Side         OrderSide
	PositionSide PositionSide
}

// Protects reports whether the order is a stop-loss for symbol on side.
// Orders that carry no position side (one-way mode) match on symbol only.
func (o OpenOrder) Protects(symbol string, side PositionSide) bool {
	if o.Type != OrderTypeStopMarket || o.Symbol != symbol {
		return false
	}
	return o.PositionSide == "" || o.PositionSide == Both || o.PositionSide == side
}
