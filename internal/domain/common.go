package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// PositionSide is the directional stance of a position.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
	// Both is reported by the exchange for one-way mode accounts.
	Both PositionSide = "BOTH"
)

// EntrySide returns the order side that opens a position of this side.
func (p PositionSide) EntrySide() OrderSide {
	if p == Short {
		return Sell
	}
	return Buy
}

// ExitSide returns the order side that reduces a position of this side.
func (p PositionSide) ExitSide() OrderSide {
	if p == Short {
		return Buy
	}
	return Sell
}

// OrderType mirrors the futures order types the engine submits.
type OrderType string

const (
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonExpired     CloseReason = "expired"
	CloseReasonUnprotected CloseReason = "unprotected"
	CloseReasonManual      CloseReason = "manual"
)
