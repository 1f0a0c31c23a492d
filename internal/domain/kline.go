package domain

import "time"

// Kline represents a single candlestick data point.
type Kline struct {
	OpenTime  time.Time // Start time of the interval
	CloseTime time.Time // End time of the interval
	Symbol    string    // Trading symbol
	Interval  string    // Kline interval (e.g., "1m", "5m")
	Open      float64   // Opening price
	High      float64   // Highest price
	Low       float64   // Lowest price
	Close     float64   // Closing price
	Volume    float64   // Trading volume
	IsFinal   bool      // Whether this kline is the final one for the interval
}

// Bullish reports whether the bar closed above its open.
func (k *Kline) Bullish() bool {
	return k.Close > k.Open
}

// Bearish reports whether the bar closed below its open.
func (k *Kline) Bearish() bool {
	return k.Close < k.Open
}

// Mover is one entry of the 24h ranking returned by the exchange.
type Mover struct {
	Symbol             string
	PriceChangePercent float64
	LastPrice          float64
	QuoteVolume        float64
}
