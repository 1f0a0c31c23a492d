package utils

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"cryptoLifecycleBot/internal/domain"
)

// WriteTradesToCSV writes journaled trades, one row per round trip.
func WriteTradesToCSV(trades []*domain.Trade, w io.Writer) error {
	writer := csv.NewWriter(w)

	// Write header
	if err := writer.Write([]string{"symbol", "position_side", "entry_time", "exit_time", "entry_price", "exit_price", "quantity", "pnl", "hold_bars", "close_reason"}); err != nil {
		return err
	}

	for _, t := range trades {
		err := writer.Write([]string{
			t.Symbol,
			string(t.PositionSide),
			t.EntryTime.Format(time.RFC3339),
			t.ExitTime.Format(time.RFC3339),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(t.Quantity, 'f', -1, 64),
			strconv.FormatFloat(t.PNL, 'f', 2, 64),
			strconv.Itoa(t.HoldBars),
			string(t.CloseReason),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WritePositionsToCSV writes open or closed snapshot positions.
func WritePositionsToCSV(positions []*domain.Position, w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"symbol", "position_side", "entry_time", "entry_price", "quantity", "hold_bars", "max_hold_bars", "stop_loss_orders", "take_profit_orders", "exit_reason", "pnl"}); err != nil {
		return err
	}

	for _, p := range positions {
		err := writer.Write([]string{
			p.Symbol,
			string(p.PositionSide),
			p.EntryTime.Format(time.RFC3339),
			strconv.FormatFloat(p.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(p.Quantity, 'f', -1, 64),
			strconv.Itoa(p.HoldBars),
			strconv.Itoa(p.MaxHoldBars),
			strconv.Itoa(len(p.StopLossOrderIDs)),
			strconv.Itoa(len(p.TakeProfitOrderIDs)),
			string(p.ExitReason),
			strconv.FormatFloat(p.PNL, 'f', 2, 64),
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
