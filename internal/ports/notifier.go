package ports

import "context"

// Notifier delivers a plain text message to an operator channel.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Metrics receives engine events for monitoring. All methods must be cheap and non-blocking.
type Metrics interface {
	CycleCompleted(result string, seconds float64)
	EntryOrder(result string)
	ProtectiveOrder(kind, result string)
	PositionClosed(reason string)
	ReconcileAction(action string)
	OpenPositions(n int)
}

// NopMetrics discards every event.
type NopMetrics struct{}

func (NopMetrics) CycleCompleted(string, float64) {}
func (NopMetrics) EntryOrder(string) {}
func (NopMetrics) ProtectiveOrder(string, string) {}
func (NopMetrics) PositionClosed(string) {}
func (NopMetrics) ReconcileAction(string) {}
func (NopMetrics) OpenPositions(int) {}
