package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cryptoLifecycleBot/config"
	"cryptoLifecycleBot/internal/domain"
	"cryptoLifecycleBot/internal/ports"
)

// Engine runs the position lifecycle one cycle at a time.
// It owns all mutable in-process state: the snapshot loaded at cycle start and the
// per-symbol cooldown map. Both live until the process restarts.
type Engine struct {
	cfg       *config.Config
	logger    ports.Logger
	exchange  ports.ExchangeClient
	store     ports.PositionStore
	evaluator ports.SignalEvaluator
	journal   ports.TradeJournal
	notifier  ports.Notifier
	metrics   ports.Metrics

	snapshot  *domain.Snapshot
	cooldowns map[string]time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithJournal appends every closed position to j.
func WithJournal(j ports.TradeJournal) Option { return func(e *Engine) { e.journal = j } }

// WithNotifier sends operator messages through n.
func WithNotifier(n ports.Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithMetrics reports engine events to m.
func WithMetrics(m ports.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithClock replaces the wall clock and the blocking sleep, for tests.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(e *Engine) {
		e.now = now
		e.sleep = sleep
	}
}

// NewEngine creates the lifecycle engine.
func NewEngine(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	store ports.PositionStore,
	evaluator ports.SignalEvaluator,
	opts ...Option,
) (*Engine, error) {
	if cfg == nil || logger == nil || exchange == nil || store == nil || evaluator == nil {
		return nil, fmt.Errorf("missing required dependencies for Engine")
	}
	if cfg.MaxOpenPositions <= 0 {
		return nil, fmt.Errorf("configuration MaxOpenPositions must be positive")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("configuration BatchSize must be positive")
	}
	if cfg.NotionalPerEntry <= 0 {
		return nil, fmt.Errorf("configuration NotionalPerEntry must be positive")
	}
	if cfg.StopLossPct <= 0 {
		return nil, fmt.Errorf("configuration StopLossPct must be positive")
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		exchange:  exchange,
		store:     store,
		evaluator: evaluator,
		metrics:   ports.NopMetrics{},
		snapshot:  domain.NewSnapshot(),
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
		sleep:     time.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// CycleReport summarizes what one cycle did.
type CycleReport struct {
	CycleID    string
	Expired    []*domain.CloseSummary
	Global     domain.Signal
	Candidates []domain.Candidate
	Entry      *EntryReport
	Skipped    string // why the entry phase ended early, if it did
	Reconcile  *ReconcileReport
}

// RunCycle executes reload, expiry, entry and reconciliation in that order.
// Only a failed reload aborts the cycle; every other failure is logged and the cycle continues.
func (e *Engine) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{CycleID: uuid.NewString(), Global: domain.SignalNone}
	ctx = ports.WithCycleID(ctx, report.CycleID)
	start := e.now()
	e.logger.Info(ctx, "Cycle started")

	// 1. Reload the snapshot; operator edits made between cycles take effect here
	snap, err := e.store.Load(ctx)
	if err != nil {
		e.logger.Error(ctx, err, "Failed to load positions, aborting cycle")
		e.metrics.CycleCompleted("aborted", e.now().Sub(start).Seconds())
		return report, fmt.Errorf("reload positions: %w", err)
	}
	e.snapshot = snap

	// 2. Expire positions held for too long
	report.Expired = e.expirePositions(ctx)

	// 3. Signals, selection and entries
	e.entryPhase(ctx, report)

	// 4. Let fills settle, then reconcile against the exchange
	if e.cfg.SettleDelay > 0 {
		e.sleep(e.cfg.SettleDelay)
	}
	report.Reconcile = e.reconcile(ctx)

	e.metrics.OpenPositions(len(e.snapshot.Current))
	e.metrics.CycleCompleted("ok", e.now().Sub(start).Seconds())
	e.logger.Info(ctx, "Cycle completed", map[string]interface{}{
		"expired":    len(report.Expired),
		"global":     report.Global,
		"candidates": len(report.Candidates),
		"skipped":    report.Skipped,
		"open":       len(e.snapshot.Current),
		"duration":   e.now().Sub(start).String(),
	})
	return report, nil
}

// Snapshot returns the state as of the last cycle.
func (e *Engine) Snapshot() *domain.Snapshot {
	return e.snapshot
}

// save persists the whole snapshot, logging failures.
func (e *Engine) save(ctx context.Context, step string) bool {
	if err := e.store.Save(ctx, e.snapshot); err != nil {
		e.logger.Error(ctx, err, "Failed to save positions", map[string]interface{}{"step": step})
		return false
	}
	return true
}

// tracked reports whether pos is still an open position of the snapshot.
func (e *Engine) tracked(pos *domain.Position) bool {
	for _, p := range e.snapshot.Current {
		if p == pos {
			return true
		}
	}
	return false
}

func (e *Engine) inCooldown(symbol string) bool {
	if e.cfg.CooldownMinutes <= 0 {
		return false
	}
	last, ok := e.cooldowns[symbol]
	if !ok {
		return false
	}
	return e.now().Sub(last) < time.Duration(e.cfg.CooldownMinutes)*time.Minute
}

// notify delivers text best-effort; failures never reach the trading path.
func (e *Engine) notify(ctx context.Context, text string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(ctx, text); err != nil {
		e.logger.Warn(ctx, "Notification failed", map[string]interface{}{"error": err.Error()})
	}
}

func (e *Engine) timestamp() string {
	return e.now().Format("2006-01-02 15:04:05")
}

// closeMessage renders an aggregated close notification.
func (e *Engine) closeMessage(title string, closed []*domain.CloseSummary) string {
	var sb strings.Builder
	total := 0.0
	sb.WriteString(title + ":\n")
	for _, c := range closed {
		sb.WriteString(fmt.Sprintf("%s pnl %.2f USDT\n", c.Symbol, c.PNL))
		total += c.PNL
	}
	sb.WriteString(fmt.Sprintf("Total PnL: %.2f USDT --- %s", total, e.timestamp()))
	return sb.String()
}
