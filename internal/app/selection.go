package app

import (
	"context"
	"fmt"
	"strings"

	"cryptoLifecycleBot/internal/domain"
)

// entryPhase runs market data, signals, selection and the orchestrator.
// Any short-circuit records its reason and leaves the reconciliation tail to run.
func (e *Engine) entryPhase(ctx context.Context, report *CycleReport) {
	reference, err := e.exchange.GetKlines(ctx, e.cfg.ReferenceSymbol, e.cfg.ReferenceInterval, e.cfg.ReferenceLimit)
	if err != nil || len(reference) == 0 {
		e.logger.Warn(ctx, "No reference data, skipping entries", map[string]interface{}{
			"symbol": e.cfg.ReferenceSymbol,
			"error":  errString(err),
		})
		report.Skipped = "no reference data"
		return
	}

	report.Global = e.evaluateGlobal(ctx, reference)
	e.logger.Info(ctx, "Global signal evaluated", map[string]interface{}{"signal": report.Global})
	if !report.Global.Definite() && e.cfg.RequireGlobalSignal {
		report.Skipped = "no global signal"
		return
	}

	movers, err := e.exchange.GetTopMovers(ctx, e.cfg.MoversLimit)
	if err != nil {
		e.logger.Error(ctx, err, "Failed to fetch top movers, skipping entries")
		report.Skipped = "no movers"
		return
	}
	shortlist := filterMovers(movers, e.cfg.Blacklist, e.cfg.MinQuoteVolume, e.cfg.MaxCandidates)
	if len(shortlist) == 0 {
		e.logger.Info(ctx, "No movers passed the filter", map[string]interface{}{"movers": len(movers)})
		report.Skipped = "no movers"
		return
	}

	report.Candidates = e.selectCandidates(ctx, reference, report.Global, shortlist)
	if len(report.Candidates) == 0 {
		e.logger.Info(ctx, "No candidates this cycle", map[string]interface{}{"shortlist": len(shortlist)})
		report.Skipped = "no candidates"
		return
	}

	report.Entry = e.openPositions(ctx, report.Candidates)
}

// filterMovers applies the blacklist and volume floor, then keeps the first limit movers.
// Input rank is preserved.
func filterMovers(movers []domain.Mover, blacklist []string, minQuoteVolume float64, limit int) []domain.Mover {
	banned := make(map[string]struct{}, len(blacklist))
	for _, s := range blacklist {
		banned[strings.ToUpper(s)] = struct{}{}
	}

	out := make([]domain.Mover, 0, limit)
	for _, m := range movers {
		if len(out) >= limit {
			break
		}
		if _, ok := banned[strings.ToUpper(m.Symbol)]; ok {
			continue
		}
		if m.QuoteVolume < minQuoteVolume {
			continue
		}
		out = append(out, m)
	}
	return out
}

// selectCandidates evaluates each shortlisted symbol and keeps those whose signal agrees
// with the global direction.
func (e *Engine) selectCandidates(ctx context.Context, reference []*domain.Kline, global domain.Signal, shortlist []domain.Mover) []domain.Candidate {
	var candidates []domain.Candidate
	for _, m := range shortlist {
		fields := map[string]interface{}{"symbol": m.Symbol}

		if e.snapshot.Holds(m.Symbol) {
			e.logger.Debug(ctx, "Already holding symbol, skipping", fields)
			continue
		}
		if e.inCooldown(m.Symbol) {
			e.logger.Debug(ctx, "Symbol in cooldown, skipping", fields)
			continue
		}

		klines, err := e.exchange.GetKlines(ctx, m.Symbol, e.cfg.CandidateInterval, e.cfg.CandidateLimit)
		if err != nil || len(klines) == 0 {
			fields["error"] = errString(err)
			e.logger.Warn(ctx, "No klines for candidate, skipping", fields)
			continue
		}

		signal := e.evaluateSymbol(ctx, m.Symbol, reference, klines)
		if !signal.Definite() {
			continue
		}
		if global.Definite() && signal != global {
			fields["signal"] = signal
			fields["global"] = global
			e.logger.Debug(ctx, "Signal disagrees with global direction, skipping", fields)
			continue
		}
		candidates = append(candidates, domain.Candidate{Symbol: m.Symbol, Direction: signal.Side()})
	}
	return candidates
}

// evaluateGlobal never fails: errors and panics yield NONE.
func (e *Engine) evaluateGlobal(ctx context.Context, reference []*domain.Kline) (signal domain.Signal) {
	signal = domain.SignalNone
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(ctx, fmt.Errorf("panic: %v", r), "Global evaluation panicked")
			signal = domain.SignalNone
		}
	}()

	ind, err := e.evaluator.Indicators(ctx, reference, nil)
	if err != nil {
		e.logger.Warn(ctx, "Global indicators failed", map[string]interface{}{"error": err.Error()})
		ind = domain.Indicators{}
	}
	s, err := e.evaluator.EvaluateGlobal(ctx, reference, ind)
	if err != nil {
		e.logger.Warn(ctx, "Global evaluation failed", map[string]interface{}{"error": err.Error()})
		return domain.SignalNone
	}
	if !s.Definite() {
		return domain.SignalNone
	}
	return s
}

// evaluateSymbol never fails: errors and panics reject the candidate.
func (e *Engine) evaluateSymbol(ctx context.Context, symbol string, reference, klines []*domain.Kline) (signal domain.Signal) {
	signal = domain.SignalNone
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(ctx, fmt.Errorf("panic: %v", r), "Symbol evaluation panicked", map[string]interface{}{"symbol": symbol})
			signal = domain.SignalNone
		}
	}()

	ind, err := e.evaluator.Indicators(ctx, reference, klines)
	if err != nil {
		e.logger.Warn(ctx, "Indicators failed", map[string]interface{}{"symbol": symbol, "error": err.Error()})
		ind = domain.Indicators{}
	}
	s, err := e.evaluator.EvaluateSymbol(ctx, reference, klines, ind)
	if err != nil {
		e.logger.Warn(ctx, "Symbol evaluation failed", map[string]interface{}{"symbol": symbol, "error": err.Error()})
		return domain.SignalNone
	}
	if !s.Definite() {
		return domain.SignalNone
	}
	return s
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
