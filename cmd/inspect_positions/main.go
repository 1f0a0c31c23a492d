package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"cryptoLifecycleBot/internal/adapters/filestore"
	"cryptoLifecycleBot/internal/adapters/logger"
	"cryptoLifecycleBot/internal/adapters/sqlite"
	"cryptoLifecycleBot/internal/domain"
	"cryptoLifecycleBot/internal/utils"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	positionsPath := flag.String("positions", envOr("POSITIONS_PATH", "./data/positions.json"), "position snapshot file")
	journalPath := flag.String("journal", envOr("JOURNAL_PATH", "./data/trades.db"), "trade journal database")
	history := flag.Bool("history", false, "also list closed positions from the snapshot")
	symbol := flag.String("symbol", "", "export journaled trades for this symbol instead of snapshot positions")
	limit := flag.Int("limit", 100, "maximum trades to export")
	csvPath := flag.String("csv", "", "write a CSV export to this file")
	flag.Parse()

	ctx := context.Background()
	appLogger := logger.NewStdLogger(logger.ParseLevel(envOr("LOG_LEVEL", "WARN")))

	// 1. Position snapshot
	store, err := filestore.NewStore(filestore.Config{Path: *positionsPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("Failed to open position store: %v", err)
	}
	snap, err := store.Load(ctx)
	if err != nil {
		log.Fatalf("Failed to load positions: %v", err)
	}

	fmt.Printf("Open positions (%d)\n", len(snap.Current))
	printPositions(snap.Current)
	if *history {
		fmt.Printf("\nClosed positions (%d)\n", len(snap.History))
		printPositions(snap.History)
	}

	// 2. Trade journal
	journal, err := sqlite.NewRepository(sqlite.Config{DBPath: *journalPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("Failed to open trade journal: %v", err)
	}
	defer journal.Close()

	total, err := journal.GetTotalProfit(ctx)
	if err != nil {
		log.Fatalf("Failed to read total profit: %v", err)
	}
	fmt.Printf("\nJournaled total PnL: %.2f USDT\n", total)

	summary, err := journal.SummarizeByReason(ctx)
	if err != nil {
		log.Fatalf("Failed to summarize trades: %v", err)
	}
	printSummary(summary)

	if *csvPath == "" {
		return
	}

	// 3. Optional CSV export
	f, err := os.Create(*csvPath)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *csvPath, err)
	}
	defer f.Close()

	if *symbol == "" {
		positions := append(append([]*domain.Position{}, snap.Current...), snap.History...)
		if err := utils.WritePositionsToCSV(positions, f); err != nil {
			log.Fatalf("Failed to write positions: %v", err)
		}
		fmt.Printf("Exported %d positions to %s\n", len(positions), *csvPath)
		return
	}

	trades, err := journal.FindBySymbol(ctx, *symbol, *limit)
	if err != nil {
		log.Fatalf("Failed to read trades for %s: %v", *symbol, err)
	}
	if err := utils.WriteTradesToCSV(trades, f); err != nil {
		log.Fatalf("Failed to write trades: %v", err)
	}
	fmt.Printf("Exported %d %s trades to %s\n", len(trades), *symbol, *csvPath)
}

func printPositions(positions []*domain.Position) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tSIDE\tENTRY\tQTY\tBARS\tSL\tTP\tREASON\tPNL")
	for _, p := range positions {
		fmt.Fprintf(w, "%s\t%s\t%g\t%g\t%d/%d\t%d\t%d\t%s\t%.2f\n",
			p.Symbol, p.PositionSide, p.EntryPrice, p.Quantity, p.HoldBars, p.MaxHoldBars,
			len(p.StopLossOrderIDs), len(p.TakeProfitOrderIDs), p.ExitReason, p.PNL)
	}
	w.Flush()
}

func printSummary(rows []domain.ReasonSummary) {
	if len(rows) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REASON\tTRADES\tWIN%\tPNL")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%d\t%.0f\t%.2f\n", r.Reason, r.Trades, r.WinRate()*100, r.PNL)
	}
	w.Flush()
}
