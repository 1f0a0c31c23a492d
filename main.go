package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"cryptoLifecycleBot/config"
	"cryptoLifecycleBot/internal/adapters/binanceclient"
	"cryptoLifecycleBot/internal/adapters/filestore"
	"cryptoLifecycleBot/internal/adapters/logger"
	"cryptoLifecycleBot/internal/adapters/metrics"
	"cryptoLifecycleBot/internal/adapters/sqlite"
	"cryptoLifecycleBot/internal/adapters/webhook"
	"cryptoLifecycleBot/internal/app"
	"cryptoLifecycleBot/internal/ports"
	"cryptoLifecycleBot/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
		RateLimit:  cfg.ExchangeRateLimit,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized", map[string]interface{}{"testnet": cfg.IsTestnet})

	// 4. Initialize Position Store (JSON snapshot)
	store, err := filestore.NewStore(filestore.Config{
		Path:   cfg.PositionsPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize position store")
		log.Fatalf("FATAL: Failed to initialize position store: %v", err)
	}
	appLogger.Info(context.Background(), "Position store initialized", map[string]interface{}{"path": cfg.PositionsPath})

	// 5. Initialize Trade Journal (Database Adapter)
	journal, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.JournalPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trade journal")
		log.Fatalf("FATAL: Failed to initialize trade journal: %v", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing trade journal")
		}
	}()
	appLogger.Info(context.Background(), "Trade journal initialized")

	// 6. Initialize Notifier and Metrics
	notifier := webhook.New(cfg.WebhookURL)
	if !notifier.Enabled() {
		appLogger.Warn(context.Background(), "WEBHOOK_URL not set, notifications disabled")
	}
	var engineMetrics ports.Metrics = ports.NopMetrics{}
	var promMetrics *metrics.Prometheus
	if cfg.MetricsAddr != "" {
		promMetrics = metrics.New(nil)
		engineMetrics = promMetrics
	}

	// 7. Initialize Strategy
	strat, err := strategy.New(strategy.Config{
		EMAPeriod:     cfg.StrategyEMAPeriod,
		GlobalMode:    cfg.StrategyGlobalMode,
		RSIPeriod:     cfg.StrategyRSIPeriod,
		RSIOverbought: cfg.StrategyRSIOverbought,
		RSIOversold:   cfg.StrategyRSIOversold,
	}, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize strategy")
		log.Fatalf("FATAL: Failed to initialize strategy: %v", err)
	}
	appLogger.Info(context.Background(), "Strategy initialized", map[string]interface{}{
		"emaPeriod":  cfg.StrategyEMAPeriod,
		"globalMode": cfg.StrategyGlobalMode,
		"rsiPeriod":  cfg.StrategyRSIPeriod,
	})

	// 8. Initialize Lifecycle Engine
	engine, err := app.NewEngine(cfg, appLogger, binanceClient, store, strat,
		app.WithJournal(journal),
		app.WithNotifier(notifier),
		app.WithMetrics(engineMetrics),
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize lifecycle engine")
		log.Fatalf("FATAL: Failed to initialize lifecycle engine: %v", err)
	}

	// 9. Setup Signal Handling for Graceful Shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunOnce {
		appLogger.Info(ctx, "Running a single cycle")
		if _, err := engine.RunCycle(ctx); err != nil {
			appLogger.Error(ctx, err, "Cycle failed")
			log.Fatalf("FATAL: Cycle failed: %v", err)
		}
		return
	}

	// 10. Run the scheduler and the metrics endpoint side by side
	g, gctx := errgroup.WithContext(ctx)
	scheduler := app.NewScheduler(cfg, engine, appLogger, engineMetrics)
	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	if promMetrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promMetrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			appLogger.Info(gctx, "Metrics server listening", map[string]interface{}{"addr": cfg.MetricsAddr})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	appLogger.Info(ctx, "Bot started. Press Ctrl+C to stop.")
	if err := g.Wait(); err != nil {
		appLogger.Error(context.Background(), err, "Bot stopped with error")
		return
	}
	appLogger.Info(context.Background(), "Bot shut down gracefully.")
}
