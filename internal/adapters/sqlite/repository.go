package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cryptoLifecycleBot/internal/domain"
	"cryptoLifecycleBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.TradeJournal interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Compile-time check
var _ ports.TradeJournal = (*Repository)(nil)

// Config configures NewRepository. An empty DBPath means ./data/trades.db.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (creating if needed) the journal database at cfg.DBPath.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	ctx := context.Background()
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trades.db"
	}
	fail := func(err error) (*Repository, error) {
		cfg.Logger.Error(ctx, err, "SQLite journal initialization failed", map[string]interface{}{"path": dbPath})
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fail(fmt.Errorf("create journal directory: %w", err))
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fail(fmt.Errorf("%w: open %s: %v", ports.ErrDBConnection, dbPath, err))
	}
	// One writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fail(fmt.Errorf("%w: ping %s: %v", ports.ErrDBConnection, dbPath, err))
	}

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(ctx); err != nil {
		db.Close()
		return fail(err)
	}

	cfg.Logger.Info(ctx, "SQLite trade journal opened", map[string]interface{}{"path": dbPath})
	return repo, nil
}

// initializeSchema is idempotent.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trade_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		position_side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		quantity REAL NOT NULL,
		pnl REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		hold_bars INTEGER NOT NULL DEFAULT 0,
		client_order_id TEXT NULL,
		close_reason TEXT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trade_history_symbol_exit_time ON trade_history (symbol, exit_time);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: initialize schema: %v", ports.ErrQueryFailed, err)
	}
	return nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing trade journal")
		return r.db.Close()
	}
	return nil
}

// CreateTrade appends trade and sets trade.ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trade_history (symbol, position_side, entry_price, exit_price, quantity, pnl,
	                           entry_time, exit_time, hold_bars, client_order_id, close_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.Symbol, string(trade.PositionSide), trade.EntryPrice, trade.ExitPrice, trade.Quantity, trade.PNL,
		trade.EntryTime.UTC(), trade.ExitTime.UTC(), trade.HoldBars,
		nullString(trade.ClientOrderID), nullString(string(trade.CloseReason)))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert trade history for symbol %s: %v", ports.ErrQueryFailed, trade.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read id of journaled %s trade: %w", trade.Symbol, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade journaled", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol, "reason": trade.CloseReason, "pnl": trade.PNL})
	return id, nil
}

// FindBySymbol returns up to limit trades for symbol, latest exit first.
func (r *Repository) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, symbol, position_side, entry_price, exit_price, quantity, pnl,
	       entry_time, exit_time, hold_bars, client_order_id, close_reason
	FROM trade_history
	WHERE symbol = ? ORDER BY exit_time DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query trade history for symbol %s: %v", ports.ErrQueryFailed, symbol, err)
	}
	defer rows.Close()

	out := []*domain.Trade{}
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s trade: %w", symbol, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s trades: %w", symbol, err)
	}
	return out, nil
}

// GetTotalProfit sums PNL over every journaled trade.
func (r *Repository) GetTotalProfit(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(pnl), 0) FROM trade_history`
	var total float64
	if err := r.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("%w: failed to calculate total profit: %v", ports.ErrQueryFailed, err)
	}
	return total, nil
}

// SummarizeByReason aggregates the journal per close reason, largest trade count first.
// Rows without a reason are reported under "unknown".
func (r *Repository) SummarizeByReason(ctx context.Context) ([]domain.ReasonSummary, error) {
	const query = `
	SELECT COALESCE(close_reason, 'unknown') AS reason,
	       COUNT(*),
	       SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END),
	       COALESCE(SUM(pnl), 0)
	FROM trade_history
	GROUP BY reason
	ORDER BY COUNT(*) DESC, reason`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: summarize trades: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []domain.ReasonSummary
	for rows.Next() {
		var (
			sum    domain.ReasonSummary
			reason string
		)
		if err := rows.Scan(&reason, &sum.Trades, &sum.Wins, &sum.PNL); err != nil {
			return nil, fmt.Errorf("scan trade summary: %w", err)
		}
		sum.Reason = domain.CloseReason(reason)
		out = append(out, sum)
	}
	return out, rows.Err()
}



// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s scanner) (*domain.Trade, error) {
	th := &domain.Trade{}
	var side string
	var clientOrderID, closeReason sql.NullString
	err := s.Scan(
		&th.ID, &th.Symbol, &side, &th.EntryPrice, &th.ExitPrice, &th.Quantity, &th.PNL,
		&th.EntryTime, &th.ExitTime, &th.HoldBars, &clientOrderID, &closeReason)
	if err != nil {
		return nil, err
	}
	th.PositionSide = domain.PositionSide(side)
	if clientOrderID.Valid {
		th.ClientOrderID = clientOrderID.String
	}
	if closeReason.Valid {
		th.CloseReason = domain.CloseReason(closeReason.String)
	}
	return th, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
