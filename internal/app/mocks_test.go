package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cryptoLifecycleBot/config"
	"cryptoLifecycleBot/internal/domain"
	"cryptoLifecycleBot/internal/ports"
)

// Mock implementations
type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

// mockExchange keeps a small account model: accepted entries open positions,
// accepted protective orders rest, and closes or cancels remove them.
type mockExchange struct {
	klines     map[string][]*domain.Kline
	klinesErr  error
	movers     []domain.Mover
	moversErr  error
	prices     map[string]float64
	fillStatus string

	batchErrAt map[int]error    // transport failure by call index
	reject     map[string]error // per-order rejection keyed by "<prefix>_<symbol>", e.g. "SL_ETHUSDT"
	batchCalls [][]domain.OrderRequest
	nextID     int64

	positions    []domain.ExchangePosition
	positionsErr error
	orders       []domain.OpenOrder
	ordersErr    error

	closeErr       map[string]error
	closePrice     map[string]float64
	closeCalls     []string
	closeQty       map[string]float64
	cancelCalls    []int64
	cancelAllErr   map[string]error
	cancelAllCalls []string
}

func newMockExchange() *mockExchange {
	return &mockExchange{
		klines:       map[string][]*domain.Kline{},
		prices:       map[string]float64{},
		batchErrAt:   map[int]error{},
		reject:       map[string]error{},
		closeErr:     map[string]error{},
		closePrice:   map[string]float64{},
		closeQty:     map[string]float64{},
		cancelAllErr: map[string]error{},
		fillStatus:   "NEW",
		nextID:       1000,
	}
}

func (m *mockExchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error) {
	if m.klinesErr != nil {
		return nil, m.klinesErr
	}
	return m.klines[symbol], nil
}

func (m *mockExchange) GetTopMovers(ctx context.Context, limit int) ([]domain.Mover, error) {
	return m.movers, m.moversErr
}

func (m *mockExchange) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	p, ok := m.prices[symbol]
	if !ok {
		return 0, ports.ErrNoPrice
	}
	return p, nil
}

func (m *mockExchange) PlaceBatchOrders(ctx context.Context, orders []domain.OrderRequest) ([]ports.BatchOrderResult, error) {
	call := len(m.batchCalls)
	m.batchCalls = append(m.batchCalls, orders)
	if err := m.batchErrAt[call]; err != nil {
		return nil, err
	}

	results := make([]ports.BatchOrderResult, len(orders))
	for i, o := range orders {
		prefix := strings.SplitN(o.ClientOrderID, "_", 2)[0]
		if err := m.reject[prefix+"_"+o.Symbol]; err != nil {
			results[i] = ports.BatchOrderResult{Err: err}
			continue
		}
		m.nextID++
		price, _ := strconv.ParseFloat(o.Price, 64)
		qty, _ := strconv.ParseFloat(o.Quantity, 64)
		results[i] = ports.BatchOrderResult{Order: &domain.PlacedOrder{
			OrderID:       m.nextID,
			Symbol:        o.Symbol,
			ClientOrderID: o.ClientOrderID,
			PositionSide:  o.PositionSide,
			Price:         price,
			OrigQuantity:  qty,
			Status:        m.fillStatus,
			Type:          string(o.Type),
		}}

		switch prefix {
		case "QUANT":
			amount := qty
			if o.PositionSide == domain.Short {
				amount = -qty
			}
			m.positions = append(m.positions, domain.ExchangePosition{
				Symbol: o.Symbol, PositionSide: o.PositionSide, Amount: amount, EntryPrice: price,
			})
		default:
			m.orders = append(m.orders, domain.OpenOrder{
				OrderID: m.nextID, Symbol: o.Symbol, Type: o.Type, Side: o.Side, PositionSide: o.PositionSide,
			})
		}
	}
	return results, nil
}

func (m *mockExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	m.cancelCalls = append(m.cancelCalls, orderID)
	for i, o := range m.orders {
		if o.OrderID == orderID {
			m.orders = append(m.orders[:i], m.orders[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("cancel %d: %w", orderID, ports.ErrOrderNotFound)
}

func (m *mockExchange) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	m.cancelAllCalls = append(m.cancelAllCalls, symbol)
	if err := m.cancelAllErr[symbol]; err != nil {
		return err
	}
	kept := m.orders[:0]
	for _, o := range m.orders {
		if o.Symbol != symbol {
			kept = append(kept, o)
		}
	}
	m.orders = kept
	return nil
}

func (m *mockExchange) GetAccountPositions(ctx context.Context) ([]domain.ExchangePosition, error) {
	if m.positionsErr != nil {
		return nil, m.positionsErr
	}
	out := make([]domain.ExchangePosition, len(m.positions))
	copy(out, m.positions)
	return out, nil
}

func (m *mockExchange) GetOpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	if m.ordersErr != nil {
		return nil, m.ordersErr
	}
	out := make([]domain.OpenOrder, len(m.orders))
	copy(out, m.orders)
	return out, nil
}

func (m *mockExchange) ClosePosition(ctx context.Context, symbol string, side domain.PositionSide, quantity float64) (*ports.CloseResult, error) {
	m.closeCalls = append(m.closeCalls, symbol)
	m.closeQty[symbol] = quantity
	if err := m.closeErr[symbol]; err != nil {
		return nil, err
	}
	kept := m.positions[:0]
	for _, p := range m.positions {
		if !p.Covers(symbol, side) {
			kept = append(kept, p)
		}
	}
	m.positions = kept
	m.nextID++
	return &ports.CloseResult{OrderID: m.nextID, ExitPrice: m.closePrice[symbol]}, nil
}

func (m *mockExchange) FormatQuantity(ctx context.Context, symbol string, raw float64) (string, error) {
	return strconv.FormatFloat(math.Floor(raw*1000)/1000, 'f', 3, 64), nil
}

func (m *mockExchange) FormatPrice(ctx context.Context, symbol string, raw float64) (string, error) {
	return strconv.FormatFloat(raw, 'f', 2, 64), nil
}

// entryCalls returns the entry requests of every batch, flattened.
func (m *mockExchange) entryCalls() []domain.OrderRequest {
	var out []domain.OrderRequest
	for _, batch := range m.batchCalls {
		for _, o := range batch {
			if strings.HasPrefix(o.ClientOrderID, "QUANT_") {
				out = append(out, o)
			}
		}
	}
	return out
}

// mockStore persists through JSON so every reload yields fresh records.
type mockStore struct {
	data    []byte
	loadErr error
	saveErr error
	saves   int
}

func (m *mockStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	snap := domain.NewSnapshot()
	if m.data == nil {
		return snap, nil
	}
	if err := json.Unmarshal(m.data, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (m *mockStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.data = data
	m.saves++
	return nil
}

func (m *mockStore) seed(t *testing.T, positions ...*domain.Position) {
	t.Helper()
	snap := domain.NewSnapshot()
	snap.Current = append(snap.Current, positions...)
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	m.data = data
}

func (m *mockStore) stored(t *testing.T) *domain.Snapshot {
	t.Helper()
	snap, err := m.Load(context.Background())
	require.NoError(t, err)
	return snap
}

type mockEvaluator struct {
	global    domain.Signal
	globalErr error
	symbols   map[string]domain.Signal
	symbolErr map[string]error
	panicOn   string
}

func (m *mockEvaluator) Indicators(ctx context.Context, reference, klines []*domain.Kline) (domain.Indicators, error) {
	return domain.Indicators{}, nil
}

func (m *mockEvaluator) EvaluateGlobal(ctx context.Context, reference []*domain.Kline, ind domain.Indicators) (domain.Signal, error) {
	if m.panicOn == "global" {
		panic("global exploded")
	}
	return m.global, m.globalErr
}

func (m *mockEvaluator) EvaluateSymbol(ctx context.Context, reference, klines []*domain.Kline, ind domain.Indicators) (domain.Signal, error) {
	symbol := klines[0].Symbol
	if m.panicOn == symbol {
		panic(symbol + " exploded")
	}
	if err := m.symbolErr[symbol]; err != nil {
		return domain.SignalNone, err
	}
	if s, ok := m.symbols[symbol]; ok {
		return s, nil
	}
	return domain.SignalNone, nil
}

type mockNotifier struct {
	messages []string
	err      error
}

func (m *mockNotifier) Send(ctx context.Context, text string) error {
	m.messages = append(m.messages, text)
	return m.err
}

type mockJournal struct {
	trades []*domain.Trade
	err    error
}

func (m *mockJournal) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.trades = append(m.trades, trade)
	return int64(len(m.trades)), nil
}

func (m *mockJournal) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	return nil, errors.New("not implemented")
}

func (m *mockJournal) GetTotalProfit(ctx context.Context) (float64, error) {
	total := 0.0
	for _, t := range m.trades {
		total += t.PNL
	}
	return total, nil
}

type mockMetrics struct {
	ports.NopMetrics
	cycles    []string
	closed    []string
	reconcile []string
}

func (m *mockMetrics) CycleCompleted(result string, seconds float64) {
	m.cycles = append(m.cycles, result)
}

func (m *mockMetrics) PositionClosed(reason string) {
	m.closed = append(m.closed, reason)
}

func (m *mockMetrics) ReconcileAction(action string) {
	m.reconcile = append(m.reconcile, action)
}

// fakeClock advances only when sleep is called.
type fakeClock struct {
	t     time.Time
	slept []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
}

// Test helpers
func testConfig() *config.Config {
	return &config.Config{
		ReferenceSymbol:     "BTCUSDT",
		ReferenceInterval:   "5m",
		ReferenceLimit:      60,
		CandidateInterval:   "5m",
		CandidateLimit:      60,
		MoversLimit:         1000,
		MinQuoteVolume:      30_000_000,
		MaxCandidates:       10,
		MaxOpenPositions:    1,
		NotionalPerEntry:    6,
		EntrySpreadPct:      3,
		StopLossPct:         10,
		TakeProfitPct:       5,
		MaxHoldBars:         10,
		BatchSize:           5,
		RequireGlobalSignal: true,
		CycleInterval:       5 * time.Minute,
		CycleLead:           5 * time.Second,
		MisfireGrace:        5 * time.Second,
		StopPollInterval:    time.Second,
		SettleDelay:         10 * time.Second,
		ProtectiveDelay:     time.Second,
	}
}

type testRig struct {
	engine   *Engine
	exchange *mockExchange
	store    *mockStore
	eval     *mockEvaluator
	logger   *mockLogger
	notifier *mockNotifier
	journal  *mockJournal
	metrics  *mockMetrics
	clock    *fakeClock
}

func newTestRig(t *testing.T, cfg *config.Config) *testRig {
	t.Helper()
	r := &testRig{
		exchange: newMockExchange(),
		store:    &mockStore{},
		eval:     &mockEvaluator{global: domain.SignalLong, symbols: map[string]domain.Signal{}},
		logger:   &mockLogger{},
		notifier: &mockNotifier{},
		journal:  &mockJournal{},
		metrics:  &mockMetrics{},
		clock:    &fakeClock{t: time.Date(2024, 3, 1, 12, 4, 55, 0, time.UTC)},
	}
	engine, err := NewEngine(cfg, r.logger, r.exchange, r.store, r.eval,
		WithJournal(r.journal),
		WithNotifier(r.notifier),
		WithMetrics(r.metrics),
		WithClock(r.clock.now, r.clock.sleep),
	)
	require.NoError(t, err)
	r.engine = engine
	return r
}

// load makes the rig's engine see the store's current contents.
func (r *testRig) load(t *testing.T) {
	t.Helper()
	snap, err := r.store.Load(context.Background())
	require.NoError(t, err)
	r.engine.snapshot = snap
}

func bars(symbol string, open, close float64) []*domain.Kline {
	return []*domain.Kline{{Symbol: symbol, Interval: "5m", Open: open, Close: close, High: math.Max(open, close), Low: math.Min(open, close)}}
}

func mover(symbol string, change, volume float64) domain.Mover {
	return domain.Mover{Symbol: symbol, PriceChangePercent: change, QuoteVolume: volume}
}

func openPosition(symbol string, side domain.PositionSide, entry, qty float64) *domain.Position {
	return &domain.Position{
		Symbol:             symbol,
		PositionSide:       side,
		EntryTime:          time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
		EntryPrice:         entry,
		Quantity:           qty,
		HoldBars:           1,
		MaxHoldBars:        10,
		TakeProfitRatio:    5,
		StopLossRatio:      10,
		StopLossOrderIDs:   []int64{},
		TakeProfitOrderIDs: []int64{},
	}
}
