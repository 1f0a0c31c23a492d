package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"cryptoLifecycleBot/internal/domain"
	"cryptoLifecycleBot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// Binance accepts at most five orders per batch request
	maxBatchOrders = 5
)

// Client implements the ports.ExchangeClient interface using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	limiter       *rate.Limiter
	filters       *filterCache

	modeMu    sync.Mutex
	modeKnown bool
	dualSide  bool
}

// Compile-time check
var _ ports.ExchangeClient = (*Client)(nil)

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
	RateLimit  float64 // Requests per second, 0 means 10
	BaseURL    string  // Overrides the testnet/production URL when set
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	default:
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 10
	}

	c := &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		limiter:       rate.NewLimiter(rate.Limit(limit), int(limit)+1),
	}
	c.filters = &filterCache{load: c.loadFilters}
	return c, nil
}

// wait blocks until the limiter admits one more request.
func (c *Client) wait(ctx context.Context, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	return nil
}

// mapAPIError translates a Binance API error code into a standardized ports error.
func mapAPIError(code int64) error {
	switch code {
	case -1003: // Too many requests
		return ports.ErrRateLimited
	case -1021: // Timestamp for this request is outside of the recvWindow
		return ports.ErrTimeout
	case -1022: // Signature for this request is not valid
		return ports.ErrAuthenticationFailed
	case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
		return ports.ErrInvalidRequest
	case -2010: // New order rejected
		return ports.ErrOrderPlacementFailed
	case -2011: // Cancel order rejected
		return ports.ErrOrderCancelFailed
	case -2013: // Order does not exist
		return ports.ErrOrderNotFound
	case -2014, -2015: // API-key format invalid / invalid key, IP or permissions
		return ports.ErrInvalidAPIKeys
	case -2019, -3005, -3041: // Margin, balance or position insufficient
		return ports.ErrInsufficientFunds
	case -2022: // ReduceOnly Order is rejected
		return ports.ErrOrderPlacementFailed
	case -4003, -4014: // Qty or price not within permissible range
		return ports.ErrInvalidRequest
	case -4044: // Position not found
		return ports.ErrPositionNotFound
	case -4047: // Exceeded the maximum allowable position at current leverage
		return ports.ErrInsufficientFunds
	default:
		return ports.ErrUnknown
	}
}

// classifyError wraps err with the ports error it corresponds to.
func classifyError(err error, operation string) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s failed: %w: %w", operation, mapAPIError(apiErr.Code), err)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(err.Error(), "use of closed network connection"),
		strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "connection reset by peer"):
		return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	case errors.Is(err, ports.ErrSymbolNotFound), errors.Is(err, ports.ErrNoPrice), errors.Is(err, ports.ErrInvalidRequest):
		return fmt.Errorf("%s failed: %w", operation, err)
	default:
		return fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}
}

// handleError classifies err and logs it with the operation context.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
	}

	finalErr := classifyError(err, operation)
	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// GetKlines retrieves the most recent klines for the given symbol, oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	binanceKlines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		domainKlines = append(domainKlines, dk)
	}
	return domainKlines, nil
}

// GetTopMovers returns up to limit symbols ranked by 24h price change percent, strongest first.
func (c *Client) GetTopMovers(ctx context.Context, limit int) ([]domain.Mover, error) {
	op := "GetTopMovers"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	stats, err := c.futuresClient.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	movers := make([]domain.Mover, 0, len(stats))
	for _, s := range stats {
		if s == nil {
			continue
		}
		change, err1 := strconv.ParseFloat(s.PriceChangePercent, 64)
		last, err2 := strconv.ParseFloat(s.LastPrice, 64)
		volume, err3 := strconv.ParseFloat(s.QuoteVolume, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			c.logger.Debug(ctx, op+": skipping unparsable ticker", map[string]interface{}{"symbol": s.Symbol})
			continue
		}
		movers = append(movers, domain.Mover{
			Symbol:             s.Symbol,
			PriceChangePercent: change,
			LastPrice:          last,
			QuoteVolume:        volume,
		})
	}

	sort.SliceStable(movers, func(i, j int) bool {
		return movers[i].PriceChangePercent > movers[j].PriceChangePercent
	})
	if limit > 0 && len(movers) > limit {
		movers = movers[:limit]
	}
	return movers, nil
}

// GetTickerPrice retrieves the last ticker price for a given symbol.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetTickerPrice"
	if err := c.wait(ctx, op); err != nil {
		return 0, err
	}
	tickers, err := c.futuresClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		return 0, c.handleError(ctx, fmt.Errorf("%w for symbol %s", ports.ErrNoPrice, symbol), op)
	}

	price, err := strconv.ParseFloat(tickers[0].LastPrice, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", tickers[0].LastPrice, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	if price <= 0 {
		return 0, c.handleError(ctx, fmt.Errorf("%w for symbol %s", ports.ErrNoPrice, symbol), op)
	}
	return price, nil
}

// PlaceBatchOrders submits up to five orders in one request.
func (c *Client) PlaceBatchOrders(ctx context.Context, orders []domain.OrderRequest) ([]ports.BatchOrderResult, error) {
	op := "PlaceBatchOrders"
	if len(orders) == 0 {
		return nil, nil
	}
	if len(orders) > maxBatchOrders {
		return nil, fmt.Errorf("%s failed: %w: %d orders exceeds batch limit of %d", op, ports.ErrInvalidRequest, len(orders), maxBatchOrders)
	}
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}

	dual, err := c.hedgeMode(ctx)
	if err != nil {
		return nil, err
	}

	services := make([]*futures.CreateOrderService, 0, len(orders))
	for _, o := range orders {
		services = append(services, c.buildOrder(o, dual))
	}

	resp, err := c.futuresClient.NewCreateBatchOrdersService().OrderList(services).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	results := matchBatchResults(orders, resp)
	for i, r := range results {
		if r.Err != nil {
			results[i].Err = classifyError(r.Err, op)
			c.logger.Warn(ctx, op+": order rejected", map[string]interface{}{
				"symbol": orders[i].Symbol, "type": orders[i].Type, "error": r.Err.Error(),
			})
		}
	}
	return results, nil
}

// hedgeMode reports whether the account runs dual-side positions.
// The answer is cached after the first successful query.
func (c *Client) hedgeMode(ctx context.Context) (bool, error) {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()
	if c.modeKnown {
		return c.dualSide, nil
	}

	op := "GetPositionMode"
	if err := c.wait(ctx, op); err != nil {
		return false, err
	}
	mode, err := c.futuresClient.NewGetPositionModeService().Do(ctx)
	if err != nil {
		return false, c.handleError(ctx, err, op)
	}
	c.modeKnown, c.dualSide = true, mode.DualSidePosition
	c.logger.Info(ctx, "Account position mode detected", map[string]interface{}{"hedgeMode": c.dualSide})
	return c.dualSide, nil
}

// buildOrder maps a request onto the account's position mode. Hedge mode needs
// positionSide and rejects reduceOnly. One-way mode takes no positionSide and
// marks exits reduceOnly.
func (c *Client) buildOrder(o domain.OrderRequest, dual bool) *futures.CreateOrderService {
	svc := c.futuresClient.NewCreateOrderService().
		Symbol(o.Symbol).
		Side(futures.SideType(o.Side)).
		Type(futures.OrderType(o.Type)).
		Quantity(o.Quantity).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)

	if dual && o.PositionSide != "" && o.PositionSide != domain.Both {
		svc = svc.PositionSide(futures.PositionSideType(o.PositionSide))
	}
	if o.ClientOrderID != "" {
		svc = svc.NewClientOrderID(o.ClientOrderID)
	}
	switch o.Type {
	case domain.OrderTypeLimit:
		svc = svc.TimeInForce(futures.TimeInForceTypeGTC).Price(o.Price)
	case domain.OrderTypeStopMarket:
		svc = svc.StopPrice(o.StopPrice)
	}
	if o.ReduceOnly && !dual {
		svc = svc.ReduceOnly(true)
	}
	return svc
}

// matchBatchResults pairs each request with its order or error.
// Orders are matched by client order ID first, then by position in the response.
func matchBatchResults(orders []domain.OrderRequest, resp *futures.CreateBatchOrdersResponse) []ports.BatchOrderResult {
	results := make([]ports.BatchOrderResult, len(orders))
	if resp == nil {
		for i := range results {
			results[i].Err = errors.New("empty batch response")
		}
		return results
	}

	byClientID := make(map[string]*futures.Order, len(resp.Orders))
	for _, o := range resp.Orders {
		if o != nil && o.ClientOrderID != "" {
			byClientID[o.ClientOrderID] = o
		}
	}
	var pendingErrs []error
	for _, e := range resp.Errors {
		if e != nil {
			pendingErrs = append(pendingErrs, e)
		}
	}

	for i, req := range orders {
		var order *futures.Order
		if req.ClientOrderID != "" {
			order = byClientID[req.ClientOrderID]
		} else if i < len(resp.Orders) {
			order = resp.Orders[i]
		}
		if order != nil {
			results[i].Order = translateOrder(order)
			continue
		}
		if i < len(resp.Errors) && resp.Errors[i] != nil && len(resp.Errors) == len(orders) {
			results[i].Err = resp.Errors[i]
			continue
		}
		if len(pendingErrs) > 0 {
			results[i].Err = pendingErrs[0]
			pendingErrs = pendingErrs[1:]
			continue
		}
		results[i].Err = fmt.Errorf("no result returned for order %s", req.ClientOrderID)
	}
	return results
}

// CancelOrder cancels an open order on Binance.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	op := "CancelOrder"
	if err := c.wait(ctx, op); err != nil {
		return err
	}
	c.logger.Debug(ctx, "Attempting to cancel order", map[string]interface{}{"symbol": symbol, "orderID": orderID})

	res, err := c.futuresClient.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		// -2011/-2013 surface as ErrOrderCancelFailed/ErrOrderNotFound
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == -2013 || apiErr.Code == -2011) {
			return classifyError(err, op)
		}
		return c.handleError(ctx, err, op)
	}

	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": orderID, "status": res.Status})
	return nil
}

// CancelAllOpenOrders cancels every resting order on symbol.
func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	op := "CancelAllOpenOrders"
	if err := c.wait(ctx, op); err != nil {
		return err
	}
	if err := c.futuresClient.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol})
	return nil
}

// GetAccountPositions returns every non-zero position row of the account.
func (c *Client) GetAccountPositions(ctx context.Context) ([]domain.ExchangePosition, error) {
	op := "GetAccountPositions"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	risks, err := c.futuresClient.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	positions := make([]domain.ExchangePosition, 0, len(risks))
	for _, r := range risks {
		p, err := translatePositionRisk(r)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if p.Open() {
			positions = append(positions, p)
		}
	}
	return positions, nil
}

// GetOpenOrders returns all resting orders of the account.
func (c *Client) GetOpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	op := "GetOpenOrders"
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}
	orders, err := c.futuresClient.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	open := make([]domain.OpenOrder, 0, len(orders))
	for _, o := range orders {
		if o == nil {
			continue
		}
		open = append(open, domain.OpenOrder{
			OrderID:      o.OrderID,
			Symbol:       o.Symbol,
			Type:         domain.OrderType(o.Type),
			Side:         domain.OrderSide(o.Side),
			PositionSide: domain.PositionSide(o.PositionSide),
		})
	}
	return open, nil
}

// ClosePosition reduces the position at market and reports the fill price.
func (c *Client) ClosePosition(ctx context.Context, symbol string, side domain.PositionSide, quantity float64) (*ports.CloseResult, error) {
	op := "ClosePosition"
	qty, err := c.FormatQuantity(ctx, symbol, quantity)
	if err != nil {
		return nil, err
	}
	if isZero(qty) {
		return nil, fmt.Errorf("%s failed: %w: quantity %v rounds to zero for %s", op, ports.ErrInvalidRequest, quantity, symbol)
	}
	dual, err := c.hedgeMode(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx, op); err != nil {
		return nil, err
	}

	svc := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side.ExitSide())).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if dual && side != domain.Both {
		svc = svc.PositionSide(futures.PositionSideType(side))
	} else {
		svc = svc.ReduceOnly(true)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	exit, _ := strconv.ParseFloat(order.AvgPrice, 64)
	if exit <= 0 {
		// RESULT responses normally carry avgPrice; fall back to the last trade
		exit, err = c.GetTickerPrice(ctx, symbol)
		if err != nil {
			return nil, err
		}
	}

	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quantity": qty, "orderID": order.OrderID, "exitPrice": exit})
	return &ports.CloseResult{OrderID: order.OrderID, ExitPrice: exit}, nil
}

// FormatQuantity floors raw to the symbol's quantity step.
func (c *Client) FormatQuantity(ctx context.Context, symbol string, raw float64) (string, error) {
	f, err := c.filters.get(ctx, symbol)
	if err != nil {
		return "", c.handleError(ctx, err, "FormatQuantity")
	}
	return f.formatQuantity(raw), nil
}

// FormatPrice rounds raw to the symbol's price tick.
func (c *Client) FormatPrice(ctx context.Context, symbol string, raw float64) (string, error) {
	f, err := c.filters.get(ctx, symbol)
	if err != nil {
		return "", c.handleError(ctx, err, "FormatPrice")
	}
	return f.formatPrice(raw), nil
}

func (c *Client) loadFilters(ctx context.Context) (map[string]symbolFilters, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, err
	}

	filters := make(map[string]symbolFilters, len(info.Symbols))
	for i := range info.Symbols {
		s := &info.Symbols[i]
		f, err := filtersFromSymbol(s)
		if err != nil {
			c.logger.Warn(ctx, "Skipping symbol with unreadable filters", map[string]interface{}{"symbol": s.Symbol, "error": err.Error()})
			continue
		}
		filters[s.Symbol] = f
	}
	c.logger.Debug(ctx, "Exchange info loaded", map[string]interface{}{"symbols": len(filters)})
	return filters, nil
}

// --- Translation Helpers ---

func isZero(formatted string) bool {
	v, err := strconv.ParseFloat(formatted, 64)
	return err != nil || v == 0
}

func translateOrder(o *futures.Order) *domain.PlacedOrder {
	price, _ := strconv.ParseFloat(o.Price, 64)
	avgPrice, _ := strconv.ParseFloat(o.AvgPrice, 64)
	origQty, _ := strconv.ParseFloat(o.OrigQuantity, 64)

	return &domain.PlacedOrder{
		OrderID:       o.OrderID,
		Symbol:        o.Symbol,
		ClientOrderID: o.ClientOrderID,
		PositionSide:  domain.PositionSide(o.PositionSide),
		Price:         price,
		AvgPrice:      avgPrice,
		OrigQuantity:  origQty,
		Status:        string(o.Status),
		Type:          string(o.Type),
	}
}

func translatePositionRisk(pos *futures.PositionRisk) (domain.ExchangePosition, error) {
	if pos == nil {
		return domain.ExchangePosition{}, nil
	}
	amt, err := strconv.ParseFloat(pos.PositionAmt, 64)
	if err != nil {
		return domain.ExchangePosition{}, fmt.Errorf("parsing position amount '%s' for %s: %w", pos.PositionAmt, pos.Symbol, err)
	}
	entry, _ := strconv.ParseFloat(pos.EntryPrice, 64)

	side := domain.PositionSide(pos.PositionSide)
	if side == "" {
		side = domain.Both
	}
	return domain.ExchangePosition{
		Symbol:       pos.Symbol,
		PositionSide: side,
		Amount:       amt,
		EntryPrice:   entry,
	}, nil
}

func translateBinanceKline(bk *futures.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: time.UnixMilli(bk.CloseTime),
		Symbol:    symbol,   // Use passed symbol as it's not in futures.Kline
		Interval:  interval, // Use passed interval
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		IsFinal:   true,
	}, nil
}
