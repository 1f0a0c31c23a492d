package binanceclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoLifecycleBot/internal/domain"
	"cryptoLifecycleBot/internal/ports"
)

// mockLogger implements ports.Logger and counts error lines
type mockLogger struct {
	mu     sync.Mutex
	errors int
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

func newTestClient(t *testing.T, routes map[string]string) (*Client, *mockLogger) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if len(body) > 0 && body[0] == '!' {
			// Leading '!' marks an API error payload
			w.WriteHeader(http.StatusBadRequest)
			body = body[1:]
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	log := &mockLogger{}
	c, err := New(Config{APIKey: "k", SecretKey: "s", Logger: log, BaseURL: srv.URL, RateLimit: 100})
	require.NoError(t, err)
	return c, log
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestMapAPIError(t *testing.T) {
	tests := []struct {
		code int64
		want error
	}{
		{-1003, ports.ErrRateLimited},
		{-1021, ports.ErrTimeout},
		{-1022, ports.ErrAuthenticationFailed},
		{-1111, ports.ErrInvalidRequest},
		{-2013, ports.ErrOrderNotFound},
		{-2015, ports.ErrInvalidAPIKeys},
		{-2019, ports.ErrInsufficientFunds},
		{-4044, ports.ErrPositionNotFound},
		{-9999, ports.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.want.Error(), func(t *testing.T) {
			err := classifyError(&common.APIError{Code: tt.code, Message: "x"}, "op")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClassifyError_NonAPI(t *testing.T) {
	assert.ErrorIs(t, classifyError(context.DeadlineExceeded, "op"), ports.ErrTimeout)
	assert.ErrorIs(t, classifyError(context.Canceled, "op"), ports.ErrContextCanceled)
	assert.ErrorIs(t, classifyError(errors.New("dial tcp: connection refused"), "op"), ports.ErrConnectionFailed)
	assert.ErrorIs(t, classifyError(ports.ErrNoPrice, "op"), ports.ErrNoPrice)
	assert.ErrorIs(t, classifyError(errors.New("weird"), "op"), ports.ErrUnknown)
}

func TestMatchBatchResults(t *testing.T) {
	orders := []domain.OrderRequest{
		{Symbol: "BTCUSDT", ClientOrderID: "QUANT_BTCUSDT_1"},
		{Symbol: "ETHUSDT", ClientOrderID: "QUANT_ETHUSDT_1"},
		{Symbol: "SOLUSDT", ClientOrderID: "QUANT_SOLUSDT_1"},
	}
	rejected := &common.APIError{Code: -2019, Message: "Margin is insufficient."}

	tests := []struct {
		name string
		resp *futures.CreateBatchOrdersResponse
	}{
		{
			name: "index aligned",
			resp: &futures.CreateBatchOrdersResponse{
				N:      3,
				Orders: []*futures.Order{{OrderID: 11, ClientOrderID: "QUANT_BTCUSDT_1"}, nil, {OrderID: 13, ClientOrderID: "QUANT_SOLUSDT_1"}},
				Errors: []error{nil, rejected, nil},
			},
		},
		{
			name: "compacted lists",
			resp: &futures.CreateBatchOrdersResponse{
				N:      3,
				Orders: []*futures.Order{{OrderID: 11, ClientOrderID: "QUANT_BTCUSDT_1"}, {OrderID: 13, ClientOrderID: "QUANT_SOLUSDT_1"}},
				Errors: []error{rejected},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := matchBatchResults(orders, tt.resp)
			require.Len(t, results, 3)
			assert.True(t, results[0].Accepted())
			assert.Equal(t, int64(11), results[0].Order.OrderID)
			assert.False(t, results[1].Accepted())
			assert.ErrorIs(t, results[1].Err, rejected)
			assert.True(t, results[2].Accepted())
			assert.Equal(t, int64(13), results[2].Order.OrderID)
		})
	}
}

func TestPlaceBatchOrders_TooMany(t *testing.T) {
	c, _ := newTestClient(t, nil)
	_, err := c.PlaceBatchOrders(context.Background(), make([]domain.OrderRequest, 6))
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestGetKlines(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"GET /fapi/v1/klines": `[
			[1709294400000,"3000.0","3010.5","2990.0","3005.25","120.5",1709294699999,"361000.0",100,"60.0","180000.0","0"],
			[1709294700000,"3005.25","3020.0","3001.0","3002.0","98.1",1709294999999,"294000.0",80,"40.0","120000.0","0"]
		]`,
	})

	klines, err := c.GetKlines(context.Background(), "ETHUSDT", "5m", 2)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Equal(t, "ETHUSDT", klines[0].Symbol)
	assert.Equal(t, 3005.25, klines[0].Close)
	assert.True(t, klines[0].Bullish())
	assert.True(t, klines[1].Bearish())
}

func TestGetTopMovers(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"GET /fapi/v1/ticker/24hr": `[
			{"symbol":"AAAUSDT","priceChangePercent":"1.5","lastPrice":"1.0","quoteVolume":"50000000"},
			{"symbol":"BBBUSDT","priceChangePercent":"12.0","lastPrice":"2.0","quoteVolume":"40000000"},
			{"symbol":"CCCUSDT","priceChangePercent":"-3.0","lastPrice":"3.0","quoteVolume":"90000000"},
			{"symbol":"DDDUSDT","priceChangePercent":"7.25","lastPrice":"4.0","quoteVolume":"10000000"}
		]`,
	})

	movers, err := c.GetTopMovers(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, movers, 3)
	assert.Equal(t, []string{"BBBUSDT", "DDDUSDT", "AAAUSDT"}, []string{movers[0].Symbol, movers[1].Symbol, movers[2].Symbol})
	assert.Equal(t, 40000000.0, movers[0].QuoteVolume)
}

func TestFormatQuantityAndPrice(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"GET /fapi/v1/exchangeInfo": `{"symbols":[{
			"symbol":"ETHUSDT","status":"TRADING","pricePrecision":2,"quantityPrecision":3,
			"filters":[
				{"filterType":"PRICE_FILTER","minPrice":"0.01","maxPrice":"100000","tickSize":"0.01"},
				{"filterType":"LOT_SIZE","minQty":"0.001","maxQty":"10000","stepSize":"0.001"}
			]}]}`,
	})
	ctx := context.Background()

	qty, err := c.FormatQuantity(ctx, "ETHUSDT", 6.0/3000.0)
	require.NoError(t, err)
	assert.Equal(t, "0.002", qty)

	price, err := c.FormatPrice(ctx, "ETHUSDT", 3000*1.03)
	require.NoError(t, err)
	assert.Equal(t, "3090.00", price)

	_, err = c.FormatQuantity(ctx, "NOPEUSDT", 1)
	assert.ErrorIs(t, err, ports.ErrSymbolNotFound)
}

func TestCancelOrder_NotFoundIsQuiet(t *testing.T) {
	c, log := newTestClient(t, map[string]string{
		"DELETE /fapi/v1/order": `!{"code":-2013,"msg":"Order does not exist."}`,
	})

	err := c.CancelOrder(context.Background(), "ETHUSDT", 42)
	assert.ErrorIs(t, err, ports.ErrOrderNotFound)
	assert.Equal(t, 0, log.errors)
}

func TestCancelAllOpenOrders_Error(t *testing.T) {
	c, log := newTestClient(t, map[string]string{
		"DELETE /fapi/v1/allOpenOrders": `!{"code":-1003,"msg":"Too many requests."}`,
	})

	err := c.CancelAllOpenOrders(context.Background(), "ETHUSDT")
	assert.ErrorIs(t, err, ports.ErrRateLimited)
	assert.Equal(t, 1, log.errors)
}

const ethExchangeInfo = `{"symbols":[{
	"symbol":"ETHUSDT","status":"TRADING","pricePrecision":2,"quantityPrecision":3,
	"filters":[
		{"filterType":"PRICE_FILTER","minPrice":"0.01","maxPrice":"100000","tickSize":"0.01"},
		{"filterType":"LOT_SIZE","minQty":"0.001","maxQty":"10000","stepSize":"0.001"}
	]}]}`

// newRecordingClient serves routes like newTestClient and keeps the form of every request by route.
func newRecordingClient(t *testing.T, routes map[string]string) (*Client, func(route string) []url.Values) {
	t.Helper()
	var mu sync.Mutex
	seen := map[string][]url.Values{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		_ = r.ParseForm()
		mu.Lock()
		seen[route] = append(seen[route], r.Form)
		mu.Unlock()

		body, ok := routes[route]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{APIKey: "k", SecretKey: "s", Logger: &mockLogger{}, BaseURL: srv.URL, RateLimit: 100})
	require.NoError(t, err)
	return c, func(route string) []url.Values {
		mu.Lock()
		defer mu.Unlock()
		return seen[route]
	}
}

func TestPositionModeShapesOrders(t *testing.T) {
	entry := domain.OrderRequest{
		Symbol: "ETHUSDT", Side: domain.Buy, PositionSide: domain.Long, Type: domain.OrderTypeLimit,
		Quantity: "0.002", Price: "3090.00", ClientOrderID: "QUANT_ETHUSDT_1",
	}
	stop := domain.OrderRequest{
		Symbol: "ETHUSDT", Side: domain.Sell, PositionSide: domain.Long, Type: domain.OrderTypeStopMarket,
		Quantity: "0.002", StopPrice: "2700.00", ClientOrderID: "SL_ETHUSDT_1", ReduceOnly: true,
	}

	tests := []struct {
		name             string
		dual             bool
		wantPositionSide string
		wantReduceOnly   bool
	}{
		{name: "hedge mode", dual: true, wantPositionSide: "LONG"},
		{name: "one-way mode", dual: false, wantReduceOnly: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode := `{"dualSidePosition":false}`
			if tt.dual {
				mode = `{"dualSidePosition":true}`
			}
			c, seen := newRecordingClient(t, map[string]string{
				"GET /fapi/v1/positionSide/dual": mode,
				"GET /fapi/v1/exchangeInfo":      ethExchangeInfo,
				"POST /fapi/v1/batchOrders":      `[{"orderId":1,"clientOrderId":"QUANT_ETHUSDT_1","symbol":"ETHUSDT"},{"orderId":2,"clientOrderId":"SL_ETHUSDT_1","symbol":"ETHUSDT"}]`,
				"POST /fapi/v1/order":            `{"orderId":7,"symbol":"ETHUSDT","avgPrice":"3001.50"}`,
			})
			ctx := context.Background()

			results, err := c.PlaceBatchOrders(ctx, []domain.OrderRequest{entry, stop})
			require.NoError(t, err)
			require.Len(t, results, 2)

			batch := seen("POST /fapi/v1/batchOrders")
			require.Len(t, batch, 1)
			var sent []map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(batch[0].Get("batchOrders")), &sent))
			require.Len(t, sent, 2)
			for _, o := range sent {
				if tt.wantPositionSide == "" {
					assert.NotContains(t, o, "positionSide")
				} else {
					assert.Equal(t, tt.wantPositionSide, o["positionSide"])
				}
			}
			assert.NotContains(t, sent[0], "reduceOnly", "entries never reduce")
			if tt.wantReduceOnly {
				assert.Equal(t, "true", sent[1]["reduceOnly"])
			} else {
				assert.NotContains(t, sent[1], "reduceOnly")
			}

			res, err := c.ClosePosition(ctx, "ETHUSDT", domain.Long, 0.002)
			require.NoError(t, err)
			assert.Equal(t, 3001.5, res.ExitPrice)

			closes := seen("POST /fapi/v1/order")
			require.Len(t, closes, 1)
			assert.Equal(t, "SELL", closes[0].Get("side"))
			assert.Equal(t, tt.wantPositionSide, closes[0].Get("positionSide"))
			if tt.wantReduceOnly {
				assert.Equal(t, "true", closes[0].Get("reduceOnly"))
			} else {
				assert.Empty(t, closes[0].Get("reduceOnly"))
			}

			assert.Len(t, seen("GET /fapi/v1/positionSide/dual"), 1, "position mode is cached")
		})
	}
}

func TestPositionModeQueryFailure(t *testing.T) {
	c, seen := newRecordingClient(t, map[string]string{})

	_, err := c.PlaceBatchOrders(context.Background(), []domain.OrderRequest{{Symbol: "ETHUSDT"}})
	assert.Error(t, err)
	assert.Empty(t, seen("POST /fapi/v1/batchOrders"), "nothing is sent without a known mode")
}
