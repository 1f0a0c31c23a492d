package binanceclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"cryptoLifecycleBot/internal/ports"
)

// symbolFilters holds the quantity step and price tick of one symbol.
type symbolFilters struct {
	stepSize      decimal.Decimal
	tickSize      decimal.Decimal
	qtyDecimals   int32
	priceDecimals int32
}

// formatQuantity floors raw to the step size so the order never exceeds the notional.
func (f symbolFilters) formatQuantity(raw float64) string {
	d := decimal.NewFromFloat(raw)
	if f.stepSize.IsPositive() {
		d = d.Div(f.stepSize).Floor().Mul(f.stepSize)
	} else {
		d = d.Truncate(f.qtyDecimals)
	}
	return d.StringFixed(f.qtyDecimals)
}

// formatPrice rounds raw to the nearest tick.
func (f symbolFilters) formatPrice(raw float64) string {
	d := decimal.NewFromFloat(raw)
	if f.tickSize.IsPositive() {
		d = d.Div(f.tickSize).Round(0).Mul(f.tickSize)
	} else {
		d = d.Round(f.priceDecimals)
	}
	return d.StringFixed(f.priceDecimals)
}

// filtersFromSymbol reads LOT_SIZE and PRICE_FILTER, falling back to the declared precisions.
func filtersFromSymbol(s *futures.Symbol) (symbolFilters, error) {
	f := symbolFilters{
		qtyDecimals:   int32(s.QuantityPrecision),
		priceDecimals: int32(s.PricePrecision),
	}
	if lot := s.LotSizeFilter(); lot != nil && lot.StepSize != "" {
		step, err := decimal.NewFromString(lot.StepSize)
		if err != nil {
			return f, fmt.Errorf("parsing step size '%s' for %s: %w", lot.StepSize, s.Symbol, err)
		}
		f.stepSize = step
		f.qtyDecimals = decimalsOf(lot.StepSize)
	}
	if pf := s.PriceFilter(); pf != nil && pf.TickSize != "" {
		tick, err := decimal.NewFromString(pf.TickSize)
		if err != nil {
			return f, fmt.Errorf("parsing tick size '%s' for %s: %w", pf.TickSize, s.Symbol, err)
		}
		f.tickSize = tick
		f.priceDecimals = decimalsOf(pf.TickSize)
	}
	return f, nil
}

// decimalsOf counts significant fractional digits, e.g. "0.00100000" -> 3.
func decimalsOf(step string) int32 {
	i := strings.IndexByte(step, '.')
	if i < 0 {
		return 0
	}
	frac := strings.TrimRight(step[i+1:], "0")
	return int32(len(frac))
}

// missRetryAfter bounds how long an unknown symbol is answered from memory
// before a miss may trigger another exchangeInfo load.
const missRetryAfter = 10 * time.Minute

// filterCache lazily loads exchange info and refreshes when a symbol is unknown.
// Symbols still unknown after a refresh are remembered, so repeated lookups of a
// delisted or misspelled symbol cost no further requests until missRetryAfter.
type filterCache struct {
	mu       sync.Mutex
	filters  map[string]symbolFilters
	missing  map[string]bool
	loadedAt time.Time
	now      func() time.Time
	load     func(ctx context.Context) (map[string]symbolFilters, error)
}

func (c *filterCache) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func (c *filterCache) get(ctx context.Context, symbol string) (symbolFilters, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.filters[symbol]; ok {
		return f, nil
	}
	if c.missing[symbol] && c.clock().Sub(c.loadedAt) < missRetryAfter {
		return symbolFilters{}, fmt.Errorf("%w: %s", ports.ErrSymbolNotFound, symbol)
	}

	loaded, err := c.load(ctx)
	if err != nil {
		return symbolFilters{}, err
	}
	c.filters = loaded
	c.loadedAt = c.clock()
	c.missing = map[string]bool{}

	if f, ok := c.filters[symbol]; ok {
		return f, nil
	}
	c.missing[symbol] = true
	return symbolFilters{}, fmt.Errorf("%w: %s", ports.ErrSymbolNotFound, symbol)
}
