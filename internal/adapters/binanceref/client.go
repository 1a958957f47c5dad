// Package binanceref implements the ports.ReferencePriceSource interface
// with Binance spot tickers. Kraken fill prices are judged against another
// venue's market price, so slippage figures reflect the market rather than
// Kraken's own book.
package binanceref

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"krakenOrderTracker/internal/ports"
)

const (
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	defaultCacheTTL = 5 * time.Second
)

// Kraken asset codes that Binance spells differently.
var baseAliases = map[string]string{
	"XBT": "BTC",
	"XDG": "DOGE",
}

// Binance spot has no fiat USD books; USDT is the conventional stand-in.
var quoteAliases = map[string]string{
	"USD": "USDT",
	"XBT": "BTC",
}

// Client implements ports.ReferencePriceSource using the go-binance library.
type Client struct {
	api    *binance.Client
	logger ports.Logger
	ttl    time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// Config holds configuration specific to the Binance reference adapter.
type Config struct {
	Logger     ports.Logger
	UseTestnet bool
	CacheTTL   time.Duration // How long a fetched price stays fresh
}

// New creates a new Binance reference price adapter. Ticker endpoints are
// public, so no API credentials are needed.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance reference client")
	}

	api := binance.NewClient("", "")
	if cfg.UseTestnet {
		api.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance reference client configured for Testnet", map[string]interface{}{"baseURL": api.BaseURL})
	} else {
		api.BaseURL = baseURLProduction
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return &Client{
		api:    api,
		logger: cfg.Logger,
		ttl:    ttl,
		cache:  make(map[string]cacheEntry),
	}, nil
}

// GetReferencePrice returns the Binance spot price for a Kraken pair,
// served from a short-lived cache so a burst of fills does not turn into a
// burst of ticker requests.
func (c *Client) GetReferencePrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	op := "GetReferencePrice"
	symbol, err := translatePair(pair)
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.RLock()
	entry, ok := c.cache[symbol]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.price, nil
	}

	prices, err := c.api.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reference price lookup for %s failed: %w", symbol, err)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("no ticker returned for %s: %w", symbol, ports.ErrNotFound)
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparsable ticker price %q for %s: %w", prices[0].Price, symbol, err)
	}

	c.mu.Lock()
	c.cache[symbol] = cacheEntry{price: price, fetchedAt: time.Now()}
	c.mu.Unlock()

	c.logger.Debug(ctx, op+": reference price refreshed", map[string]interface{}{
		"pair":   pair,
		"symbol": symbol,
		"price":  price.String(),
	})
	return price, nil
}

// translatePair converts Kraken "BASE/QUOTE" notation into a Binance spot
// symbol.
func translatePair(pair string) (string, error) {
	base, quote, found := strings.Cut(pair, "/")
	if !found || base == "" || quote == "" {
		return "", fmt.Errorf("pair %q is not in BASE/QUOTE notation: %w", pair, ports.ErrValidation)
	}
	base = strings.ToUpper(base)
	quote = strings.ToUpper(quote)
	if alias, ok := baseAliases[base]; ok {
		base = alias
	}
	if alias, ok := quoteAliases[quote]; ok {
		quote = alias
	}
	return base + quote, nil
}
