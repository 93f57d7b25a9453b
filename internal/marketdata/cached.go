package marketdata

import (
	"context"
	"sync"
	"time"

	"dca-autopilot/internal/cache"
	"dca-autopilot/internal/logging"
)

// CachedProvider wraps a Provider with a TTL cache. Redis is preferred
// when a cache service is configured; an in-process map covers the case
// where Redis is down or disabled. The cache never fails a lookup on its
// own — every miss or cache error falls through to the upstream provider.
type CachedProvider struct {
	upstream Provider
	cache    *cache.CacheService // May be nil when Redis is disabled
	logger   *logging.Logger

	priceTTL   time.Duration
	historyTTL time.Duration

	mu            sync.RWMutex
	localPrices   map[string]localEntry
	localHistory  map[string]localHistoryEntry
}

type localEntry struct {
	price     float64
	expiresAt time.Time
}

type localHistoryEntry struct {
	points    []PricePoint
	expiresAt time.Time
}

// CachedProviderConfig holds cache TTL settings
type CachedProviderConfig struct {
	PriceTTL   time.Duration
	HistoryTTL time.Duration
}

// NewCachedProvider wraps upstream with caching. cacheService may be nil.
func NewCachedProvider(upstream Provider, cacheService *cache.CacheService, cfg CachedProviderConfig) *CachedProvider {
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = cache.DefaultPriceTTL
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = cache.DefaultHistoryTTL
	}

	return &CachedProvider{
		upstream:     upstream,
		cache:        cacheService,
		logger:       logging.WithComponent("marketdata-cache"),
		priceTTL:     cfg.PriceTTL,
		historyTTL:   cfg.HistoryTTL,
		localPrices:  make(map[string]localEntry),
		localHistory: make(map[string]localHistoryEntry),
	}
}

// Price returns a cached price when fresh, otherwise resolves from the
// upstream provider and caches the result
func (p *CachedProvider) Price(ctx context.Context, symbol string) (float64, error) {
	key := cache.PriceKey(symbol)

	if p.cache != nil && p.cache.IsHealthy() {
		if price, err := p.cache.GetFloat(ctx, key); err == nil && price > 0 {
			return price, nil
		}
	}

	p.mu.RLock()
	entry, ok := p.localPrices[symbol]
	p.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.price, nil
	}

	price, err := p.upstream.Price(ctx, symbol)
	if err != nil {
		return 0, err
	}

	p.storePrice(ctx, symbol, key, price)
	return price, nil
}

// History returns a cached series when fresh, otherwise resolves from the
// upstream provider and caches the result
func (p *CachedProvider) History(ctx context.Context, symbol string, days int) ([]PricePoint, error) {
	key := cache.HistoryKey(symbol, days)

	if p.cache != nil && p.cache.IsHealthy() {
		var points []PricePoint
		if err := p.cache.GetJSON(ctx, key, &points); err == nil && len(points) > 0 {
			return points, nil
		}
	}

	p.mu.RLock()
	entry, ok := p.localHistory[key]
	p.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.points, nil
	}

	points, err := p.upstream.History(ctx, symbol, days)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.localHistory[key] = localHistoryEntry{points: points, expiresAt: time.Now().Add(p.historyTTL)}
	p.mu.Unlock()

	if p.cache != nil && p.cache.IsHealthy() {
		if err := p.cache.SetJSON(ctx, key, points, p.historyTTL); err != nil {
			p.logger.Debug("History cache write failed", "key", key, "error", err)
		}
	}

	return points, nil
}

func (p *CachedProvider) storePrice(ctx context.Context, symbol, key string, price float64) {
	p.mu.Lock()
	p.localPrices[symbol] = localEntry{price: price, expiresAt: time.Now().Add(p.priceTTL)}
	p.mu.Unlock()

	if p.cache != nil && p.cache.IsHealthy() {
		if err := p.cache.Set(ctx, key, price, p.priceTTL); err != nil {
			p.logger.Debug("Price cache write failed", "key", key, "error", err)
		}
	}
}
