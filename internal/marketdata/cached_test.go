package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// countingProvider tracks upstream hits
type countingProvider struct {
	mu           sync.Mutex
	price        float64
	priceErr     error
	priceCalls   int
	historyCalls int
}

func (c *countingProvider) Price(ctx context.Context, symbol string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.priceCalls++
	if c.priceErr != nil {
		return 0, c.priceErr
	}
	return c.price, nil
}

func (c *countingProvider) History(ctx context.Context, symbol string, days int) ([]PricePoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.historyCalls++
	return []PricePoint{{Timestamp: time.Now(), Price: c.price}}, nil
}

func TestCachedProviderPriceCachesLocally(t *testing.T) {
	upstream := &countingProvider{price: 50000}
	cached := NewCachedProvider(upstream, nil, CachedProviderConfig{PriceTTL: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		price, err := cached.Price(ctx, "BTC")
		if err != nil {
			t.Fatalf("Price failed: %v", err)
		}
		if price != 50000 {
			t.Errorf("Expected 50000, got %v", price)
		}
	}

	if upstream.priceCalls != 1 {
		t.Errorf("Expected one upstream call, got %d", upstream.priceCalls)
	}
}

func TestCachedProviderPriceExpiry(t *testing.T) {
	upstream := &countingProvider{price: 50000}
	cached := NewCachedProvider(upstream, nil, CachedProviderConfig{PriceTTL: 10 * time.Millisecond})
	ctx := context.Background()

	if _, err := cached.Price(ctx, "BTC"); err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := cached.Price(ctx, "BTC"); err != nil {
		t.Fatalf("Price failed: %v", err)
	}

	if upstream.priceCalls != 2 {
		t.Errorf("Expected expired entry to refetch, got %d upstream calls", upstream.priceCalls)
	}
}

func TestCachedProviderPricePropagatesUpstreamError(t *testing.T) {
	upstream := &countingProvider{priceErr: errors.New("upstream down")}
	cached := NewCachedProvider(upstream, nil, CachedProviderConfig{})

	if _, err := cached.Price(context.Background(), "BTC"); err == nil {
		t.Error("Expected upstream error to propagate")
	}
}

func TestCachedProviderHistoryCachesLocally(t *testing.T) {
	upstream := &countingProvider{price: 50000}
	cached := NewCachedProvider(upstream, nil, CachedProviderConfig{HistoryTTL: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		points, err := cached.History(ctx, "BTC", 30)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(points) != 1 {
			t.Errorf("Expected 1 point, got %d", len(points))
		}
	}

	if upstream.historyCalls != 1 {
		t.Errorf("Expected one upstream call, got %d", upstream.historyCalls)
	}

	// Different day windows are cached separately
	if _, err := cached.History(ctx, "BTC", 90); err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if upstream.historyCalls != 2 {
		t.Errorf("Expected separate cache entry per window, got %d upstream calls", upstream.historyCalls)
	}
}

func TestSimulatedProviderPrice(t *testing.T) {
	provider := NewSimulatedProvider(42)
	ctx := context.Background()

	price, err := provider.Price(ctx, "BTC")
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if price <= 0 {
		t.Errorf("Expected positive price, got %v", price)
	}

	if _, err := provider.Price(ctx, "NOPE"); !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("Expected ErrUnknownSymbol, got %v", err)
	}
}

func TestSimulatedProviderHistory(t *testing.T) {
	provider := NewSimulatedProvider(42)

	points, err := provider.History(context.Background(), "ETH", 30)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(points) != 30 {
		t.Fatalf("Expected 30 points, got %d", len(points))
	}
	for i := 1; i < len(points); i++ {
		if !points[i-1].Timestamp.Before(points[i].Timestamp) {
			t.Fatal("Expected chronological order")
		}
	}
	for _, pt := range points {
		if pt.Price <= 0 {
			t.Fatalf("Expected positive prices, got %v", pt.Price)
		}
	}
}
