package engine

import (
	"context"
	"testing"
	"time"

	"watchlist_go/internal/domain"
	"watchlist_go/internal/service"

	"github.com/shopspring/decimal"
)

func seedBenchAssets(b *testing.B, h *harness, symbols ...string) {
	b.Helper()
	err := h.engine.Do(context.Background(), func(r *service.AssetRegistry) error {
		for _, s := range symbols {
			if err := r.Add(domain.NewAsset(s, s, domain.ClassStock, 2)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.Fatalf("seed failed: %v", err)
	}
}

// BenchmarkEngine_ApplyQuote measures one quote applied through the command inbox,
// including the view rebuild that follows every state change.
func BenchmarkEngine_ApplyQuote(b *testing.B) {
	h := newHarness(b, newMemStore())
	seedBenchAssets(b, h, "AAPL", "MSFT", "GOOG")
	ctx := context.Background()

	price := decimal.RequireFromString("150.25")
	change := decimal.RequireFromString("1.2")

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		err := h.engine.Do(ctx, func(r *service.AssetRegistry) error {
			r.ApplyQuote("AAPL", price, change)
			return nil
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkPollingFeed_Cycle measures a full round: due-set, fetch, rounding and apply.
func BenchmarkPollingFeed_Cycle(b *testing.B) {
	h := newHarness(b, newMemStore())
	seedBenchAssets(b, h, "AAPL", "MSFT", "GOOG")

	poller := &fakePoller{quotes: map[string]domain.Quote{
		"AAPL": quote("AAPL", "150.255", "1.2"),
		"MSFT": quote("MSFT", "410.1", "-0.35"),
		"GOOG": quote("GOOG", "170", "0"),
	}}
	now := monday(15, 0)
	feed := NewPollingFeed(h.engine, poller, PollingConfig{
		BaseInterval:    time.Second,
		BackoffInterval: 5 * time.Second,
		Clock:           domain.MarketClock{Location: time.UTC},
		Now:             func() time.Time { return now },
	})
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		feed.Cycle(ctx)
	}
}
