package events

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBusRoutesByType(t *testing.T) {
	bus := NewBus(zap.NewNop(), DefaultConfig())
	defer bus.Stop()

	var prices, trades atomic.Int64
	bus.Subscribe(func(Event) { prices.Add(1) }, TypePrice)
	bus.Subscribe(func(Event) { trades.Add(1) }, TypeTrade)

	now := time.Now()
	bus.Publish(NewPriceEvent("SPY", 500, 0.4, 1e6, now))
	bus.Publish(NewPriceEvent("SPY", 501, 0.4, 1e6, now))
	bus.Publish(NewTradeEvent("SPY", "open", "LONG", "breakout", 20, 500, "", decimal.Zero, now))

	waitFor(t, func() bool { return prices.Load() == 2 && trades.Load() == 1 })
}

func TestBusSubscribeAllAndCancel(t *testing.T) {
	bus := NewBus(zap.NewNop(), DefaultConfig())
	defer bus.Stop()

	var mu sync.Mutex
	var seen []Type
	cancel := bus.Subscribe(func(e Event) {
		mu.Lock()
		seen = append(seen, e.EventType())
		mu.Unlock()
	})

	now := time.Now()
	bus.Publish(NewRegimeEvent("SPY", "trending_up", "range_bound", now))
	bus.Publish(NewRiskEvent("drawdown_limit", "critical", decimal.NewFromFloat(0.173), now))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	})

	cancel()
	bus.Publish(NewStatusEvent("running", "", now))

	// The canceled subscription must not receive further events.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("canceled subscriber saw %d events, want 2", len(seen))
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(zap.NewNop(), Config{Workers: 1, BufferSize: 1})
	defer bus.Stop()

	// A slow handler backs up the single-slot buffer.
	block := make(chan struct{})
	bus.Subscribe(func(Event) { <-block }, TypeStatus)

	now := time.Now()
	for i := 0; i < 50; i++ {
		bus.Publish(NewStatusEvent("tick", "", now))
	}
	close(block)

	stats := bus.GetStats()
	if stats.Dropped == 0 {
		t.Error("expected dropped events with a full buffer")
	}
	if stats.Published+stats.Dropped != 50 {
		t.Errorf("published %d + dropped %d != 50", stats.Published, stats.Dropped)
	}
}

func TestBusHandlerPanicIsContained(t *testing.T) {
	bus := NewBus(zap.NewNop(), DefaultConfig())
	defer bus.Stop()

	var after atomic.Bool
	bus.Subscribe(func(Event) { panic("boom") }, TypeError)
	bus.Subscribe(func(Event) { after.Store(true) }, TypeError)

	bus.Publish(NewErrorEvent("marketdata", "fetch failed", time.Now()))
	waitFor(t, func() bool { return after.Load() })
}
