package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordEventEmitted(string)       {}
func (nopMetrics) RecordDelivery(string, string)   {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordLatency(string, float64)   {}
func (nopMetrics) RecordCacheHit(string)           {}
func (nopMetrics) RecordCacheMiss(string)          {}
func (nopMetrics) RecordFailover(string, string)   {}

func tick(symbol string, price float64) *models.Trade {
	return &models.Trade{Symbol: symbol, Price: price, Size: 1, Timestamp: time.Now().Unix()}
}

func TestPipelineRejectsInvalidTicks(t *testing.T) {
	var seen int
	p := NewTickPipeline(TickSinkFunc(func(context.Context, *models.Trade) error {
		seen++
		return nil
	}), nopMetrics{})

	bad := []*models.Trade{
		nil,
		{Price: 1, Size: 1, Timestamp: 1},
		{Symbol: "SPY", Price: 1, Size: 1},
		{Symbol: "SPY", Price: 0, Size: 1, Timestamp: 1},
		{Symbol: "SPY", Price: 1, Size: -1, Timestamp: 1},
	}
	for i, tr := range bad {
		if err := p.Process(context.Background(), tr); err == nil {
			t.Fatalf("case %d: invalid tick accepted", i)
		}
	}
	if seen != 0 {
		t.Fatalf("invalid ticks reached the sink")
	}

	if err := p.Process(context.Background(), tick("SPY", 500)); err != nil {
		t.Fatalf("valid tick rejected: %v", err)
	}
	if seen != 1 {
		t.Fatalf("valid tick did not reach the sink")
	}
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	var seen int
	p := NewTickPipeline(TickSinkFunc(func(context.Context, *models.Trade) error {
		seen++
		return nil
	}), nopMetrics{}, WithMaxRPS(2))

	for i := 0; i < 5; i++ {
		if err := p.Process(context.Background(), tick("SPY", 500)); err != nil {
			t.Fatalf("throttled tick should not error: %v", err)
		}
	}
	if seen != 2 {
		t.Fatalf("want 2 ticks through the bucket, got %d", seen)
	}

	// Another symbol has its own bucket.
	if err := p.Process(context.Background(), tick("QQQ", 400)); err != nil {
		t.Fatalf("other symbol: %v", err)
	}
	if seen != 3 {
		t.Fatalf("symbols should not share a bucket, got %d", seen)
	}
}

func TestPipelineBuffersOnSinkFailure(t *testing.T) {
	down := true
	delivered := make(chan string, 10)
	p := NewTickPipeline(TickSinkFunc(func(_ context.Context, tr *models.Trade) error {
		if down {
			return errors.New("hub unavailable")
		}
		delivered <- tr.Symbol
		return nil
	}), nopMetrics{}, WithBufferSize(10))

	if err := p.Process(context.Background(), tick("SPY", 500)); err == nil {
		t.Fatalf("sink failure should surface")
	}

	// The failed tick sits in the buffer; once the sink recovers the
	// flusher replays it.
	down = false
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	select {
	case sym := <-delivered:
		if sym != "SPY" {
			t.Fatalf("unexpected replayed tick %s", sym)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("buffered tick never replayed")
	}
}
