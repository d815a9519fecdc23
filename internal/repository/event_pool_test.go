package repository

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/logger"
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

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func newEvent(id, symbol string, cat models.EventCategory, pr models.EventPriority, ts time.Time) *models.AIEvent {
	return &models.AIEvent{
		ID:        id,
		Category:  cat,
		Priority:  pr,
		Symbol:    symbol,
		Title:     "t",
		Timestamp: ts,
		Expiry:    ts.Add(24 * time.Hour),
	}
}

func TestPoolAddDefaultsAndDedupe(t *testing.T) {
	p := NewPool(testLogger(t), nopMetrics{})

	e := &models.AIEvent{Category: models.CategoryWhaleAlert, Priority: models.PriorityHigh, Symbol: "BTCUSDT"}
	if !p.Add(e) {
		t.Fatalf("expected add to succeed")
	}
	if e.ID == "" {
		t.Fatalf("expected id to be minted")
	}
	if e.Expiry.Sub(e.Timestamp) != models.DefaultEventTTL {
		t.Fatalf("expected default ttl, got %v", e.Expiry.Sub(e.Timestamp))
	}

	dup := *e
	if p.Add(&dup) {
		t.Fatalf("expected duplicate id to be rejected")
	}
	if p.Len() != 1 {
		t.Fatalf("expected 1 event, got %d", p.Len())
	}
}

func TestPoolIndexReadsNewestFirst(t *testing.T) {
	p := NewPool(testLogger(t), nopMetrics{})
	base := time.Now()

	p.Add(newEvent("a", "BTCUSDT", models.CategoryWhaleAlert, models.PriorityHigh, base))
	p.Add(newEvent("b", "BTCUSDT", models.CategoryWhaleAlert, models.PriorityLow, base.Add(time.Second)))
	p.Add(newEvent("c", "ETHUSDT", models.CategoryLiquiditySignal, models.PriorityHigh, base.Add(2*time.Second)))

	whales := p.ByCategory(models.CategoryWhaleAlert, 10)
	if len(whales) != 2 || whales[0].ID != "b" || whales[1].ID != "a" {
		t.Fatalf("unexpected category read: %+v", ids(whales))
	}
	btc := p.BySymbol("BTCUSDT", 10)
	if len(btc) != 2 || btc[0].ID != "b" {
		t.Fatalf("unexpected symbol read: %+v", ids(btc))
	}
	high := p.ByPriority(models.PriorityHigh, 10)
	if len(high) != 2 || high[0].ID != "c" {
		t.Fatalf("unexpected priority read: %+v", ids(high))
	}
	if got := p.ByCategory(models.CategoryWhaleAlert, 1); len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("limit not applied: %+v", ids(got))
	}
}

func TestPoolUndeliveredOrderingAndMark(t *testing.T) {
	p := NewPool(testLogger(t), nopMetrics{})
	base := time.Now()

	p.Add(newEvent("low-new", "A", models.CategoryAIInsight, models.PriorityLow, base.Add(3*time.Second)))
	p.Add(newEvent("high-old", "A", models.CategoryAIInsight, models.PriorityHigh, base))
	p.Add(newEvent("high-new", "A", models.CategoryAIInsight, models.PriorityHigh, base.Add(time.Second)))

	got := p.UndeliveredFor("sub1", 10)
	want := []string{"high-new", "high-old", "low-new"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: want %s got %s", i, id, got[i].ID)
		}
	}

	if !p.MarkDelivered("high-new", "sub1") {
		t.Fatalf("expected mark to succeed")
	}
	if p.MarkDelivered("missing", "sub1") {
		t.Fatalf("expected mark of unknown id to fail")
	}

	got = p.UndeliveredFor("sub1", 10)
	if len(got) != 2 || got[0].ID != "high-old" {
		t.Fatalf("delivered event still listed: %+v", ids(got))
	}
	// other subscribers unaffected
	if len(p.UndeliveredFor("sub2", 10)) != 3 {
		t.Fatalf("delivery leaked across subscribers")
	}
}

func TestPoolSweepDropsExpired(t *testing.T) {
	p := NewPool(testLogger(t), nopMetrics{})
	now := time.Now()

	live := newEvent("live", "A", models.CategoryAIInsight, models.PriorityLow, now)
	dead := newEvent("dead", "A", models.CategoryAIInsight, models.PriorityLow, now.Add(-48*time.Hour))
	dead.Expiry = now.Add(-time.Hour)
	p.Add(live)
	p.Add(dead)

	if n := p.Sweep(now); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}
	if _, ok := p.Get("dead"); ok {
		t.Fatalf("expired event still present")
	}
	if len(p.BySymbol("A", 10)) != 1 {
		t.Fatalf("index not cleaned after sweep")
	}
}

func TestPoolSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	snap := NewJSONSnapshot(path)

	p := NewPool(testLogger(t), nopMetrics{}, WithSnapshot(snap))
	e := newEvent("persist", "BTCUSDT", models.CategoryWhaleAlert, models.PriorityUrgent, time.Now())
	e.Metadata = map[string]interface{}{"value": 6_000_000.0}
	p.Add(e)
	p.MarkDelivered("persist", "sub1")

	restored := NewPool(testLogger(t), nopMetrics{}, WithSnapshot(NewJSONSnapshot(path)))
	got, ok := restored.Get("persist")
	if !ok {
		t.Fatalf("event not restored")
	}
	if !got.DeliveredToSubscriber("sub1") {
		t.Fatalf("delivery state not restored")
	}
	if v, _ := got.MetadataFloat("value"); v != 6_000_000.0 {
		t.Fatalf("metadata not restored: %v", v)
	}
	if len(restored.ByCategory(models.CategoryWhaleAlert, 10)) != 1 {
		t.Fatalf("indexes not rebuilt on restore")
	}
}

func TestPoolSnapshotDuringDeliveries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	p := NewPool(testLogger(t), nopMetrics{}, WithSnapshot(NewJSONSnapshot(path)))
	base := time.Now()
	const events, subs = 20, 4
	for i := 0; i < events; i++ {
		p.Add(newEvent(fmt.Sprintf("e%d", i), "BTCUSDT", models.CategoryWhaleAlert, models.PriorityHigh, base))
	}

	// Every mark triggers a snapshot write, so these goroutines exercise
	// delivery marking against an in-flight encode.
	var wg sync.WaitGroup
	for g := 0; g < subs; g++ {
		sub := fmt.Sprintf("sub%d", g)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < events; i++ {
				p.MarkDelivered(fmt.Sprintf("e%d", i), sub)
			}
		}()
	}
	wg.Wait()
	// One quiescent mark so the final snapshot holds every delivery.
	p.MarkDelivered("e0", "closer")

	restored := NewPool(testLogger(t), nopMetrics{}, WithSnapshot(NewJSONSnapshot(path)))
	if restored.Len() != events {
		t.Fatalf("expected %d restored events, got %d", events, restored.Len())
	}
	for i := 0; i < events; i++ {
		e, ok := restored.Get(fmt.Sprintf("e%d", i))
		if !ok {
			t.Fatalf("event e%d missing after restore", i)
		}
		for g := 0; g < subs; g++ {
			if !e.DeliveredToSubscriber(fmt.Sprintf("sub%d", g)) {
				t.Fatalf("event e%d lost delivery mark for sub%d", i, g)
			}
		}
	}
}

func TestPoolFactoryPriorities(t *testing.T) {
	p := NewPool(testLogger(t), nopMetrics{})

	if e := p.CreateWhaleAlert("BTCUSDT", "buy", 6_000_000, 60, 100_000, nil); e.Priority != models.PriorityUrgent {
		t.Fatalf("6M whale should be urgent, got %v", e.Priority)
	}
	if e := p.CreateWhaleAlert("ETHUSDT", "sell", 2_000_000, 500, 4_000, nil); e.Priority != models.PriorityHigh {
		t.Fatalf("2M whale should be high, got %v", e.Priority)
	}
	if e := p.CreateWhaleAlert("AAPL", "buy", 600_000, 3_000, 200, nil); e.Priority != models.PriorityMedium {
		t.Fatalf("600k whale should be medium, got %v", e.Priority)
	}

	if e := p.CreateLiquidityEvent("SPY", 0.75, nil); e.Priority != models.PriorityHigh {
		t.Fatalf("imbalance 0.75 should be high, got %v", e.Priority)
	} else if e.Category != models.CategoryMarketImbalance {
		t.Fatalf("imbalance events should categorize as market_imbalance, got %v", e.Category)
	}
	if e := p.CreateLiquidityEvent("SPY", -0.5, nil); e.Priority != models.PriorityMedium {
		t.Fatalf("imbalance -0.5 should be medium, got %v", e.Priority)
	}
	if e := p.CreateLiquidityEvent("SPY", 0.35, nil); e.Priority != models.PriorityLow {
		t.Fatalf("imbalance 0.35 should be low, got %v", e.Priority)
	}
}

func ids(events []*models.AIEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}
