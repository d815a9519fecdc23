package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/repository"
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

type sentSummary struct {
	total      int
	byCategory map[models.EventCategory]int
	top        []*models.AIEvent
}

type fakeProvider struct {
	typ       models.SubscriberType
	fail      bool
	events    []*models.AIEvent
	summaries []sentSummary
}

func (p *fakeProvider) Type() models.SubscriberType { return p.typ }

func (p *fakeProvider) SendEvent(_ context.Context, _ *models.Subscription, e *models.AIEvent) error {
	if p.fail {
		return errors.New("channel down")
	}
	p.events = append(p.events, e)
	return nil
}

func (p *fakeProvider) SendSummary(_ context.Context, _ *models.Subscription, total int, byCategory map[models.EventCategory]int, top []*models.AIEvent) error {
	if p.fail {
		return errors.New("channel down")
	}
	p.summaries = append(p.summaries, sentSummary{total: total, byCategory: byCategory, top: top})
	return nil
}

func poolEvent(id, symbol string, pr models.EventPriority, ts time.Time) *models.AIEvent {
	return &models.AIEvent{
		ID:        id,
		Category:  models.CategoryWhaleAlert,
		Priority:  pr,
		Symbol:    symbol,
		Title:     id,
		Timestamp: ts,
		Expiry:    ts.Add(24 * time.Hour),
	}
}

func newDispatcher(t *testing.T, pool *repository.Pool, reg *Registry, provider *fakeProvider) *Dispatcher {
	t.Helper()
	d := New(testLogger(t), nopMetrics{}, pool, reg,
		NewPriorityManager(), NewThrottle(time.Millisecond, 60))
	d.RegisterProvider(provider)
	return d
}

func TestRegistryValidation(t *testing.T) {
	r := NewRegistry(testLogger(t), nil)

	cases := []*models.Subscription{
		{Type: "carrier_pigeon", Name: "x"},
		{Type: models.SubscriberUser},
		{Type: models.SubscriberWebhook, Name: "hook"},
		{Type: models.SubscriberComponent, Name: "comp"},
		{Type: models.SubscriberUser, Name: "u", Filter: models.SubscriptionFilter{
			MinPriority: models.PriorityLow,
			Categories:  []models.EventCategory{"not_a_category"},
		}},
	}
	for i, s := range cases {
		if err := r.Add(s); !errors.Is(err, ErrInvalidSubscription) {
			t.Fatalf("case %d: want ErrInvalidSubscription, got %v", i, err)
		}
	}
	if len(r.List()) != 0 {
		t.Fatalf("invalid subscriptions were stored")
	}
}

func TestRegistryAddDefaultsAndLookup(t *testing.T) {
	r := NewRegistry(testLogger(t), nil)

	s := NewUserSubscription("alice", "chat1", 0)
	if err := r.Add(s); err != nil {
		t.Fatalf("add: %v", err)
	}
	if s.ID == "" {
		t.Fatalf("id not minted")
	}
	if s.Filter.MinPriority != models.PriorityLow {
		t.Fatalf("min priority not defaulted, got %d", s.Filter.MinPriority)
	}
	if s.CreatedAt.IsZero() {
		t.Fatalf("created_at not stamped")
	}

	if err := r.Update("nope", func(*models.Subscription) {}); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("update unknown: %v", err)
	}
	if err := r.Remove("nope"); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("remove unknown: %v", err)
	}

	if err := r.Update(s.ID, func(x *models.Subscription) { x.Active = false }); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(r.Active()) != 0 {
		t.Fatalf("inactive subscription still listed as active")
	}
	if len(r.List()) != 1 {
		t.Fatalf("subscription lost on update")
	}
}

func TestRegistrySnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.json")

	r := NewRegistry(testLogger(t), repository.NewJSONSnapshot(path))
	s := NewWebhookSubscription("hook", "https://example.com/cb", "s3cret", models.PriorityHigh)
	if err := r.Add(s); err != nil {
		t.Fatalf("add: %v", err)
	}

	restored := NewRegistry(testLogger(t), repository.NewJSONSnapshot(path))
	got, ok := restored.Get(s.ID)
	if !ok {
		t.Fatalf("subscription not restored")
	}
	if got.Destination.URL != "https://example.com/cb" || got.Filter.MinPriority != models.PriorityHigh {
		t.Fatalf("restored subscription mangled: %+v", got)
	}
}

func TestPriorityAdjustAdditiveAndClamped(t *testing.T) {
	m := NewPriorityManager(
		models.PriorityRule{Name: "vol", When: models.Predicate{Field: "volume", Op: models.OpGT, Value: 1000}, Adjustment: 1},
		models.PriorityRule{Name: "risk", When: models.Predicate{Field: "risk_level", Op: models.OpGT, Value: 0.8}, Adjustment: 5},
	)

	e := &models.AIEvent{
		Priority: models.PriorityMedium,
		Metadata: map[string]interface{}{"volume": 5000.0, "risk_level": 0.9},
	}
	got, applied := m.Adjust(e)
	// vol +1 plus risk clamped from +5 to +2 lifts medium to critical.
	if got != models.PriorityCritical {
		t.Fatalf("want critical, got %d", got)
	}
	if len(applied) != 2 {
		t.Fatalf("want 2 rules applied, got %v", applied)
	}
	if e.Priority != models.PriorityMedium {
		t.Fatalf("base priority mutated to %d", e.Priority)
	}

	quiet := &models.AIEvent{Priority: models.PriorityLow, Metadata: map[string]interface{}{"volume": 10.0}}
	if got, applied := m.Adjust(quiet); got != models.PriorityLow || len(applied) != 0 {
		t.Fatalf("non-matching rules changed priority: %d %v", got, applied)
	}
}

func TestPriorityRuleCooldown(t *testing.T) {
	m := NewPriorityManager(
		models.PriorityRule{Name: "vol", When: models.Predicate{Field: "volume", Op: models.OpGT, Value: 1000}, Adjustment: 1, Cooldown: time.Hour},
	)
	e := &models.AIEvent{Priority: models.PriorityLow, Metadata: map[string]interface{}{"volume": 5000.0}}

	if got, _ := m.Adjust(e); got != models.PriorityMedium {
		t.Fatalf("first adjust: got %d", got)
	}
	// Rule is cooling down, so the same event stays at base.
	if got, applied := m.Adjust(e); got != models.PriorityLow || len(applied) != 0 {
		t.Fatalf("cooldown ignored: %d %v", got, applied)
	}
}

func TestThrottleWindowCap(t *testing.T) {
	th := NewThrottle(time.Second, 2)
	sub := &models.Subscription{ID: "sub1"}
	now := time.Now()

	mk := func(sym string) *models.AIEvent {
		return &models.AIEvent{Symbol: sym, Category: models.CategoryWhaleAlert}
	}

	if !th.AllowAt(sub, mk("A"), models.PriorityHigh, now) {
		t.Fatalf("first send should pass")
	}
	if !th.AllowAt(sub, mk("B"), models.PriorityHigh, now.Add(time.Second)) {
		t.Fatalf("second send should pass")
	}
	if th.AllowAt(sub, mk("C"), models.PriorityHigh, now.Add(2*time.Second)) {
		t.Fatalf("third send in the same minute should hit the cap")
	}
	// The window rolls over and the count resets.
	if !th.AllowAt(sub, mk("C"), models.PriorityHigh, now.Add(61*time.Second)) {
		t.Fatalf("send after window rollover should pass")
	}
}

func TestThrottleRepeatCooldownByPriority(t *testing.T) {
	th := NewThrottle(time.Second, 100)
	sub := &models.Subscription{ID: "sub1"}
	now := time.Now()
	e := &models.AIEvent{Symbol: "SPY", Category: models.CategoryLiquiditySignal}

	if !th.AllowAt(sub, e, models.PriorityCritical, now) {
		t.Fatalf("first critical should pass")
	}
	if th.AllowAt(sub, e, models.PriorityCritical, now.Add(30*time.Second)) {
		t.Fatalf("critical repeat inside 1m should be quiet")
	}
	if !th.AllowAt(sub, e, models.PriorityCritical, now.Add(61*time.Second)) {
		t.Fatalf("critical repeat after 1m should pass")
	}

	// A different symbol is a different repeat key.
	other := &models.AIEvent{Symbol: "QQQ", Category: models.CategoryLiquiditySignal}
	if !th.AllowAt(sub, other, models.PriorityCritical, now.Add(62*time.Second)) {
		t.Fatalf("different symbol should not share the cooldown")
	}

	// Low priority repeats wait the full hour.
	low := &models.AIEvent{Symbol: "TSLA", Category: models.CategoryWhaleAlert}
	if !th.AllowAt(sub, low, models.PriorityLow, now) {
		t.Fatalf("first low should pass")
	}
	if th.AllowAt(sub, low, models.PriorityLow, now.Add(59*time.Minute)) {
		t.Fatalf("low repeat at 59m should be quiet")
	}
	if !th.AllowAt(sub, low, models.PriorityLow, now.Add(61*time.Minute)) {
		t.Fatalf("low repeat after 1h should pass")
	}
}

func TestDispatcherSendsSmallBatchIndividually(t *testing.T) {
	pool := repository.NewPool(testLogger(t), nopMetrics{})
	reg := NewRegistry(testLogger(t), nil)
	provider := &fakeProvider{typ: models.SubscriberUser}
	d := newDispatcher(t, pool, reg, provider)

	sub := NewUserSubscription("alice", "chat1", models.PriorityLow)
	if err := reg.Add(sub); err != nil {
		t.Fatalf("add sub: %v", err)
	}

	now := time.Now()
	pool.Add(poolEvent("e1", "SPY", models.PriorityHigh, now))
	pool.Add(poolEvent("e2", "QQQ", models.PriorityMedium, now))

	d.Deliver(context.Background())

	if len(provider.events) != 2 {
		t.Fatalf("want 2 individual sends, got %d", len(provider.events))
	}
	if len(provider.summaries) != 0 {
		t.Fatalf("small batch should not summarize")
	}
	if len(pool.UndeliveredFor(sub.ID, 10)) != 0 {
		t.Fatalf("events not marked delivered")
	}
	got, _ := reg.Get(sub.ID)
	if got.LastDelivery.IsZero() {
		t.Fatalf("last delivery not stamped")
	}

	// Second pass finds nothing new.
	d.Deliver(context.Background())
	if len(provider.events) != 2 {
		t.Fatalf("delivered events sent again")
	}
}

func TestDispatcherCollapsesLargeBatch(t *testing.T) {
	pool := repository.NewPool(testLogger(t), nopMetrics{})
	reg := NewRegistry(testLogger(t), nil)
	provider := &fakeProvider{typ: models.SubscriberUser}
	d := newDispatcher(t, pool, reg, provider)

	sub := NewUserSubscription("alice", "chat1", models.PriorityLow)
	if err := reg.Add(sub); err != nil {
		t.Fatalf("add sub: %v", err)
	}

	now := time.Now()
	pool.Add(poolEvent("w1", "SPY", models.PriorityLow, now))
	pool.Add(poolEvent("w2", "QQQ", models.PriorityUrgent, now.Add(time.Second)))
	pool.Add(poolEvent("w3", "AAPL", models.PriorityMedium, now.Add(2*time.Second)))
	pool.Add(poolEvent("w4", "TSLA", models.PriorityHigh, now.Add(3*time.Second)))
	pool.Add(poolEvent("w5", "IWM", models.PriorityUrgent, now.Add(4*time.Second)))

	d.Deliver(context.Background())

	if len(provider.events) != 0 {
		t.Fatalf("large batch should not send individually, got %d", len(provider.events))
	}
	if len(provider.summaries) != 1 {
		t.Fatalf("want 1 summary, got %d", len(provider.summaries))
	}
	s := provider.summaries[0]
	if s.total != 5 {
		t.Fatalf("summary total: %d", s.total)
	}
	if s.byCategory[models.CategoryWhaleAlert] != 5 {
		t.Fatalf("summary category counts: %v", s.byCategory)
	}
	if len(s.top) != 3 {
		t.Fatalf("want top 3, got %d", len(s.top))
	}
	// Urgent events first, newest of equals first.
	if s.top[0].ID != "w5" || s.top[1].ID != "w2" || s.top[2].ID != "w4" {
		t.Fatalf("top ordering: %s %s %s", s.top[0].ID, s.top[1].ID, s.top[2].ID)
	}
	if len(pool.UndeliveredFor(sub.ID, 10)) != 0 {
		t.Fatalf("summary did not mark batch delivered")
	}
}

func TestDispatcherFailureLeavesUndelivered(t *testing.T) {
	pool := repository.NewPool(testLogger(t), nopMetrics{})
	reg := NewRegistry(testLogger(t), nil)
	provider := &fakeProvider{typ: models.SubscriberUser, fail: true}
	d := newDispatcher(t, pool, reg, provider)

	sub := NewUserSubscription("alice", "chat1", models.PriorityLow)
	if err := reg.Add(sub); err != nil {
		t.Fatalf("add sub: %v", err)
	}
	pool.Add(poolEvent("e1", "SPY", models.PriorityHigh, time.Now()))

	d.Deliver(context.Background())

	if len(pool.UndeliveredFor(sub.ID, 10)) != 1 {
		t.Fatalf("failed delivery should stay undelivered")
	}
	got, _ := reg.Get(sub.ID)
	if !got.LastDelivery.IsZero() {
		t.Fatalf("failed delivery stamped last delivery")
	}
}

func TestDispatcherFiltersOnAdjustedPriority(t *testing.T) {
	pool := repository.NewPool(testLogger(t), nopMetrics{})
	reg := NewRegistry(testLogger(t), nil)
	provider := &fakeProvider{typ: models.SubscriberUser}

	// An urgent-only subscriber plus a rule that lifts high-risk events.
	d := New(testLogger(t), nopMetrics{}, pool, reg,
		NewPriorityManager(models.PriorityRule{
			Name:       "risk",
			When:       models.Predicate{Field: "risk_level", Op: models.OpGT, Value: 0.8},
			Adjustment: 2,
		}),
		NewThrottle(time.Millisecond, 60))
	d.RegisterProvider(provider)

	sub := NewUserSubscription("ops", "chat1", models.PriorityUrgent)
	if err := reg.Add(sub); err != nil {
		t.Fatalf("add sub: %v", err)
	}

	now := time.Now()
	risky := poolEvent("risky", "SPY", models.PriorityMedium, now)
	risky.Metadata = map[string]interface{}{"risk_level": 0.95}
	calm := poolEvent("calm", "QQQ", models.PriorityMedium, now)
	pool.Add(risky)
	pool.Add(calm)

	d.Deliver(context.Background())

	if len(provider.events) != 1 || provider.events[0].ID != "risky" {
		t.Fatalf("adjusted-priority filter wrong: %+v", provider.events)
	}
	// The delivered copy carries the lifted priority, the pooled event
	// keeps its base.
	if provider.events[0].Priority != models.PriorityUrgent {
		t.Fatalf("delivered priority: %d", provider.events[0].Priority)
	}
	stored, _ := pool.Get("risky")
	if stored.Priority != models.PriorityMedium {
		t.Fatalf("pooled priority mutated: %d", stored.Priority)
	}
	// The calm event is below the floor and stays pooled.
	if len(pool.UndeliveredFor(sub.ID, 10)) != 1 {
		t.Fatalf("filtered event should stay undelivered")
	}
}
