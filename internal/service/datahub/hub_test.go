package datahub

import (
	"context"
	"errors"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/logger"
)

type recMetrics struct {
	hits      map[string]int
	misses    map[string]int
	failovers map[string]int
}

func newRecMetrics() *recMetrics {
	return &recMetrics{
		hits:      make(map[string]int),
		misses:    make(map[string]int),
		failovers: make(map[string]int),
	}
}

func (m *recMetrics) RecordEventEmitted(string)       {}
func (m *recMetrics) RecordDelivery(string, string)   {}
func (m *recMetrics) RecordError(string)              {}
func (m *recMetrics) RecordLastPrice(string, float64) {}
func (m *recMetrics) RecordLatency(string, float64)   {}
func (m *recMetrics) RecordCacheHit(kind string)      { m.hits[kind]++ }
func (m *recMetrics) RecordCacheMiss(kind string)     { m.misses[kind]++ }
func (m *recMetrics) RecordFailover(source, _ string) { m.failovers[source]++ }

type fakeConnector struct {
	name  string
	err   error
	bars  []models.Bar
	book  *models.OrderBook
	chain *models.OptionChain
	calls int
}

func (c *fakeConnector) Name() string { return c.name }

func (c *fakeConnector) Markets() []models.MarketType {
	return []models.MarketType{models.MarketStock}
}

func (c *fakeConnector) GetBars(context.Context, string, drepo.Timeframe, int) ([]models.Bar, error) {
	c.calls++
	return c.bars, c.err
}

func (c *fakeConnector) GetOrderBook(_ context.Context, symbol string, _ int) (*models.OrderBook, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if c.book != nil {
		return c.book, nil
	}
	return &models.OrderBook{Symbol: symbol}, nil
}

func (c *fakeConnector) GetOptionChain(_ context.Context, symbol string) (*models.OptionChain, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if c.chain != nil {
		return c.chain, nil
	}
	return &models.OptionChain{Symbol: symbol}, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func stockOrder(names ...string) map[models.MarketType][]string {
	return map[models.MarketType][]string{models.MarketStock: names}
}

func spyBook() *models.OrderBook {
	return &models.OrderBook{
		Symbol:    "SPY",
		Bids:      []models.BookLevel{{Price: 500, Size: 100}},
		Asks:      []models.BookLevel{{Price: 500.1, Size: 80}},
		Timestamp: time.Now(),
	}
}

func TestHubCacheHitAvoidsRefetch(t *testing.T) {
	m := newRecMetrics()
	src := &fakeConnector{name: "primary", bars: []models.Bar{{Symbol: "SPY", Timeframe: "1m", Close: 500}}}
	h := New(testLogger(t), m, []drepo.Connector{src}, stockOrder("primary"))

	bars, err := h.GetBars(context.Background(), "SPY", drepo.TF1m, 10)
	if err != nil || len(bars) != 1 {
		t.Fatalf("first fetch: %v %d", err, len(bars))
	}
	bars, err = h.GetBars(context.Background(), "SPY", drepo.TF1m, 10)
	if err != nil || len(bars) != 1 {
		t.Fatalf("second fetch: %v %d", err, len(bars))
	}

	if src.calls != 1 {
		t.Fatalf("cache did not absorb the second read, %d calls", src.calls)
	}
	if m.hits["bars"] != 1 || m.misses["bars"] != 1 {
		t.Fatalf("hit/miss accounting: %v %v", m.hits, m.misses)
	}
}

func TestHubFailsOverInOrder(t *testing.T) {
	m := newRecMetrics()
	down := &fakeConnector{name: "primary", err: errors.New("timeout")}
	up := &fakeConnector{name: "backup", book: spyBook()}
	h := New(testLogger(t), m, []drepo.Connector{down, up}, stockOrder("primary", "backup"))

	book, err := h.GetOrderBook(context.Background(), "SPY", 20)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if book.Empty() {
		t.Fatalf("backup result lost")
	}
	if m.failovers["primary"] != 1 {
		t.Fatalf("failover not recorded: %v", m.failovers)
	}
	if down.calls != 1 || up.calls != 1 {
		t.Fatalf("call counts: primary=%d backup=%d", down.calls, up.calls)
	}
}

func TestHubEmptyResultAlsoFailsOver(t *testing.T) {
	m := newRecMetrics()
	dry := &fakeConnector{name: "primary"} // serves empty books without erroring
	up := &fakeConnector{name: "backup", book: spyBook()}
	h := New(testLogger(t), m, []drepo.Connector{dry, up}, stockOrder("primary", "backup"))

	book, err := h.GetOrderBook(context.Background(), "SPY", 20)
	if err != nil || book.Empty() {
		t.Fatalf("empty primary should fall through: %v", err)
	}
	if m.failovers["primary"] != 1 {
		t.Fatalf("empty result not counted as failover")
	}
}

func TestHubAllSourcesDownReturnsEmpty(t *testing.T) {
	m := newRecMetrics()
	a := &fakeConnector{name: "a", err: errors.New("down")}
	b := &fakeConnector{name: "b", err: errors.New("down")}
	h := New(testLogger(t), m, []drepo.Connector{a, b}, stockOrder("a", "b"))

	book, err := h.GetOrderBook(context.Background(), "SPY", 20)
	if err != nil {
		t.Fatalf("exhausted sources should not error: %v", err)
	}
	if book == nil || book.Symbol != "SPY" || !book.Empty() {
		t.Fatalf("want empty book, got %+v", book)
	}

	bars, err := h.GetBars(context.Background(), "SPY", drepo.TF1m, 10)
	if err != nil || bars != nil {
		t.Fatalf("want nil bars, got %v %v", bars, err)
	}

	chain, err := h.GetOptionChain(context.Background(), "SPY")
	if err != nil || !chain.Empty() {
		t.Fatalf("want empty chain, got %+v %v", chain, err)
	}
}

func TestHubPushRefreshesCacheAndFansOut(t *testing.T) {
	m := newRecMetrics()
	h := New(testLogger(t), m, nil, stockOrder())

	var got []models.Update
	h.Subscribe(models.DataOrderBook, "SPY", func(u models.Update) { got = append(got, u) })
	h.Subscribe(models.DataOrderBook, "QQQ", func(u models.Update) {
		t.Fatalf("update leaked to another symbol")
	})

	h.Push(models.Update{Type: models.DataOrderBook, Symbol: "SPY", Source: "binance", Book: spyBook()})

	if len(got) != 1 || got[0].Symbol != "SPY" {
		t.Fatalf("callback not invoked: %+v", got)
	}
	if book, ok := h.CachedOrderBook("SPY"); !ok || book.Empty() {
		t.Fatalf("pushed book not cached")
	}
	if _, ok := h.LastUpdate("binance", "SPY"); !ok {
		t.Fatalf("source freshness not tracked")
	}
}

func TestHubRoutesCryptoSeparately(t *testing.T) {
	m := newRecMetrics()
	stock := &fakeConnector{name: "polygon", book: spyBook()}
	crypto := &fakeConnector{name: "binance", book: &models.OrderBook{
		Symbol: "BTCUSDT",
		Bids:   []models.BookLevel{{Price: 60000, Size: 1}},
		Asks:   []models.BookLevel{{Price: 60001, Size: 1}},
	}}
	order := map[models.MarketType][]string{
		models.MarketStock:  {"polygon"},
		models.MarketCrypto: {"binance"},
	}
	h := New(testLogger(t), m, []drepo.Connector{stock, crypto}, order,
		WithCryptoSymbols([]string{"BTCUSDT"}))

	if h.MarketTypeOf("BTCUSDT") != models.MarketCrypto {
		t.Fatalf("BTCUSDT should route as crypto")
	}
	if h.MarketTypeOf("SPY") != models.MarketStock {
		t.Fatalf("SPY should route as stock")
	}

	if _, err := h.GetOrderBook(context.Background(), "BTCUSDT", 20); err != nil {
		t.Fatalf("get: %v", err)
	}
	if stock.calls != 0 || crypto.calls != 1 {
		t.Fatalf("crypto request hit the stock path: polygon=%d binance=%d", stock.calls, crypto.calls)
	}
}
