package datahub

import (
	"context"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	icache "MarketPulse/internal/service/cache"
	pkgcache "MarketPulse/pkg/cache"
	"MarketPulse/pkg/logger"
)

// Hub serves market data from an ordered set of connectors with a
// per-kind TTL cache in front. A fetch walks the fail-over order for
// the symbol's market type and returns the first non-empty result;
// when every source fails the result is empty, not an error.
type Hub struct {
	log     *logger.Logger
	metrics drepo.Metrics

	connectors map[string]drepo.Connector
	order      map[models.MarketType][]string
	cryptoSet  map[string]struct{}

	cache    *icache.TTLCache
	l2       pkgcache.Service // optional, bars and chains only
	ttlBars  time.Duration
	ttlBook  time.Duration
	ttlChain time.Duration

	cbMu      sync.RWMutex
	callbacks map[string][]func(models.Update)

	luMu       sync.RWMutex
	lastUpdate map[string]time.Time
}

type Option func(*Hub)

// WithTTLs overrides the per-kind cache TTLs.
func WithTTLs(bars, book, chain time.Duration) Option {
	return func(h *Hub) {
		if bars > 0 {
			h.ttlBars = bars
		}
		if book > 0 {
			h.ttlBook = book
		}
		if chain > 0 {
			h.ttlChain = chain
		}
	}
}

// WithL2Cache attaches a shared cache behind the in-process one.
func WithL2Cache(c pkgcache.Service) Option {
	return func(h *Hub) { h.l2 = c }
}

// WithCryptoSymbols marks symbols that route through the crypto
// fail-over order; everything else is treated as stock.
func WithCryptoSymbols(symbols []string) Option {
	return func(h *Hub) {
		for _, s := range symbols {
			h.cryptoSet[s] = struct{}{}
		}
	}
}

// New builds a hub. order maps market type to connector names tried
// front to back; names missing from connectors are skipped.
func New(log *logger.Logger, metrics drepo.Metrics, connectors []drepo.Connector, order map[models.MarketType][]string, opts ...Option) *Hub {
	h := &Hub{
		log:        log,
		metrics:    metrics,
		connectors: make(map[string]drepo.Connector, len(connectors)),
		order:      order,
		cryptoSet:  make(map[string]struct{}),
		cache:      icache.NewTTLCache(),
		ttlBars:    time.Minute,
		ttlBook:    5 * time.Second,
		ttlChain:   time.Minute,
		callbacks:  make(map[string][]func(models.Update)),
		lastUpdate: make(map[string]time.Time),
	}
	for _, c := range connectors {
		h.connectors[c.Name()] = c
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MarketTypeOf classifies a symbol for fail-over routing.
func (h *Hub) MarketTypeOf(symbol string) models.MarketType {
	if _, ok := h.cryptoSet[symbol]; ok {
		return models.MarketCrypto
	}
	return models.MarketStock
}

func (h *Hub) sourcesFor(symbol string) []drepo.Connector {
	names := h.order[h.MarketTypeOf(symbol)]
	out := make([]drepo.Connector, 0, len(names))
	for _, n := range names {
		if c, ok := h.connectors[n]; ok {
			out = append(out, c)
		}
	}
	return out
}

// GetBars returns cached or freshly fetched bars; empty when no source
// has data.
func (h *Hub) GetBars(ctx context.Context, symbol string, tf drepo.Timeframe, limit int) ([]models.Bar, error) {
	key := pkgcache.GenerateKeyWithParams("bars", symbol, tf)
	if v, ok := h.cache.Get(key); ok {
		h.metrics.RecordCacheHit("bars")
		return clip(v.([]models.Bar), limit), nil
	}
	h.metrics.RecordCacheMiss("bars")

	if h.l2 != nil {
		var bars []models.Bar
		if err := h.l2.Get(ctx, key, &bars); err == nil && len(bars) > 0 {
			h.cache.Set(key, bars, h.ttlBars)
			return clip(bars, limit), nil
		}
	}

	start := time.Now()
	defer func() { h.metrics.RecordLatency("hub_get_bars", time.Since(start).Seconds()) }()

	for _, c := range h.sourcesFor(symbol) {
		bars, err := c.GetBars(ctx, symbol, tf, limit)
		if err != nil {
			h.failover(c.Name(), "bars", symbol, err)
			continue
		}
		if len(bars) == 0 {
			h.failover(c.Name(), "bars", symbol, nil)
			continue
		}
		h.cache.Set(key, bars, h.ttlBars)
		if h.l2 != nil {
			_ = h.l2.Set(ctx, key, bars, h.ttlBars)
		}
		h.touch(c.Name(), symbol)
		return clip(bars, limit), nil
	}
	return nil, nil
}

// GetOrderBook returns a cached or freshly fetched depth snapshot.
func (h *Hub) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	key := pkgcache.GenerateKey("book", symbol)
	if v, ok := h.cache.Get(key); ok {
		h.metrics.RecordCacheHit("order_book")
		return v.(*models.OrderBook), nil
	}
	h.metrics.RecordCacheMiss("order_book")

	start := time.Now()
	defer func() { h.metrics.RecordLatency("hub_get_order_book", time.Since(start).Seconds()) }()

	for _, c := range h.sourcesFor(symbol) {
		book, err := c.GetOrderBook(ctx, symbol, depth)
		if err != nil {
			h.failover(c.Name(), "order_book", symbol, err)
			continue
		}
		if book.Empty() {
			h.failover(c.Name(), "order_book", symbol, nil)
			continue
		}
		h.cache.Set(key, book, h.ttlBook)
		h.touch(c.Name(), symbol)
		return book, nil
	}
	return &models.OrderBook{Symbol: symbol}, nil
}

// GetOptionChain returns a cached or freshly fetched option chain.
func (h *Hub) GetOptionChain(ctx context.Context, symbol string) (*models.OptionChain, error) {
	key := pkgcache.GenerateKey("chain", symbol)
	if v, ok := h.cache.Get(key); ok {
		h.metrics.RecordCacheHit("option_chain")
		return v.(*models.OptionChain), nil
	}
	h.metrics.RecordCacheMiss("option_chain")

	if h.l2 != nil {
		var chain models.OptionChain
		if err := h.l2.Get(ctx, key, &chain); err == nil && !chain.Empty() {
			h.cache.Set(key, &chain, h.ttlChain)
			return &chain, nil
		}
	}

	start := time.Now()
	defer func() { h.metrics.RecordLatency("hub_get_option_chain", time.Since(start).Seconds()) }()

	for _, c := range h.sourcesFor(symbol) {
		chain, err := c.GetOptionChain(ctx, symbol)
		if err != nil {
			h.failover(c.Name(), "option_chain", symbol, err)
			continue
		}
		if chain.Empty() {
			h.failover(c.Name(), "option_chain", symbol, nil)
			continue
		}
		h.cache.Set(key, chain, h.ttlChain)
		if h.l2 != nil {
			_ = h.l2.Set(ctx, key, chain, h.ttlChain)
		}
		h.touch(c.Name(), symbol)
		return chain, nil
	}
	return &models.OptionChain{Symbol: symbol}, nil
}

// CachedOrderBook reads the book cache without triggering a fetch.
func (h *Hub) CachedOrderBook(symbol string) (*models.OrderBook, bool) {
	if v, ok := h.cache.Get(pkgcache.GenerateKey("book", symbol)); ok {
		return v.(*models.OrderBook), true
	}
	return nil, false
}

// Subscribe registers a callback for pushed updates of one data type
// and symbol.
func (h *Hub) Subscribe(dt models.DataType, symbol string, cb func(models.Update)) {
	key := string(dt) + ":" + symbol
	h.cbMu.Lock()
	h.callbacks[key] = append(h.callbacks[key], cb)
	h.cbMu.Unlock()
}

// Push delivers an update from a stream or poller: the cache is
// refreshed and subscribers are invoked outside the lock.
func (h *Hub) Push(u models.Update) {
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now()
	}
	switch u.Type {
	case models.DataOrderBook:
		if !u.Book.Empty() {
			h.cache.Set(pkgcache.GenerateKey("book", u.Symbol), u.Book, h.ttlBook)
		}
	case models.DataBars:
		if len(u.Bars) > 0 {
			h.cache.Set(pkgcache.GenerateKeyWithParams("bars", u.Symbol, u.Bars[0].Timeframe), u.Bars, h.ttlBars)
		}
	case models.DataOptionChain:
		if !u.Chain.Empty() {
			h.cache.Set(pkgcache.GenerateKey("chain", u.Symbol), u.Chain, h.ttlChain)
		}
	case models.DataTrade:
		if u.Trade != nil {
			h.metrics.RecordLastPrice(u.Symbol, u.Trade.Price)
		}
	}
	if u.Source != "" {
		h.touch(u.Source, u.Symbol)
	}

	key := string(u.Type) + ":" + u.Symbol
	h.cbMu.RLock()
	cbs := make([]func(models.Update), len(h.callbacks[key]))
	copy(cbs, h.callbacks[key])
	h.cbMu.RUnlock()
	for _, cb := range cbs {
		cb(u)
	}
}

// LastUpdate reports when a source last produced data for a symbol.
func (h *Hub) LastUpdate(source, symbol string) (time.Time, bool) {
	h.luMu.RLock()
	defer h.luMu.RUnlock()
	t, ok := h.lastUpdate[source+":"+symbol]
	return t, ok
}

func (h *Hub) touch(source, symbol string) {
	h.luMu.Lock()
	h.lastUpdate[source+":"+symbol] = time.Now()
	h.luMu.Unlock()
}

func (h *Hub) failover(source, kind, symbol string, err error) {
	h.metrics.RecordFailover(source, kind)
	if err != nil {
		h.log.Debug("source fetch failed",
			logger.String("source", source),
			logger.String("kind", kind),
			logger.String("symbol", symbol),
			logger.Error(err))
	}
}

func clip(bars []models.Bar, limit int) []models.Bar {
	if limit > 0 && len(bars) > limit {
		return bars[len(bars)-limit:]
	}
	return bars
}
