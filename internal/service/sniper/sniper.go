package sniper

import (
	"math"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/repository"
	"MarketPulse/internal/service/datahub"
	"MarketPulse/pkg/logger"
)

const (
	imbalanceHistoryCap = 100
	tradeHistoryCap     = 1000
	chainHistoryCap     = 10
	imbalanceWindow     = 5
	volumeWindow        = 10
)

// Config holds detector thresholds.
type Config struct {
	ImbalanceThreshold float64
	VolumeThreshold    float64
	OptionIVThreshold  float64
	OptionExpiries     int
	SummaryInterval    time.Duration
}

// DefaultConfig mirrors the tuned production thresholds.
func DefaultConfig() Config {
	return Config{
		ImbalanceThreshold: 0.3,
		VolumeThreshold:    1.5,
		OptionIVThreshold:  0.1,
		OptionExpiries:     3,
		SummaryInterval:    time.Hour,
	}
}

// Sniper watches hub updates per symbol and emits intelligence events
// for order-flow imbalances, whale trades, and option chain anomalies.
type Sniper struct {
	log     *logger.Logger
	metrics drepo.Metrics
	pool    *repository.Pool
	hub     *datahub.Hub
	cfg     Config

	mu    sync.Mutex
	state map[string]*symbolState

	sumMu  sync.Mutex
	counts map[models.EventCategory]int
	whales []*models.AIEvent
}

// symbolState is per-symbol detector memory; guarded by Sniper.mu.
type symbolState struct {
	imbalances []float64
	prices     []float64
	volumes    []float64
	lastPrice  float64
	chains     []*models.OptionChain
}

func New(log *logger.Logger, metrics drepo.Metrics, pool *repository.Pool, hub *datahub.Hub, cfg Config) *Sniper {
	if cfg.ImbalanceThreshold == 0 {
		cfg = DefaultConfig()
	}
	return &Sniper{
		log:     log,
		metrics: metrics,
		pool:    pool,
		hub:     hub,
		cfg:     cfg,
		state:   make(map[string]*symbolState),
		counts:  make(map[models.EventCategory]int),
	}
}

// Attach subscribes the detectors to hub pushes for the given symbols.
func (s *Sniper) Attach(symbols []string) {
	for _, sym := range symbols {
		sym := sym
		s.hub.Subscribe(models.DataTrade, sym, func(u models.Update) {
			if u.Trade != nil {
				s.OnTrade(u.Trade)
			}
		})
		s.hub.Subscribe(models.DataOrderBook, sym, func(u models.Update) {
			if u.Book != nil {
				s.OnOrderBook(u.Book)
			}
		})
		s.hub.Subscribe(models.DataOptionChain, sym, func(u models.Update) {
			if u.Chain != nil {
				s.OnOptionChain(u.Chain)
			}
		})
	}
}

func (s *Sniper) stateFor(symbol string) *symbolState {
	st, ok := s.state[symbol]
	if !ok {
		st = &symbolState{}
		s.state[symbol] = st
	}
	return st
}

// Imbalance computes value-weighted order flow imbalance in [-1, 1]:
// (bid notional - ask notional) / total, 0 for an empty book.
func Imbalance(book *models.OrderBook) float64 {
	if book.Empty() {
		return 0
	}
	var bids, asks float64
	for _, l := range book.Bids {
		bids += l.Price * l.Size
	}
	for _, l := range book.Asks {
		asks += l.Price * l.Size
	}
	total := bids + asks
	if total == 0 {
		return 0
	}
	return (bids - asks) / total
}

// OnOrderBook runs the imbalance detector on a fresh depth snapshot.
// A signal fires only when the imbalance clears the threshold and is
// still strengthening against its trailing average, which filters the
// flapping around a level that just crossed. The trend is not
// evaluated until more than a full window of history has accumulated,
// so a symbol never signals off its first few snapshots.
func (s *Sniper) OnOrderBook(book *models.OrderBook) {
	imb := Imbalance(book)

	s.mu.Lock()
	st := s.stateFor(book.Symbol)
	st.imbalances = appendCapped(st.imbalances, imb, imbalanceHistoryCap)
	depth := len(st.imbalances)
	recent := st.imbalances
	if len(recent) > imbalanceWindow {
		recent = recent[len(recent)-imbalanceWindow:]
	}
	avg := mean(recent)
	s.mu.Unlock()

	if depth <= imbalanceWindow {
		return
	}
	if math.Abs(imb) <= s.cfg.ImbalanceThreshold {
		return
	}
	strengthening := (imb > 0 && imb > avg) || (imb < 0 && imb < avg)
	if !strengthening {
		return
	}

	e := s.pool.CreateLiquidityEvent(book.Symbol, imb, map[string]interface{}{
		"bid_levels": len(book.Bids),
		"ask_levels": len(book.Asks),
	})
	if e != nil {
		s.recordAlert(e)
		s.log.Info("liquidity signal",
			logger.String("symbol", book.Symbol),
			logger.Any("imbalance", imb))
	}
}

// whaleThreshold picks the notional floor per symbol class.
func (s *Sniper) whaleThreshold(symbol string) float64 {
	if s.hub.MarketTypeOf(symbol) == models.MarketCrypto {
		return 1_000_000
	}
	switch symbol {
	case "SPY", "QQQ", "IWM", "DIA":
		return 2_000_000
	}
	return 500_000
}

// OnTrade runs the whale detector on a single trade.
func (s *Sniper) OnTrade(t *models.Trade) {
	value := t.Value()
	threshold := s.whaleThreshold(t.Symbol)

	s.mu.Lock()
	st := s.stateFor(t.Symbol)
	prevPrice := st.lastPrice
	prevVolumes := st.volumes
	var volAvg float64
	hasHistory := len(prevVolumes) > 0
	if hasHistory {
		window := prevVolumes
		if len(window) > volumeWindow {
			window = window[len(window)-volumeWindow:]
		}
		volAvg = mean(window)
	}
	st.prices = appendCapped(st.prices, t.Price, tradeHistoryCap)
	st.volumes = appendCapped(st.volumes, t.Size, tradeHistoryCap)
	st.lastPrice = t.Price
	s.mu.Unlock()

	var whale bool
	if !hasHistory {
		whale = value > 2*threshold
	} else {
		whale = t.Size > volAvg*s.cfg.VolumeThreshold && value > threshold
	}
	if !whale {
		return
	}

	side := t.Side
	if side == "" {
		side = s.inferSide(t, prevPrice)
	}

	e := s.pool.CreateWhaleAlert(t.Symbol, side, value, t.Size, t.Price, nil)
	if e != nil {
		s.recordWhale(e)
		s.log.Info("whale alert",
			logger.String("symbol", t.Symbol),
			logger.String("side", side),
			logger.Any("value", value))
	}
}

// inferSide classifies trade aggression from the previous trade price,
// falling back to the cached book mid when prices tie or no history.
func (s *Sniper) inferSide(t *models.Trade, prevPrice float64) string {
	if prevPrice > 0 && t.Price != prevPrice {
		if t.Price > prevPrice {
			return "buy"
		}
		return "sell"
	}
	if book, ok := s.hub.CachedOrderBook(t.Symbol); ok {
		if mid := book.MidPrice(); mid > 0 && t.Price < mid {
			return "sell"
		}
	}
	return "buy"
}

func (s *Sniper) recordAlert(e *models.AIEvent) {
	s.sumMu.Lock()
	s.counts[e.Category]++
	s.sumMu.Unlock()
}

func (s *Sniper) recordWhale(e *models.AIEvent) {
	s.sumMu.Lock()
	s.counts[e.Category]++
	s.whales = append(s.whales, e)
	if len(s.whales) > 50 {
		s.whales = s.whales[len(s.whales)-50:]
	}
	s.sumMu.Unlock()
}

func appendCapped(xs []float64, x float64, limit int) []float64 {
	xs = append(xs, x)
	if len(xs) > limit {
		xs = xs[len(xs)-limit:]
	}
	return xs
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
