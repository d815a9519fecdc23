package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/logger"
)

// Pool is the in-memory intelligence event store: events indexed by
// id, category, symbol, and priority, with per-subscriber delivery
// tracking, TTL expiry, and JSON snapshot persistence.
type Pool struct {
	log     *logger.Logger
	metrics drepo.Metrics

	mu         sync.RWMutex
	events     map[string]*models.AIEvent
	byCategory map[models.EventCategory][]string
	bySymbol   map[string][]string
	byPriority map[models.EventPriority][]string

	defaultTTL    time.Duration
	sweepInterval time.Duration
	snapshot      *JSONSnapshot
	hooks         []func(*models.AIEvent)

	seq     atomic.Uint64
	stopCh  chan struct{}
	started bool
}

type PoolOption func(*Pool)

// WithSnapshot persists the pool to path on every mutation.
func WithSnapshot(s *JSONSnapshot) PoolOption {
	return func(p *Pool) { p.snapshot = s }
}

func WithDefaultTTL(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.defaultTTL = d
		}
	}
}

func WithSweepInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.sweepInterval = d
		}
	}
}

// WithAddHook runs fn asynchronously for every newly admitted event
// (archive and bus publishers attach here).
func WithAddHook(fn func(*models.AIEvent)) PoolOption {
	return func(p *Pool) { p.hooks = append(p.hooks, fn) }
}

// NewPool builds the pool and restores a snapshot when one is
// configured, dropping events that expired while the process was down.
func NewPool(log *logger.Logger, metrics drepo.Metrics, opts ...PoolOption) *Pool {
	p := &Pool{
		log:           log,
		metrics:       metrics,
		events:        make(map[string]*models.AIEvent),
		byCategory:    make(map[models.EventCategory][]string),
		bySymbol:      make(map[string][]string),
		byPriority:    make(map[models.EventPriority][]string),
		defaultTTL:    models.DefaultEventTTL,
		sweepInterval: time.Hour,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.restore()
	return p
}

func (p *Pool) restore() {
	if p.snapshot == nil {
		return
	}
	var stored []*models.AIEvent
	if err := p.snapshot.Load(&stored); err != nil {
		p.log.Warn("event snapshot load failed", logger.Error(err))
		return
	}
	now := time.Now()
	restored := 0
	for _, e := range stored {
		if e == nil || e.ID == "" || e.Expired(now) {
			continue
		}
		p.insertLocked(e)
		restored++
	}
	if restored > 0 {
		p.log.Info("event snapshot restored", logger.Int("events", restored))
	}
}

// NextID mints an event id: evt_<UTC stamp>_<seq>.
func (p *Pool) NextID(now time.Time) string {
	return fmt.Sprintf("evt_%s_%d", now.UTC().Format("20060102150405"), p.seq.Add(1))
}

// Add admits an event; returns false without side effects when the id
// is already present.
func (p *Pool) Add(e *models.AIEvent) bool {
	now := time.Now()
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Expiry.IsZero() {
		e.Expiry = e.Timestamp.Add(p.defaultTTL)
	}
	if e.ID == "" {
		e.ID = p.NextID(e.Timestamp)
	}

	p.mu.Lock()
	if _, dup := p.events[e.ID]; dup {
		p.mu.Unlock()
		return false
	}
	p.insertLocked(e)
	p.mu.Unlock()

	p.metrics.RecordEventEmitted(string(e.Category))
	p.persist()
	for _, hook := range p.hooks {
		go hook(e)
	}
	return true
}

// insertLocked adds e to the primary map and all indexes.
func (p *Pool) insertLocked(e *models.AIEvent) {
	p.events[e.ID] = e
	p.byCategory[e.Category] = append(p.byCategory[e.Category], e.ID)
	p.bySymbol[e.Symbol] = append(p.bySymbol[e.Symbol], e.ID)
	p.byPriority[e.Priority] = append(p.byPriority[e.Priority], e.ID)
}

func (p *Pool) Get(id string) (*models.AIEvent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.events[id]
	return e, ok
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.events)
}

func (p *Pool) ByCategory(c models.EventCategory, limit int) []*models.AIEvent {
	p.mu.RLock()
	out := p.collectLocked(p.byCategory[c])
	p.mu.RUnlock()
	return newestFirst(out, limit)
}

func (p *Pool) BySymbol(symbol string, limit int) []*models.AIEvent {
	p.mu.RLock()
	out := p.collectLocked(p.bySymbol[symbol])
	p.mu.RUnlock()
	return newestFirst(out, limit)
}

func (p *Pool) ByPriority(pr models.EventPriority, limit int) []*models.AIEvent {
	p.mu.RLock()
	out := p.collectLocked(p.byPriority[pr])
	p.mu.RUnlock()
	return newestFirst(out, limit)
}

// Recent lists the newest events across all indexes.
func (p *Pool) Recent(limit int) []*models.AIEvent {
	p.mu.RLock()
	out := make([]*models.AIEvent, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e)
	}
	p.mu.RUnlock()
	return newestFirst(out, limit)
}

func (p *Pool) collectLocked(ids []string) []*models.AIEvent {
	out := make([]*models.AIEvent, 0, len(ids))
	for _, id := range ids {
		if e, ok := p.events[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// UndeliveredFor lists live events the subscriber has not received,
// highest priority first, newest first within a priority.
func (p *Pool) UndeliveredFor(subscriberID string, limit int) []*models.AIEvent {
	now := time.Now()
	p.mu.RLock()
	out := make([]*models.AIEvent, 0)
	for _, e := range p.events {
		if e.Expired(now) || e.DeliveredToSubscriber(subscriberID) {
			continue
		}
		out = append(out, e)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MarkDelivered records a delivery; it never un-marks.
func (p *Pool) MarkDelivered(id, subscriberID string) bool {
	p.mu.Lock()
	e, ok := p.events[id]
	if !ok {
		p.mu.Unlock()
		return false
	}
	if !e.DeliveredToSubscriber(subscriberID) {
		e.DeliveredTo = append(e.DeliveredTo, subscriberID)
	}
	p.mu.Unlock()
	p.persist()
	return true
}

// Delete removes an event from the pool and every index.
func (p *Pool) Delete(id string) bool {
	p.mu.Lock()
	e, ok := p.events[id]
	if !ok {
		p.mu.Unlock()
		return false
	}
	delete(p.events, id)
	p.byCategory[e.Category] = removeID(p.byCategory[e.Category], id)
	p.bySymbol[e.Symbol] = removeID(p.bySymbol[e.Symbol], id)
	p.byPriority[e.Priority] = removeID(p.byPriority[e.Priority], id)
	p.mu.Unlock()
	p.persist()
	return true
}

// Start launches the periodic expiry sweep.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(p.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				if n := p.Sweep(time.Now()); n > 0 {
					p.log.Info("expired events swept", logger.Int("count", n))
				}
			}
		}
	}()
}

func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Sweep drops every event expired at now and returns how many went.
func (p *Pool) Sweep(now time.Time) int {
	p.mu.Lock()
	var expired []string
	for id, e := range p.events {
		if e.Expired(now) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		e := p.events[id]
		delete(p.events, id)
		p.byCategory[e.Category] = removeID(p.byCategory[e.Category], id)
		p.bySymbol[e.Symbol] = removeID(p.bySymbol[e.Symbol], id)
		p.byPriority[e.Priority] = removeID(p.byPriority[e.Priority], id)
	}
	p.mu.Unlock()

	if len(expired) > 0 {
		p.persist()
	}
	return len(expired)
}

// persist writes the snapshot outside the pool lock. It copies each
// event under the read lock so the encoder never observes a delivery
// mark landing on a live event.
func (p *Pool) persist() {
	if p.snapshot == nil {
		return
	}
	p.mu.RLock()
	all := make([]*models.AIEvent, 0, len(p.events))
	for _, e := range p.events {
		cp := *e
		cp.DeliveredTo = append([]string(nil), e.DeliveredTo...)
		all = append(all, &cp)
	}
	p.mu.RUnlock()

	if err := p.snapshot.Save(all); err != nil {
		p.metrics.RecordError("event_snapshot")
		p.log.Error("event snapshot save failed", logger.Error(err))
	}
}

func removeID(ids []string, id string) []string {
	for i, x := range ids {
		if x == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func newestFirst(events []*models.AIEvent, limit int) []*models.AIEvent {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if limit <= 0 {
		limit = 100
	}
	if len(events) > limit {
		events = events[:limit]
	}
	return events
}

var _ drepo.EventPool = (*Pool)(nil)
