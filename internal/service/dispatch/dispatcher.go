package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/pkg/logger"
)

const (
	defaultInterval   = 10 * time.Second
	defaultBatchLimit = 20
	// At most this many events go out one by one; larger batches
	// collapse into a single summary message.
	individualSendMax = 3
)

// Dispatcher pulls undelivered events for every active subscription on
// a fixed cadence and pushes them through the registered channel
// providers, applying priority rules and throttling on the way out.
type Dispatcher struct {
	log      *logger.Logger
	metrics  drepo.Metrics
	pool     drepo.EventPool
	registry *Registry
	priority *PriorityManager
	throttle *Throttle

	mu        sync.RWMutex
	providers map[models.SubscriberType]drepo.ChannelProvider

	interval   time.Duration
	batchLimit int

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

type Option func(*Dispatcher)

func WithInterval(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.interval = d
		}
	}
}

func WithBatchLimit(n int) Option {
	return func(dp *Dispatcher) {
		if n > 0 {
			dp.batchLimit = n
		}
	}
}

func New(log *logger.Logger, metrics drepo.Metrics, pool drepo.EventPool, registry *Registry, priority *PriorityManager, throttle *Throttle, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:        log,
		metrics:    metrics,
		pool:       pool,
		registry:   registry,
		priority:   priority,
		throttle:   throttle,
		providers:  make(map[models.SubscriberType]drepo.ChannelProvider),
		interval:   defaultInterval,
		batchLimit: defaultBatchLimit,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// RegisterProvider wires a channel provider for its subscriber type.
func (d *Dispatcher) RegisterProvider(p drepo.ChannelProvider) {
	d.mu.Lock()
	d.providers[p.Type()] = p
	d.mu.Unlock()
}

func (d *Dispatcher) provider(t models.SubscriberType) (drepo.ChannelProvider, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.providers[t]
	return p, ok
}

// Start runs the delivery loop until Stop or context cancellation.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		d.log.Info("dispatcher started", logger.Duration("interval", d.interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case <-ticker.C:
				d.Deliver(ctx)
			}
		}
	}()
}

func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	<-d.done
}

// Deliver runs one delivery pass over every active subscription.
func (d *Dispatcher) Deliver(ctx context.Context) {
	start := time.Now()
	for _, sub := range d.registry.Active() {
		d.deliverTo(ctx, sub)
	}
	d.metrics.RecordLatency("dispatch_pass", time.Since(start).Seconds())
}

// delivery pairs an event with its rule-adjusted priority for the send.
type delivery struct {
	event    *models.AIEvent
	priority models.EventPriority
}

func (d *Dispatcher) deliverTo(ctx context.Context, sub *models.Subscription) {
	provider, ok := d.provider(sub.Type)
	if !ok {
		d.log.Warn("no provider for subscriber type",
			logger.String("id", sub.ID),
			logger.String("type", string(sub.Type)))
		return
	}

	pending := d.pool.UndeliveredFor(sub.ID, d.batchLimit)
	batch := make([]delivery, 0, len(pending))
	for _, e := range pending {
		adjusted, applied := d.priority.Adjust(e)
		if !sub.Filter.Matches(e.WithPriority(adjusted)) {
			continue
		}
		if !d.throttle.Allow(sub, e, adjusted) {
			continue
		}
		if len(applied) > 0 {
			d.log.Debug("priority adjusted",
				logger.String("event", e.ID),
				logger.Int("priority", int(adjusted)),
				logger.Strings("rules", applied))
		}
		batch = append(batch, delivery{event: e, priority: adjusted})
	}
	if len(batch) == 0 {
		return
	}

	channel := string(sub.Type)
	if len(batch) <= individualSendMax {
		delivered := false
		for _, dv := range batch {
			d.throttle.Pace(ctx)
			if ctx.Err() != nil {
				break
			}
			e := dv.event.WithPriority(dv.priority)
			if err := provider.SendEvent(ctx, sub, e); err != nil {
				d.metrics.RecordDelivery(channel, "error")
				d.metrics.RecordError("dispatch_" + channel)
				d.log.Error("delivery failed",
					logger.String("subscription", sub.ID),
					logger.String("event", dv.event.ID),
					logger.Error(err))
				continue
			}
			d.pool.MarkDelivered(dv.event.ID, sub.ID)
			d.metrics.RecordDelivery(channel, "ok")
			delivered = true
		}
		if delivered {
			d.registry.Touch(sub.ID, time.Now())
		}
		return
	}

	total := len(batch)
	byCategory := make(map[models.EventCategory]int)
	for _, dv := range batch {
		byCategory[dv.event.Category]++
	}
	top := topDeliveries(batch, individualSendMax)
	d.throttle.Pace(ctx)
	if ctx.Err() != nil {
		return
	}
	if err := provider.SendSummary(ctx, sub, total, byCategory, top); err != nil {
		d.metrics.RecordDelivery(channel, "error")
		d.metrics.RecordError("dispatch_" + channel)
		d.log.Error("summary delivery failed",
			logger.String("subscription", sub.ID),
			logger.Int("events", total),
			logger.Error(err))
		return
	}
	for _, dv := range batch {
		d.pool.MarkDelivered(dv.event.ID, sub.ID)
	}
	d.metrics.RecordDelivery(channel, "ok")
	d.registry.Touch(sub.ID, time.Now())
}

// topDeliveries picks the n highest (priority, then recency) events.
func topDeliveries(batch []delivery, n int) []*models.AIEvent {
	sorted := make([]delivery, len(batch))
	copy(sorted, batch)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].priority != sorted[j].priority {
			return sorted[i].priority > sorted[j].priority
		}
		return sorted[i].event.Timestamp.After(sorted[j].event.Timestamp)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make([]*models.AIEvent, len(sorted))
	for i, dv := range sorted {
		out[i] = dv.event.WithPriority(dv.priority)
	}
	return out
}
