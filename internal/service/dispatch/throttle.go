package dispatch

import (
	"context"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/ratelimit"
)

// Priority-keyed quiet periods for repeats of the same
// (subscriber, symbol, category) tuple. Higher priority repeats sooner.
var repeatCooldowns = map[models.EventPriority]time.Duration{
	models.PriorityCritical: 1 * time.Minute,
	models.PriorityUrgent:   5 * time.Minute,
	models.PriorityHigh:     15 * time.Minute,
	models.PriorityMedium:   30 * time.Minute,
	models.PriorityLow:      60 * time.Minute,
}

// Throttle gates deliveries three ways: a global minimum interval
// between any two outgoing messages (Pace), a per-subscriber
// per-minute cap, and a per (subscriber, symbol, category) cooldown
// scaled by priority (Allow).
type Throttle struct {
	minInterval  time.Duration
	maxPerMinute int

	global   *ratelimit.Cooldown
	window   *ratelimit.Window
	cooldown *ratelimit.Cooldown
}

func NewThrottle(minInterval time.Duration, maxPerMinute int) *Throttle {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	if maxPerMinute <= 0 {
		maxPerMinute = 60
	}
	return &Throttle{
		minInterval:  minInterval,
		maxPerMinute: maxPerMinute,
		global:       ratelimit.NewCooldown(),
		window:       ratelimit.NewWindow(time.Minute),
		cooldown:     ratelimit.NewCooldown(),
	}
}

// Allow reports whether the event may go out to sub now. The repeat
// cooldown is consumed last so a pass here always means send.
func (t *Throttle) Allow(sub *models.Subscription, e *models.AIEvent, priority models.EventPriority) bool {
	return t.AllowAt(sub, e, priority, time.Now())
}

func (t *Throttle) AllowAt(sub *models.Subscription, e *models.AIEvent, priority models.EventPriority, now time.Time) bool {
	if !t.window.AllowAt(sub.ID, t.maxPerMinute, now) {
		return false
	}
	period, ok := repeatCooldowns[priority]
	if !ok {
		period = repeatCooldowns[models.PriorityLow]
	}
	key := repeatKey(sub.ID, e)
	return t.cooldown.AllowAt(key, period, now)
}

// Pace blocks until the global minimum interval since the previous
// outgoing message has elapsed, then records this send. Returns early
// on context cancellation.
func (t *Throttle) Pace(ctx context.Context) {
	for {
		now := time.Now()
		if t.global.AllowAt("global", t.minInterval, now) {
			return
		}
		wait := t.global.Remaining("global", t.minInterval, now)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func repeatKey(subID string, e *models.AIEvent) string {
	return fmt.Sprintf("%s:%s:%s", subID, e.Symbol, e.Category)
}
