package ratelimit

import (
	"sync"
	"time"
)

// Window is a keyed fixed-window counter: at most limit hits per span,
// with the count resetting when the window rolls over.
type Window struct {
	mu    sync.Mutex
	span  time.Duration
	m     map[string]*windowState
}

type windowState struct {
	count int
	start time.Time
}

func NewWindow(span time.Duration) *Window {
	return &Window{span: span, m: make(map[string]*windowState)}
}

// Allow consumes one slot for key if fewer than limit were used this window.
func (w *Window) Allow(key string, limit int) bool {
	return w.AllowAt(key, limit, time.Now())
}

func (w *Window) AllowAt(key string, limit int, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.m[key]
	if !ok || now.Sub(s.start) >= w.span {
		w.m[key] = &windowState{count: 1, start: now}
		return true
	}
	if s.count >= limit {
		return false
	}
	s.count++
	return true
}

// Cooldown tracks per-key quiet periods of varying length.
type Cooldown struct {
	mu sync.Mutex
	m  map[string]time.Time // key -> last fire
}

func NewCooldown() *Cooldown {
	return &Cooldown{m: make(map[string]time.Time)}
}

// Allow fires for key if at least period has passed since the last fire.
func (c *Cooldown) Allow(key string, period time.Duration) bool {
	return c.AllowAt(key, period, time.Now())
}

func (c *Cooldown) AllowAt(key string, period time.Duration, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.m[key]
	if ok && now.Sub(last) < period {
		return false
	}
	c.m[key] = now
	return true
}

// Remaining reports how long until key may fire again; zero when ready.
func (c *Cooldown) Remaining(key string, period time.Duration, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.m[key]
	if !ok {
		return 0
	}
	if rem := period - now.Sub(last); rem > 0 {
		return rem
	}
	return 0
}
