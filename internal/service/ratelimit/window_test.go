package ratelimit

import (
	"testing"
	"time"
)

func TestWindowRollover(t *testing.T) {
	w := NewWindow(time.Minute)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !w.AllowAt("k", 3, now.Add(time.Duration(i)*time.Second)) {
			t.Fatalf("hit %d should pass", i+1)
		}
	}
	if w.AllowAt("k", 3, now.Add(30*time.Second)) {
		t.Fatalf("fourth hit in the window should be blocked")
	}
	if !w.AllowAt("k", 3, now.Add(time.Minute)) {
		t.Fatalf("window should reset after the span")
	}
}

func TestWindowKeysIsolated(t *testing.T) {
	w := NewWindow(time.Minute)
	now := time.Now()

	if !w.AllowAt("a", 1, now) {
		t.Fatalf("first key should pass")
	}
	if w.AllowAt("a", 1, now) {
		t.Fatalf("first key should be exhausted")
	}
	if !w.AllowAt("b", 1, now) {
		t.Fatalf("second key must not share the count")
	}
}

func TestCooldownFireAndWait(t *testing.T) {
	c := NewCooldown()
	now := time.Now()

	if !c.AllowAt("k", time.Minute, now) {
		t.Fatalf("first fire should pass")
	}
	if c.AllowAt("k", time.Minute, now.Add(30*time.Second)) {
		t.Fatalf("fire inside the period should be blocked")
	}
	if got := c.Remaining("k", time.Minute, now.Add(45*time.Second)); got != 15*time.Second {
		t.Fatalf("remaining: want 15s, got %v", got)
	}
	if !c.AllowAt("k", time.Minute, now.Add(time.Minute)) {
		t.Fatalf("fire after the period should pass")
	}
	if got := c.Remaining("unknown", time.Minute, now); got != 0 {
		t.Fatalf("unknown key should be ready, got %v", got)
	}
}

func TestCooldownBlockedFireDoesNotExtend(t *testing.T) {
	c := NewCooldown()
	now := time.Now()

	c.AllowAt("k", time.Minute, now)
	// Denied attempts must not push the quiet period out.
	c.AllowAt("k", time.Minute, now.Add(59*time.Second))
	if !c.AllowAt("k", time.Minute, now.Add(time.Minute)) {
		t.Fatalf("period measured from the last successful fire")
	}
}

func TestLimiterRefill(t *testing.T) {
	l := New()
	now := time.Now()

	// Capacity 2, refilling 1 token per second.
	if !l.allowAt("k", 2, 1, now) || !l.allowAt("k", 2, 1, now) {
		t.Fatalf("burst up to capacity should pass")
	}
	if l.allowAt("k", 2, 1, now) {
		t.Fatalf("empty bucket should block")
	}
	if l.allowAt("k", 2, 1, now.Add(500*time.Millisecond)) {
		t.Fatalf("half a token is not enough")
	}
	if !l.allowAt("k", 2, 1, now.Add(1500*time.Millisecond)) {
		t.Fatalf("bucket should refill over time")
	}
}
