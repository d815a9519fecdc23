package dispatch

import (
	"sync"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/ratelimit"
)

// PriorityManager raises event priority by evaluating metadata rules.
// Adjustments compose additively; each rule carries its own cooldown so
// a hot rule cannot escalate every event in a burst.
type PriorityManager struct {
	mu        sync.RWMutex
	rules     []models.PriorityRule
	cooldowns *ratelimit.Cooldown
}

func NewPriorityManager(rules ...models.PriorityRule) *PriorityManager {
	if len(rules) == 0 {
		rules = models.DefaultPriorityRules()
	}
	return &PriorityManager{
		rules:     rules,
		cooldowns: ratelimit.NewCooldown(),
	}
}

// AddRule appends a rule at runtime.
func (m *PriorityManager) AddRule(r models.PriorityRule) {
	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// Rules returns a copy of the active rule set.
func (m *PriorityManager) Rules() []models.PriorityRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.PriorityRule, len(m.rules))
	copy(out, m.rules)
	return out
}

// Adjust returns the effective priority for e plus the names of the
// rules that fired. The base priority is never lowered below 1 or
// raised above 5.
func (m *PriorityManager) Adjust(e *models.AIEvent) (models.EventPriority, []string) {
	m.mu.RLock()
	rules := m.rules
	m.mu.RUnlock()

	adj := 0
	var applied []string
	for _, r := range rules {
		if !r.When.Eval(e) {
			continue
		}
		if !m.cooldowns.Allow(r.Name, r.Cooldown) {
			continue
		}
		adj += r.ClampedAdjustment()
		applied = append(applied, r.Name)
	}
	return (e.Priority + models.EventPriority(adj)).Clamp(), applied
}
