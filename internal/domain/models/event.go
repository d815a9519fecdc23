package models

import "time"

// EventPriority orders events from routine to critical.
type EventPriority int

const (
	PriorityLow EventPriority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityUrgent
	PriorityCritical
)

func (p EventPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

func (p EventPriority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// Clamp bounds a priority to the valid range.
func (p EventPriority) Clamp() EventPriority {
	if p < PriorityLow {
		return PriorityLow
	}
	if p > PriorityCritical {
		return PriorityCritical
	}
	return p
}

// EventCategory classifies intelligence events.
type EventCategory string

const (
	CategoryLiquiditySignal EventCategory = "liquidity_signal"
	CategoryWhaleAlert      EventCategory = "whale_alert"
	CategoryMarketImbalance EventCategory = "market_imbalance"
	CategoryTechnicalSignal EventCategory = "technical_signal"
	CategoryOptionsAlert    EventCategory = "options_alert"
	CategoryAIInsight       EventCategory = "ai_insight"
	CategoryStrategyUpdate  EventCategory = "strategy_update"
	CategoryPositionChange  EventCategory = "position_change"
	CategoryNewsImpact      EventCategory = "news_impact"
	CategoryRiskWarning     EventCategory = "risk_warning"
)

// Categories lists every known event category.
func Categories() []EventCategory {
	return []EventCategory{
		CategoryLiquiditySignal,
		CategoryWhaleAlert,
		CategoryMarketImbalance,
		CategoryTechnicalSignal,
		CategoryOptionsAlert,
		CategoryAIInsight,
		CategoryStrategyUpdate,
		CategoryPositionChange,
		CategoryNewsImpact,
		CategoryRiskWarning,
	}
}

func (c EventCategory) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// AIEvent is a single intelligence event flowing through the pipeline.
type AIEvent struct {
	ID          string                 `json:"id"`
	Category    EventCategory          `json:"category"`
	Priority    EventPriority          `json:"priority"`
	Symbol      string                 `json:"symbol"`
	Title       string                 `json:"title"`
	Content     string                 `json:"content"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Source      string                 `json:"source"`
	Timestamp   time.Time              `json:"timestamp"`
	Expiry      time.Time              `json:"expiry"`
	DeliveredTo []string               `json:"delivered_to,omitempty"`
}

// DefaultEventTTL is applied when an event carries no expiry.
const DefaultEventTTL = 24 * time.Hour

// Expired reports whether the event is past its expiry at now.
func (e *AIEvent) Expired(now time.Time) bool {
	return !e.Expiry.IsZero() && now.After(e.Expiry)
}

// DeliveredToSubscriber reports whether id already received this event.
func (e *AIEvent) DeliveredToSubscriber(id string) bool {
	for _, d := range e.DeliveredTo {
		if d == id {
			return true
		}
	}
	return false
}

// WithPriority returns a shallow copy carrying the given priority.
// The stored event keeps its base priority.
func (e *AIEvent) WithPriority(p EventPriority) *AIEvent {
	if p == e.Priority {
		return e
	}
	c := *e
	c.Priority = p
	return &c
}

// MetadataFloat reads a numeric metadata value, coping with the types
// encoding/json produces after a snapshot round-trip.
func (e *AIEvent) MetadataFloat(key string) (float64, bool) {
	v, ok := e.Metadata[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
