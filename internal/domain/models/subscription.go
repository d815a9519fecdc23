package models

import "time"

// SubscriberType identifies the delivery channel family of a subscription.
type SubscriberType string

const (
	SubscriberUser      SubscriberType = "user"
	SubscriberChannel   SubscriberType = "channel"
	SubscriberComponent SubscriberType = "component"
	SubscriberWebhook   SubscriberType = "webhook"
)

func (t SubscriberType) Valid() bool {
	switch t {
	case SubscriberUser, SubscriberChannel, SubscriberComponent, SubscriberWebhook:
		return true
	}
	return false
}

// SubscriptionFilter selects which events a subscriber receives.
// Nil slices mean "all"; MinPriority is a floor.
type SubscriptionFilter struct {
	MinPriority EventPriority   `json:"min_priority"`
	Categories  []EventCategory `json:"categories,omitempty"`
	Symbols     []string        `json:"symbols,omitempty"`
	Sources     []string        `json:"sources,omitempty"`
}

// Matches reports whether the event passes the filter.
func (f *SubscriptionFilter) Matches(e *AIEvent) bool {
	if e.Priority < f.MinPriority {
		return false
	}
	if f.Categories != nil && !containsCategory(f.Categories, e.Category) {
		return false
	}
	if f.Symbols != nil && !containsString(f.Symbols, e.Symbol) {
		return false
	}
	if f.Sources != nil && !containsString(f.Sources, e.Source) {
		return false
	}
	return true
}

func containsCategory(cs []EventCategory, c EventCategory) bool {
	for _, x := range cs {
		if x == c {
			return true
		}
	}
	return false
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// Destination tells a channel provider where to deliver.
// Only the fields relevant to the subscriber type are set.
type Destination struct {
	URL       string            `json:"url,omitempty"`     // webhook
	Secret    string            `json:"secret,omitempty"`  // webhook signing key
	Headers   map[string]string `json:"headers,omitempty"` // webhook extra headers
	Topic     string            `json:"topic,omitempty"`   // kafka
	Component string            `json:"component,omitempty"`
	ChatID    string            `json:"chat_id,omitempty"` // user/channel targets
}

// Subscription binds a subscriber to an event filter and destination.
type Subscription struct {
	ID           string             `json:"id"`
	Type         SubscriberType     `json:"type"`
	Name         string             `json:"name"`
	Filter       SubscriptionFilter `json:"filter"`
	Destination  Destination        `json:"destination"`
	Active       bool               `json:"active"`
	CreatedAt    time.Time          `json:"created_at"`
	LastDelivery time.Time          `json:"last_delivery,omitempty"`
}
