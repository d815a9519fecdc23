package models

// Request models for the HTTP API. Bound and validated via pkg/http.

type CreateSubscriptionRequest struct {
	Type        string      `json:"type" validate:"required,oneof=user channel component webhook"`
	Name        string      `json:"name" validate:"required,min=1,max=128"`
	MinPriority int         `json:"min_priority" default:"1" validate:"gte=1,lte=5"`
	Categories  []string    `json:"categories,omitempty"`
	Symbols     []string    `json:"symbols,omitempty"`
	Sources     []string    `json:"sources,omitempty"`
	Destination Destination `json:"destination"`
}

type UpdateSubscriptionRequest struct {
	Name        string       `json:"name,omitempty" validate:"omitempty,min=1,max=128"`
	MinPriority int          `json:"min_priority,omitempty" validate:"omitempty,gte=1,lte=5"`
	Categories  []string     `json:"categories,omitempty"`
	Symbols     []string     `json:"symbols,omitempty"`
	Sources     []string     `json:"sources,omitempty"`
	Destination *Destination `json:"destination,omitempty"`
	Active      *bool        `json:"active,omitempty"`
}

type EventsQuery struct {
	Category string `query:"category" validate:"omitempty"`
	Symbol   string `query:"symbol"`
	Priority int    `query:"priority" validate:"omitempty,gte=1,lte=5"`
	Limit    int    `query:"limit" default:"100" validate:"gte=1,lte=500"`
}

// WebhookIngressPayload is the body accepted on /webhook/:key.
type WebhookIngressPayload struct {
	Category string                 `json:"category,omitempty"`
	Priority int                    `json:"priority,omitempty"`
	Symbol   string                 `json:"symbol"`
	Title    string                 `json:"title,omitempty"`
	Content  string                 `json:"content,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// TradingViewAlert is the field set TradingView posts on alert webhooks.
type TradingViewAlert struct {
	Ticker   string  `json:"ticker"`
	Action   string  `json:"action,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Message  string  `json:"message,omitempty"`
	Interval string  `json:"interval,omitempty"`
}
