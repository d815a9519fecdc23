package repository

import (
	"context"

	"MarketPulse/internal/domain/models"
)

// Connector is a pull-style market data source. Fetchers return empty
// results (never an error) when the source has no data for a symbol;
// errors mean the source itself is unavailable and the hub fails over.
type Connector interface {
	Name() string
	Markets() []models.MarketType
	GetBars(ctx context.Context, symbol string, tf Timeframe, limit int) ([]models.Bar, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error)
	GetOptionChain(ctx context.Context, symbol string) (*models.OptionChain, error)
}

// StreamingConnector additionally pushes live trades over a channel pair.
type StreamingConnector interface {
	Connector
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// EventPool stores intelligence events with indexed reads and
// per-subscriber delivery tracking.
type EventPool interface {
	Add(e *models.AIEvent) bool
	Get(id string) (*models.AIEvent, bool)
	ByCategory(c models.EventCategory, limit int) []*models.AIEvent
	BySymbol(symbol string, limit int) []*models.AIEvent
	ByPriority(p models.EventPriority, limit int) []*models.AIEvent
	UndeliveredFor(subscriberID string, limit int) []*models.AIEvent
	MarkDelivered(id, subscriberID string) bool
	Delete(id string) bool
	Len() int
}

// ChannelProvider delivers events to one subscriber type.
type ChannelProvider interface {
	Type() models.SubscriberType
	SendEvent(ctx context.Context, sub *models.Subscription, e *models.AIEvent) error
	SendSummary(ctx context.Context, sub *models.Subscription, total int, byCategory map[models.EventCategory]int, top []*models.AIEvent) error
}

// EventArchive persists pooled events to long-term storage.
type EventArchive interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, e *models.AIEvent) error
	StoreBatch(ctx context.Context, events []*models.AIEvent) error
	Health(ctx context.Context) error
	Close() error
}

// EventPublisher fans pooled events out to a message bus.
type EventPublisher interface {
	Publish(ctx context.Context, e *models.AIEvent) error
	Close() error
}

type Metrics interface {
	RecordEventEmitted(category string)
	RecordDelivery(channel, status string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordCacheHit(kind string)
	RecordCacheMiss(kind string)
	RecordFailover(source, kind string)
}
