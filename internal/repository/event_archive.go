package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/domain/repository"
	pkgkafka "MarketPulse/pkg/kafka"
)

// ClickHouseArchive keeps a long-term record of every pooled event for
// offline analysis; the pool stays authoritative for live reads.
type ClickHouseArchive struct {
	db    *sql.DB
	table string
}

func NewClickHouseArchive(db *sql.DB, table string) repository.EventArchive {
	return &ClickHouseArchive{db: db, table: table}
}

func (a *ClickHouseArchive) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func (a *ClickHouseArchive) Store(ctx context.Context, e *models.AIEvent) error {
	meta, _ := json.Marshal(e.Metadata)
	q := fmt.Sprintf("INSERT INTO %s (id, ts, category, priority, symbol, title, content, source, metadata) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", a.table)
	_, err := a.db.ExecContext(ctx, q,
		e.ID,
		e.Timestamp,
		string(e.Category),
		int(e.Priority),
		e.Symbol,
		e.Title,
		e.Content,
		e.Source,
		string(meta),
	)
	return err
}

func (a *ClickHouseArchive) StoreBatch(ctx context.Context, events []*models.AIEvent) error {
	if len(events) == 0 {
		return nil
	}
	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*9)
	for _, e := range events {
		if e == nil || e.ID == "" {
			continue
		}
		meta, _ := json.Marshal(e.Metadata)
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			e.ID,
			e.Timestamp,
			string(e.Category),
			int(e.Priority),
			e.Symbol,
			e.Title,
			e.Content,
			e.Source,
			string(meta),
		)
	}
	if len(values) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (id, ts, category, priority, symbol, title, content, source, metadata) VALUES %s",
		a.table, strings.Join(values, ","))
	_, err := a.db.ExecContext(ctx, q, args...)
	return err
}

func (a *ClickHouseArchive) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *ClickHouseArchive) Close() error {
	return nil // Managed by pkg
}

// KafkaEventPublisher pushes pooled events onto the events topic so
// co-located systems can consume them off the bus.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) repository.EventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, e *models.AIEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(e.Symbol), e)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// PublishMessage lets the publisher double as a logger.Publisher for
// aggregated error log batches.
func (p *KafkaEventPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}
