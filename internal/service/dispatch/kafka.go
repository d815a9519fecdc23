package dispatch

import (
	"context"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	pkgkafka "MarketPulse/pkg/kafka"
)

// KafkaProvider publishes deliveries to the topic named by the
// subscription destination, falling back to a configured default.
type KafkaProvider struct {
	producer     *pkgkafka.Producer
	defaultTopic string
}

func NewKafkaProvider(producer *pkgkafka.Producer, defaultTopic string) drepo.ChannelProvider {
	return &KafkaProvider{producer: producer, defaultTopic: defaultTopic}
}

// Type returns channel; bus consumers subscribe like chat channels do.
func (p *KafkaProvider) Type() models.SubscriberType { return models.SubscriberChannel }

func (p *KafkaProvider) topic(sub *models.Subscription) string {
	if sub.Destination.Topic != "" {
		return sub.Destination.Topic
	}
	return p.defaultTopic
}

func (p *KafkaProvider) SendEvent(ctx context.Context, sub *models.Subscription, e *models.AIEvent) error {
	return p.producer.Publish(ctx, p.topic(sub), []byte(e.Symbol), eventPayload(e))
}

func (p *KafkaProvider) SendSummary(ctx context.Context, sub *models.Subscription, total int, byCategory map[models.EventCategory]int, top []*models.AIEvent) error {
	payload := webhookSummaryPayload{
		Kind:       "summary",
		Total:      total,
		ByCategory: byCategory,
		TopEvents:  make([]webhookEventPayload, 0, len(top)),
	}
	for _, e := range top {
		payload.TopEvents = append(payload.TopEvents, eventPayload(e))
	}
	return p.producer.Publish(ctx, p.topic(sub), nil, payload)
}
