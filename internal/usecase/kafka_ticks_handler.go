package usecase

import (
	"context"
	"encoding/json"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/middleware"
	pkgkafka "MarketPulse/pkg/kafka"
)

// KafkaTicksHandler consumes tick messages off the bus and feeds them
// into the pipeline, letting external producers drive the detectors.
type KafkaTicksHandler struct {
	topic   string
	pipe    *middleware.TickPipeline
	metrics drepo.Metrics
}

func NewKafkaTicksHandler(topic string, pipe *middleware.TickPipeline, metrics drepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, pipe: pipe, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, c, v, side?}
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		T      int64   `json:"t"`
		C      float64 `json:"c"`
		V      float64 `json:"v"`
		Side   string  `json:"side"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(m.T, 0)).Seconds())

	return h.pipe.Process(ctx, &models.Trade{
		Symbol:    m.Symbol,
		Timestamp: m.T,
		Price:     m.C,
		Size:      m.V,
		Side:      m.Side,
	})
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
