package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsEmitted *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	failovers     *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		eventsEmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_events_emitted_total",
				Help: "Intelligence events added to the pool",
			},
			[]string{"category"},
		),
		deliveries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_deliveries_total",
				Help: "Event deliveries attempted per channel",
			},
			[]string{"channel", "status"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketpulse_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		cacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_cache_hits_total",
				Help: "Hub cache hits by data kind",
			},
			[]string{"kind"},
		),
		cacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_cache_misses_total",
				Help: "Hub cache misses by data kind",
			},
			[]string{"kind"},
		),
		failovers: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_source_failover_total",
				Help: "Fetches that skipped a source (error or empty result)",
			},
			[]string{"source", "kind"},
		),
	}
}

// RecordEventEmitted counts an event admitted to the pool.
func (r *Recorder) RecordEventEmitted(category string) {
	r.eventsEmitted.WithLabelValues(category).Inc()
}

// RecordDelivery counts a delivery attempt with its outcome.
func (r *Recorder) RecordDelivery(channel, status string) {
	r.deliveries.WithLabelValues(channel, status).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordCacheHit(kind string)  { r.cacheHits.WithLabelValues(kind).Inc() }
func (r *Recorder) RecordCacheMiss(kind string) { r.cacheMisses.WithLabelValues(kind).Inc() }

// RecordFailover counts a source skipped during fail-over.
func (r *Recorder) RecordFailover(source, kind string) {
	r.failovers.WithLabelValues(source, kind).Inc()
}
