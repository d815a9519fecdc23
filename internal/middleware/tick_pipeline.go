package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/service/ratelimit"
)

// TickSink consumes validated trades downstream of the pipeline.
type TickSink interface {
	Ingest(ctx context.Context, t *models.Trade) error
}

// TickSinkFunc adapts a plain function to TickSink.
type TickSinkFunc func(ctx context.Context, t *models.Trade) error

func (f TickSinkFunc) Ingest(ctx context.Context, t *models.Trade) error { return f(ctx, t) }

// TickPipeline sits between the stream connectors and the hub. It
// validates ticks, throttles per symbol, and buffers when the sink is
// temporarily failing, flushing with capped exponential backoff.
type TickPipeline struct {
	sink    TickSink
	metrics drepo.Metrics

	maxRPS  int
	limiter *ratelimit.Limiter

	bufSize int
	bufCh   chan *models.Trade

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
}

type PipelineOption func(*TickPipeline)

// WithMaxRPS caps accepted ticks per second per symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer capacity.
func WithBufferSize(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func NewTickPipeline(sink TickSink, metrics drepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		sink:    sink,
		metrics: metrics,
		maxRPS:  20,
		limiter: ratelimit.New(),
		bufSize: 1000,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Trade, p.bufSize)
	return p
}

// Start launches background flushing of buffered ticks.
func (p *TickPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case t := <-p.bufCh:
				if t == nil {
					continue
				}
				if err := p.sink.Ingest(ctx, t); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					select {
					case p.bufCh <- t:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

func (p *TickPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards a tick, buffering it when
// the sink errors. Throttled ticks are dropped without error.
func (p *TickPipeline) Process(ctx context.Context, t *models.Trade) error {
	start := time.Now()
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.maxRPS > 0 && !p.limiter.Allow(t.Symbol, float64(p.maxRPS), float64(p.maxRPS)) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.sink.Ingest(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- t:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLastPrice(t.Symbol, t.Price)
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateTick(t *models.Trade) error {
	if t == nil {
		return fmt.Errorf("trade nil")
	}
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.Timestamp <= 0 {
		return fmt.Errorf("timestamp invalid")
	}
	if t.Price <= 0 || t.Size < 0 {
		return fmt.Errorf("non-positive price or negative size")
	}
	return nil
}
