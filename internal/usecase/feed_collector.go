package usecase

import (
	"context"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/middleware"
	"MarketPulse/internal/service/datahub"
	"MarketPulse/pkg/logger"
)

const defaultBookDepth = 20

// FeedCollector drives the hub with live data: it consumes the trade
// stream through the tick pipeline and polls depth and option chains
// on their cache cadence so the detectors always see fresh snapshots.
type FeedCollector struct {
	log     *logger.Logger
	metrics drepo.Metrics
	hub     *datahub.Hub
	stream  drepo.StreamingConnector
	pipe    *middleware.TickPipeline

	symbols       []string
	optionSymbols []string
	bookInterval  time.Duration
	chainInterval time.Duration
}

type CollectorOption func(*FeedCollector)

// WithOptionSymbols restricts chain polling to the given underlyings.
// By default every watched symbol is polled.
func WithOptionSymbols(symbols []string) CollectorOption {
	return func(c *FeedCollector) { c.optionSymbols = symbols }
}

// WithPollIntervals overrides the depth and chain polling cadence.
func WithPollIntervals(book, chain time.Duration) CollectorOption {
	return func(c *FeedCollector) {
		if book > 0 {
			c.bookInterval = book
		}
		if chain > 0 {
			c.chainInterval = chain
		}
	}
}

func NewFeedCollector(log *logger.Logger, metrics drepo.Metrics, hub *datahub.Hub, stream drepo.StreamingConnector, pipe *middleware.TickPipeline, symbols []string, opts ...CollectorOption) *FeedCollector {
	c := &FeedCollector{
		log:           log,
		metrics:       metrics,
		hub:           hub,
		stream:        stream,
		pipe:          pipe,
		symbols:       symbols,
		bookInterval:  5 * time.Second,
		chainInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.optionSymbols == nil {
		c.optionSymbols = symbols
	}
	return c
}

func (c *FeedCollector) IsConnected() bool {
	return c.stream != nil && c.stream.IsConnected()
}

// Start connects the stream and launches the consume and poll loops.
func (c *FeedCollector) Start(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	if c.stream != nil {
		if err := c.stream.Connect(ctx); err != nil {
			return err
		}
		trCh, errCh := c.stream.Read(ctx)
		go c.consume(ctx, trCh, errCh)
	}
	go c.pollBooks(ctx)
	go c.pollChains(ctx)
	return nil
}

func (c *FeedCollector) consume(ctx context.Context, trCh <-chan *models.Trade, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				c.log.Warn("stream error, reconnecting", logger.Error(err))
				_ = c.stream.Reconnect(ctx)
			}
		case t := <-trCh:
			if t == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, t)
			} else {
				c.hub.Push(models.Update{
					Type:   models.DataTrade,
					Symbol: t.Symbol,
					Source: c.stream.Name(),
					Trade:  t,
				})
			}
		}
	}
}

// pollBooks refreshes depth snapshots and pushes them to subscribers.
func (c *FeedCollector) pollBooks(ctx context.Context) {
	ticker := time.NewTicker(c.bookInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range c.symbols {
				book, err := c.hub.GetOrderBook(ctx, sym, defaultBookDepth)
				if err != nil || book.Empty() {
					continue
				}
				c.hub.Push(models.Update{
					Type:   models.DataOrderBook,
					Symbol: sym,
					Book:   book,
				})
			}
		}
	}
}

// pollChains refreshes option chains for the watched underlyings.
func (c *FeedCollector) pollChains(ctx context.Context) {
	ticker := time.NewTicker(c.chainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range c.optionSymbols {
				chain, err := c.hub.GetOptionChain(ctx, sym)
				if err != nil || chain.Empty() {
					continue
				}
				c.hub.Push(models.Update{
					Type:   models.DataOptionChain,
					Symbol: sym,
					Chain:  chain,
				})
			}
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *FeedCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	if c.stream != nil {
		return c.stream.Close()
	}
	return nil
}
