package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/repository"
	"MarketPulse/internal/service/dispatch"
	"MarketPulse/internal/service/sniper"
	"MarketPulse/internal/usecase"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
)

// App owns the lifecycle of every long-running component: the event
// pool sweep, the feed collector, the detectors, the dispatcher, the
// Kafka consumer, and the HTTP server.
type App struct {
	cfg *config.Config
	log *applogger.Logger

	pool       *repository.Pool
	sniper     *sniper.Sniper
	dispatcher *dispatch.Dispatcher
	collector  *usecase.FeedCollector

	consumer    *pkgkafka.Consumer
	ticks       pkgkafka.MessageHandler
	chClient    *pkgch.Client
	publisher   drepo.EventPublisher
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

// New wires the app from its already constructed components. Optional
// pieces (consumer, clickhouse, publisher) may be nil.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	pool *repository.Pool,
	sn *sniper.Sniper,
	dispatcher *dispatch.Dispatcher,
	collector *usecase.FeedCollector,
	consumer *pkgkafka.Consumer,
	ticks pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	publisher drepo.EventPublisher,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		pool:       pool,
		sniper:     sn,
		dispatcher: dispatcher,
		collector:  collector,
		consumer:   consumer,
		ticks:      ticks,
		chClient:   chClient,
		publisher:  publisher,
	}
}

// SetHTTPHandler injects the route registrations.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts everything and blocks until an interrupt arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	a.pool.Start(ctx)

	if err := a.collector.Start(ctx); err != nil {
		a.log.Error("collector start failed", applogger.Error(err))
	} else {
		a.log.Info("feed collector started",
			applogger.Strings("stocks", a.cfg.Symbols.Stocks),
			applogger.Strings("crypto", a.cfg.Symbols.Crypto))
	}

	a.sniper.StartSummary(ctx)
	a.dispatcher.Start(ctx)

	if a.consumer != nil && a.ticks != nil {
		a.consumer.RegisterHandler(a.ticks)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start failed", applogger.Error(err))
		} else {
			a.log.Info("kafka consumer started", applogger.String("topic", a.ticks.Topic()))
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start failed", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

func (a *App) shutdown(ctx context.Context) error {
	a.dispatcher.Stop()
	a.pool.Stop()

	if err := a.collector.Shutdown(ctx); err != nil {
		a.log.Warn("collector stop error", applogger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
