package di

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/handler/api"
	mid "MarketPulse/internal/middleware"
	internalrepo "MarketPulse/internal/repository"
	"MarketPulse/internal/service/connector"
	"MarketPulse/internal/service/datahub"
	"MarketPulse/internal/service/dispatch"
	"MarketPulse/internal/service/sniper"
	"MarketPulse/internal/usecase"
	pkgcache "MarketPulse/pkg/cache"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"
	"MarketPulse/pkg/server"
)

// ProvideLogger builds the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if lc.Level == "" {
		lc.Level = "info"
	}
	if lc.Format == "" {
		lc.Format = "console"
	}
	if lc.Output == "" {
		lc.Output = "stdout"
	}
	return applogger.New(lc)
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and initializes
// the event archive schema. Returns nil when the archive is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := cfg.ClickHouse.Database
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		"CREATE TABLE IF NOT EXISTS " + db + ".events (" +
			"id String, ts DateTime64(3), category LowCardinality(String), priority UInt8, " +
			"symbol String, title String, content String, source LowCardinality(String), metadata String" +
			") ENGINE=MergeTree ORDER BY (category, ts)",
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer; nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher fans admitted events onto the bus; nil without Kafka.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) drepo.EventPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)
}

// ProvideEventArchive persists admitted events; nil without ClickHouse.
func ProvideEventArchive(chClient *pkgch.Client, cfg *config.Config) drepo.EventArchive {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewClickHouseArchive(chClient.DB(), cfg.ClickHouse.Database+".events")
}

// ProvideL2Cache builds the shared Redis-backed cache layer for the
// hub; nil when Redis is disabled (the hub then runs in-process only).
func ProvideL2Cache(cfg *config.Config, log *applogger.Logger) pkgcache.Service {
	if !cfg.Hub.Redis.Enabled {
		return nil
	}
	host, port := splitHostPort(cfg.Hub.Redis.Addr, 6379)
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Hub.Redis.Password),
		pkgcache.WithRedisDB(cfg.Hub.Redis.DB),
	)
	if err != nil {
		log.Warn("redis unavailable, hub runs without shared cache", applogger.Error(err))
		return nil
	}
	return pkgcache.NewLayeredCache(rc)
}

func splitHostPort(addr string, defaultPort int) (string, int) {
	host, portStr, found := strings.Cut(addr, ":")
	if !found || host == "" {
		if host == "" {
			host = "localhost"
		}
		return host, defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}

// ProvideBinance creates the streaming crypto connector.
func ProvideBinance(cfg *config.Config, log *applogger.Logger) *connector.Binance {
	return connector.NewBinance(
		log,
		cfg.Connectors.Binance.WebSocketURL,
		cfg.Connectors.Binance.RestURL,
		cfg.Symbols.Crypto,
		cfg.Connectors.Binance.ReconnectDelay,
		cfg.Connectors.Binance.PingInterval,
	)
}

// ProvideConnectors assembles the pull-side source set for the hub.
func ProvideConnectors(cfg *config.Config, log *applogger.Logger, binance *connector.Binance) []drepo.Connector {
	conns := []drepo.Connector{binance}
	if cfg.Connectors.Polygon.APIKey != "" {
		conns = append(conns, connector.NewPolygon(
			log,
			cfg.Connectors.Polygon.APIKey,
			cfg.Connectors.Polygon.BaseURL,
			cfg.Connectors.Polygon.Timeout,
		))
	}
	if cfg.Connectors.AlphaVantage.APIKey != "" {
		conns = append(conns, connector.NewAlphaVantage(
			log,
			cfg.Connectors.AlphaVantage.APIKey,
			cfg.Connectors.AlphaVantage.BaseURL,
			cfg.Connectors.AlphaVantage.Timeout,
		))
	}
	return conns
}

// ProvideHub builds the data hub with its fail-over order and caches.
func ProvideHub(cfg *config.Config, log *applogger.Logger, m drepo.Metrics, conns []drepo.Connector, l2 pkgcache.Service) *datahub.Hub {
	order := map[models.MarketType][]string{
		models.MarketStock:  cfg.Hub.Sources.Stock,
		models.MarketCrypto: cfg.Hub.Sources.Crypto,
	}
	opts := []datahub.Option{
		datahub.WithTTLs(cfg.Hub.TTL.Bars, cfg.Hub.TTL.OrderBook, cfg.Hub.TTL.OptionChain),
		datahub.WithCryptoSymbols(cfg.Symbols.Crypto),
	}
	if l2 != nil {
		opts = append(opts, datahub.WithL2Cache(l2))
	}
	return datahub.New(log, m, conns, order, opts...)
}

// ProvidePool builds the event pool with snapshot persistence and the
// archive and bus hooks.
func ProvidePool(cfg *config.Config, log *applogger.Logger, m drepo.Metrics, archive drepo.EventArchive, publisher drepo.EventPublisher) *internalrepo.Pool {
	opts := []internalrepo.PoolOption{
		internalrepo.WithDefaultTTL(cfg.Events.DefaultTTL),
		internalrepo.WithSweepInterval(cfg.Events.SweepInterval),
	}
	if cfg.Events.SnapshotPath != "" {
		opts = append(opts, internalrepo.WithSnapshot(internalrepo.NewJSONSnapshot(cfg.Events.SnapshotPath)))
	}
	if archive != nil {
		opts = append(opts, internalrepo.WithAddHook(func(e *models.AIEvent) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := archive.Store(ctx, e); err != nil {
				m.RecordError("archive_store")
			}
		}))
	}
	if publisher != nil {
		opts = append(opts, internalrepo.WithAddHook(func(e *models.AIEvent) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := publisher.Publish(ctx, e); err != nil {
				m.RecordError("event_publish")
			}
		}))
	}
	return internalrepo.NewPool(log, m, opts...)
}

// ProvideSniper builds the detectors and attaches them to hub pushes.
func ProvideSniper(cfg *config.Config, log *applogger.Logger, m drepo.Metrics, pool *internalrepo.Pool, hub *datahub.Hub) *sniper.Sniper {
	s := sniper.New(log, m, pool, hub, sniper.Config{
		ImbalanceThreshold: cfg.Sniper.ImbalanceThreshold,
		VolumeThreshold:    cfg.Sniper.VolumeThreshold,
		OptionIVThreshold:  cfg.Sniper.OptionIVThreshold,
		OptionExpiries:     cfg.Sniper.OptionExpiries,
		SummaryInterval:    cfg.Sniper.SummaryInterval,
	})
	s.Attach(append(append([]string{}, cfg.Symbols.Stocks...), cfg.Symbols.Crypto...))
	return s
}

// ProvidePipeline builds the tick pipeline feeding the hub.
func ProvidePipeline(cfg *config.Config, m drepo.Metrics, hub *datahub.Hub, binance *connector.Binance) *mid.TickPipeline {
	sink := mid.TickSinkFunc(func(ctx context.Context, t *models.Trade) error {
		hub.Push(models.Update{
			Type:   models.DataTrade,
			Symbol: t.Symbol,
			Source: binance.Name(),
			Trade:  t,
		})
		return nil
	})
	return mid.NewTickPipeline(sink, m,
		mid.WithMaxRPS(cfg.Pipeline.MaxRPS),
		mid.WithBufferSize(cfg.Pipeline.BufferSize),
	)
}

// ProvideCollector builds the feed collector over the Binance stream.
func ProvideCollector(cfg *config.Config, log *applogger.Logger, m drepo.Metrics, hub *datahub.Hub, binance *connector.Binance, pipe *mid.TickPipeline) *usecase.FeedCollector {
	all := append(append([]string{}, cfg.Symbols.Stocks...), cfg.Symbols.Crypto...)
	var stream drepo.StreamingConnector
	if len(cfg.Symbols.Crypto) > 0 {
		stream = binance
	}
	return usecase.NewFeedCollector(log, m, hub, stream, pipe, all,
		usecase.WithOptionSymbols(cfg.Symbols.Stocks),
		usecase.WithPollIntervals(cfg.Hub.TTL.OrderBook, cfg.Sniper.WatchInterval),
	)
}

// ProvideRegistry builds the subscription registry with persistence.
func ProvideRegistry(cfg *config.Config, log *applogger.Logger) *dispatch.Registry {
	var snap *internalrepo.JSONSnapshot
	if cfg.Dispatch.SubscriptionsPath != "" {
		snap = internalrepo.NewJSONSnapshot(cfg.Dispatch.SubscriptionsPath)
	}
	return dispatch.NewRegistry(log, snap)
}

// ProvideDispatcher assembles the dispatcher with its channel providers.
func ProvideDispatcher(cfg *config.Config, log *applogger.Logger, m drepo.Metrics, pool *internalrepo.Pool, registry *dispatch.Registry, producer *pkgkafka.Producer) *dispatch.Dispatcher {
	d := dispatch.New(log, m, pool, registry,
		dispatch.NewPriorityManager(),
		dispatch.NewThrottle(cfg.Dispatch.MinSendInterval, cfg.Dispatch.MaxPerMinute),
		dispatch.WithInterval(cfg.Dispatch.Interval),
		dispatch.WithBatchLimit(cfg.Dispatch.BatchLimit),
	)
	d.RegisterProvider(dispatch.NewConsoleProvider(log, models.SubscriberUser))
	if producer != nil {
		d.RegisterProvider(dispatch.NewKafkaProvider(producer, cfg.Kafka.EventsTopic))
	} else {
		d.RegisterProvider(dispatch.NewConsoleProvider(log, models.SubscriberChannel))
	}
	d.RegisterProvider(dispatch.NewComponentProvider())
	d.RegisterProvider(dispatch.NewWebhookProvider(log, xhttp.NewClient(xhttp.WithTimeout(10*time.Second))))
	return d
}

// ProvideKafkaConsumer creates a Kafka consumer; nil when disabled or
// no ticks topic is configured.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.TicksTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideTicksHandler consumes external ticks into the pipeline.
func ProvideTicksHandler(cfg *config.Config, pipe *mid.TickPipeline, m drepo.Metrics) pkgkafka.MessageHandler {
	if !cfg.Kafka.Enabled || cfg.Kafka.TicksTopic == "" {
		return nil
	}
	return usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, pipe, m)
}

// ProvideHTTPHandler groups every route registration.
func ProvideHTTPHandler(cfg *config.Config, log *applogger.Logger, pool *internalrepo.Pool, registry *dispatch.Registry, hub *datahub.Hub) xhttp.Handler {
	keys := make(map[string]api.IngressKey, len(cfg.Ingress.Keys))
	for _, k := range cfg.Ingress.Keys {
		keys[k.Key] = api.IngressKey{
			Secret:   k.Secret,
			Source:   k.Source,
			Category: models.EventCategory(k.Category),
		}
	}
	return xhttp.Handlers{
		api.NewIngressHandler(log, pool, keys),
		api.NewEventsHandler(log, pool),
		api.NewSubscriptionsHandler(log, registry),
		api.NewMarketHandler(log, hub),
	}
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	pool *internalrepo.Pool,
	sn *sniper.Sniper,
	dispatcher *dispatch.Dispatcher,
	collector *usecase.FeedCollector,
	consumer *pkgkafka.Consumer,
	ticks pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	publisher drepo.EventPublisher,
	handler xhttp.Handler,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	if cfg.Logging.CollectErrors && publisher != nil {
		if pub, ok := publisher.(applogger.Publisher); ok {
			log.AddCollector(&applogger.CollectionConfig{
				TimeInterval:   time.Minute,
				CountThreshold: 100,
				Topic:          cfg.Logging.CollectTopic,
				Publisher:      pub,
			})
		}
	}
	app := server.New(cfg, log, pool, sn, dispatcher, collector, consumer, ticks, chClient, publisher)
	app.SetHTTPHandler(handler)
	return app
}
