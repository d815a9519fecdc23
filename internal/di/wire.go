//go:build wireinject
// +build wireinject

package di

import (
	"MarketPulse/pkg/config"
	"MarketPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideL2Cache,

		// Repositories
		ProvideEventPublisher,
		ProvideEventArchive,
		ProvidePool,
		ProvideRegistry,

		// Market data
		ProvideBinance,
		ProvideConnectors,
		ProvideHub,
		ProvidePipeline,
		ProvideCollector,
		ProvideTicksHandler,

		// Intelligence and delivery
		ProvideSniper,
		ProvideDispatcher,

		// HTTP
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
