//go:build wireinject
// +build wireinject

package di

import (
	"SignalScope/pkg/config"
	"SignalScope/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Caches and provider access
		ProvideRedisCache,
		ProvideCacheStore,
		ProvideProviderCache,
		ProvideRateLimiter,
		ProvideResolver,
		ProvideBatchClient,

		// Infrastructure clients and repositories
		ProvideClickHouseClient,
		ProvideCandleSource,
		ProvideKafkaProducer,
		ProvideSignalPublisher,
		ProvidePriorStateStore,

		// Analysis and use cases
		ProvideAnalysisBuilder,
		ProvideStrategyRegistry,
		ProvideHub,
		ProvideScanner,
		ProvideAnalyzeUseCase,
		ProvideScanRequestHandler,
		ProvideScanQueue,
		ProvideScanJobs,

		// Delivery
		ProvideHealthChecks,
		ProvideSignalsHandler,
		ProvideKafkaConsumer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
