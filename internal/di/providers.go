package di

import (
	"context"
	"fmt"
	"time"

	"SignalScope/internal/domain/repository"
	"SignalScope/internal/handler/api"
	internalrepo "SignalScope/internal/repository"
	svccache "SignalScope/internal/service/cache"
	"SignalScope/internal/service/ratelimit"
	"SignalScope/internal/services/analysis"
	"SignalScope/internal/services/external"
	"SignalScope/internal/services/filters"
	"SignalScope/internal/services/indicators"
	"SignalScope/internal/services/strategy"
	"SignalScope/internal/usecase"
	pkgcache "SignalScope/pkg/cache"
	pkgch "SignalScope/pkg/clickhouse"
	"SignalScope/pkg/config"
	pkgkafka "SignalScope/pkg/kafka"
	applogger "SignalScope/pkg/logger"
	"SignalScope/pkg/metrics"
	"SignalScope/pkg/queue"
	"SignalScope/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New(nil)
}

// ProvideRedisCache connects to Redis when enabled; nil otherwise.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Cache.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Cache.Redis.Password),
		pkgcache.WithRedisDB(cfg.Cache.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCacheStore returns the shared cache: memory only, or memory
// layered over Redis.
func ProvideCacheStore(cfg *config.Config, rc *pkgcache.RedisCache) (pkgcache.Service, func()) {
	if rc != nil {
		lc := pkgcache.NewLayeredCache(rc,
			pkgcache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize),
			pkgcache.WithLayeredL1TTL(cfg.Cache.L1TTL),
		)
		return lc, func() { _ = lc.Close() }
	}
	mc := pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize))
	return mc, func() { _ = mc.Close() }
}

// ProvideProviderCache wraps the shared cache for provider responses.
func ProvideProviderCache(cfg *config.Config, store pkgcache.Service) *svccache.ProviderCache {
	return svccache.NewProviderCache(store, cfg.Provider.ResponseTTL, cfg.Provider.MappingTTL)
}

// ProvideRateLimiter spaces provider requests.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Provider.MinInterval, 1)
}

func providerConfig(cfg *config.Config) external.Config {
	p := cfg.Provider
	return external.Config{
		BaseURL:       p.BaseURL,
		APIKey:        p.APIKey,
		Timeout:       p.Timeout,
		MinInterval:   p.MinInterval,
		BatchSize:     p.BatchSize,
		Interval:      p.Interval,
		HistoryPoints: p.HistoryPoints,
		ResponseTTL:   p.ResponseTTL,
		MappingTTL:    p.MappingTTL,
		ExchangeCodes: p.ExchangeCodes,
		AggregateCode: p.AggregateCode,
		Overrides:     p.Overrides,
	}
}

// ProvideResolver creates the symbol resolver; nil when the provider is
// disabled.
func ProvideResolver(cfg *config.Config, pc *svccache.ProviderCache, rl *ratelimit.Limiter, l *applogger.Logger) *external.Resolver {
	if cfg.Provider.Disabled {
		return nil
	}
	return external.NewResolver(providerConfig(cfg), pc, rl, l.With(applogger.String("component", "resolver")))
}

// ProvideBatchClient creates the external data batch client; nil when the
// provider is disabled.
func ProvideBatchClient(cfg *config.Config, pc *svccache.ProviderCache, rl *ratelimit.Limiter, l *applogger.Logger) *external.BatchClient {
	if cfg.Provider.Disabled {
		return nil
	}
	return external.NewBatchClient(providerConfig(cfg), pc, rl, l.With(applogger.String("component", "external")))
}

func analysisConfig(cfg *config.Config) analysis.Config {
	a, f := cfg.Analysis, cfg.Filters
	params := indicators.DefaultParams()
	params.RSIPeriod = a.RSIPeriod
	params.EMAFast = a.EMAFast
	params.EMASlow = a.EMASlow
	params.EMATrend = a.EMATrend
	params.ADXPeriod = a.ADXPeriod
	params.ATRPeriod = a.ATRPeriod
	params.BBPeriod = a.BBPeriod
	params.BBStdDev = a.BBStdDev

	enabled := a.Indicators
	if len(enabled) == 0 {
		enabled = indicators.DefaultRegistry().Names()
	}
	return analysis.Config{
		MinCandles: a.MinCandles,
		Enabled:    enabled,
		Params:     params,
		Filters: filters.Config{
			OILookback:        f.OILookback,
			OIZThreshold:      f.OIZThreshold,
			OBVLookback:       f.OBVLookback,
			OISlopeLookback:   f.OISlopeLookback,
			AmplitudeLookback: f.AmplitudeLookback,
		},
		PivotOrder:         a.PivotOrder,
		TrendlineTolerance: a.TrendlineTolerance,
	}
}

// ProvideAnalysisBuilder creates the context builder with per-symbol
// fallback fetching when the provider is enabled.
func ProvideAnalysisBuilder(cfg *config.Config, r *external.Resolver, bc *external.BatchClient, l *applogger.Logger, m repository.Metrics) (*analysis.Builder, error) {
	opts := []analysis.BuilderOption{
		analysis.WithLogger(l.With(applogger.String("component", "analysis"))),
		analysis.WithMetrics(m),
	}
	if r != nil && bc != nil {
		opts = append(opts, analysis.WithFallbackFetch(r, bc))
	}
	b, err := analysis.NewBuilder(analysisConfig(cfg), opts...)
	if err != nil {
		return nil, fmt.Errorf("analysis builder: %w", err)
	}
	return b, nil
}

// ProvideStrategyRegistry registers the configured scorers.
func ProvideStrategyRegistry(cfg *config.Config) (*strategy.Registry, error) {
	s := cfg.Strategy
	sc := strategy.Config{
		Legacy: strategy.LegacyConfig{
			MinScore:         s.Legacy.MinScore,
			ADXThreshold:     s.Legacy.ADXThreshold,
			PullbackLookback: s.Legacy.PullbackLookback,
			StopATRMult:      s.Legacy.StopATRMult,
			RewardRisk:       s.Legacy.RewardRisk,
		},
		Breakout: strategy.BreakoutConfig{
			MinScore:        s.Breakout.MinScore,
			FundingLimit:    s.Breakout.FundingLimit,
			GeometryScale:   s.Breakout.GeometryScale,
			OISlopeScale:    s.Breakout.OISlopeScale,
			VolumeSpikeMult: s.Breakout.VolumeSpikeMult,
			VolumeLookback:  s.Breakout.VolumeLookback,
			StopATRMult:     s.Breakout.StopATRMult,
			RewardRisk:      s.Breakout.RewardRisk,
		},
		BreakoutV2: strategy.BreakoutV2Config{
			MinScore:            s.BreakoutV2.MinScore,
			StopATRMult:         s.BreakoutV2.StopATRMult,
			TargetAmplitudeMult: s.BreakoutV2.TargetAmplitudeMult,
			ZScoreCap:           s.BreakoutV2.ZScoreCap,
			RetestATRTolerance:  s.BreakoutV2.RetestATRTolerance,
		},
	}
	r, err := strategy.NewRegistry(sc, cfg.Scanner.Strategies...)
	if err != nil {
		return nil, fmt.Errorf("strategy registry: %w", err)
	}
	return r, nil
}

// ProvideClickHouseClient connects to ClickHouse when enabled and ensures
// the candle table exists.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxOpenConns/2),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if err := client.InitSchema(ctx, internalrepo.CandleTableDDL(candleTable(cfg))); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func candleTable(cfg *config.Config) string {
	return cfg.ClickHouse.Database + "." + cfg.ClickHouse.Table
}

// ProvideCandleSource returns the ClickHouse candle store, or nil when
// ClickHouse is disabled and candles must come inline.
func ProvideCandleSource(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) repository.CandleSource {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHCandleStore(ch, candleTable(cfg), l.With(applogger.String("component", "candles")))
}

// ProvideKafkaProducer creates a Kafka producer when Kafka is enabled.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, error) {
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
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithProducerLogger(l.With(applogger.String("component", "kafka_producer"))),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalPublisher publishes to Kafka, or drops signals when Kafka
// is disabled.
func ProvideSignalPublisher(cfg *config.Config, producer *pkgkafka.Producer) (repository.SignalPublisher, func()) {
	if producer == nil {
		return internalrepo.NoopSignalPublisher{}, func() {}
	}
	pub := internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalTopic)
	return pub, func() { _ = pub.Close() }
}

// ProvidePriorStateStore keeps sticky breakout state in the shared cache.
func ProvidePriorStateStore(cfg *config.Config, store pkgcache.Service) repository.PriorStateStore {
	return internalrepo.NewCachePriorStateStore(store, cfg.Scanner.PriorTTL)
}

// ProvideHub creates the websocket hub; nil when websockets are disabled.
func ProvideHub(cfg *config.Config, l *applogger.Logger) *api.Hub {
	if cfg.Websocket.Disabled {
		return nil
	}
	return api.NewHub(api.HubConfig{
		WriteTimeout: cfg.Websocket.WriteTimeout,
		PingInterval: cfg.Websocket.PingInterval,
		SendBuffer:   cfg.Websocket.SendBuffer,
	}, l.With(applogger.String("component", "ws")))
}

// ProvideScanner assembles the scan use case. Optional collaborators that
// are disabled stay nil interfaces.
func ProvideScanner(
	cfg *config.Config,
	b *analysis.Builder,
	reg *strategy.Registry,
	r *external.Resolver,
	bc *external.BatchClient,
	candles repository.CandleSource,
	prior repository.PriorStateStore,
	pub repository.SignalPublisher,
	m repository.Metrics,
	hub *api.Hub,
	l *applogger.Logger,
) *usecase.Scanner {
	deps := usecase.ScannerDeps{
		Builder:   b,
		Registry:  reg,
		Candles:   candles,
		Prior:     prior,
		Publisher: pub,
		Metrics:   m,
		Logger:    l.With(applogger.String("component", "scanner")),
	}
	if r != nil {
		deps.Resolver = r
	}
	if bc != nil {
		deps.Fetcher = bc
	}
	if hub != nil {
		deps.Listener = hub
	}
	return usecase.NewScanner(usecase.ScannerConfig{
		Concurrency:   cfg.Scanner.Concurrency,
		Timeframe:     repository.NormalizeTimeframe(cfg.Scanner.Timeframe),
		HTFTimeframe:  repository.Timeframe(cfg.Scanner.HTFTimeframe),
		CandleLimit:   cfg.Scanner.CandleLimit,
		SymbolTimeout: cfg.Scanner.SymbolTimeout,
		Strategies:    cfg.Scanner.Strategies,
	}, deps)
}

// ProvideAnalyzeUseCase creates the single-symbol analysis use case.
func ProvideAnalyzeUseCase(b *analysis.Builder, reg *strategy.Registry, prior repository.PriorStateStore, m repository.Metrics) *usecase.AnalyzeUseCase {
	return usecase.NewAnalyzeUseCase(b, reg, prior, m)
}

// ProvideHealthChecks lists the dependency checks served on /healthz.
func ProvideHealthChecks(ch *pkgch.Client, rc *pkgcache.RedisCache) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	if rc != nil {
		checks["redis"] = func(ctx context.Context) error { return rc.Client().Ping(ctx).Err() }
	}
	return checks
}

// ProvideScanQueue creates the Redis job queue for asynchronous scans;
// nil unless the queue and Redis are enabled.
func ProvideScanQueue(cfg *config.Config, rc *pkgcache.RedisCache, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	return queue.NewRedisQueue(rc.Client(),
		queue.WithWorkers(cfg.Queue.Workers),
		queue.WithRetry(cfg.Queue.RetryLimit, cfg.Queue.RetryDelay),
		queue.WithKeyPrefix(cfg.Queue.KeyPrefix),
		queue.WithLogger(l.With(applogger.String("component", "queue"))),
	)
}

// ProvideScanJobs registers the scan job on the queue; nil without a queue.
func ProvideScanJobs(cfg *config.Config, q *queue.RedisQueue, store pkgcache.Service, s *usecase.Scanner) *usecase.ScanJobs {
	if q == nil {
		return nil
	}
	jobs := usecase.NewScanJobs(q, store, s, cfg.Queue.JobTTL)
	q.RegisterJob(jobs)
	return jobs
}

// ProvideSignalsHandler creates the HTTP handler.
func ProvideSignalsHandler(l *applogger.Logger, a *usecase.AnalyzeUseCase, s *usecase.Scanner, hub *api.Hub, jobs *usecase.ScanJobs, checks map[string]api.HealthCheck) *api.SignalsEchoHandler {
	h := api.NewSignalsEchoHandler(l, a, s, hub, checks)
	if jobs != nil {
		h.SetScanJobs(jobs)
	}
	return h
}

// ProvideKafkaConsumer creates a Kafka consumer for scan requests when
// enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
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
		pkgkafka.WithConsumerLogger(l.With(applogger.String("component", "kafka_consumer"))),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideScanRequestHandler handles scan requests from Kafka.
func ProvideScanRequestHandler(cfg *config.Config, s *usecase.Scanner) *usecase.ScanRequestHandler {
	return usecase.NewScanRequestHandler(cfg.Kafka.Consumer.Topic, s)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	h *api.SignalsEchoHandler,
	consumer *pkgkafka.Consumer,
	sh *usecase.ScanRequestHandler,
	q *queue.RedisQueue,
	hub *api.Hub,
) *server.App {
	return server.New(cfg, l, h, consumer, sh, q, hub)
}
