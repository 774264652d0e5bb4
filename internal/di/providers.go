package di

import (
	"context"
	"fmt"
	"time"

	"BarFeed/internal/domain/repository"
	domsvc "BarFeed/internal/domain/service"
	"BarFeed/internal/handler/api"
	internalrepo "BarFeed/internal/repository"
	"BarFeed/internal/service/provider"
	"BarFeed/internal/service/ratelimit"
	"BarFeed/internal/service/runlock"
	"BarFeed/internal/usecase"
	"BarFeed/pkg/cache"
	pkgch "BarFeed/pkg/clickhouse"
	"BarFeed/pkg/config"
	xhttp "BarFeed/pkg/http"
	pkgkafka "BarFeed/pkg/kafka"
	"BarFeed/pkg/logger"
	"BarFeed/pkg/metrics"
	"BarFeed/pkg/postgres"
	"BarFeed/pkg/server"
	"BarFeed/pkg/util"
)

const (
	connectTimeout = 10 * time.Second
	statusCacheTTL = 5 * time.Second
)

// Storage bundles the stores of the selected backend.
type Storage struct {
	Bars repository.BarStore
	Runs repository.RunAuditStore
}

// Providers holds the configured primary and fallback sources.
type Providers struct {
	Primary  *provider.Guarded
	Fallback *provider.Guarded
}

// Runners returns the providers that need a background connection.
func (p Providers) Runners() []server.Runner {
	var out []server.Runner
	for _, g := range []*provider.Guarded{p.Primary, p.Fallback} {
		if r, ok := g.Unwrap().(server.Runner); ok {
			out = append(out, r)
		}
	}
	return out
}

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, func(), error) {
	l, err := logger.New(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	l = l.With(logger.String("app", server.AppName), logger.String("env", cfg.Environment))
	return l, func() { _ = l.Close() }, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New()
}

// ProvideSession builds the market session from the instrument timezone and hours.
func ProvideSession(cfg *config.Config) (*domsvc.Session, error) {
	loc, err := time.LoadLocation(cfg.Instrument.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Instrument.Timezone, err)
	}
	open, err := util.ParseClock(cfg.Session.Open)
	if err != nil {
		return nil, fmt.Errorf("session open: %w", err)
	}
	closeAt, err := util.ParseClock(cfg.Session.Close)
	if err != nil {
		return nil, fmt.Errorf("session close: %w", err)
	}
	weekend := make([]time.Weekday, 0, len(cfg.Session.Weekend))
	for _, d := range cfg.Session.Weekend {
		wd, err := util.ParseWeekday(d)
		if err != nil {
			return nil, fmt.Errorf("session weekend: %w", err)
		}
		weekend = append(weekend, wd)
	}

	return domsvc.NewSession(loc,
		domsvc.WithHours(open, closeAt),
		domsvc.WithWeekend(weekend...),
		domsvc.WithNearCloseWindow(cfg.Session.NearCloseWindow),
		domsvc.WithThresholds(
			cfg.Health.FreshnessSeconds,
			cfg.Health.NearCloseFreshnessSeconds,
			cfg.Health.MinBars60m,
		),
	), nil
}

// ProvideStorage connects the configured backend and prepares its schema.
func ProvideStorage(cfg *config.Config, log *logger.Logger) (Storage, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	symbol := cfg.Instrument.Symbol
	switch cfg.Storage.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN, postgres.WithMaxConns(cfg.Postgres.MaxConns))
		if err != nil {
			return Storage{}, nil, err
		}
		if err := pool.Migrate(ctx); err != nil {
			pool.Close()
			return Storage{}, nil, err
		}
		log.Info("postgres ready")
		return Storage{
			Bars: internalrepo.NewPostgresBarStore(pool, symbol),
			Runs: internalrepo.NewPostgresRunStore(pool, symbol),
		}, pool.Close, nil

	case "clickhouse":
		client, err := pkgch.NewClient(ctx,
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return Storage{}, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema(cfg.ClickHouse.Database)); err != nil {
			_ = client.Close()
			return Storage{}, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		log.Info("clickhouse ready", logger.String("database", cfg.ClickHouse.Database))
		st := Storage{
			Bars: internalrepo.NewClickHouseBarStore(client.DB(), cfg.ClickHouse.Database, symbol),
			Runs: internalrepo.NewClickHouseRunStore(client.DB(), cfg.ClickHouse.Database, symbol),
		}
		return st, func() { _ = client.Close() }, nil

	case "memory":
		log.Warn("memory storage selected, bars are lost on restart")
		return Storage{
			Bars: internalrepo.NewMemoryBarStore(),
			Runs: internalrepo.NewMemoryRunStore(),
		}, func() {}, nil
	}
	return Storage{}, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// ProvideRedis connects to Redis when enabled. It returns nil otherwise.
func ProvideRedis(cfg *config.Config) (*cache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	c, err := cache.NewRedisCache(ctx,
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 1, 0),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return c, func() { _ = c.Close() }, nil
}

// ProvideRunLock uses a Redis lock when Redis is available and an in-process lock otherwise.
func ProvideRunLock(cfg *config.Config, rc *cache.RedisCache) repository.RunLock {
	if rc == nil {
		return runlock.NewLocal()
	}
	return runlock.NewRedis(rc, cfg.Instrument.Symbol, cfg.Ingestion.LockTTL)
}

// ProvidePublisher creates the Kafka publisher when enabled. It returns nil otherwise.
func ProvidePublisher(cfg *config.Config) (repository.Publisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := internalrepo.NewKafkaPublisher(producer, cfg.Kafka.BarsTopic, cfg.Kafka.RunsTopic)
	return pub, func() { _ = pub.Close() }, nil
}

// ProvideProviders builds the primary and fallback sources.
func ProvideProviders(cfg *config.Config, session *domsvc.Session, log *logger.Logger) (Providers, error) {
	primary, err := provider.New(cfg.Providers.Primary, session, log)
	if err != nil {
		return Providers{}, fmt.Errorf("primary provider: %w", err)
	}
	fallback, err := provider.New(cfg.Providers.Fallback, session, log)
	if err != nil {
		return Providers{}, fmt.Errorf("fallback provider: %w", err)
	}
	return Providers{Primary: primary, Fallback: fallback}, nil
}

// ProvideQualityEngine creates the quality engine from config.
func ProvideQualityEngine(cfg *config.Config) *usecase.QualityEngine {
	return usecase.NewQualityEngine(cfg.Quality.MaxJumpPct, usecase.WithMaxFillGap(cfg.Quality.MaxFillGap))
}

// ProvideIngestion creates the ingestion orchestrator.
func ProvideIngestion(
	cfg *config.Config,
	providers Providers,
	storage Storage,
	quality *usecase.QualityEngine,
	lock repository.RunLock,
	pub repository.Publisher,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.Ingestion {
	return usecase.NewIngestion(
		cfg.Instrument.Symbol,
		providers.Primary,
		providers.Fallback,
		storage.Bars,
		storage.Runs,
		usecase.WithQualityEngine(quality),
		usecase.WithRunLock(lock),
		usecase.WithPublisher(pub),
		usecase.WithMetrics(m),
		usecase.WithLogger(log),
		usecase.WithProviderTimeout(cfg.Ingestion.ProviderTimeout),
	)
}

// ProvideStatusUseCase creates the health evaluator, cached in Redis when available.
func ProvideStatusUseCase(
	cfg *config.Config,
	storage Storage,
	session *domsvc.Session,
	rc *cache.RedisCache,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.StatusUseCase {
	opts := []usecase.StatusOption{
		usecase.WithStatusMetrics(m),
		usecase.WithStatusLogger(log),
	}
	if rc != nil {
		opts = append(opts, usecase.WithStatusCache(rc, statusCacheTTL))
	}
	return usecase.NewStatusUseCase(cfg.Instrument.Symbol, storage.Bars, storage.Runs, session, opts...)
}

// ProvideCandlesUseCase creates the series reader.
func ProvideCandlesUseCase(cfg *config.Config, storage Storage) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(cfg.Instrument.Symbol, storage.Bars)
}

// ProvideHTTPHandler creates the pipeline API handler.
func ProvideHTTPHandler(
	cfg *config.Config,
	log *logger.Logger,
	status *usecase.StatusUseCase,
	candles *usecase.CandlesUseCase,
) *api.PipelineHandler {
	meta := api.Meta{
		Name:     server.AppName,
		Version:  server.Version,
		Symbol:   cfg.Instrument.Symbol,
		Primary:  cfg.Providers.Primary.Kind,
		Fallback: cfg.Providers.Fallback.Kind,
		Storage:  cfg.Storage.Backend,
	}
	return api.NewPipelineHandler(log, status, candles, meta, ratelimit.New(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, handler *api.PipelineHandler, log *logger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(handler,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(log),
	)
}

// ProvideScheduler creates the ingestion scheduler.
func ProvideScheduler(
	cfg *config.Config,
	ingestion *usecase.Ingestion,
	session *domsvc.Session,
	status *usecase.StatusUseCase,
	log *logger.Logger,
) *server.Scheduler {
	return server.NewScheduler(ingestion, session, cfg.Ingestion.Interval,
		server.WithMarketHoursOnly(cfg.Ingestion.MarketHoursOnly),
		server.WithStatusRefresher(status),
		server.WithSchedulerLogger(log),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	scheduler *server.Scheduler,
	httpServer *xhttp.Server,
	providers Providers,
) *server.App {
	return server.New(log, scheduler, httpServer, providers.Runners(), cfg.Server.ShutdownTimeout)
}
