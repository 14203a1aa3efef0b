package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"courier/internal/broker"
	"courier/internal/config"
	"courier/internal/constants"
	"courier/internal/debounce"
	"courier/internal/dedup"
	"courier/internal/dispatch"
	"courier/internal/eventbus"
	"courier/internal/ingest"
	"courier/internal/logger"
	"courier/internal/snapshot"
	"courier/internal/store"
	"courier/internal/transport"
	"courier/pkg/bootstrap"
	"courier/pkg/health"
	"courier/pkg/logging"
	"courier/pkg/metrics"
	"courier/pkg/tracing"
)

const dedupSizeInterval = 15 * time.Second

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	postgres       *sql.DB
	tracerProvider *tracing.TracerProvider

	hub        *store.Hub
	tracked    []store.Subscription
	lookup     store.Lookup
	redisDedup *dedup.RedisWindow
	breaker    *dedup.CircuitBreakerWindow
	bus        *eventbus.Bus
	supervisor *dispatch.Supervisor
	checks     *health.CheckerRegistry
	transport  *transport.Server
	forwarder  *broker.EventForwarder
	server     *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterPipelineMetrics()
	metrics.RegisterDedupMetrics()
	metrics.RegisterTransportMetrics()
	metrics.RegisterStoreMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initStore(); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := a.initBus(); err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}

	if err := a.InitBroker(constants.ServiceName); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}
	if a.Producer != nil {
		metrics.RegisterBrokerMetrics()
	}

	a.initHealth()

	if err := a.initDispatchers(); err != nil {
		return fmt.Errorf("failed to initialize dispatchers: %w", err)
	}

	a.initHTTPServer()
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb

	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.postgres = db
	return nil
}

// initStore picks the lookup backend. Without PostgreSQL the memory store
// follows the hub, so it sees every change before the dispatchers do.
func (a *App) initStore() error {
	a.hub = store.NewHub(a.Logger)

	if a.postgres != nil {
		a.lookup = store.WrapWithCircuitBreaker(store.NewPostgresStore(a.postgres), "lookup-postgres", a.Config.CircuitBreaker)
		a.Logger.Info("Using PostgreSQL lookup store")

		if ttl := a.Config.Pipeline.LookupCacheTTL; ttl > 0 && a.redis != nil {
			cached := store.NewCachedLookup(a.lookup, a.redis, ttl, a.Logger)
			a.tracked = cached.Follow(a.hub)
			a.lookup = cached
			a.Logger.Infow("Message lookup cache enabled", "ttl", ttl)
		}
		return nil
	}

	mem := store.NewMemoryStore()
	a.tracked = mem.Track(a.hub)
	a.lookup = mem
	a.Logger.Info("Using in-memory lookup store")
	return nil
}

func (a *App) initBus() error {
	dcfg := a.Config.Deduplication

	var window dedup.Window
	switch dcfg.Backend {
	case constants.DedupBackendRedis:
		if a.redis == nil {
			return fmt.Errorf("redis dedup backend requires database.redis.host")
		}
		a.redisDedup = dedup.NewRedisWindow(dedup.NewRepository(a.redis), dcfg.TTL, a.Logger)
		a.breaker = dedup.NewCircuitBreakerWindow(a.redisDedup, "dedup-redis", a.Config.CircuitBreaker)
		window = a.breaker
	default:
		window = dedup.NewMemoryWindow(dcfg.TTL, dcfg.MaxEntries)
	}
	window = dedup.Instrument(window, dcfg.Backend)

	a.bus = eventbus.New(window, dedup.NewHasher(dcfg.HashAlgorithm),
		eventbus.WithLogger(a.Logger),
		eventbus.WithWindowErrorPolicy(dcfg.OnWindowError),
	)

	a.Logger.Infow("Event bus ready",
		"dedup_backend", dcfg.Backend,
		"hash_algorithm", dcfg.HashAlgorithm,
		"dedup_ttl", dcfg.TTL,
	)
	return nil
}

func (a *App) initHealth() {
	a.checks = health.NewCheckerRegistry()
	if a.postgres != nil {
		a.checks.Register(health.NewPostgreSQLChecker(a.postgres))
	}
	if a.redis != nil {
		a.checks.Register(health.NewRedisChecker(a.redis))
	}
	if a.Consumer != nil {
		a.checks.RegisterOptional(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))
	}
	if a.breaker != nil {
		a.checks.RegisterOptional(breakerChecker("dedup_window", a.breaker.State))
	}
	if guarded, ok := unwrapLookup(a.lookup).(*store.CircuitBreakerLookup); ok {
		a.checks.RegisterOptional(breakerChecker("lookup", guarded.State))
	}
}

func breakerChecker(name string, state func() string) health.Checker {
	return health.NewFuncChecker(name, func(context.Context) error {
		if s := state(); s == "open" {
			return fmt.Errorf("%s circuit breaker is %s", name, s)
		}
		return nil
	})
}

func unwrapLookup(l store.Lookup) store.Lookup {
	if cached, ok := l.(*store.CachedLookup); ok {
		return cached.Lookup
	}
	return l
}

func (a *App) initDispatchers() error {
	registry, err := ingest.NewRegistry(a.Logger, ingest.DefaultVariants()...)
	if err != nil {
		return err
	}

	a.supervisor = dispatch.NewSupervisor(dispatch.Deps{
		Source:   a.hub,
		Lookup:   a.lookup,
		Registry: registry,
		Bus:      a.bus,
		Debounce: map[debounce.Category]time.Duration{
			debounce.CategoryStatusChanged:       a.Config.Debounce.StatusChanged,
			debounce.CategoryParticipantsChanged: a.Config.Debounce.ParticipantsChanged,
		},
		Health:   a.checks,
		Pipeline: a.Config.Pipeline,
		Logger:   a.Logger,
	}, a.Logger)

	for _, factory := range dispatch.DefaultFactories() {
		if err := a.supervisor.Register(factory); err != nil {
			return err
		}
	}
	a.bus.SetSupervisor(a.supervisor)

	// The forwarder holds a consumer slot for as long as the process runs.
	if a.Producer != nil && a.Config.Broker.Kafka.OutputTopic != "" {
		a.forwarder = broker.NewEventForwarder(a.Producer, a.Config.Broker.Kafka.OutputTopic, a.Logger)
		a.forwarder.Attach(a.bus)
	}
	return nil
}

func (a *App) initHTTPServer() {
	snapshots := snapshot.NewBuilder(a.lookup,
		a.Config.Pipeline.Bootstrap.DefaultLimit,
		a.Config.Pipeline.Bootstrap.MaxLimit,
		a.Logger,
	)
	a.transport = transport.NewServer(a.bus, snapshots, a.checks, a.Config.Transport, a.Logger)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.transport.Handler(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	runCtx := logging.WithServiceName(ctx, constants.ServiceName)

	g.Go(func() error {
		a.Logger.InfowCtx(runCtx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.Logger.WarnwCtx(runCtx, "HTTP server did not shut down cleanly", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		a.transport.Run(gCtx)
		return nil
	})

	if a.redisDedup != nil {
		g.Go(func() error {
			return a.redisDedup.ReportSize(gCtx, dedupSizeInterval)
		})
	}

	if a.Consumer != nil {
		inputTopic := a.Config.Broker.Kafka.InputTopic
		g.Go(func() error {
			return a.Consumer.Consume(gCtx, inputTopic, broker.IngestHandler(a.hub))
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown runs after Run has returned, so the consumer is already
// stopped. The pipeline drains before the producer closes so the forwarder
// can flush what the bus still holds.
func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down courier")

	if a.supervisor != nil {
		a.supervisor.Close()
	}
	for _, sub := range a.tracked {
		sub.Unsubscribe()
	}
	if a.bus != nil {
		a.bus.Close()
	}

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(a.redis, a.postgres)...)
		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
