package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/command"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore/oteladapters"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/httpapi"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/order"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/httpx"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/kafkax"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/metrics"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/otelx"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/runtime"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/policy"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/projection"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/router"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/schema"
)

const (
	projectionsConsumer = "projections"
	criticalGroup       = "projections-critical"
)

type observability struct {
	metrics          eventstore.ContextualMetricsCollector
	contextualLogger eventstore.ContextualLogger
	tracing          eventstore.TracingCollector
}

// app is the wired service. runners execute until their context is done.
type app struct {
	handler   http.Handler
	processor interface{ Close(context.Context) error }
	runners   []func(context.Context) error
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// run wires every component and blocks until ctx is done or one of them fails.
func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	otelShutdown, err := otelx.Setup(ctx, cfg.OTel)
	if err != nil {
		logger.Error("otel setup failed", "error", err.Error())
		otelShutdown = func(context.Context) error { return nil }
	}
	defer shutdownWithTimeout(otelShutdown, cfg.ShutdownTimeout)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	server := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, runner := range a.runners {
		g.Go(func() error { return runner(gctx) })
	}
	g.Go(func() error {
		logger.Info("http server listening", "addr", server.Addr, "store_driver", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		logger.Info("shutting down")
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown failed", "error", err.Error())
		}
		if err := a.processor.Close(shutdownCtx); err != nil {
			logger.Warn("pending snapshots were not written", "error", err.Error())
		}
		return nil
	})

	return g.Wait()
}

// newApp builds the store, the command side, the projections, the router with its
// consumers and the HTTP handler. On error everything opened so far is closed.
func newApp(ctx context.Context, cfg Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	obs := observability{metrics: metrics.NewCollector(registry, "nexus")}
	if cfg.OTel.Enabled {
		obs.contextualLogger = oteladapters.NewSlogBridgeLogger(cfg.ServiceName)
		obs.tracing = oteladapters.NewTracingCollector(otel.Tracer(cfg.ServiceName))
	}

	opened, err := openStore(ctx, cfg, logger, obs)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, opened.close)

	readyChecks := opened.checks

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	defaultMode, err := schema.ParseMode(cfg.SchemaDefaultMode)
	if err != nil {
		return nil, err
	}

	governorOptions := []schema.Option{schema.WithLogger(logger), schema.WithDefaultMode(defaultMode)}
	if cfg.StrictSchemas {
		governorOptions = append(governorOptions, schema.WithStrictMode())
	}
	governor, err := schema.NewGovernor(governorOptions...)
	if err != nil {
		return nil, err
	}
	if err := order.RegisterSchemas(governor); err != nil {
		return nil, err
	}

	processor, err := command.NewProcessor(opened.store, order.Decider(), processorOptions(cfg, governor, logger, obs)...)
	if err != nil {
		return nil, err
	}
	a.processor = processor

	dispatcher := command.NewDispatcher()
	if err := dispatcher.Register(processor, order.CommandTypes...); err != nil {
		return nil, err
	}

	projectionStore, closeProjections, err := openProjectionStore(cfg, &readyChecks)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeProjections)

	engine, err := projection.NewEngine(opened.store, projectionStore, order.Projections(),
		projection.WithLogger(logger),
		projection.WithMetrics(obs.metrics),
	)
	if err != nil {
		return nil, err
	}

	routerMetrics := router.NewMetrics(registry)
	routerOptions := []router.Option{router.WithLogger(logger), router.WithMetrics(routerMetrics)}

	criticalLog, closeCritical, err := openCriticalLog(cfg, &readyChecks)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeCritical)

	var cursors router.CursorStore = router.NewMemoryCursorStore()
	if rdb != nil {
		cursors = router.NewRedisCursorStore(rdb, cfg.RedisKeyPrefix)
	}

	eventRouter, err := router.NewRouter(opened.store, router.NewClassifier(order.CriticalTypes...), criticalLog, cursors, routerOptions...)
	if err != nil {
		return nil, err
	}

	queueConfig := router.QueueConfig{VisibilityTimeout: cfg.VisibilityTimeout, MaxAttempts: cfg.MaxAttempts}
	var queue router.Queue
	if rdb != nil {
		queue, err = router.NewRedisQueue(rdb, cfg.RedisKeyPrefix, projectionsConsumer, queueConfig, nil)
	} else {
		queue, err = router.NewMemoryQueue(projectionsConsumer, queueConfig, nil)
	}
	if err != nil {
		return nil, err
	}
	if err := eventRouter.AddQueue(queue); err != nil {
		return nil, err
	}

	standardConsumer, err := router.NewStandardConsumer(queue, engine.Apply,
		append(routerOptions, router.WithName(projectionsConsumer), router.WithMaxInFlight(cfg.MaxInFlight))...)
	if err != nil {
		return nil, err
	}

	criticalConsumer, err := router.NewCriticalConsumer(criticalGroup, criticalLog, cursors, engine.Apply,
		append(routerOptions, router.WithName(criticalGroup))...)
	if err != nil {
		return nil, err
	}

	monitor, err := router.NewDLQMonitor(eventRouter.Queues,
		append(routerOptions, router.WithCheckInterval(cfg.DLQCheckInterval))...)
	if err != nil {
		return nil, err
	}

	enforcer, err := policy.NewEnforcer(cfg.Policy, policy.NewSlogAuditSink(logger), policy.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	apiConfig := httpapi.DefaultConfig()
	apiConfig.ServiceName = cfg.ServiceName
	apiConfig.BodyLimitBytes = cfg.BodyLimitBytes
	apiConfig.RequestTimeout = cfg.RequestTimeout
	if cfg.RateLimit > 0 {
		if rdb != nil {
			apiConfig.RateLimiter = httpx.NewRedisRateLimiter(rdb, cfg.RateLimit, cfg.RateLimitWindow, cfg.RedisKeyPrefix+":rl")
			apiConfig.RateLimitFailOpen = true
		} else {
			apiConfig.RateLimiter = httpx.NewMemoryRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)
		}
	}

	a.handler, err = httpapi.NewHandler(httpapi.Deps{
		Commands:    dispatcher,
		Projections: engine,
		Events:      opened.store,
		Schemas:     governor,
		Policy:      enforcer,
		Queues:      eventRouter.Queues,
		Logger:      logger,
		Metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}),
		ReadyChecks: readyChecks,
	}, apiConfig)
	if err != nil {
		return nil, err
	}

	a.runners = []func(context.Context) error{
		eventRouter.Run,
		standardConsumer.Run,
		criticalConsumer.Run,
		monitor.Run,
	}

	return a, nil
}

func processorOptions(cfg Config, validator command.Validator, logger *slog.Logger, obs observability) []command.Option {
	options := []command.Option{
		command.WithValidator(validator),
		command.WithLogger(logger),
		command.WithMetrics(obs.metrics),
		command.WithSnapshotInterval(cfg.SnapshotInterval),
		command.WithSnapshotTTL(cfg.SnapshotTTL),
		command.WithSnapshotTimeout(cfg.SnapshotTimeout),
	}
	if obs.contextualLogger != nil {
		options = append(options, command.WithContextualLogger(obs.contextualLogger))
	}
	if obs.tracing != nil {
		options = append(options, command.WithTracing(obs.tracing))
	}
	return options
}

// openProjectionStore uses SQLite when PROJECTION_SQLITE_PATH is set.
func openProjectionStore(cfg Config, checks *[]runtime.ReadyCheck) (projection.Store, func(), error) {
	if cfg.ProjectionsPath == "" {
		return projection.NewMemoryStore(), func() {}, nil
	}

	store, err := projection.OpenSQLite(cfg.ProjectionsPath)
	if err != nil {
		return nil, nil, err
	}

	*checks = append(*checks, runtime.ReadyCheck{Name: "projections", Check: store.Ping})

	return store, func() { _ = store.Close() }, nil
}

// openCriticalLog uses Kafka when KAFKA_BROKERS is set.
func openCriticalLog(cfg Config, checks *[]runtime.ReadyCheck) (router.CriticalLog, func(), error) {
	if cfg.KafkaBrokers == "" {
		log := router.NewMemoryLog()
		return log, log.Close, nil
	}

	log, err := router.NewKafkaLog(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, err
	}

	*checks = append(*checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})

	return log, func() { _ = log.Close() }, nil
}

func shutdownWithTimeout(shutdown func(context.Context) error, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = shutdown(ctx)
}
