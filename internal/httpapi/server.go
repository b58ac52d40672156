// Package httpapi exposes the command, query, schema and admin endpoints of eventsd.
package httpapi

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/jsonschema-go/jsonschema"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/command"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/httpx"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/runtime"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/policy"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/projection"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/router"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/schema"
)

var (
	// ErrMissingDependency is returned when a required dependency is nil.
	ErrMissingDependency = errors.New("httpapi dependency missing")
)

// CommandHandler runs commands. *command.Dispatcher satisfies it.
type CommandHandler interface {
	Handle(ctx context.Context, cmd command.Command) (command.Result, error)
}

// Projections serves read models. *projection.Engine satisfies it.
type Projections interface {
	Projections() []string
	Get(ctx context.Context, name, key string) (projection.Record, error)
	List(ctx context.Context, name string, options projection.ListOptions) ([]projection.Record, error)
	Rebuild(ctx context.Context, name string) (projection.RebuildResult, error)
}

// EventReader reads the events of one aggregate.
type EventReader interface {
	ReadEvents(ctx context.Context, aggregateID string, options ...eventstore.ReadOption) iter.Seq2[eventstore.Event, error]
}

// SchemaRegistry manages event schemas. *schema.Governor satisfies it.
type SchemaRegistry interface {
	RegisterSchema(name string, definition *jsonschema.Schema, mode schema.CompatibilityMode) (int, error)
	CheckCompatibility(name string, definition *jsonschema.Schema, mode schema.CompatibilityMode) schema.CompatibilityResult
	Versions(subject string) ([]schema.Version, error)
	Subjects() []string
}

// Deps are the components behind the endpoints. Queues may be nil when no standard
// consumers run; Metrics may be nil to disable /metrics.
type Deps struct {
	Commands    CommandHandler
	Projections Projections
	Events      EventReader
	Schemas     SchemaRegistry
	Policy      *policy.Enforcer
	Queues      func() []router.Queue
	Logger      *slog.Logger
	Metrics     http.Handler
	ReadyChecks []runtime.ReadyCheck
}

// Config tunes the middleware stack.
type Config struct {
	ServiceName       string
	BodyLimitBytes    int64
	RequestTimeout    time.Duration
	RateLimiter       httpx.Limiter
	RateLimitFailOpen bool
	CORS              httpx.CORSPolicy
}

// DefaultConfig returns a 1 MiB body limit, a 15s request timeout and permissive CORS.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "eventsd",
		BodyLimitBytes: 1 << 20,
		RequestTimeout: 15 * time.Second,
		CORS:           httpx.PermissiveCORS(),
	}
}

type server struct {
	deps Deps
	cfg  Config
}

// NewHandler builds the HTTP handler with every route and the middleware chain.
func NewHandler(deps Deps, cfg Config) (http.Handler, error) {
	if deps.Commands == nil || deps.Projections == nil || deps.Events == nil || deps.Schemas == nil || deps.Policy == nil {
		return nil, ErrMissingDependency
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &server{deps: deps, cfg: cfg}

	r := chi.NewRouter()
	r.Get("/healthz", runtime.HealthHandler())
	r.Get("/readyz", runtime.ReadyHandler(deps.ReadyChecks...))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Post("/commands", s.handleCommand)

	r.Route("/queries", func(r chi.Router) {
		r.Use(httpx.WithCORS(cfg.CORS))
		r.Use(deps.Policy.Middleware)
		r.Get("/aggregates/{aggregateId}/events", s.handleAggregateEvents)
		r.Get("/{projection}", s.handleListRecords)
		r.Get("/{projection}/{key}", s.handleGetRecord)
	})

	r.Route("/schemas", func(r chi.Router) {
		r.Get("/", s.handleListSchemas)
		r.Get("/{name}", s.handleGetSchema)
		r.Post("/{name}", s.handleRegisterSchema)
		r.Post("/{name}/compatibility", s.handleCheckCompatibility)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/projections/{name}/rebuild", s.handleRebuild)
		r.Get("/dlq", s.handleListDLQ)
		r.Post("/dlq/{consumer}/redrive", s.handleRedrive)
	})

	middleware := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(deps.Logger),
	}
	if cfg.RateLimiter != nil {
		middleware = append(middleware, httpx.RateLimit(cfg.RateLimiter, deps.Logger, cfg.RateLimitFailOpen))
	}
	if cfg.BodyLimitBytes > 0 {
		middleware = append(middleware, httpx.WithBodyLimit(cfg.BodyLimitBytes))
	}
	if cfg.RequestTimeout > 0 {
		middleware = append(middleware, httpx.WithTimeout(cfg.RequestTimeout))
	}

	handler := httpx.Chain(r, middleware...)

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "eventsd"
	}

	return otelhttp.NewHandler(handler, serviceName), nil
}
