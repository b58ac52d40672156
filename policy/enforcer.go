package policy

import (
	"context"
	"errors"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// ViolationErrorLabel is the fixed error field of a 403 body.
const ViolationErrorLabel = "Policy Violation"

// ErrNilAuditSink is returned when an Enforcer is created without a sink.
var ErrNilAuditSink = errors.New("audit sink is required")

// Enforcer evaluates requests at the read-side boundary and audits every decision.
type Enforcer struct {
	cfg    Config
	sink   AuditSink
	clock  func() time.Time
	logger eventstore.Logger
}

// Option configures an Enforcer.
type Option func(*Enforcer) error

// WithClock sets the audit timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(e *Enforcer) error {
		e.clock = clock
		return nil
	}
}

// WithLogger logs audit sink failures.
func WithLogger(logger eventstore.Logger) Option {
	return func(e *Enforcer) error {
		e.logger = logger
		return nil
	}
}

func NewEnforcer(cfg Config, sink AuditSink, options ...Option) (*Enforcer, error) {
	if sink == nil {
		return nil, ErrNilAuditSink
	}

	e := &Enforcer{cfg: cfg.withDefaults(), sink: sink, clock: time.Now}
	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Config returns the configuration the enforcer was built with.
func (e *Enforcer) Config() Config {
	return e.cfg
}

// Decide evaluates md and records the decision. A failing sink does not change the decision.
func (e *Enforcer) Decide(ctx context.Context, md RequestMetadata) (Decision, time.Time) {
	decision := Evaluate(e.cfg, md)
	now := e.clock().UTC()

	record := AuditRecord{
		Timestamp: now,
		Decision:  decision,
		Request:   md,
		Agent:     ParseAgent(md.CallerIdentity),
	}

	if err := e.sink.Record(ctx, record); err != nil && e.logger != nil {
		e.logger.Error("recording policy decision failed", "error", err.Error(), "outcome", string(decision.Outcome))
	}

	return decision, now
}

// Check is Decide returning a *ViolationError for denied requests.
func (e *Enforcer) Check(ctx context.Context, md RequestMetadata) error {
	decision, _ := e.Decide(ctx, md)
	if decision.Allowed() {
		return nil
	}

	return &ViolationError{Decision: decision, Caller: md.CallerIdentity}
}

// ViolationBody is the JSON body of a 403 response.
type ViolationBody struct {
	Error     string           `json:"error"`
	Message   string           `json:"message"`
	Details   ViolationDetails `json:"details"`
	Timestamp string           `json:"timestamp"`
}

// ViolationDetails names the violated policy.
type ViolationDetails struct {
	Policy         string `json:"policy"`
	Caller         string `json:"caller"`
	MatchedPattern string `json:"matchedPattern"`
	Reason         string `json:"reason"`
}

// Middleware rejects denied requests with 403 and a ViolationBody.
func (e *Enforcer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		md := MetadataFromRequest(r, e.cfg.IdentityHeader)

		decision, at := e.Decide(r.Context(), md)
		if decision.Allowed() {
			next.ServeHTTP(w, r)
			return
		}

		body := ViolationBody{
			Error:   ViolationErrorLabel,
			Message: "Read-side APIs must not be called by the write-side service; consume events instead.",
			Details: ViolationDetails{
				Policy:         decision.Policy,
				Caller:         md.CallerIdentity,
				MatchedPattern: decision.MatchedPattern,
				Reason:         decision.Reason,
			},
			Timestamp: at.Format(time.RFC3339Nano),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(body)
	})
}

// MetadataFromRequest extracts the decision input from r.
func MetadataFromRequest(r *http.Request, identityHeader string) RequestMetadata {
	if identityHeader == "" {
		identityHeader = DefaultIdentityHeader
	}

	return RequestMetadata{
		CallerIdentity: r.Header.Get(identityHeader),
		Method:         r.Method,
		Path:           r.URL.Path,
		RemoteAddr:     r.RemoteAddr,
		RequestID:      r.Header.Get("X-Request-Id"),
	}
}
