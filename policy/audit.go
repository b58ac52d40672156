package policy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mssola/useragent"
)

const (
	auditCategory = "policy"
	auditMessage  = "policy decision"
)

// Agent is the parsed form of a caller's User-Agent.
type Agent struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	OS      string `json:"os,omitempty"`
	Bot     bool   `json:"bot"`
}

// ParseAgent parses identity as a User-Agent. An empty identity yields the zero Agent.
func ParseAgent(identity string) Agent {
	if identity == "" {
		return Agent{}
	}

	ua := useragent.New(identity)
	name, version := ua.Browser()

	return Agent{Name: name, Version: version, OS: ua.OS(), Bot: ua.Bot()}
}

// AuditRecord is one audited decision.
type AuditRecord struct {
	Timestamp time.Time       `json:"timestamp"`
	Decision  Decision        `json:"decision"`
	Request   RequestMetadata `json:"request"`
	Agent     Agent           `json:"agent"`
}

// AuditSink receives every decision, including bypasses.
type AuditSink interface {
	Record(ctx context.Context, record AuditRecord) error
}

// SlogAuditSink writes audit records as structured log lines with audit=true.
type SlogAuditSink struct {
	logger *slog.Logger
}

func NewSlogAuditSink(logger *slog.Logger) *SlogAuditSink {
	return &SlogAuditSink{logger: logger}
}

func (s *SlogAuditSink) Record(ctx context.Context, record AuditRecord) error {
	level := slog.LevelInfo
	if record.Decision.Outcome != OutcomeAllow {
		level = slog.LevelWarn
	}

	s.logger.Log(ctx, level, auditMessage,
		slog.Bool("audit", true),
		slog.String("category", auditCategory),
		slog.Time("timestamp", record.Timestamp),
		slog.String("outcome", string(record.Decision.Outcome)),
		slog.String("policy", record.Decision.Policy),
		slog.String("reason", record.Decision.Reason),
		slog.String("caller", record.Request.CallerIdentity),
		slog.String("agent", record.Agent.Name),
		slog.Bool("bot", record.Agent.Bot),
		slog.String("method", record.Request.Method),
		slog.String("path", record.Request.Path),
		slog.String("request_id", record.Request.RequestID),
	)

	return nil
}

// MemoryAuditSink keeps audit records in memory.
type MemoryAuditSink struct {
	mu      sync.Mutex
	records []AuditRecord
}

func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{}
}

func (s *MemoryAuditSink) Record(_ context.Context, record AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)

	return nil
}

// Records returns a copy of everything recorded so far.
func (s *MemoryAuditSink) Records() []AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]AuditRecord(nil), s.records...)
}

// MultiSink fans a record out to several sinks and reports the first error.
type MultiSink []AuditSink

func (m MultiSink) Record(ctx context.Context, record AuditRecord) error {
	var first error
	for _, sink := range m {
		if err := sink.Record(ctx, record); err != nil && first == nil {
			first = err
		}
	}

	return first
}
