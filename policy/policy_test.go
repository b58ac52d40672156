package policy_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/policy"
	. "github.com/convey2karthikshivashankar-cloud/nexus-sub000/testutil/helper"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func newEnforcer(t *testing.T, cfg policy.Config) (*policy.Enforcer, *policy.MemoryAuditSink) {
	t.Helper()

	sink := policy.NewMemoryAuditSink()
	enforcer, err := policy.NewEnforcer(cfg, sink, policy.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	return enforcer, sink
}

func Test_Evaluate_DeniesTheWriteSideCaller_CaseInsensitively(t *testing.T) {
	cases := []struct {
		identity string
		outcome  policy.Outcome
	}{
		{"command-service", policy.OutcomeDeny},
		{"command-service/1.0", policy.OutcomeDeny},
		{"AWS-SDK command-service", policy.OutcomeDeny},
		{"Command-Service", policy.OutcomeDeny},
		{"  COMMAND-SERVICE/2.3 (linux)  ", policy.OutcomeDeny},
		{"Mozilla/5.0", policy.OutcomeAllow},
		{"query-service/1.0", policy.OutcomeAllow},
		{"command service", policy.OutcomeAllow},
		{"", policy.OutcomeAllow},
	}

	for _, tc := range cases {
		t.Run(tc.identity, func(t *testing.T) {
			decision := policy.Evaluate(policy.DefaultConfig(), policy.RequestMetadata{CallerIdentity: tc.identity})

			assert.Equal(t, tc.outcome, decision.Outcome)
			assert.Equal(t, policy.DefaultPolicyName, decision.Policy)
			assert.NotEmpty(t, decision.Reason)
		})
	}
}

func Test_Evaluate_When_Disabled_Bypasses(t *testing.T) {
	cfg := policy.DefaultConfig()
	cfg.Enabled = false

	decision := policy.Evaluate(cfg, policy.RequestMetadata{CallerIdentity: "command-service"})

	assert.Equal(t, policy.OutcomeBypass, decision.Outcome)
	assert.True(t, decision.Allowed())
}

func Test_Evaluate_UsesConfiguredPatterns(t *testing.T) {
	cfg := policy.Config{Enabled: true, DeniedCallerPatterns: []string{"", "Writer-Bot"}}

	denied := policy.Evaluate(cfg, policy.RequestMetadata{CallerIdentity: "internal writer-bot/7"})
	allowed := policy.Evaluate(cfg, policy.RequestMetadata{CallerIdentity: "command-service"})

	assert.Equal(t, policy.OutcomeDeny, denied.Outcome)
	assert.Equal(t, "Writer-Bot", denied.MatchedPattern)
	assert.Equal(t, policy.OutcomeAllow, allowed.Outcome)
}

func Test_Evaluate_When_PatternsAreUnset_DeniesTheWriteSideCaller(t *testing.T) {
	// arrange
	unset := policy.Config{Enabled: true}
	empty := policy.Config{Enabled: true, DeniedCallerPatterns: []string{}}
	enforcer, _ := newEnforcer(t, unset)

	// act
	evaluated := policy.Evaluate(unset, policy.RequestMetadata{CallerIdentity: "command-service/1.0"})
	enforced, _ := enforcer.Decide(TestContext(t), policy.RequestMetadata{CallerIdentity: "command-service/1.0"})
	explicitlyEmpty := policy.Evaluate(empty, policy.RequestMetadata{CallerIdentity: "command-service/1.0"})

	// assert
	assert.Equal(t, policy.OutcomeDeny, evaluated.Outcome)
	assert.Equal(t, policy.DefaultDeniedPattern, evaluated.MatchedPattern)
	assert.Equal(t, policy.OutcomeDeny, enforced.Outcome)
	assert.Equal(t, policy.OutcomeAllow, explicitlyEmpty.Outcome)
}

func Test_Decide_AuditsEveryDecision(t *testing.T) {
	// setup
	ctx := TestContext(t)
	enforcer, sink := newEnforcer(t, policy.DefaultConfig())

	disabledCfg := policy.DefaultConfig()
	disabledCfg.Enabled = false
	bypassing, bypassSink := newEnforcer(t, disabledCfg)

	// act
	enforcer.Decide(ctx, policy.RequestMetadata{CallerIdentity: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"})
	enforcer.Decide(ctx, policy.RequestMetadata{CallerIdentity: "command-service/1.0", Path: "/queries/orders"})
	enforcer.Decide(ctx, policy.RequestMetadata{})
	bypassing.Decide(ctx, policy.RequestMetadata{CallerIdentity: "command-service"})

	// assert
	records := sink.Records()
	require.Len(t, records, 3)
	assert.Equal(t, policy.OutcomeAllow, records[0].Decision.Outcome)
	assert.Equal(t, "Chrome", records[0].Agent.Name)
	assert.Equal(t, policy.OutcomeDeny, records[1].Decision.Outcome)
	assert.Equal(t, "/queries/orders", records[1].Request.Path)
	assert.Equal(t, policy.OutcomeAllow, records[2].Decision.Outcome)

	for _, record := range records {
		assert.Equal(t, fixedNow, record.Timestamp)
	}

	bypassRecords := bypassSink.Records()
	require.Len(t, bypassRecords, 1)
	assert.Equal(t, policy.OutcomeBypass, bypassRecords[0].Decision.Outcome)
}

func Test_Check_ReturnsAPolicyViolation(t *testing.T) {
	ctx := TestContext(t)
	enforcer, _ := newEnforcer(t, policy.DefaultConfig())

	err := enforcer.Check(ctx, policy.RequestMetadata{CallerIdentity: "command-service"})

	assert.ErrorIs(t, err, eventstore.ErrPolicyViolation)

	var violation *policy.ViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "command-service", violation.Caller)
	assert.NoError(t, enforcer.Check(ctx, policy.RequestMetadata{CallerIdentity: "Mozilla/5.0"}))
}

func Test_Middleware_RejectsDeniedCallers_With403(t *testing.T) {
	// setup
	enforcer, sink := newEnforcer(t, policy.DefaultConfig())
	reached := false
	handler := enforcer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	// arrange
	req := httptest.NewRequest(http.MethodGet, "/queries/orders", nil)
	req.Header.Set("User-Agent", "AWS-SDK command-service")
	rec := httptest.NewRecorder()

	// act
	handler.ServeHTTP(rec, req)

	// assert
	assert.False(t, reached)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body policy.ViolationBody
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Policy Violation", body.Error)
	assert.NotEmpty(t, body.Message)
	assert.Equal(t, policy.DefaultPolicyName, body.Details.Policy)
	assert.Equal(t, "AWS-SDK command-service", body.Details.Caller)
	assert.Equal(t, "command-service", body.Details.MatchedPattern)
	assert.Equal(t, fixedNow.Format(time.RFC3339Nano), body.Timestamp)

	require.Len(t, sink.Records(), 1)
	assert.Equal(t, "/queries/orders", sink.Records()[0].Request.Path)
}

func Test_Middleware_PassesAllowedAndBypassedRequests(t *testing.T) {
	disabledCfg := policy.DefaultConfig()
	disabledCfg.Enabled = false

	for name, cfg := range map[string]policy.Config{"enabled": policy.DefaultConfig(), "disabled": disabledCfg} {
		t.Run(name, func(t *testing.T) {
			enforcer, _ := newEnforcer(t, cfg)
			handler := enforcer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))

			req := httptest.NewRequest(http.MethodGet, "/queries/orders", nil)
			if name == "disabled" {
				req.Header.Set("User-Agent", "command-service")
			} else {
				req.Header.Set("User-Agent", "Mozilla/5.0")
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
		})
	}
}

func Test_SlogAuditSink_WritesStructuredAuditLines(t *testing.T) {
	// setup
	ctx := TestContext(t)
	logger, logSpy := NewSpyLogger()
	enforcer, err := policy.NewEnforcer(policy.DefaultConfig(), policy.NewSlogAuditSink(logger))
	require.NoError(t, err)

	// act
	enforcer.Decide(ctx, policy.RequestMetadata{CallerIdentity: "command-service"})

	// assert
	entry := logSpy.FindLog(slog.LevelWarn, "policy decision")
	require.NotNil(t, entry)
	assert.Equal(t, true, entry["audit"])
	assert.Equal(t, "policy", entry["category"])
	assert.Equal(t, "deny", entry["outcome"])
	assert.Contains(t, entry, "timestamp")
}

type failingSink struct{}

func (failingSink) Record(context.Context, policy.AuditRecord) error {
	return errors.New("sink down")
}

func Test_Decide_When_SinkFails_KeepsTheDecision(t *testing.T) {
	ctx := TestContext(t)
	logger, logSpy := NewSpyLogger()
	enforcer, err := policy.NewEnforcer(policy.DefaultConfig(), policy.MultiSink{failingSink{}, policy.NewMemoryAuditSink()}, policy.WithLogger(logger))
	require.NoError(t, err)

	decision, _ := enforcer.Decide(ctx, policy.RequestMetadata{CallerIdentity: "command-service"})

	assert.Equal(t, policy.OutcomeDeny, decision.Outcome)
	assert.True(t, logSpy.HasLog(slog.LevelError, "recording policy decision failed"))
}

func Test_NewEnforcer_RequiresASink(t *testing.T) {
	_, err := policy.NewEnforcer(policy.DefaultConfig(), nil)

	assert.ErrorIs(t, err, policy.ErrNilAuditSink)
}
