package policy

import (
	"fmt"
	"strings"
)

const (
	// DefaultPolicyName names the rule that keeps the write side off the read API.
	DefaultPolicyName = "service-decoupling"

	// DefaultIdentityHeader carries the caller identity.
	DefaultIdentityHeader = "User-Agent"

	// DefaultDeniedPattern identifies the write-side service.
	DefaultDeniedPattern = "command-service"
)

// Config is passed to the enforcer at construction. It is never read from the process
// environment at decision time.
type Config struct {
	Enabled              bool     `env:"ENABLED" envDefault:"true"`
	PolicyName           string   `env:"NAME" envDefault:"service-decoupling"`
	IdentityHeader       string   `env:"IDENTITY_HEADER" envDefault:"User-Agent"`
	DeniedCallerPatterns []string `env:"DENIED_CALLERS" envDefault:"command-service" envSeparator:","`
}

// DefaultConfig enables enforcement against the write-side service.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		PolicyName:           DefaultPolicyName,
		IdentityHeader:       DefaultIdentityHeader,
		DeniedCallerPatterns: []string{DefaultDeniedPattern},
	}
}

func (c Config) withDefaults() Config {
	if c.PolicyName == "" {
		c.PolicyName = DefaultPolicyName
	}

	if c.IdentityHeader == "" {
		c.IdentityHeader = DefaultIdentityHeader
	}

	// an explicit empty list denies nobody
	if c.DeniedCallerPatterns == nil {
		c.DeniedCallerPatterns = []string{DefaultDeniedPattern}
	}

	return c
}

// RequestMetadata is what a decision looks at. Only CallerIdentity influences the outcome;
// the other fields end up in the audit trail.
type RequestMetadata struct {
	CallerIdentity string `json:"callerIdentity,omitempty"`
	Method         string `json:"method,omitempty"`
	Path           string `json:"path,omitempty"`
	RemoteAddr     string `json:"remoteAddr,omitempty"`
	RequestID      string `json:"requestId,omitempty"`
}

// Outcome is the result class of a decision.
type Outcome string

const (
	OutcomeAllow  Outcome = "allow"
	OutcomeDeny   Outcome = "deny"
	OutcomeBypass Outcome = "bypass"
)

// Decision is the result of Evaluate.
type Decision struct {
	Outcome        Outcome `json:"outcome"`
	Policy         string  `json:"policy"`
	Reason         string  `json:"reason"`
	MatchedPattern string  `json:"matchedPattern,omitempty"`
}

// Allowed reports whether the request may proceed. Bypassed requests are allowed.
func (d Decision) Allowed() bool {
	return d.Outcome != OutcomeDeny
}

// Evaluate decides a request. It has no side effects.
//
// A request is denied when its caller identity contains any denied pattern, ignoring case.
// Requests without an identity are allowed. With enforcement disabled every request is
// allowed with OutcomeBypass.
func Evaluate(cfg Config, md RequestMetadata) Decision {
	cfg = cfg.withDefaults()

	if !cfg.Enabled {
		return Decision{Outcome: OutcomeBypass, Policy: cfg.PolicyName, Reason: "policy enforcement is disabled"}
	}

	identity := strings.ToLower(strings.TrimSpace(md.CallerIdentity))
	if identity == "" {
		return Decision{Outcome: OutcomeAllow, Policy: cfg.PolicyName, Reason: "no caller identity"}
	}

	for _, pattern := range cfg.DeniedCallerPatterns {
		needle := strings.ToLower(strings.TrimSpace(pattern))
		if needle == "" {
			continue
		}

		if strings.Contains(identity, needle) {
			return Decision{
				Outcome:        OutcomeDeny,
				Policy:         cfg.PolicyName,
				Reason:         fmt.Sprintf("caller identity matches denied pattern %q", pattern),
				MatchedPattern: pattern,
			}
		}
	}

	return Decision{Outcome: OutcomeAllow, Policy: cfg.PolicyName, Reason: "caller identity is not denied"}
}
