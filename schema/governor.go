package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	jsoniter "github.com/json-iterator/go"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

var (
	// ErrEmptySubject is returned when a schema is registered without a name.
	ErrEmptySubject = errors.New("schema name must not be empty")

	// ErrInvalidSchema is returned when a definition cannot be resolved.
	ErrInvalidSchema = errors.New("invalid schema definition")

	// ErrIncompatibleSchema is returned when a registration breaks the subject's compatibility mode.
	ErrIncompatibleSchema = errors.New("schema is incompatible with earlier versions")

	// ErrUnknownSubject is returned when no schema was registered under a name.
	ErrUnknownSubject = errors.New("no schema registered under this name")
)

const (
	logMsgValidationFailed    = "schema validation failed"
	logMsgSchemaRegistered    = "schema registered"
	logMsgRegistrationDenied  = "schema registration rejected"
	logAttrAudit              = "audit"
	logAttrCategory           = "category"
	logAttrSubject            = "subject"
	logAttrVersion            = "version"
	logAttrMode               = "mode"
	logAttrViolations         = "violations"
	logAttrTimestamp          = "timestamp"
	auditCategory             = "schema"
	violationUnregisteredType = "no schema registered for event type %q"
)

// Version is one immutable registration.
type Version struct {
	Subject      string             `json:"subject"`
	Version      int                `json:"version"`
	Mode         CompatibilityMode  `json:"mode"`
	Definition   *jsonschema.Schema `json:"definition"`
	RegisteredAt time.Time          `json:"registeredAt"`

	resolved *jsonschema.Resolved
}

// ValidationResult lists every violation of a payload against its schema.
type ValidationResult struct {
	OK         bool     `json:"ok"`
	Violations []string `json:"violations,omitempty"`
}

// Err converts a failed result into a *eventstore.ValidationError, nil when OK.
func (r ValidationResult) Err() error {
	if r.OK {
		return nil
	}

	return &eventstore.ValidationError{Source: auditCategory, Violations: r.Violations}
}

// Governor is the in-process schema registry. It is safe for concurrent use.
type Governor struct {
	mu          sync.RWMutex
	subjects    map[string][]Version
	defaultMode CompatibilityMode
	strict      bool
	clock       func() time.Time
	logger      eventstore.Logger
}

// NewGovernor creates an empty registry.
func NewGovernor(options ...Option) (*Governor, error) {
	g := &Governor{
		subjects:    make(map[string][]Version),
		defaultMode: DefaultMode,
		clock:       time.Now,
	}

	for _, option := range options {
		if err := option(g); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// RegisterSchema appends a new version under name and returns its number, starting at 1.
// An empty mode uses the governor's default. Incompatible definitions are rejected and
// nothing is stored; existing versions are never changed. The governor keeps its own copy
// of definition, so later changes by the caller have no effect.
func (g *Governor) RegisterSchema(name string, definition *jsonschema.Schema, mode CompatibilityMode) (int, error) {
	if strings.TrimSpace(name) == "" {
		return 0, ErrEmptySubject
	}

	if mode == "" {
		mode = g.defaultMode
	}

	if _, err := ParseMode(string(mode)); err != nil {
		return 0, err
	}

	definition, err := cloneDefinition(definition)
	if err != nil {
		return 0, err
	}

	resolved, err := resolve(definition)
	if err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	existing := g.subjects[name]

	result := checkAgainst(definitions(existing), definition, mode)
	if !result.Compatible {
		g.audit(logMsgRegistrationDenied, name, len(existing)+1, mode, result.Violations)

		return 0, errors.Join(
			ErrIncompatibleSchema,
			&eventstore.ValidationError{Source: "compatibility", Violations: result.Violations},
		)
	}

	version := Version{
		Subject:      name,
		Version:      len(existing) + 1,
		Mode:         mode,
		Definition:   definition,
		RegisteredAt: g.clock().UTC(),
		resolved:     resolved,
	}
	g.subjects[name] = append(existing, version)

	if g.logger != nil {
		g.logger.Info(logMsgSchemaRegistered,
			logAttrSubject, name,
			logAttrVersion, version.Version,
			logAttrMode, string(mode))
	}

	return version.Version, nil
}

// CheckCompatibility reports whether definition could be registered under name with mode,
// without registering it. An empty mode uses the governor's default.
func (g *Governor) CheckCompatibility(name string, definition *jsonschema.Schema, mode CompatibilityMode) CompatibilityResult {
	if mode == "" {
		mode = g.defaultMode
	}

	if _, err := ParseMode(string(mode)); err != nil {
		return CompatibilityResult{Violations: []string{err.Error()}}
	}

	if _, err := resolve(definition); err != nil {
		return CompatibilityResult{Violations: []string{err.Error()}}
	}

	g.mu.RLock()
	existing := definitions(g.subjects[name])
	g.mu.RUnlock()

	return checkAgainst(existing, definition, mode)
}

// Validate checks the payload of an event against the latest schema registered for its type.
// Unregistered types pass unless the governor is strict. Every failure is written as an audit log line.
func (g *Governor) Validate(event eventstore.StorableEvent) ValidationResult {
	return g.ValidatePayload(event.EventType, event.PayloadJSON)
}

// ValidatePayload validates raw JSON against the latest version of subject.
func (g *Governor) ValidatePayload(subject string, payloadJSON []byte) ValidationResult {
	latest, ok := g.Latest(subject)
	if !ok {
		if !g.strict {
			return ValidationResult{OK: true}
		}

		return g.fail(subject, 0, []string{fmt.Sprintf(violationUnregisteredType, subject)})
	}

	var instance any
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(payloadJSON, &instance); err != nil {
		return g.fail(subject, latest.Version, []string{"payload is not valid JSON: " + err.Error()})
	}

	if err := latest.resolved.Validate(instance); err != nil {
		return g.fail(subject, latest.Version, splitViolations(err))
	}

	return ValidationResult{OK: true}
}

// Latest returns the newest version of subject.
func (g *Governor) Latest(subject string) (Version, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	versions := g.subjects[subject]
	if len(versions) == 0 {
		return Version{}, false
	}

	return versions[len(versions)-1], true
}

// Versions returns all versions of subject, oldest first. Definitions are shared with the
// governor and must not be modified.
func (g *Governor) Versions(subject string) ([]Version, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	versions, ok := g.subjects[subject]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubject, subject)
	}

	return append([]Version(nil), versions...), nil
}

// Subjects lists registered subject names in lexical order.
func (g *Governor) Subjects() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	subjects := make([]string, 0, len(g.subjects))
	for subject := range g.subjects {
		subjects = append(subjects, subject)
	}

	sort.Strings(subjects)

	return subjects
}

func (g *Governor) fail(subject string, version int, violations []string) ValidationResult {
	g.audit(logMsgValidationFailed, subject, version, "", violations)

	return ValidationResult{Violations: violations}
}

func (g *Governor) audit(msg, subject string, version int, mode CompatibilityMode, violations []string) {
	if g.logger == nil {
		return
	}

	args := []any{
		logAttrAudit, true,
		logAttrCategory, auditCategory,
		logAttrSubject, subject,
		logAttrVersion, version,
		logAttrViolations, violations,
		logAttrTimestamp, g.clock().UTC().Format(time.RFC3339Nano),
	}
	if mode != "" {
		args = append(args, logAttrMode, string(mode))
	}

	g.logger.Warn(msg, args...)
}

func resolve(definition *jsonschema.Schema) (*jsonschema.Resolved, error) {
	if definition == nil {
		return nil, fmt.Errorf("%w: definition is nil", ErrInvalidSchema)
	}

	resolved, err := definition.Resolve(nil)
	if err != nil {
		return nil, errors.Join(ErrInvalidSchema, err)
	}

	return resolved, nil
}

func cloneDefinition(definition *jsonschema.Schema) (*jsonschema.Schema, error) {
	if definition == nil {
		return nil, fmt.Errorf("%w: definition is nil", ErrInvalidSchema)
	}

	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(definition)
	if err != nil {
		return nil, errors.Join(ErrInvalidSchema, err)
	}

	return ParseDefinition(data)
}

func definitions(versions []Version) []*jsonschema.Schema {
	defs := make([]*jsonschema.Schema, 0, len(versions))
	for _, v := range versions {
		defs = append(defs, v.Definition)
	}

	return defs
}

func splitViolations(err error) []string {
	var violations []string

	for _, line := range strings.Split(err.Error(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			violations = append(violations, line)
		}
	}

	return violations
}
