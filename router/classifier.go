package router

// Path is the distribution route of an event.
type Path string

const (
	// PathCritical is the single ordered log. Consumers track a per-aggregate cursor.
	PathCritical Path = "critical"

	// PathStandard fans out to one queue per consumer with retries and a dead-letter queue.
	PathStandard Path = "standard"
)

// Classifier decides the path of an event from its type alone. It has no side effects
// and never changes after construction.
type Classifier struct {
	critical map[string]struct{}
}

// NewClassifier marks the given event types as critical. Everything else is standard.
func NewClassifier(criticalTypes ...string) Classifier {
	critical := make(map[string]struct{}, len(criticalTypes))
	for _, eventType := range criticalTypes {
		critical[eventType] = struct{}{}
	}

	return Classifier{critical: critical}
}

// Classify returns the path for eventType.
func (c Classifier) Classify(eventType string) Path {
	if _, ok := c.critical[eventType]; ok {
		return PathCritical
	}

	return PathStandard
}
