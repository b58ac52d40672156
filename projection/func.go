package projection

import "github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"

type funcProjection struct {
	name       string
	eventTypes map[string]struct{}
	apply      func(View, eventstore.Event) error
}

// New builds a Projection from a function. With no event types it handles every event.
func New(name string, apply func(View, eventstore.Event) error, eventTypes ...string) Projection {
	types := make(map[string]struct{}, len(eventTypes))
	for _, eventType := range eventTypes {
		types[eventType] = struct{}{}
	}

	return &funcProjection{name: name, eventTypes: types, apply: apply}
}

func (p *funcProjection) Name() string {
	return p.name
}

func (p *funcProjection) Handles(eventType string) bool {
	if len(p.eventTypes) == 0 {
		return true
	}

	_, ok := p.eventTypes[eventType]

	return ok
}

func (p *funcProjection) Apply(view View, event eventstore.Event) error {
	return p.apply(view, event)
}
