package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

// ErrDuplicateCommandType is returned when two handlers claim the same command type.
var ErrDuplicateCommandType = errors.New("command type already registered")

// Handler processes commands. *Processor satisfies it for any state type.
type Handler interface {
	Handle(ctx context.Context, cmd Command) (Result, error)
}

// Dispatcher routes commands to the handler registered for their command type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds handler to every given command type.
func (d *Dispatcher) Register(handler Handler, commandTypes ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, commandType := range commandTypes {
		if commandType == "" {
			return ErrEmptyCommandType
		}

		if _, exists := d.handlers[commandType]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateCommandType, commandType)
		}
	}

	for _, commandType := range commandTypes {
		d.handlers[commandType] = handler
	}

	return nil
}

// Handle forwards cmd. Unknown command types are validation errors.
func (d *Dispatcher) Handle(ctx context.Context, cmd Command) (Result, error) {
	d.mu.RLock()
	handler, ok := d.handlers[cmd.CommandType]
	d.mu.RUnlock()

	if !ok {
		return Result{}, eventstore.NewDomainViolation(fmt.Sprintf("unknown commandType %q", cmd.CommandType))
	}

	return handler.Handle(ctx, cmd)
}

// CommandTypes lists the registered command types in lexical order.
func (d *Dispatcher) CommandTypes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	types := make([]string, 0, len(d.handlers))
	for commandType := range d.handlers {
		types = append(types, commandType)
	}

	sort.Strings(types)

	return types
}
