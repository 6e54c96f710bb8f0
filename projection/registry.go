package projection

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// ErrDuplicateProjector is returned by Registry.Register when
// a Projector with the same name has been registered already.
var ErrDuplicateProjector = errors.New("projection: projector already registered")

type registration struct {
	name    string
	factory Factory
	types   []reflect.Type
}

func (r *registration) handles(t reflect.Type) bool {
	for _, candidate := range r.types {
		if candidate == t {
			return true
		}

		if candidate.Kind() == reflect.Interface && t.Implements(candidate) {
			return true
		}
	}

	return false
}

// Registry holds the Projectors known to a Dispatcher, together with
// the event types each one of them is capable of handling.
//
// Registry is safe for concurrent use.
type Registry struct {
	mx            sync.RWMutex
	registrations []*registration
	matches       map[reflect.Type][]*registration
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{matches: make(map[reflect.Type][]*registration)}
}

// Register adds a Projector under the specified name, handling the events
// of the same type as the values specified.
//
// Use a nil pointer to an interface, e.g. (*MyEvent)(nil),
// to handle all the events implementing that interface.
//
// Projectors matching the same event are invoked in registration order.
func (r *Registry) Register(name string, factory Factory, events ...any) error {
	name = strings.TrimSpace(name)

	if name == "" {
		return fmt.Errorf("projection.Registry: projector name is required")
	}

	if factory == nil {
		return fmt.Errorf("projection.Registry: factory is required for projector '%s'", name)
	}

	if len(events) == 0 {
		return fmt.Errorf("projection.Registry: projector '%s' must handle at least one event", name)
	}

	types := make([]reflect.Type, 0, len(events))

	for _, event := range events {
		t := reflect.TypeOf(event)
		if t == nil {
			return fmt.Errorf("projection.Registry: nil event type for projector '%s'", name)
		}

		if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Interface {
			t = t.Elem()
		}

		types = append(types, t)
	}

	r.mx.Lock()
	defer r.mx.Unlock()

	for _, existing := range r.registrations {
		if existing.name == name {
			return fmt.Errorf("projection.Registry: failed to register '%s', %w", name, ErrDuplicateProjector)
		}
	}

	r.registrations = append(r.registrations, &registration{
		name:    name,
		factory: factory,
		types:   types,
	})

	clear(r.matches)

	return nil
}

// Names returns the names of the registered Projectors, in registration order.
func (r *Registry) Names() []string {
	r.mx.RLock()
	defer r.mx.RUnlock()

	names := make([]string, 0, len(r.registrations))
	for _, reg := range r.registrations {
		names = append(names, reg.name)
	}

	return names
}

// Match returns the names of the Projectors capable of handling the event,
// in registration order.
func (r *Registry) Match(event any) []string {
	matches := r.match(event)

	names := make([]string, 0, len(matches))
	for _, reg := range matches {
		names = append(names, reg.name)
	}

	return names
}

func (r *Registry) match(event any) []*registration {
	t := reflect.TypeOf(event)
	if t == nil {
		return nil
	}

	r.mx.RLock()
	matches, ok := r.matches[t]
	r.mx.RUnlock()

	if ok {
		return matches
	}

	r.mx.Lock()
	defer r.mx.Unlock()

	matches = nil

	for _, reg := range r.registrations {
		if reg.handles(t) {
			matches = append(matches, reg)
		}
	}

	r.matches[t] = matches

	return matches
}
