package serde

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrUnknownType is returned by a Registry for event bodies,
// or type names, that have not been registered.
var ErrUnknownType = errors.New("serde: unknown type")

// Payload is the stored form of an event body: the name of its
// registered type, and the serialized data.
type Payload struct {
	Type string
	Data []byte
}

type entry struct {
	name        string
	serialize   func(any) ([]byte, error)
	deserialize func([]byte) (any, error)
}

var _ Serde[any, Payload] = new(Registry)

// Registry maps event bodies of registered types to Payloads, and back,
// using the Codec registered for each type.
//
// Registry is safe for concurrent use.
type Registry struct {
	mx     sync.RWMutex
	byName map[string]entry
	byType map[reflect.Type]entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]entry),
		byType: make(map[reflect.Type]entry),
	}
}

// Register adds the type T to the Registry under the specified name,
// using the Codec to serialize and deserialize its values.
func Register[T any](r *Registry, name string, codec Codec[T]) error {
	if name == "" {
		return fmt.Errorf("serde.Register: type name is required")
	}

	t := reflect.TypeOf((*T)(nil)).Elem()

	r.mx.Lock()
	defer r.mx.Unlock()

	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("serde.Register: type name '%s' already registered", name)
	}

	if existing, ok := r.byType[t]; ok {
		return fmt.Errorf("serde.Register: type %s already registered as '%s'", t, existing.name)
	}

	e := entry{
		name: name,
		serialize: func(body any) ([]byte, error) {
			return codec.Serialize(body.(T)) //nolint:forcetypeassert // Looked up by type.
		},
		deserialize: func(data []byte) (any, error) {
			return codec.Deserialize(data)
		},
	}

	r.byName[name] = e
	r.byType[t] = e

	return nil
}

// MustRegister is like Register, but panics on failure.
// Useful to build a Registry at initialization time.
func MustRegister[T any](r *Registry, name string, codec Codec[T]) {
	if err := Register(r, name, codec); err != nil {
		panic(err)
	}
}

// Serialize implements the serde.Serializer interface.
func (r *Registry) Serialize(body any) (Payload, error) {
	r.mx.RLock()
	e, ok := r.byType[reflect.TypeOf(body)]
	r.mx.RUnlock()

	if !ok {
		return Payload{}, fmt.Errorf("serde.Registry: failed to serialize %T, %w", body, ErrUnknownType)
	}

	data, err := e.serialize(body)
	if err != nil {
		return Payload{}, fmt.Errorf("serde.Registry: failed to serialize '%s', %w", e.name, err)
	}

	return Payload{Type: e.name, Data: data}, nil
}

// Deserialize implements the serde.Deserializer interface.
func (r *Registry) Deserialize(payload Payload) (any, error) {
	r.mx.RLock()
	e, ok := r.byName[payload.Type]
	r.mx.RUnlock()

	if !ok {
		return nil, fmt.Errorf("serde.Registry: failed to deserialize '%s', %w", payload.Type, ErrUnknownType)
	}

	body, err := e.deserialize(payload.Data)
	if err != nil {
		return nil, fmt.Errorf("serde.Registry: failed to deserialize '%s', %w", payload.Type, err)
	}

	return body, nil
}

// TypeName returns the name the type of the body has been registered with.
func (r *Registry) TypeName(body any) (string, bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()

	e, ok := r.byType[reflect.TypeOf(body)]

	return e.name, ok
}
