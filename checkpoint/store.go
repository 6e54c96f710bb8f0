package checkpoint

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrInvalidName is returned by a Store when the checkpoint name is empty.
var ErrInvalidName = errors.New("checkpoint: name is required")

// Store persists a single checkpoint Token per logical name
// (usually, the name of a durable dispatcher).
//
// Get should return Beginning, and no error, when no Token has been
// stored yet for the specified name.
type Store interface {
	Get(ctx context.Context, name string) (Token, error)
	Put(ctx context.Context, name string, token Token) error
}

// ValidateName trims the specified checkpoint name and returns
// ErrInvalidName if nothing is left.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}

	return name, nil
}

var _ Store = new(InMemory)

// InMemory is a thread-safe, in-memory checkpoint.Store implementation.
type InMemory struct {
	mx     sync.RWMutex
	tokens map[string]Token
}

// NewInMemory creates a new checkpoint.InMemory store.
func NewInMemory() *InMemory {
	return &InMemory{tokens: make(map[string]Token)}
}

// Get returns the last Token stored for the specified name.
func (s *InMemory) Get(ctx context.Context, name string) (Token, error) {
	if err := ctx.Err(); err != nil {
		return Beginning, err
	}

	name, err := ValidateName(name)
	if err != nil {
		return Beginning, err
	}

	s.mx.RLock()
	defer s.mx.RUnlock()

	return s.tokens[name], nil
}

// Put stores the Token for the specified name, replacing any previous value.
func (s *InMemory) Put(ctx context.Context, name string, token Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name, err := ValidateName(name)
	if err != nil {
		return err
	}

	s.mx.Lock()
	defer s.mx.Unlock()

	s.tokens[name] = token

	return nil
}

// NopStore is a Store that never persists anything,
// and always starts from the Beginning.
var NopStore = Fixed{StartingFrom: Beginning}

// Fixed is a Store that always returns the same starting Token
// and discards every write.
//
// Useful for volatile dispatchers, which should not survive restarts.
type Fixed struct{ StartingFrom Token }

// Get returns the fixed starting Token.
func (f Fixed) Get(context.Context, string) (Token, error) { return f.StartingFrom, nil }

// Put is a no-op.
func (Fixed) Put(context.Context, string, Token) error { return nil }
