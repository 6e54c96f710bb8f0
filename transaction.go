package projections

import (
	"time"

	"github.com/get-eventually/go-projections/checkpoint"
)

// Headers contains data related to a Transaction or an Envelope that is not
// functional for the Projectors, but offers supporting information to
// provide additional context (e.g. correlation ids, user ids).
type Headers map[string]any

// With returns a new Headers reference holding the value addressed using
// the specified key.
func (h Headers) With(key string, value any) Headers {
	if h == nil {
		h = make(Headers, 1)
	}

	h[key] = value

	return h
}

// Envelope carries a single event, in the form of an opaque Body value,
// together with its Headers.
//
// Routing to Projectors is done on the concrete type of the Body.
type Envelope struct {
	Body    any
	Headers Headers
}

// Transaction represents a set of Envelopes that have been atomically
// committed to the Event Store, at a single Checkpoint.
//
// A Transaction should be considered immutable once produced.
type Transaction struct {
	ID         string
	StreamID   string
	Checkpoint checkpoint.Token
	TimeStamp  time.Time
	Headers    Headers
	Events     []Envelope
}
