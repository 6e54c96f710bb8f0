package serde_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/get-eventually/go-projections/serde"
)

type accountOpened struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
}

type accountClosed struct {
	ID string `json:"id"`
}

func newRegistry(t *testing.T) *serde.Registry {
	t.Helper()

	registry := serde.NewRegistry()

	require.NoError(t, serde.Register[accountOpened](registry, "AccountOpened",
		serde.NewJSON(func() accountOpened { return accountOpened{} })))

	require.NoError(t, serde.Register[*accountClosed](registry, "AccountClosed",
		serde.NewJSON(func() *accountClosed { return new(accountClosed) })))

	require.NoError(t, serde.Register[*wrapperspb.StringValue](registry, "Note",
		serde.NewProto(func() *wrapperspb.StringValue { return new(wrapperspb.StringValue) })))

	require.NoError(t, serde.Register[*wrapperspb.Int64Value](registry, "Counter",
		serde.NewProtoJSON(func() *wrapperspb.Int64Value { return new(wrapperspb.Int64Value) })))

	return registry
}

func TestRegistry(t *testing.T) {
	registry := newRegistry(t)

	t.Run("json values", func(t *testing.T) {
		payload, err := registry.Serialize(accountOpened{ID: "a", Owner: "alice"})
		require.NoError(t, err)

		assert.Equal(t, "AccountOpened", payload.Type)
		assert.JSONEq(t, `{"id":"a","owner":"alice"}`, string(payload.Data))

		body, err := registry.Deserialize(payload)
		require.NoError(t, err)
		assert.Equal(t, accountOpened{ID: "a", Owner: "alice"}, body)
	})

	t.Run("json pointers", func(t *testing.T) {
		payload, err := registry.Serialize(&accountClosed{ID: "a"})
		require.NoError(t, err)

		body, err := registry.Deserialize(payload)
		require.NoError(t, err)
		assert.Equal(t, &accountClosed{ID: "a"}, body)
	})

	t.Run("protobuf messages", func(t *testing.T) {
		payload, err := registry.Serialize(wrapperspb.String("hello"))
		require.NoError(t, err)
		assert.Equal(t, "Note", payload.Type)

		body, err := registry.Deserialize(payload)
		require.NoError(t, err)
		assert.True(t, proto.Equal(wrapperspb.String("hello"), body.(proto.Message)))
	})

	t.Run("protobuf json messages", func(t *testing.T) {
		payload, err := registry.Serialize(wrapperspb.Int64(42))
		require.NoError(t, err)
		assert.JSONEq(t, `"42"`, string(payload.Data))

		body, err := registry.Deserialize(payload)
		require.NoError(t, err)
		assert.True(t, proto.Equal(wrapperspb.Int64(42), body.(proto.Message)))
	})

	t.Run("unknown types", func(t *testing.T) {
		_, err := registry.Serialize(accountClosed{ID: "not a pointer"})
		assert.ErrorIs(t, err, serde.ErrUnknownType)

		_, err = registry.Serialize(nil)
		assert.ErrorIs(t, err, serde.ErrUnknownType)

		_, err = registry.Deserialize(serde.Payload{Type: "Unknown"})
		assert.ErrorIs(t, err, serde.ErrUnknownType)
	})

	t.Run("malformed data", func(t *testing.T) {
		_, err := registry.Deserialize(serde.Payload{Type: "AccountOpened", Data: []byte("{")})
		assert.Error(t, err)
	})

	t.Run("type names", func(t *testing.T) {
		name, ok := registry.TypeName(&accountClosed{})
		assert.True(t, ok)
		assert.Equal(t, "AccountClosed", name)

		_, ok = registry.TypeName(42)
		assert.False(t, ok)
	})

	t.Run("duplicate registrations", func(t *testing.T) {
		err := serde.Register[accountClosed](registry, "AccountOpened",
			serde.NewJSON(func() accountClosed { return accountClosed{} }))
		assert.Error(t, err)

		err = serde.Register[accountOpened](registry, "Other",
			serde.NewJSON(func() accountOpened { return accountOpened{} }))
		assert.Error(t, err)

		assert.Panics(t, func() {
			serde.MustRegister[accountOpened](registry, "",
				serde.NewJSON(func() accountOpened { return accountOpened{} }))
		})
	})
}
