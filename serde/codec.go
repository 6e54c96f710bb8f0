package serde

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Codec serializes values of type T to byte payloads, and back.
type Codec[T any] Serde[T, []byte]

// NewJSON returns a Codec encoding values of type T as JSON.
//
// The factory creates the instances to decode into,
// which is required when T uses pointer semantics.
func NewJSON[T any](factory func() T) Fused[T, []byte] {
	return Fuse[T, []byte](
		SerializerFunc[T, []byte](func(t T) ([]byte, error) {
			data, err := json.Marshal(t)
			if err != nil {
				return nil, fmt.Errorf("serde.JSON: failed to serialize %T, %w", t, err)
			}

			return data, nil
		}),
		DeserializerFunc[T, []byte](func(data []byte) (T, error) {
			model := factory()

			if err := json.Unmarshal(data, &model); err != nil {
				var zeroValue T
				return zeroValue, fmt.Errorf("serde.JSON: failed to deserialize %T, %w", model, err)
			}

			return model, nil
		}),
	)
}

// NewProto returns a Codec encoding Protobuf messages in their binary format.
func NewProto[T proto.Message](factory func() T) Fused[T, []byte] {
	return newProtoCodec("serde.Proto", factory, proto.Marshal, proto.Unmarshal)
}

// NewProtoJSON returns a Codec encoding Protobuf messages in their canonical JSON format.
func NewProtoJSON[T proto.Message](factory func() T) Fused[T, []byte] {
	return newProtoCodec("serde.ProtoJSON", factory, protojson.Marshal, protojson.Unmarshal)
}

func newProtoCodec[T proto.Message](
	name string,
	factory func() T,
	marshal func(proto.Message) ([]byte, error),
	unmarshal func([]byte, proto.Message) error,
) Fused[T, []byte] {
	return Fuse[T, []byte](
		SerializerFunc[T, []byte](func(t T) ([]byte, error) {
			data, err := marshal(t)
			if err != nil {
				return nil, fmt.Errorf("%s: failed to serialize %T, %w", name, t, err)
			}

			return data, nil
		}),
		DeserializerFunc[T, []byte](func(data []byte) (T, error) {
			model := factory()

			if err := unmarshal(data, model); err != nil {
				var zeroValue T
				return zeroValue, fmt.Errorf("%s: failed to deserialize %T, %w", name, model, err)
			}

			return model, nil
		}),
	)
}
