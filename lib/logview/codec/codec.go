package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// ICodec encodes and decodes values
type ICodec interface {
	// Marshal encodes v
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes data into the value pointed to by v
	Unmarshal(data []byte, v any) error
	// Name returns the name of the codec
	Name() string
}

// Default returns the default codec (msgpack)
func Default() ICodec {
	return NewMsgpack()
}

// ByName returns the codec with the given name ("msgpack" or "json")
func ByName(name string) (ICodec, error) {
	switch strings.ToLower(name) {
	case "", "msgpack":
		return NewMsgpack(), nil
	case "json":
		return NewJSON(), nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// --------------------------------------------------------------------------
// Implementations
// --------------------------------------------------------------------------

type msgpackCodec struct{}

// NewMsgpack returns a msgpack codec
func NewMsgpack() ICodec {
	return msgpackCodec{}
}

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func (msgpackCodec) Name() string {
	return "msgpack"
}

type jsonCodec struct{}

// NewJSON returns a JSON codec
func NewJSON() ICodec {
	return jsonCodec{}
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "json"
}

// --------------------------------------------------------------------------
// Typed Helpers
// --------------------------------------------------------------------------

// Decode decodes data into a new value of type T
func Decode[T any](c ICodec, data []byte) (T, error) {
	var v T
	err := c.Unmarshal(data, &v)
	return v, err
}

// Copy returns a deep copy of v by encoding and decoding it
func Copy[T any](c ICodec, v T) (T, error) {
	data, err := c.Marshal(v)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](c, data)
}

// EncodeAll encodes every value of the slice
func EncodeAll[T any](c ICodec, values []T) ([][]byte, error) {
	encoded := make([][]byte, len(values))
	for i, v := range values {
		data, err := c.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode value %d: %w", i, err)
		}
		encoded[i] = data
	}
	return encoded, nil
}

// DecodeAll decodes every element of the slice into a value of type T
func DecodeAll[T any](c ICodec, data [][]byte) ([]T, error) {
	values := make([]T, len(data))
	for i, d := range data {
		v, err := Decode[T](c, d)
		if err != nil {
			return nil, fmt.Errorf("failed to decode value %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}
