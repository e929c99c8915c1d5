package rmap

import (
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// Codec converts keys or values to and from their stored bytes.
// Encode must be deterministic: conditional operations compare encoded bytes.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

// StringCodec stores strings as their raw bytes.
type StringCodec struct{}

func (StringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }
func (StringCodec) Decode(b []byte) (string, error) { return string(b), nil }

// BytesCodec stores byte slices unchanged.
type BytesCodec struct{}

func (BytesCodec) Encode(v []byte) ([]byte, error) {
	if v == nil {
		return []byte{}, nil
	}
	return v, nil
}

func (BytesCodec) Decode(b []byte) ([]byte, error) { return b, nil }

// IntCodec stores integers in decimal, so HINCRBY and friends can operate on
// them from other clients.
type IntCodec struct{}

func (IntCodec) Encode(v int64) ([]byte, error) { return strconv.AppendInt(nil, v, 10), nil }

func (IntCodec) Decode(b []byte) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rmap: decode int: %w", err)
	}
	return n, nil
}

// JSONCodec stores values as JSON. Map keys are sorted so that equal values
// encode to equal bytes.
type JSONCodec[T any] struct{}

var jsonAPI = jsoniter.Config{
	SortMapKeys:            true,
	EscapeHTML:             false,
	ValidateJsonRawMessage: true,
}.Froze()

func (JSONCodec[T]) Encode(v T) ([]byte, error) {
	b, err := jsonAPI.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rmap: encode json: %w", err)
	}
	return b, nil
}

func (JSONCodec[T]) Decode(b []byte) (T, error) {
	var v T
	if err := jsonAPI.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("rmap: decode json: %w", err)
	}
	return v, nil
}
