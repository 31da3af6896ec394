package codec

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONCodec encodes and decodes a record type T as indented JSON.
type JSONCodec[T any] struct{}

// NewJSONCodec creates a JSON codec for T.
func NewJSONCodec[T any]() *JSONCodec[T] {
	return &JSONCodec[T]{}
}

// Format returns the codec format identifier.
func (c *JSONCodec[T]) Format() string { return "json" }

// Decode reads a JSON-encoded T.
func (c *JSONCodec[T]) Decode(r io.Reader) (*T, error) {
	var v T
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return nil, fmt.Errorf("codec: decode json: %w", err)
	}
	return &v, nil
}

// Encode writes v as indented JSON.
func (c *JSONCodec[T]) Encode(w io.Writer, v *T) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("codec: encode json: %w", err)
	}
	return nil
}
