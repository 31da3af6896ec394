package codec

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLCodec encodes and decodes a record type T as YAML.
type YAMLCodec[T any] struct{}

// NewYAMLCodec creates a YAML codec for T.
func NewYAMLCodec[T any]() *YAMLCodec[T] {
	return &YAMLCodec[T]{}
}

// Format returns the codec format identifier.
func (c *YAMLCodec[T]) Format() string { return "yaml" }

// Decode reads a YAML-encoded T.
func (c *YAMLCodec[T]) Decode(r io.Reader) (*T, error) {
	var v T
	if err := yaml.NewDecoder(r).Decode(&v); err != nil {
		return nil, fmt.Errorf("codec: decode yaml: %w", err)
	}
	return &v, nil
}

// Encode writes v as YAML with two-space indentation.
func (c *YAMLCodec[T]) Encode(w io.Writer, v *T) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("codec: encode yaml: %w", err)
	}
	return nil
}
