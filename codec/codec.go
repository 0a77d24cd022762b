// Package codec serializes typed values to the byte strings tiers and the
// invalidation bus actually store and transmit.
package codec

import "fmt"

// Codec converts Go values to and from bytes. Implementations must be
// deterministic enough that Unmarshal(Marshal(v)) round-trips for every
// type they support.
type Codec interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	Name() string
}

// MarshalTyped is a small generic convenience wrapper used by the manager's
// typed operations (SetWithStrategy[T], GetOrCompute[T], UpdateCache[T],
// SetWithBroadcast[T]).
func MarshalTyped[T any](c Codec, v T) ([]byte, error) {
	b, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec %s: marshal: %w", c.Name(), err)
	}
	return b, nil
}

// UnmarshalTyped decodes data into a fresh T using c.
func UnmarshalTyped[T any](c Codec, data []byte) (T, error) {
	var v T
	if err := c.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("codec %s: unmarshal: %w", c.Name(), err)
	}
	return v, nil
}
