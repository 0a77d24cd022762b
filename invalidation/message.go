package invalidation

import (
	"encoding/json"
	"fmt"
)

// Kind identifies one of the four closed invalidation message variants.
// Unknown kinds on the wire are rejected, never silently accepted.
type Kind string

const (
	KindRemove        Kind = "Remove"
	KindUpdate        Kind = "Update"
	KindRemovePattern Kind = "RemovePattern"
	KindRemoveBulk    Kind = "RemoveBulk"
)

// Message is the tagged union published on the bus; the audit stream
// receives an AuditRecord summary of it instead. Exactly one of the
// kind-specific field groups is
// meaningful for any given Kind.
type Message struct {
	Kind Kind

	Key     string          // Remove, Update
	Value   json.RawMessage // Update
	TTLSecs *int64          // Update, optional

	Pattern string // RemovePattern

	Keys []string // RemoveBulk
}

// Remove builds a Remove{key} message.
func Remove(key string) Message {
	return Message{Kind: KindRemove, Key: key}
}

// Update builds an Update{key, value, ttl?} message. value must already be
// the codec-serialized bytes for the cached value, re-wrapped as a raw
// JSON payload so arbitrary values round-trip through the wire format.
func Update(key string, value json.RawMessage, ttlSecs *int64) Message {
	return Message{Kind: KindUpdate, Key: key, Value: value, TTLSecs: ttlSecs}
}

// RemovePattern builds a RemovePattern{pattern} message.
func RemovePattern(pattern string) Message {
	return Message{Kind: KindRemovePattern, Pattern: pattern}
}

// RemoveBulk builds a RemoveBulk{keys} message.
func RemoveBulk(keys []string) Message {
	return Message{Kind: KindRemoveBulk, Keys: keys}
}

type wireMessage struct {
	Type    Kind            `json:"type"`
	Key     string          `json:"key,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	TTLSecs *int64          `json:"ttl_secs,omitempty"`
	Pattern string          `json:"pattern,omitempty"`
	Keys    []string        `json:"keys,omitempty"`
}

// MarshalJSON encodes m as a tagged-union object keyed on "type".
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireMessage{
		Type:    m.Kind,
		Key:     m.Key,
		Value:   m.Value,
		TTLSecs: m.TTLSecs,
		Pattern: m.Pattern,
		Keys:    m.Keys,
	})
}

// UnmarshalJSON decodes m, rejecting any "type" outside the four closed
// variants.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("invalidation: decode message: %w", err)
	}

	switch w.Type {
	case KindRemove, KindUpdate, KindRemovePattern, KindRemoveBulk:
	default:
		return fmt.Errorf("invalidation: unknown message type %q", w.Type)
	}

	m.Kind = w.Type
	m.Key = w.Key
	m.Value = w.Value
	m.TTLSecs = w.TTLSecs
	m.Pattern = w.Pattern
	m.Keys = w.Keys
	return nil
}

// Encode serializes m to its wire JSON form.
func Encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("invalidation: encode: %w", err)
	}
	return b, nil
}

// Decode parses a wire-format message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}
