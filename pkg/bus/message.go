package bus

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType tags a bus message with the processing path it belongs to
type EventType string

const (
	EventSimpleCommand EventType = "Simple_Command"
	EventSimpleMessage EventType = "Simple_Message"
)

// Attribute names carried alongside every message
const (
	AttributeEventType = "event_type"
	AttributeRequestID = "request_id"
)

// Message is a single bus delivery
type Message struct {
	ID         string            `json:"id"`
	EventType  EventType         `json:"event_type"`
	Payload    json.RawMessage   `json:"payload"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Publisher hands messages to the bus
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// NewMessage encodes v as the payload of a message tagged with eventType
func NewMessage(eventType EventType, v any) (Message, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Message{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Message{
		ID:        NewID(),
		EventType: eventType,
		Payload:   payload,
	}, nil
}

// Valid reports whether t is one of the known event types
func (t EventType) Valid() bool {
	return t == EventSimpleCommand || t == EventSimpleMessage
}

// Decode unmarshals the payload into v
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.EventType, err)
	}
	return nil
}

// WithAttribute returns a copy of m with the attribute set
func (m Message) WithAttribute(key, value string) Message {
	attrs := make(map[string]string, len(m.Attributes)+1)
	for k, v := range m.Attributes {
		attrs[k] = v
	}
	attrs[key] = value
	m.Attributes = attrs
	return m
}

// NewID generates a ULID string for message and request identifiers
func NewID() string {
	id, _ := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	return id.String()
}

// envelope is the SNS message-structure wrapper, {"default": "<payload>"}
type envelope struct {
	Default string `json:"default"`
}

func wrap(payload []byte) (string, error) {
	data, err := json.Marshal(envelope{Default: string(payload)})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unwrap returns the inner payload if raw is an envelope, else raw unchanged
func unwrap(raw string) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil || len(fields) != 1 {
		return json.RawMessage(raw)
	}
	inner, ok := fields["default"]
	if !ok {
		return json.RawMessage(raw)
	}
	var s string
	if err := json.Unmarshal(inner, &s); err != nil {
		return json.RawMessage(raw)
	}
	return json.RawMessage(s)
}
