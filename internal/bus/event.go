package bus

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the message envelope carried on every topic. Events are immutable
// once constructed; downstream publishes copy the correlation id forward.
type Event struct {
	Topic         string
	Type          string
	Payload       map[string]any
	UserID        string
	CorrelationID string
	Timestamp     time.Time
}

// wireEvent is the JSON shape. User and correlation ids are pointers so that
// absent ids round-trip as null rather than being dropped or coerced.
type wireEvent struct {
	Topic         string         `json:"topic"`
	Type          string         `json:"type"`
	Payload       map[string]any `json:"payload"`
	UserID        *string        `json:"user_id"`
	CorrelationID *string        `json:"correlation_id"`
	Timestamp     time.Time      `json:"timestamp"`
}

// MarshalJSON encodes the event, mapping empty ids to null.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		Topic:     e.Topic,
		Type:      e.Type,
		Payload:   e.Payload,
		Timestamp: e.Timestamp,
	}
	if e.UserID != "" {
		w.UserID = &e.UserID
	}
	if e.CorrelationID != "" {
		w.CorrelationID = &e.CorrelationID
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the event, mapping null ids to the empty string.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.Topic = w.Topic
	e.Type = w.Type
	e.Payload = w.Payload
	e.Timestamp = w.Timestamp
	e.UserID = ""
	if w.UserID != nil {
		e.UserID = *w.UserID
	}
	e.CorrelationID = ""
	if w.CorrelationID != nil {
		e.CorrelationID = *w.CorrelationID
	}
	return nil
}

// Encode serializes the event for the wire.
func (e Event) Encode() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return raw, nil
}

// Decode parses a wire message back into an Event.
func Decode(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}
