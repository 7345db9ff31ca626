package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventVersion is the envelope schema version stamped on new events. Decode
// refuses envelopes from a newer schema.
const EventVersion = 1

// Aggregate names the entity an event is about. Its ID is the partition key,
// so every event for one aggregate lands on one partition in order.
type Aggregate struct {
	ID   string
	Type string
}

// Event is the JSON envelope every published message carries.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEvent stamps a fresh envelope around data.
func NewEvent(eventType string, agg Aggregate, source string, data any) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   agg.ID,
		AggregateType: agg.Type,
		Version:       EventVersion,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          payload,
	}, nil
}

// WithCorrelationID ties the event to the request that caused it.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// WithMetadata sets a metadata entry. Empty values are dropped.
func (e *Event) WithMetadata(key, value string) *Event {
	if value == "" {
		return e
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]string, 1)
	}
	e.Metadata[key] = value
	return e
}

// Key is the partition key.
func (e *Event) Key() []byte {
	return []byte(e.AggregateID)
}

// Encode serializes the envelope.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an envelope written by Encode.
func Decode(b []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch {
	case e.EventID == "" || e.EventType == "":
		return nil, errors.New("decode event: event_id and event_type are required")
	case e.Version > EventVersion:
		return nil, fmt.Errorf("decode event %s: unsupported version %d", e.EventID, e.Version)
	}
	return &e, nil
}

// DecodeData unmarshals the payload into target.
func (e *Event) DecodeData(target any) error {
	if err := json.Unmarshal(e.Data, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}
