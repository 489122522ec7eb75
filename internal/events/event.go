// Package events defines build lifecycle events and their publishers.
package events

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Event is a build lifecycle notification.
type Event interface {
	BuildID() string
	Type() string
	Timestamp() time.Time
	Payload() []byte
}

// BaseEvent provides a default implementation of Event.
type BaseEvent struct {
	EventBuildID   string
	EventType      string
	EventTimestamp time.Time
	EventPayload   []byte
}

func (e *BaseEvent) BuildID() string      { return e.EventBuildID }
func (e *BaseEvent) Type() string         { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte      { return e.EventPayload }

// Event type names.
const (
	TypeBuildStarted   = "BuildStarted"
	TypeStageCompleted = "StageCompleted"
	TypeBuildCompleted = "BuildCompleted"
	TypeBuildFailed    = "BuildFailed"
)

// envelope is the wire form published to subscribers.
type envelope struct {
	BuildID   string          `json:"build_id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Encode renders an event as a JSON envelope.
func Encode(e Event) ([]byte, error) {
	payload := e.Payload()
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return json.Marshal(envelope{
		BuildID:   e.BuildID(),
		Type:      e.Type(),
		Timestamp: e.Timestamp(),
		Payload:   payload,
	})
}

// Decode parses an envelope produced by Encode.
func Decode(data []byte) (*BaseEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.WrapError(err, errors.CategoryEvents, "decode event").Build()
	}
	return &BaseEvent{
		EventBuildID:   env.BuildID,
		EventType:      env.Type,
		EventTimestamp: env.Timestamp,
		EventPayload:   env.Payload,
	}, nil
}

func newBase(buildID, eventType string, at time.Time, payload any) (BaseEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return BaseEvent{}, errors.WrapError(err, errors.CategoryEvents, "marshal "+eventType+" payload").
			WithContext("build_id", buildID).
			Build()
	}
	return BaseEvent{
		EventBuildID:   buildID,
		EventType:      eventType,
		EventTimestamp: at,
		EventPayload:   data,
	}, nil
}
