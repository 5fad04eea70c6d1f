// Package notify fans committed queue changes out to subscribers of one event.
package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/lecturesfrom/internal/logger"
)

// Entity names the kind of row a change refers to
type Entity string

// Change entities
const (
	EntitySubmission Entity = "submission"
	EntityNowPlaying Entity = "now_playing"
)

// Op names the kind of mutation
type Op string

// Change operations
const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
)

// Change is one committed mutation as seen by subscribers
type Change struct {
	EventID uuid.UUID       `json:"event_id"`
	Seq     uint64          `json:"seq"`
	Entity  Entity          `json:"entity"`
	Op      Op              `json:"op"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// NewChange builds a change with a JSON encoded payload. Seq is assigned on publish.
func NewChange(eventID uuid.UUID, entity Entity, op Op, payload any) Change {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Error().
			Err(err).
			Str("event_id", eventID.String()).
			Str("entity", string(entity)).
			Msg("Failed to encode change payload")
		data = json.RawMessage("null")
	}
	return Change{
		EventID: eventID,
		Entity:  entity,
		Op:      op,
		Payload: data,
	}
}
