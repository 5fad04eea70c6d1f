package models

import (
	"time"

	"github.com/google/uuid"
)

// EventLog is one append-only audit entry
type EventLog struct {
	ID        int64          `json:"id" gorm:"primaryKey;autoIncrement;column:id"`
	EventID   uuid.UUID      `json:"event_id" gorm:"type:text;not null;column:event_id"`
	Action    string         `json:"action" gorm:"type:text;not null;column:action"`
	Payload   map[string]any `json:"payload" gorm:"type:text;serializer:json;column:payload"`
	CreatedAt time.Time      `json:"created_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:created_at"`
}

// NewEventLog creates an EventLog stamped with the current time
func NewEventLog(eventID uuid.UUID, action string, payload map[string]any) *EventLog {
	if payload == nil {
		payload = map[string]any{}
	}
	return &EventLog{
		EventID:   eventID,
		Action:    action,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}
