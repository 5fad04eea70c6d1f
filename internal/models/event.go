package models

import (
	"time"

	"github.com/google/uuid"
)

// Event represents one live session with its own queue and submit token
type Event struct {
	ID        uuid.UUID  `json:"id" gorm:"type:text;primaryKey;column:id"`
	Name      string     `json:"name" gorm:"type:text;not null;column:name" validate:"required,min=1,max=255"`
	Token     string     `json:"token" gorm:"type:text;not null;uniqueIndex;column:token" validate:"required"`
	HostID    *string    `json:"host_id,omitempty" gorm:"type:text;column:host_id"`
	IsLive    bool       `json:"is_live" gorm:"type:integer;not null;default:0;column:is_live"`
	StartsAt  *time.Time `json:"starts_at,omitempty" gorm:"type:datetime;column:starts_at"`
	CreatedAt time.Time  `json:"created_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:created_at"`
}

// NewEvent creates a new Event with generated UUID and timestamp
func NewEvent(name, token string) *Event {
	return &Event{
		ID:        uuid.New(),
		Name:      name,
		Token:     token,
		CreatedAt: time.Now().UTC(),
	}
}
