package models

import (
	"time"

	"github.com/google/uuid"
)

// NowPlaying is the per-event pointer to the active submission.
// SubmissionID is nil when nothing is playing.
type NowPlaying struct {
	EventID      uuid.UUID  `json:"event_id" gorm:"type:text;primaryKey;column:event_id"`
	SubmissionID *uuid.UUID `json:"submission_id" gorm:"type:text;column:submission_id"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:updated_at"`

	// Populated on read, not stored in database
	Submission *Submission `json:"submission,omitempty" gorm:"-"`
}

// TableName overrides the pluralized default
func (NowPlaying) TableName() string {
	return "now_playing"
}
