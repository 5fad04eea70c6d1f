package models

import (
	"time"

	"github.com/google/uuid"
)

// Submission represents one fan-uploaded track tied to an event
type Submission struct {
	ID            uuid.UUID        `json:"id" gorm:"type:text;primaryKey;column:id"`
	EventID       uuid.UUID        `json:"event_id" gorm:"type:text;not null;column:event_id"`
	ArtistName    string           `json:"artist_name" gorm:"type:text;not null;column:artist_name"`
	TrackTitle    string           `json:"track_title" gorm:"type:text;not null;column:track_title"`
	FileURL       *string          `json:"file_url" gorm:"type:text;column:file_url"`
	FileSizeBytes *int64           `json:"file_size_bytes,omitempty" gorm:"type:integer;column:file_size_bytes"`
	TipCents      int              `json:"tip_cents" gorm:"type:integer;not null;default:0;column:tip_cents"`
	Status        SubmissionStatus `json:"status" gorm:"type:text;not null;default:pending;column:status"`
	QueuePosition *int             `json:"queue_position" gorm:"type:integer;column:queue_position"`
	CreatedAt     time.Time        `json:"created_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:created_at"`
	UpdatedAt     time.Time        `json:"updated_at" gorm:"type:datetime;default:CURRENT_TIMESTAMP;column:updated_at"`
}

// NewSubmission creates a pending Submission with generated UUID and timestamps
func NewSubmission(eventID uuid.UUID, artistName, trackTitle, fileURL string) *Submission {
	now := time.Now().UTC()
	url := fileURL
	return &Submission{
		ID:         uuid.New(),
		EventID:    eventID,
		ArtistName: artistName,
		TrackTitle: trackTitle,
		FileURL:    &url,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a copy that shares no pointers with s
func (s *Submission) Clone() *Submission {
	c := *s
	if s.FileURL != nil {
		v := *s.FileURL
		c.FileURL = &v
	}
	if s.FileSizeBytes != nil {
		v := *s.FileSizeBytes
		c.FileSizeBytes = &v
	}
	if s.QueuePosition != nil {
		v := *s.QueuePosition
		c.QueuePosition = &v
	}
	return &c
}

// Position returns the queue position or 0 when unset
func (s *Submission) Position() int {
	if s.QueuePosition == nil {
		return 0
	}
	return *s.QueuePosition
}
