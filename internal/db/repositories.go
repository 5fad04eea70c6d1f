package db

import "gorm.io/gorm"

// Repositories provides access to all database repositories
type Repositories struct {
	Events      *EventRepository
	Submissions *SubmissionRepository
	NowPlaying  *NowPlayingRepository
	EventLogs   *EventLogRepository
}

// NewRepositories creates a new repository collection
func NewRepositories(db *DB) *Repositories {
	return &Repositories{
		Events:      NewEventRepository(db),
		Submissions: NewSubmissionRepository(db),
		NowPlaying:  NewNowPlayingRepository(db),
		EventLogs:   NewEventLogRepository(db),
	}
}

// WithTx returns a repository collection scoped to the given transaction
func (r *Repositories) WithTx(tx *gorm.DB) *Repositories {
	return NewRepositories(WithTx(tx))
}
