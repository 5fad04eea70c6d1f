package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stwalsh4118/lecturesfrom/internal/models"
	"gorm.io/gorm/clause"
)

// NowPlayingRepository handles the per-event now playing pointer
type NowPlayingRepository struct {
	db *DB
}

// NewNowPlayingRepository creates a new now playing repository
func NewNowPlayingRepository(db *DB) *NowPlayingRepository {
	return &NowPlayingRepository{db: db}
}

// Get retrieves the pointer row for an event
func (r *NowPlayingRepository) Get(ctx context.Context, eventID uuid.UUID) (*models.NowPlaying, error) {
	var np models.NowPlaying
	result := r.db.WithContext(ctx).Where("event_id = ?", eventID.String()).First(&np)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &np, nil
}

// Upsert creates or replaces the pointer row for an event
func (r *NowPlayingRepository) Upsert(ctx context.Context, np *models.NowPlaying) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"submission_id", "updated_at"}),
		}).
		Create(np)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert now playing: %w", MapGormError(result.Error))
	}
	return nil
}
