// Package db provides database connection management and repository interfaces.
package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stwalsh4118/lecturesfrom/internal/models"
)

// EventRepository handles database operations for events
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event into the database
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	result := r.db.WithContext(ctx).Create(event)
	if result.Error != nil {
		return fmt.Errorf("failed to create event: %w", MapGormError(result.Error))
	}
	return nil
}

// GetByID retrieves an event by its UUID
func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&event)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &event, nil
}

// GetByToken retrieves an event by its public submit token
func (r *EventRepository) GetByToken(ctx context.Context, token string) (*models.Event, error) {
	var event models.Event
	result := r.db.WithContext(ctx).Where("token = ?", token).First(&event)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &event, nil
}

// List retrieves all events ordered by creation date (newest first)
func (r *EventRepository) List(ctx context.Context) ([]*models.Event, error) {
	var events []*models.Event
	result := r.db.WithContext(ctx).Order("created_at DESC").Find(&events)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list events: %w", MapGormError(result.Error))
	}
	return events, nil
}

// SetLive toggles the live flag of an event
func (r *EventRepository) SetLive(ctx context.Context, id uuid.UUID, live bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.Event{}).
		Where("id = ?", id.String()).
		Update("is_live", live)
	if result.Error != nil {
		return fmt.Errorf("failed to update event: %w", MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
