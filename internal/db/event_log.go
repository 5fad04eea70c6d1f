package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/lecturesfrom/internal/models"
)

// EventLogRepository handles the append-only audit trail
type EventLogRepository struct {
	db *DB
}

// NewEventLogRepository creates a new event log repository
func NewEventLogRepository(db *DB) *EventLogRepository {
	return &EventLogRepository{db: db}
}

// Create appends an entry
func (r *EventLogRepository) Create(ctx context.Context, entry *models.EventLog) error {
	result := r.db.WithContext(ctx).Create(entry)
	if result.Error != nil {
		return fmt.Errorf("failed to create event log: %w", MapGormError(result.Error))
	}
	return nil
}

// ListByEvent retrieves entries for an event, newest first. When beforeID is
// positive only entries older than it are returned, so the last ID of one
// page is the cursor for the next.
func (r *EventLogRepository) ListByEvent(ctx context.Context, eventID uuid.UUID, limit int, beforeID int64) ([]*models.EventLog, error) {
	var entries []*models.EventLog
	query := r.db.WithContext(ctx).
		Where("event_id = ?", eventID.String())
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}
	query = query.Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	result := query.Find(&entries)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list event logs: %w", MapGormError(result.Error))
	}
	return entries, nil
}

// DeleteOlderThan removes entries created before cutoff and returns how many were removed
func (r *EventLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff.UTC()).
		Delete(&models.EventLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune event logs: %w", MapGormError(result.Error))
	}
	return result.RowsAffected, nil
}
