package db

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/lecturesfrom/internal/models"
	"gorm.io/gorm"
)

// SubmissionRepository handles database operations for submissions
type SubmissionRepository struct {
	db *DB
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// SubmissionChange describes one guarded row update. The row is only
// updated while it still has FromStatus.
type SubmissionChange struct {
	ID         uuid.UUID
	FromStatus models.SubmissionStatus
	ToStatus   models.SubmissionStatus
	Position   *int
	UpdatedAt  time.Time
}

// Create inserts a new submission into the database
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	result := r.db.WithContext(ctx).Create(submission)
	if result.Error != nil {
		return fmt.Errorf("failed to create submission: %w", MapGormError(result.Error))
	}
	return nil
}

// GetByID retrieves a submission by its UUID
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	var submission models.Submission
	result := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&submission)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &submission, nil
}

// ListByEvent retrieves every submission of an event in creation order
func (r *SubmissionRepository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.Submission, error) {
	var submissions []*models.Submission
	result := r.db.WithContext(ctx).
		Where("event_id = ?", eventID.String()).
		Order("created_at ASC, id ASC").
		Find(&submissions)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list submissions by event: %w", MapGormError(result.Error))
	}
	return submissions, nil
}

// ListActive retrieves approved and playing submissions ordered by queue position
func (r *SubmissionRepository) ListActive(ctx context.Context, eventID uuid.UUID) ([]*models.Submission, error) {
	var submissions []*models.Submission
	result := r.db.WithContext(ctx).
		Where("event_id = ? AND status IN ?", eventID.String(),
			[]models.SubmissionStatus{models.StatusApproved, models.StatusPlaying}).
		Order("queue_position ASC").
		Find(&submissions)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list active submissions: %w", MapGormError(result.Error))
	}
	return submissions, nil
}

// ApplyChanges writes a set of guarded updates for one event atomically.
//
// Positions are released in a first pass and assigned in a second so that a
// renumbering never collides with the unique index on active positions.
// Demotions run before promotions for the same reason on the single playing
// row index. Any guard that matches no row fails the whole set with ErrStale.
func (r *SubmissionRepository) ApplyChanges(ctx context.Context, eventID uuid.UUID, changes []SubmissionChange) error {
	if len(changes) == 0 {
		return nil
	}

	ordered := make([]SubmissionChange, len(changes))
	copy(ordered, changes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ToStatus != models.StatusPlaying && ordered[j].ToStatus == models.StatusPlaying
	})

	now := time.Now().UTC()
	return r.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		for _, change := range ordered {
			updatedAt := change.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = now
			}
			result := tx.Model(&models.Submission{}).
				Where("id = ? AND event_id = ? AND status = ?", change.ID.String(), eventID.String(), change.FromStatus).
				Updates(map[string]interface{}{
					"status":         change.ToStatus,
					"queue_position": nil,
					"updated_at":     updatedAt,
				})
			if result.Error != nil {
				return fmt.Errorf("failed to update submission %s: %w", change.ID, MapGormError(result.Error))
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("submission %s is no longer %s: %w", change.ID, change.FromStatus, ErrStale)
			}
		}

		for _, change := range ordered {
			if change.Position == nil {
				continue
			}
			result := tx.Model(&models.Submission{}).
				Where("id = ?", change.ID.String()).
				Update("queue_position", *change.Position)
			if result.Error != nil {
				return fmt.Errorf("failed to set position for submission %s: %w", change.ID, MapGormError(result.Error))
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("submission %s disappeared during update: %w", change.ID, ErrStale)
			}
		}
		return nil
	})
}
