package queue

import (
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/lecturesfrom/internal/models"
)

// Reorder renumbers the approved submissions of an event in the given order.
//
// The list must name every approved submission exactly once. The playing
// submission, if any, stays at the head of the queue and the approved rows
// follow it. Any invalid id rejects the whole request.
func Reorder(snap *Snapshot, submissionIDs []uuid.UUID, now time.Time) (*Delta, error) {
	if len(submissionIDs) == 0 {
		return nil, validationError("submission_ids must not be empty")
	}

	seen := make(map[uuid.UUID]struct{}, len(submissionIDs))
	for _, id := range submissionIDs {
		if _, dup := seen[id]; dup {
			return nil, validationError("submission %s listed more than once", id)
		}
		seen[id] = struct{}{}
	}

	for _, id := range submissionIDs {
		sub := snap.find(id)
		if sub == nil {
			return nil, notFoundError("submission %s not found in event %s", id, snap.EventID)
		}
		if sub.Status != models.StatusApproved {
			return nil, conflictError(nil, "submission %s is %s, not approved", id, sub.Status)
		}
	}

	offset := 0
	for _, sub := range snap.Submissions {
		switch sub.Status {
		case models.StatusPlaying:
			offset++
		case models.StatusApproved:
			if _, listed := seen[sub.ID]; !listed {
				return nil, conflictError(nil, "approved submission %s missing from order", sub.ID)
			}
		}
	}

	updates := make(map[uuid.UUID]*models.Submission, len(submissionIDs))
	for i, id := range submissionIDs {
		next := snap.find(id).Clone()
		pos := offset + i + 1
		next.QueuePosition = &pos
		updates[id] = next
	}

	return buildDelta(snap, uuid.Nil, updates, now), nil
}
