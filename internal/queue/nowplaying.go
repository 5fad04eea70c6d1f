package queue

import (
	"github.com/google/uuid"
	"github.com/stwalsh4118/lecturesfrom/internal/models"
)

// invalidatedPointer clears the stored pointer when its target no longer plays
func invalidatedPointer(snap *Snapshot, result []*models.Submission) *NowPlayingUpdate {
	if snap.NowPlaying == nil {
		return nil
	}
	for _, sub := range result {
		if sub.ID == *snap.NowPlaying {
			if sub.Status == models.StatusPlaying {
				return nil
			}
			return &NowPlayingUpdate{}
		}
	}
	// pointer references a row outside this event
	return &NowPlayingUpdate{}
}

// ResolveNowPlaying returns the submission the pointer refers to, or nil when
// the pointer is empty or its target is no longer playing in the same event.
func ResolveNowPlaying(eventID uuid.UUID, pointer *uuid.UUID, target *models.Submission) *models.Submission {
	if pointer == nil || target == nil {
		return nil
	}
	if target.ID != *pointer || target.EventID != eventID {
		return nil
	}
	if target.Status != models.StatusPlaying {
		return nil
	}
	return target
}
