// Package queue implements the submission state machine for live events.
//
// The engine functions in this file are pure: they take a Snapshot of one
// event and return a Delta describing the rows that must change. QueueService
// reads snapshots, persists deltas and publishes the resulting changes.
package queue

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/lecturesfrom/internal/models"
)

// Snapshot is the state of one event as read inside a transaction
type Snapshot struct {
	EventID     uuid.UUID
	Submissions []*models.Submission
	// NowPlaying is the stored pointer, nil when nothing is recorded
	NowPlaying *uuid.UUID
}

// Change is one submission row before and after a transition
type Change struct {
	Before *models.Submission
	After  *models.Submission
}

// NowPlayingUpdate replaces the stored pointer. A nil SubmissionID means
// nothing is playing.
type NowPlayingUpdate struct {
	SubmissionID *uuid.UUID
}

// Delta is the full effect of one action
type Delta struct {
	// Target is the submission the action was requested for, after the action
	Target     *models.Submission
	Changes    []Change
	NowPlaying *NowPlayingUpdate
}

// Empty reports whether the delta changes nothing
func (d *Delta) Empty() bool {
	return len(d.Changes) == 0 && d.NowPlaying == nil
}

func (s *Snapshot) find(id uuid.UUID) *models.Submission {
	for _, sub := range s.Submissions {
		if sub.ID == id {
			return sub
		}
	}
	return nil
}

func (s *Snapshot) playing() *models.Submission {
	for _, sub := range s.Submissions {
		if sub.Status == models.StatusPlaying {
			return sub
		}
	}
	return nil
}

func (s *Snapshot) maxPosition() int {
	max := 0
	for _, sub := range s.Submissions {
		if sub.Status.IsActive() && sub.Position() > max {
			max = sub.Position()
		}
	}
	return max
}

// Approve moves a pending submission to the end of the queue
func Approve(snap *Snapshot, submissionID uuid.UUID, now time.Time) (*Delta, error) {
	current := snap.find(submissionID)
	if current == nil {
		return nil, notFoundError("submission %s not found", submissionID)
	}
	if current.Status != models.StatusPending {
		return nil, invalidTransitionError("cannot approve submission in status %s", current.Status)
	}

	next := current.Clone()
	next.Status = models.StatusApproved
	pos := snap.maxPosition() + 1
	next.QueuePosition = &pos

	return buildDelta(snap, submissionID, map[uuid.UUID]*models.Submission{submissionID: next}, now), nil
}

// Play makes an approved submission the only one playing. Any other playing
// submission in the event becomes done.
func Play(snap *Snapshot, submissionID uuid.UUID, now time.Time) (*Delta, error) {
	current := snap.find(submissionID)
	if current == nil {
		return nil, notFoundError("submission %s not found in event %s", submissionID, snap.EventID)
	}
	switch current.Status {
	case models.StatusApproved:
	case models.StatusPlaying:
		return nil, invalidTransitionError("submission %s is already playing", submissionID)
	default:
		return nil, invalidTransitionError("cannot play submission in status %s", current.Status)
	}

	updates := make(map[uuid.UUID]*models.Submission, 2)
	if prev := snap.playing(); prev != nil {
		done := prev.Clone()
		done.Status = models.StatusDone
		done.QueuePosition = nil
		updates[prev.ID] = done
	}
	next := current.Clone()
	next.Status = models.StatusPlaying
	updates[submissionID] = next

	delta := buildDelta(snap, submissionID, updates, now)
	id := submissionID
	delta.NowPlaying = &NowPlayingUpdate{SubmissionID: &id}
	return delta, nil
}

// Skip takes an approved or playing submission out of the queue
func Skip(snap *Snapshot, submissionID uuid.UUID, now time.Time) (*Delta, error) {
	current := snap.find(submissionID)
	if current == nil {
		return nil, notFoundError("submission %s not found", submissionID)
	}
	if !current.Status.IsActive() {
		return nil, invalidTransitionError("cannot skip submission in status %s", current.Status)
	}

	next := current.Clone()
	next.Status = models.StatusSkipped
	next.QueuePosition = nil

	return buildDelta(snap, submissionID, map[uuid.UUID]*models.Submission{submissionID: next}, now), nil
}

// buildDelta applies updates over the snapshot, renumbers the active rows and
// collects every row whose status or position moved.
func buildDelta(snap *Snapshot, targetID uuid.UUID, updates map[uuid.UUID]*models.Submission, now time.Time) *Delta {
	result := make([]*models.Submission, 0, len(snap.Submissions))
	for _, sub := range snap.Submissions {
		if next, ok := updates[sub.ID]; ok {
			result = append(result, next)
			continue
		}
		result = append(result, sub.Clone())
	}

	active := make([]*models.Submission, 0, len(result))
	for _, sub := range result {
		if sub.Status.IsActive() {
			active = append(active, sub)
		} else {
			sub.QueuePosition = nil
		}
	}
	sortCanonical(active)
	for i, sub := range active {
		pos := i + 1
		sub.QueuePosition = &pos
	}

	delta := &Delta{}
	for i, before := range snap.Submissions {
		after := result[i]
		if after.ID == targetID {
			delta.Target = after
		}
		if before.Status == after.Status && samePosition(before.QueuePosition, after.QueuePosition) {
			continue
		}
		after.UpdatedAt = now
		delta.Changes = append(delta.Changes, Change{Before: before, After: after})
	}

	delta.NowPlaying = invalidatedPointer(snap, result)
	return delta
}

// sortCanonical orders active rows: the playing row first, then by position,
// then by creation time. Rows without a position sort after positioned ones.
func sortCanonical(active []*models.Submission) {
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if (a.Status == models.StatusPlaying) != (b.Status == models.StatusPlaying) {
			return a.Status == models.StatusPlaying
		}
		pa, pb := a.Position(), b.Position()
		if pa != pb {
			if pa == 0 || pb == 0 {
				return pb == 0
			}
			return pa < pb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

func samePosition(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
