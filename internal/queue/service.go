package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stwalsh4118/lecturesfrom/internal/db"
	"github.com/stwalsh4118/lecturesfrom/internal/logger"
	"github.com/stwalsh4118/lecturesfrom/internal/models"
	"github.com/stwalsh4118/lecturesfrom/internal/notify"
	"gorm.io/gorm"
)

const defaultLockTimeout = 3 * time.Second

// Publisher delivers committed changes to subscribers of an event
type Publisher interface {
	Publish(eventID uuid.UUID, changes ...notify.Change) []notify.Change
	LastSeq(eventID uuid.UUID) uint64
}

// Recorder appends best-effort audit entries
type Recorder interface {
	Record(eventID uuid.UUID, action string, payload map[string]any)
}

// QueueState is the full read model of one event's queue
type QueueState struct {
	EventID    uuid.UUID            `json:"event_id"`
	Pending    []*models.Submission `json:"pending"`
	Queue      []*models.Submission `json:"queue"`
	History    []*models.Submission `json:"history"`
	NowPlaying *models.Submission   `json:"now_playing"`
	// Seq is the last change sequence number included in this state
	Seq uint64 `json:"seq"`
}

// NowPlayingView is the payload published for now playing changes
type NowPlayingView struct {
	EventID      uuid.UUID          `json:"event_id"`
	SubmissionID *uuid.UUID         `json:"submission_id"`
	Submission   *models.Submission `json:"submission"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// QueueService runs queue actions for events.
//
// Mutations of one event are serialized by a per-event lock and each runs in
// a single transaction. Changes are published after commit while the lock is
// still held, so subscribers see them in commit order.
type QueueService struct {
	db          *db.DB
	repos       *db.Repositories
	publisher   Publisher
	recorder    Recorder
	locks       *eventLocks
	lockTimeout time.Duration
	now         func() time.Time
}

// NewQueueService creates a new queue service instance
func NewQueueService(database *db.DB, publisher Publisher, recorder Recorder, lockTimeout time.Duration) *QueueService {
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &QueueService{
		db:          database,
		repos:       db.NewRepositories(database),
		publisher:   publisher,
		recorder:    recorder,
		locks:       newEventLocks(),
		lockTimeout: lockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates a pending submission for an event
func (s *QueueService) Submit(ctx context.Context, cmd SubmitCommand) (*models.Submission, error) {
	cmd.normalize()
	if err := validateCommand(cmd); err != nil {
		s.recordRejectedUpload(ctx, cmd, err)
		logFailure(err, models.ActionSubmit).Str("event_id", cmd.EventID.String()).Msg("Submission rejected")
		return nil, err
	}

	event, err := s.getEvent(ctx, cmd.EventID)
	if err != nil {
		logFailure(err, models.ActionSubmit).Str("event_id", cmd.EventID.String()).Msg("Submission rejected")
		return nil, err
	}
	if !event.IsLive {
		err := invalidTransitionError("event %s is not accepting submissions", event.ID)
		s.recordRejectedUpload(ctx, cmd, err)
		logFailure(err, models.ActionSubmit).Str("event_id", cmd.EventID.String()).Msg("Submission rejected")
		return nil, err
	}

	release, err := s.lock(ctx, cmd.EventID)
	if err != nil {
		return nil, err
	}
	defer release()

	sub := models.NewSubmission(cmd.EventID, cmd.ArtistName, cmd.TrackTitle, cmd.FileURL)
	sub.FileSizeBytes = cmd.FileSizeBytes
	sub.TipCents = cmd.TipCents
	now := s.now()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	if err := s.repos.Submissions.Create(ctx, sub); err != nil {
		qerr := classifyStoreError(err, "failed to create submission")
		logFailure(qerr, models.ActionSubmit).Str("event_id", cmd.EventID.String()).Msg("Submission failed")
		return nil, qerr
	}

	s.publisher.Publish(cmd.EventID, notify.NewChange(cmd.EventID, notify.EntitySubmission, notify.OpInsert, sub))
	s.recorder.Record(cmd.EventID, models.ActionSubmit, map[string]any{
		"submission_id": sub.ID.String(),
		"artist_name":   sub.ArtistName,
		"track_title":   sub.TrackTitle,
	})

	logger.Log.Info().
		Str("event_id", cmd.EventID.String()).
		Str("submission_id", sub.ID.String()).
		Msg("Submission created")

	return sub, nil
}

// Approve moves a pending submission to the end of its event's queue
func (s *QueueService) Approve(ctx context.Context, cmd ApproveCommand) (*models.Submission, error) {
	if err := validateCommand(cmd); err != nil {
		logFailure(err, models.ActionApprove).Msg("Approve rejected")
		return nil, err
	}

	eventID, err := s.eventOf(ctx, cmd.SubmissionID)
	if err != nil {
		logFailure(err, models.ActionApprove).Str("submission_id", cmd.SubmissionID.String()).Msg("Approve rejected")
		return nil, err
	}

	delta, err := s.mutate(ctx, eventID, models.ActionApprove, func(snap *Snapshot, now time.Time) (*Delta, error) {
		return Approve(snap, cmd.SubmissionID, now)
	})
	if err != nil {
		return nil, err
	}

	s.recorder.Record(eventID, models.ActionApprove, map[string]any{
		"submission_id":  cmd.SubmissionID.String(),
		"queue_position": delta.Target.Position(),
	})
	return delta.Target, nil
}

// Play makes an approved submission the one playing in its event
func (s *QueueService) Play(ctx context.Context, cmd PlayCommand) (*models.Submission, error) {
	if err := validateCommand(cmd); err != nil {
		logFailure(err, models.ActionPlay).Msg("Play rejected")
		return nil, err
	}

	var previous *uuid.UUID
	delta, err := s.mutate(ctx, cmd.EventID, models.ActionPlay, func(snap *Snapshot, now time.Time) (*Delta, error) {
		if p := snap.playing(); p != nil {
			id := p.ID
			previous = &id
		}
		return Play(snap, cmd.SubmissionID, now)
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"submission_id": cmd.SubmissionID.String()}
	if previous != nil {
		payload["previous_submission_id"] = previous.String()
	}
	s.recorder.Record(cmd.EventID, models.ActionPlay, payload)
	return delta.Target, nil
}

// Skip removes an approved or playing submission from its event's queue
func (s *QueueService) Skip(ctx context.Context, cmd SkipCommand) (*models.Submission, error) {
	if err := validateCommand(cmd); err != nil {
		logFailure(err, models.ActionSkip).Msg("Skip rejected")
		return nil, err
	}

	eventID, err := s.eventOf(ctx, cmd.SubmissionID)
	if err != nil {
		logFailure(err, models.ActionSkip).Str("submission_id", cmd.SubmissionID.String()).Msg("Skip rejected")
		return nil, err
	}

	var from models.SubmissionStatus
	delta, err := s.mutate(ctx, eventID, models.ActionSkip, func(snap *Snapshot, now time.Time) (*Delta, error) {
		if current := snap.find(cmd.SubmissionID); current != nil {
			from = current.Status
		}
		return Skip(snap, cmd.SubmissionID, now)
	})
	if err != nil {
		return nil, err
	}

	s.recorder.Record(eventID, models.ActionSkip, map[string]any{
		"submission_id": cmd.SubmissionID.String(),
		"from_status":   string(from),
	})
	return delta.Target, nil
}

// Reorder renumbers the approved submissions of an event and returns the active queue
func (s *QueueService) Reorder(ctx context.Context, cmd ReorderCommand) ([]*models.Submission, error) {
	if err := validateCommand(cmd); err != nil {
		logFailure(err, models.ActionReorder).Str("event_id", cmd.EventID.String()).Msg("Reorder rejected")
		return nil, err
	}

	var queue []*models.Submission
	_, err := s.mutate(ctx, cmd.EventID, models.ActionReorder, func(snap *Snapshot, now time.Time) (*Delta, error) {
		delta, err := Reorder(snap, cmd.SubmissionIDs, now)
		if err != nil {
			return nil, err
		}
		queue = activeAfter(snap, delta)
		return delta, nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(cmd.SubmissionIDs))
	for _, id := range cmd.SubmissionIDs {
		ids = append(ids, id.String())
	}
	s.recorder.Record(cmd.EventID, models.ActionReorder, map[string]any{"submission_ids": ids})
	return queue, nil
}

// State returns the full queue read model for an event
func (s *QueueService) State(ctx context.Context, eventID uuid.UUID) (*QueueState, error) {
	if _, err := s.getEvent(ctx, eventID); err != nil {
		return nil, err
	}

	// read the watermark first so every change at or below it is in the rows read below
	seq := s.publisher.LastSeq(eventID)

	// submissions and the pointer come from one transaction so a commit
	// between the two reads cannot split them
	var snap *Snapshot
	err := s.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		snap, err = loadSnapshot(ctx, s.repos.WithTx(tx), eventID)
		return err
	})
	if err != nil {
		qerr := classifyStoreError(err, "failed to read queue")
		logFailure(qerr, "state").Str("event_id", eventID.String()).Msg("Queue read failed")
		return nil, qerr
	}

	state := &QueueState{
		EventID: eventID,
		Pending: []*models.Submission{},
		Queue:   []*models.Submission{},
		History: []*models.Submission{},
		Seq:     seq,
	}
	for _, sub := range snap.Submissions {
		switch {
		case sub.Status == models.StatusPending:
			state.Pending = append(state.Pending, sub)
		case sub.Status.IsActive():
			state.Queue = append(state.Queue, sub)
		default:
			state.History = append(state.History, sub)
		}
	}
	sort.SliceStable(state.Queue, func(i, j int) bool {
		return state.Queue[i].Position() < state.Queue[j].Position()
	})
	sort.SliceStable(state.History, func(i, j int) bool {
		return state.History[i].UpdatedAt.After(state.History[j].UpdatedAt)
	})
	if snap.NowPlaying != nil {
		state.NowPlaying = ResolveNowPlaying(eventID, snap.NowPlaying, snap.find(*snap.NowPlaying))
	}

	return state, nil
}

// NowPlaying resolves the submission currently playing in an event, nil when none
func (s *QueueService) NowPlaying(ctx context.Context, eventID uuid.UUID) (*models.Submission, error) {
	if _, err := s.getEvent(ctx, eventID); err != nil {
		return nil, err
	}

	np, err := s.repos.NowPlaying.Get(ctx, eventID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, classifyStoreError(err, "failed to read now playing")
	}
	if np.SubmissionID == nil {
		return nil, nil
	}

	target, err := s.repos.Submissions.GetByID(ctx, *np.SubmissionID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, classifyStoreError(err, "failed to read now playing submission")
	}
	return ResolveNowPlaying(eventID, np.SubmissionID, target), nil
}

// GetSubmission retrieves a submission by its ID
func (s *QueueService) GetSubmission(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	sub, err := s.repos.Submissions.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, notFoundError("submission %s not found", id)
		}
		return nil, classifyStoreError(err, "failed to get submission")
	}
	return sub, nil
}

// mutate runs one engine action for an event under the event lock and in a
// single transaction, then publishes what changed
func (s *QueueService) mutate(ctx context.Context, eventID uuid.UUID, action string, fn func(*Snapshot, time.Time) (*Delta, error)) (*Delta, error) {
	release, err := s.lock(ctx, eventID)
	if err != nil {
		logFailure(err, action).Str("event_id", eventID.String()).Msg("Queue action not started")
		return nil, err
	}
	defer release()

	var delta *Delta
	now := s.now()
	err = s.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		repos := s.repos.WithTx(tx)

		snap, err := loadSnapshot(ctx, repos, eventID)
		if err != nil {
			return err
		}

		delta, err = fn(snap, now)
		if err != nil {
			return err
		}

		return applyDelta(ctx, repos, eventID, delta, now)
	})
	if err != nil {
		qerr := classifyStoreError(err, fmt.Sprintf("failed to %s", action))
		logFailure(qerr, action).Str("event_id", eventID.String()).Msg("Queue action failed")
		return nil, qerr
	}

	s.publish(eventID, delta, now)

	ev := logger.Log.Info().
		Str("event_id", eventID.String()).
		Str("action", action).
		Int("changed", len(delta.Changes))
	if delta.Target != nil {
		ev = ev.Str("submission_id", delta.Target.ID.String()).
			Str("status", string(delta.Target.Status))
	}
	ev.Msg("Queue action applied")

	return delta, nil
}

// lock acquires the event lock within the configured bound
func (s *QueueService) lock(ctx context.Context, eventID uuid.UUID) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	release, err := s.locks.acquire(lockCtx, eventID)
	if err == nil {
		return release, nil
	}
	if ctx.Err() != nil {
		return nil, classifyStoreError(ctx.Err(), "queue action aborted")
	}
	return nil, conflictError(err, "event %s is busy, retry", eventID)
}

func (s *QueueService) publish(eventID uuid.UUID, delta *Delta, now time.Time) {
	changes := make([]notify.Change, 0, len(delta.Changes)+1)
	for _, c := range delta.Changes {
		changes = append(changes, notify.NewChange(eventID, notify.EntitySubmission, notify.OpUpdate, c.After))
	}
	if delta.NowPlaying != nil {
		view := NowPlayingView{EventID: eventID, SubmissionID: delta.NowPlaying.SubmissionID, UpdatedAt: now}
		if view.SubmissionID != nil {
			for _, c := range delta.Changes {
				if c.After.ID == *view.SubmissionID {
					view.Submission = c.After
				}
			}
		}
		changes = append(changes, notify.NewChange(eventID, notify.EntityNowPlaying, notify.OpUpdate, view))
	}
	if len(changes) > 0 {
		s.publisher.Publish(eventID, changes...)
	}
}

// eventOf returns the owning event of a submission
func (s *QueueService) eventOf(ctx context.Context, submissionID uuid.UUID) (uuid.UUID, error) {
	sub, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return uuid.Nil, err
	}
	return sub.EventID, nil
}

func (s *QueueService) getEvent(ctx context.Context, eventID uuid.UUID) (*models.Event, error) {
	event, err := s.repos.Events.GetByID(ctx, eventID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, notFoundError("event %s not found", eventID)
		}
		return nil, classifyStoreError(err, "failed to get event")
	}
	return event, nil
}

// recordRejectedUpload audits a failed submit against an existing event
func (s *QueueService) recordRejectedUpload(ctx context.Context, cmd SubmitCommand, cause error) {
	if cmd.EventID == uuid.Nil {
		return
	}
	if _, err := s.repos.Events.GetByID(ctx, cmd.EventID); err != nil {
		return
	}
	s.recorder.Record(cmd.EventID, models.ActionUploadRejected, map[string]any{
		"reason":      cause.Error(),
		"artist_name": cmd.ArtistName,
		"track_title": cmd.TrackTitle,
	})
}

func loadSnapshot(ctx context.Context, repos *db.Repositories, eventID uuid.UUID) (*Snapshot, error) {
	subs, err := repos.Submissions.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{EventID: eventID, Submissions: subs}

	np, err := repos.NowPlaying.Get(ctx, eventID)
	switch {
	case err == nil:
		snap.NowPlaying = np.SubmissionID
	case db.IsNotFound(err):
	default:
		return nil, err
	}
	return snap, nil
}

func applyDelta(ctx context.Context, repos *db.Repositories, eventID uuid.UUID, delta *Delta, now time.Time) error {
	if delta.Empty() {
		return nil
	}

	changes := make([]db.SubmissionChange, 0, len(delta.Changes))
	for _, c := range delta.Changes {
		changes = append(changes, db.SubmissionChange{
			ID:         c.After.ID,
			FromStatus: c.Before.Status,
			ToStatus:   c.After.Status,
			Position:   c.After.QueuePosition,
			UpdatedAt:  c.After.UpdatedAt,
		})
	}
	if err := repos.Submissions.ApplyChanges(ctx, eventID, changes); err != nil {
		return err
	}

	if delta.NowPlaying != nil {
		np := &models.NowPlaying{
			EventID:      eventID,
			SubmissionID: delta.NowPlaying.SubmissionID,
			UpdatedAt:    now,
		}
		if err := repos.NowPlaying.Upsert(ctx, np); err != nil {
			return err
		}
	}
	return nil
}

// activeAfter returns the active rows of snap with delta applied, in queue order
func activeAfter(snap *Snapshot, delta *Delta) []*models.Submission {
	changed := make(map[uuid.UUID]*models.Submission, len(delta.Changes))
	for _, c := range delta.Changes {
		changed[c.After.ID] = c.After
	}

	var active []*models.Submission
	for _, sub := range snap.Submissions {
		if next, ok := changed[sub.ID]; ok {
			sub = next
		}
		if sub.Status.IsActive() {
			active = append(active, sub)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Position() < active[j].Position()
	})
	return active
}

// logFailure starts a log entry at a level matching the error kind
func logFailure(err error, action string) *zerolog.Event {
	var ev *zerolog.Event
	var qe *Error
	if errors.As(err, &qe) && qe.Kind == KindDependencyFailure {
		ev = logger.Log.Error()
	} else {
		ev = logger.Log.Warn()
	}
	return ev.Err(err).Str("action", action)
}
