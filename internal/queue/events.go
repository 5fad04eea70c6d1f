package queue

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/stwalsh4118/lecturesfrom/internal/db"
	"github.com/stwalsh4118/lecturesfrom/internal/logger"
	"github.com/stwalsh4118/lecturesfrom/internal/models"
)

const tokenLength = 12

// CreateEventCommand registers a live event
type CreateEventCommand struct {
	Name   string  `json:"name" validate:"required,max=255"`
	Token  string  `json:"token,omitempty" validate:"omitempty,alphanum,min=4,max=64"`
	HostID *string `json:"host_id,omitempty" validate:"omitempty,max=255"`
	IsLive bool    `json:"is_live"`
}

// SetLiveCommand opens or closes an event for submissions
type SetLiveCommand struct {
	EventID uuid.UUID `json:"event_id" validate:"uuid_set"`
	IsLive  *bool     `json:"is_live" validate:"required"`
}

// LogCommand appends a client supplied entry to an event's log
type LogCommand struct {
	EventID uuid.UUID      `json:"event_id" validate:"uuid_set"`
	Action  string         `json:"action" validate:"required,max=64"`
	Payload map[string]any `json:"payload"`
}

// CreateEvent registers an event. A submit token is generated when none is given.
func (s *QueueService) CreateEvent(ctx context.Context, cmd CreateEventCommand) (*models.Event, error) {
	cmd.Name = strings.TrimSpace(cmd.Name)
	if err := validateCommand(cmd); err != nil {
		logFailure(err, "create_event").Msg("Event creation rejected")
		return nil, err
	}

	token := cmd.Token
	if token == "" {
		token = strings.ReplaceAll(uuid.NewString(), "-", "")[:tokenLength]
	}

	event := models.NewEvent(cmd.Name, token)
	event.HostID = cmd.HostID
	event.IsLive = cmd.IsLive

	if err := s.repos.Events.Create(ctx, event); err != nil {
		var qerr error
		if db.IsDuplicate(err) {
			qerr = conflictError(err, "event token %q already in use", token)
		} else {
			qerr = classifyStoreError(err, "failed to create event")
		}
		logFailure(qerr, "create_event").Str("name", cmd.Name).Msg("Event creation failed")
		return nil, qerr
	}

	logger.Log.Info().
		Str("event_id", event.ID.String()).
		Str("name", event.Name).
		Msg("Event created")

	return event, nil
}

// GetEvent retrieves an event by its ID
func (s *QueueService) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return s.getEvent(ctx, id)
}

// SetLive opens or closes an event for submissions. Queued and playing
// tracks are left alone either way.
func (s *QueueService) SetLive(ctx context.Context, cmd SetLiveCommand) (*models.Event, error) {
	if err := validateCommand(cmd); err != nil {
		logFailure(err, models.ActionLiveChanged).Str("event_id", cmd.EventID.String()).Msg("Live change rejected")
		return nil, err
	}

	if err := s.repos.Events.SetLive(ctx, cmd.EventID, *cmd.IsLive); err != nil {
		var qerr error
		if db.IsNotFound(err) {
			qerr = notFoundError("event %s not found", cmd.EventID)
		} else {
			qerr = classifyStoreError(err, "failed to update event")
		}
		logFailure(qerr, models.ActionLiveChanged).Str("event_id", cmd.EventID.String()).Msg("Live change failed")
		return nil, qerr
	}

	event, err := s.getEvent(ctx, cmd.EventID)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(event.ID, models.ActionLiveChanged, map[string]any{"is_live": event.IsLive})
	logger.Log.Info().
		Str("event_id", event.ID.String()).
		Bool("is_live", event.IsLive).
		Msg("Event live state changed")

	return event, nil
}

// GetEventByToken retrieves an event by its submit token
func (s *QueueService) GetEventByToken(ctx context.Context, token string) (*models.Event, error) {
	event, err := s.repos.Events.GetByToken(ctx, token)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, notFoundError("event with token %q not found", token)
		}
		return nil, classifyStoreError(err, "failed to get event")
	}
	return event, nil
}

// AppendLog writes a client supplied entry synchronously
func (s *QueueService) AppendLog(ctx context.Context, cmd LogCommand) (*models.EventLog, error) {
	cmd.Action = strings.TrimSpace(cmd.Action)
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	if _, err := s.getEvent(ctx, cmd.EventID); err != nil {
		return nil, err
	}

	entry := models.NewEventLog(cmd.EventID, cmd.Action, cmd.Payload)
	if err := s.repos.EventLogs.Create(ctx, entry); err != nil {
		qerr := classifyStoreError(err, "failed to append log entry")
		logFailure(qerr, "log").Str("event_id", cmd.EventID.String()).Msg("Log append failed")
		return nil, qerr
	}
	return entry, nil
}

// LogPage is one page of an event's log, newest first. NextBefore is the
// cursor for the following page and zero when there is none.
type LogPage struct {
	Entries    []*models.EventLog `json:"entries"`
	NextBefore int64              `json:"next_before,omitempty"`
}

// EventLog lists an event's log entries newest first, starting below before when it is positive
func (s *QueueService) EventLog(ctx context.Context, eventID uuid.UUID, limit int, before int64) (*LogPage, error) {
	if _, err := s.getEvent(ctx, eventID); err != nil {
		return nil, err
	}
	entries, err := s.repos.EventLogs.ListByEvent(ctx, eventID, limit, before)
	if err != nil {
		return nil, classifyStoreError(err, "failed to list log entries")
	}

	page := &LogPage{Entries: entries}
	if page.Entries == nil {
		page.Entries = []*models.EventLog{}
	}
	if limit > 0 && len(entries) == limit {
		page.NextBefore = entries[len(entries)-1].ID
	}
	return page, nil
}
