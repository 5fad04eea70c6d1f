package queue

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/lecturesfrom/internal/db"
	"github.com/stwalsh4118/lecturesfrom/internal/models"
	"github.com/stwalsh4118/lecturesfrom/internal/notify"
)

type recordedEntry struct {
	eventID uuid.UUID
	action  string
	payload map[string]any
}

// memoryRecorder keeps audit entries in memory
type memoryRecorder struct {
	mu      sync.Mutex
	entries []recordedEntry
}

func (r *memoryRecorder) Record(eventID uuid.UUID, action string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recordedEntry{eventID: eventID, action: action, payload: payload})
}

func (r *memoryRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.action)
	}
	return out
}

type testEnv struct {
	service  *QueueService
	database *db.DB
	hub      *notify.Hub
	recorder *memoryRecorder
}

// setupTestService creates a service with a migrated test database
func setupTestService(t *testing.T) *testEnv {
	t.Helper()

	tmpFile := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(tmpFile, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	sqlDB, err := database.GetSQLDB()
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(sqlDB, "file://../../migrations"))

	hub := notify.NewHub(256)
	t.Cleanup(hub.Close)
	recorder := &memoryRecorder{}

	return &testEnv{
		service:  NewQueueService(database, hub, recorder, 2*time.Second),
		database: database,
		hub:      hub,
		recorder: recorder,
	}
}

func (e *testEnv) createEvent(t *testing.T) *models.Event {
	t.Helper()
	event, err := e.service.CreateEvent(context.Background(), CreateEventCommand{Name: "Friday Night", IsLive: true})
	require.NoError(t, err)
	return event
}

func (e *testEnv) submit(t *testing.T, eventID uuid.UUID, title string) *models.Submission {
	t.Helper()
	sub, err := e.service.Submit(context.Background(), SubmitCommand{
		EventID:    eventID,
		ArtistName: "Artist",
		TrackTitle: title,
		FileURL:    "https://cdn.example.com/" + title + ".mp3",
	})
	require.NoError(t, err)
	return sub
}

func (e *testEnv) approve(t *testing.T, id uuid.UUID) *models.Submission {
	t.Helper()
	sub, err := e.service.Approve(context.Background(), ApproveCommand{SubmissionID: id})
	require.NoError(t, err)
	return sub
}

func (e *testEnv) reload(t *testing.T, id uuid.UUID) *models.Submission {
	t.Helper()
	sub, err := e.service.GetSubmission(context.Background(), id)
	require.NoError(t, err)
	return sub
}

// assertQueueConsistent checks at most one playing row and dense unique positions
func (e *testEnv) assertQueueConsistent(t *testing.T, eventID uuid.UUID) {
	t.Helper()
	state, err := e.service.State(context.Background(), eventID)
	require.NoError(t, err)

	playing := 0
	for i, sub := range state.Queue {
		require.NotNil(t, sub.QueuePosition)
		assert.Equal(t, i+1, *sub.QueuePosition)
		if sub.Status == models.StatusPlaying {
			playing++
		}
	}
	assert.LessOrEqual(t, playing, 1)
	for _, sub := range append(state.Pending, state.History...) {
		assert.Nil(t, sub.QueuePosition)
	}
}

func TestSubmit_Success(t *testing.T) {
	env := setupTestService(t)
	event := env.createEvent(t)

	sub, err := env.service.Submit(context.Background(), SubmitCommand{
		EventID:    event.ID,
		ArtistName: "  Lecture ",
		TrackTitle: "Opening",
		FileURL:    "https://cdn.example.com/opening.mp3",
		TipCents:   500,
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, sub.Status)
	assert.Nil(t, sub.QueuePosition)
	assert.Equal(t, "Lecture", sub.ArtistName)
	assert.Equal(t, 500, sub.TipCents)
	assert.Equal(t, []string{models.ActionSubmit}, env.recorder.actions())
	assert.Equal(t, uint64(1), env.hub.LastSeq(event.ID))
}

func TestSubmit_Validation(t *testing.T) {
	env := setupTestService(t)
	event := env.createEvent(t)

	tests := []struct {
		name string
		cmd  SubmitCommand
	}{
		{"missing artist", SubmitCommand{EventID: event.ID, TrackTitle: "T", FileURL: "https://x.example.com/a.mp3"}},
		{"blank title", SubmitCommand{EventID: event.ID, ArtistName: "A", TrackTitle: "   ", FileURL: "https://x.example.com/a.mp3"}},
		{"no file yet", SubmitCommand{EventID: event.ID, ArtistName: "A", TrackTitle: "T"}},
		{"bad url", SubmitCommand{EventID: event.ID, ArtistName: "A", TrackTitle: "T", FileURL: "not a url"}},
		{"negative tip", SubmitCommand{EventID: event.ID, ArtistName: "A", TrackTitle: "T", FileURL: "https://x.example.com/a.mp3", TipCents: -1}},
		{"missing event", SubmitCommand{ArtistName: "A", TrackTitle: "T", FileURL: "https://x.example.com/a.mp3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.Submit(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}

	state, err := env.service.State(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Empty(t, state.Pending)

	// rejections against a known event are audited
	assert.Contains(t, env.recorder.actions(), models.ActionUploadRejected)
}

func TestSubmit_UnknownEvent(t *testing.T) {
	env := setupTestService(t)

	_, err := env.service.Submit(context.Background(), SubmitCommand{
		EventID:    uuid.New(),
		ArtistName: "A",
		TrackTitle: "T",
		FileURL:    "https://cdn.example.com/t.mp3",
	})

	assert.True(t, IsNotFound(err))
}

func TestApprove_TwiceFailsSecondTime(t *testing.T) {
	env := setupTestService(t)
	event := env.createEvent(t)
	sub := env.submit(t, event.ID, "t1")

	first := env.approve(t, sub.ID)
	assert.Equal(t, 1, first.Position())

	_, err := env.service.Approve(context.Background(), ApproveCommand{SubmissionID: sub.ID})
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))

	assert.Equal(t, 1, env.reload(t, sub.ID).Position())
	env.assertQueueConsistent(t, event.ID)
}

func TestApprove_UnknownAndMissingID(t *testing.T) {
	env := setupTestService(t)

	_, err := env.service.Approve(context.Background(), ApproveCommand{SubmissionID: uuid.New()})
	assert.True(t, IsNotFound(err))

	_, err = env.service.Approve(context.Background(), ApproveCommand{})
	assert.True(t, IsValidation(err))
}

func TestApprove_ConcurrentDistinctPositions(t *testing.T) {
	env := setupTestService(t)
	event := env.createEvent(t)

	const n = 12
	subs := make([]*models.Submission, n)
	for i := range subs {
		subs[i] = env.submit(t, event.ID, "track")
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, sub := range subs {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := env.service.Approve(context.Background(), ApproveCommand{SubmissionID: id})
			errs <- err
		}(sub.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	seen := make(map[int]bool, n)
	for _, sub := range subs {
		pos := env.reload(t, sub.ID).Position()
		assert.False(t, seen[pos], "duplicate position %d", pos)
		seen[pos] = true
	}
	for pos := 1; pos <= n; pos++ {
		assert.True(t, seen[pos], "missing position %d", pos)
	}
	env.assertQueueConsistent(t, event.ID)
}

func TestPlay_Exclusivity(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	event := env.createEvent(t)
	x := env.submit(t, event.ID, "x")
	y := env.submit(t, event.ID, "y")
	env.approve(t, x.ID)
	env.approve(t, y.ID)

	_, err := env.service.Play(ctx, PlayCommand{SubmissionID: x.ID, EventID: event.ID})
	require.NoError(t, err)

	played, err := env.service.Play(ctx, PlayCommand{SubmissionID: y.ID, EventID: event.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPlaying, played.Status)

	assert.Equal(t, models.StatusDone, env.reload(t, x.ID).Status)
	assert.Nil(t, env.reload(t, x.ID).QueuePosition)
	assert.Equal(t, models.StatusPlaying, env.reload(t, y.ID).Status)

	np, err := env.service.NowPlaying(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, np)
	assert.Equal(t, y.ID, np.ID)
	env.assertQueueConsistent(t, event.ID)
}

func TestPlay_ConcurrentLeavesOnePlaying(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	event := env.createEvent(t)

	const n = 6
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = env.submit(t, event.ID, "p").ID
		env.approve(t, ids[i])
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, _ = env.service.Play(ctx, PlayCommand{SubmissionID: id, EventID: event.ID})
		}(id)
	}
	wg.Wait()

	state, err := env.service.State(ctx, event.ID)
	require.NoError(t, err)
	var playing []*models.Submission
	for _, sub := range state.Queue {
		if sub.Status == models.StatusPlaying {
			playing = append(playing, sub)
		}
	}
	require.Len(t, playing, 1)
	require.NotNil(t, state.NowPlaying)
	assert.Equal(t, playing[0].ID, state.NowPlaying.ID)
	env.assertQueueConsistent(t, event.ID)
}

func TestPlay_WrongEventAndStatus(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	event := env.createEvent(t)
	other := env.createEvent(t)
	sub := env.submit(t, event.ID, "t")

	_, err := env.service.Play(ctx, PlayCommand{SubmissionID: sub.ID, EventID: event.ID})
	assert.True(t, IsInvalidTransition(err), "pending cannot play: %v", err)

	env.approve(t, sub.ID)
	_, err = env.service.Play(ctx, PlayCommand{SubmissionID: sub.ID, EventID: other.ID})
	assert.True(t, IsNotFound(err))

	_, err = env.service.Play(ctx, PlayCommand{SubmissionID: sub.ID, EventID: event.ID})
	require.NoError(t, err)
	_, err = env.service.Play(ctx, PlayCommand{SubmissionID: sub.ID, EventID: event.ID})
	assert.True(t, IsInvalidTransition(err))
}

func TestSkip_TerminalFails(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	event := env.createEvent(t)
	sub := env.submit(t, event.ID, "t")

	_, err := env.service.Skip(ctx, SkipCommand{SubmissionID: sub.ID})
	assert.True(t, IsInvalidTransition(err))

	env.approve(t, sub.ID)
	skipped, err := env.service.Skip(ctx, SkipCommand{SubmissionID: sub.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSkipped, skipped.Status)
	assert.Nil(t, skipped.QueuePosition)

	_, err = env.service.Skip(ctx, SkipCommand{SubmissionID: sub.ID})
	assert.True(t, IsInvalidTransition(err))
}

func TestReorder_Ordering(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	event := env.createEvent(t)
	a := env.submit(t, event.ID, "a")
	b := env.submit(t, event.ID, "b")
	c := env.submit(t, event.ID, "c")
	env.approve(t, a.ID)
	env.approve(t, b.ID)
	env.approve(t, c.ID)

	queue, err := env.service.Reorder(ctx, ReorderCommand{EventID: event.ID, SubmissionIDs: []uuid.UUID{c.ID, a.ID, b.ID}})

	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, []uuid.UUID{c.ID, a.ID, b.ID}, []uuid.UUID{queue[0].ID, queue[1].ID, queue[2].ID})
	assert.Equal(t, 1, env.reload(t, c.ID).Position())
	assert.Equal(t, 2, env.reload(t, a.ID).Position())
	assert.Equal(t, 3, env.reload(t, b.ID).Position())
	env.assertQueueConsistent(t, event.ID)
}

func TestReorder_ForeignIDLeavesPositionsUnchanged(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	event := env.createEvent(t)
	other := env.createEvent(t)
	a := env.submit(t, event.ID, "a")
	b := env.submit(t, event.ID, "b")
	foreign := env.submit(t, other.ID, "f")
	env.approve(t, a.ID)
	env.approve(t, b.ID)
	env.approve(t, foreign.ID)
	seqBefore := env.hub.LastSeq(event.ID)

	_, err := env.service.Reorder(ctx, ReorderCommand{EventID: event.ID, SubmissionIDs: []uuid.UUID{b.ID, foreign.ID, a.ID}})

	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 1, env.reload(t, a.ID).Position())
	assert.Equal(t, 2, env.reload(t, b.ID).Position())
	assert.Equal(t, seqBefore, env.hub.LastSeq(event.ID))
}

func TestReorder_DuplicateIDs(t *testing.T) {
	env := setupTestService(t)
	event := env.createEvent(t)
	a := env.submit(t, event.ID, "a")
	env.approve(t, a.ID)

	_, err := env.service.Reorder(context.Background(), ReorderCommand{EventID: event.ID, SubmissionIDs: []uuid.UUID{a.ID, a.ID}})

	assert.True(t, IsValidation(err))
}

func TestEndToEndScenario(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	event := env.createEvent(t)

	sub, err := env.hub.Subscribe(event.ID)
	require.NoError(t, err)
	defer sub.Close()

	t1 := env.submit(t, event.ID, "t1")
	assert.Equal(t, models.StatusPending, t1.Status)

	t1 = env.approve(t, t1.ID)
	assert.Equal(t, models.StatusApproved, t1.Status)
	assert.Equal(t, 1, t1.Position())

	t2 := env.submit(t, event.ID, "t2")
	t2 = env.approve(t, t2.ID)
	assert.Equal(t, 2, t2.Position())

	_, err = env.service.Play(ctx, PlayCommand{SubmissionID: t1.ID, EventID: event.ID})
	require.NoError(t, err)
	np, err := env.service.NowPlaying(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, np)
	assert.Equal(t, t1.ID, np.ID)

	_, err = env.service.Play(ctx, PlayCommand{SubmissionID: t2.ID, EventID: event.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, env.reload(t, t1.ID).Status)
	np, err = env.service.NowPlaying(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, np)
	assert.Equal(t, t2.ID, np.ID)

	_, err = env.service.Skip(ctx, SkipCommand{SubmissionID: t2.ID})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSkipped, env.reload(t, t2.ID).Status)
	np, err = env.service.NowPlaying(ctx, event.ID)
	require.NoError(t, err)
	assert.Nil(t, np)

	state, err := env.service.State(ctx, event.ID)
	require.NoError(t, err)
	assert.Nil(t, state.NowPlaying)
	assert.Empty(t, state.Queue)
	assert.Len(t, state.History, 2)
	assert.Equal(t, env.hub.LastSeq(event.ID), state.Seq)

	// subscriber saw every change in order, ending with the pointer cleared
	var last notify.Change
	var prevSeq uint64
	for i := uint64(0); i < state.Seq; i++ {
		select {
		case c := <-sub.C:
			assert.Equal(t, prevSeq+1, c.Seq)
			prevSeq = c.Seq
			last = c
		case <-time.After(time.Second):
			t.Fatalf("missing change %d", i+1)
		}
	}
	assert.Equal(t, notify.EntityNowPlaying, last.Entity)
	var view NowPlayingView
	require.NoError(t, json.Unmarshal(last.Payload, &view))
	assert.Nil(t, view.SubmissionID)

	assert.Equal(t, []string{
		models.ActionSubmit, models.ActionApprove, models.ActionSubmit, models.ActionApprove,
		models.ActionPlay, models.ActionPlay, models.ActionSkip,
	}, env.recorder.actions())
	env.assertQueueConsistent(t, event.ID)
}

func TestMutate_LockTimeoutIsConflict(t *testing.T) {
	env := setupTestService(t)
	env.service.lockTimeout = 20 * time.Millisecond
	event := env.createEvent(t)
	sub := env.submit(t, event.ID, "t")

	release, err := env.service.locks.acquire(context.Background(), event.ID)
	require.NoError(t, err)
	defer release()

	_, err = env.service.Approve(context.Background(), ApproveCommand{SubmissionID: sub.ID})
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	var qe *Error
	require.ErrorAs(t, err, &qe)
	assert.True(t, qe.Retryable())
}

func TestEvents_CreateAndLookup(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	event, err := env.service.CreateEvent(ctx, CreateEventCommand{Name: "Show", Token: "show2026"})
	require.NoError(t, err)

	byToken, err := env.service.GetEventByToken(ctx, "show2026")
	require.NoError(t, err)
	assert.Equal(t, event.ID, byToken.ID)

	_, err = env.service.CreateEvent(ctx, CreateEventCommand{Name: "Again", Token: "show2026"})
	assert.True(t, IsConflict(err))

	_, err = env.service.GetEvent(ctx, uuid.New())
	assert.True(t, IsNotFound(err))

	generated := env.createEvent(t)
	assert.Len(t, generated.Token, tokenLength)
}

func TestAppendLog(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	event := env.createEvent(t)

	_, err := env.service.AppendLog(ctx, LogCommand{EventID: event.ID, Action: "viewer_joined", Payload: map[string]any{"n": 1}})
	require.NoError(t, err)

	page, err := env.service.EventLog(ctx, event.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "viewer_joined", page.Entries[0].Action)
	assert.EqualValues(t, 1, page.Entries[0].Payload["n"])
	assert.Zero(t, page.NextBefore)

	_, err = env.service.AppendLog(ctx, LogCommand{EventID: event.ID})
	assert.True(t, IsValidation(err))
}

func TestEventLog_PagesNewestFirst(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	event := env.createEvent(t)

	for i := 1; i <= 5; i++ {
		_, err := env.service.AppendLog(ctx, LogCommand{EventID: event.ID, Action: "tick", Payload: map[string]any{"n": i}})
		require.NoError(t, err)
	}

	first, err := env.service.EventLog(ctx, event.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	assert.EqualValues(t, 5, first.Entries[0].Payload["n"])
	assert.EqualValues(t, 4, first.Entries[1].Payload["n"])
	require.NotZero(t, first.NextBefore)

	second, err := env.service.EventLog(ctx, event.ID, 2, first.NextBefore)
	require.NoError(t, err)
	require.Len(t, second.Entries, 2)
	assert.EqualValues(t, 3, second.Entries[0].Payload["n"])

	last, err := env.service.EventLog(ctx, event.ID, 2, second.NextBefore)
	require.NoError(t, err)
	require.Len(t, last.Entries, 1)
	assert.EqualValues(t, 1, last.Entries[0].Payload["n"])
	assert.Zero(t, last.NextBefore)
}

func TestSubmit_ClosedEventRejected(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	event, err := env.service.CreateEvent(ctx, CreateEventCommand{Name: "Soundcheck"})
	require.NoError(t, err)
	require.False(t, event.IsLive)

	cmd := SubmitCommand{
		EventID:    event.ID,
		ArtistName: "A",
		TrackTitle: "Early",
		FileURL:    "https://cdn.example.com/early.mp3",
	}
	_, err = env.service.Submit(ctx, cmd)
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err), "got %v", err)
	assert.Equal(t, []string{models.ActionUploadRejected}, env.recorder.actions())
	assert.Equal(t, uint64(0), env.hub.LastSeq(event.ID))

	live := true
	opened, err := env.service.SetLive(ctx, SetLiveCommand{EventID: event.ID, IsLive: &live})
	require.NoError(t, err)
	assert.True(t, opened.IsLive)

	sub, err := env.service.Submit(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, sub.Status)

	closed := false
	_, err = env.service.SetLive(ctx, SetLiveCommand{EventID: event.ID, IsLive: &closed})
	require.NoError(t, err)
	_, err = env.service.Submit(ctx, cmd)
	assert.True(t, IsInvalidTransition(err))

	// closing the event leaves existing submissions in place
	assert.Equal(t, models.StatusPending, env.reload(t, sub.ID).Status)
	assert.Contains(t, env.recorder.actions(), models.ActionLiveChanged)
}

func TestSetLive_Errors(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	live := true

	_, err := env.service.SetLive(ctx, SetLiveCommand{EventID: uuid.New(), IsLive: &live})
	assert.True(t, IsNotFound(err))

	event := env.createEvent(t)
	_, err = env.service.SetLive(ctx, SetLiveCommand{EventID: event.ID})
	assert.True(t, IsValidation(err))
}

func TestSubmit_UploadRules(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	event := env.createEvent(t)

	tooBig := int64(10 << 30)
	atLimit := int64(MaxUploadBytes)
	tests := []struct {
		name    string
		url     string
		size    *int64
		wantErr bool
	}{
		{"executable", "https://x.example.com/malware.exe", nil, true},
		{"no extension", "https://x.example.com/track", nil, true},
		{"extension only in query", "https://x.example.com/get?file=a.mp3", nil, true},
		{"oversized", "https://x.example.com/a.wav", &tooBig, true},
		{"upper case extension", "https://x.example.com/Set.FLAC", nil, false},
		{"signed url", "https://x.example.com/a.m4a?sig=abc", nil, false},
		{"at size limit", "https://x.example.com/a.aiff", &atLimit, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(env.recorder.actions())
			_, err := env.service.Submit(ctx, SubmitCommand{
				EventID:       event.ID,
				ArtistName:    "A",
				TrackTitle:    tt.name,
				FileURL:       tt.url,
				FileSizeBytes: tt.size,
			})
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidation(err), "got %v", err)
			actions := env.recorder.actions()
			require.Len(t, actions, before+1)
			assert.Equal(t, models.ActionUploadRejected, actions[before])
		})
	}
}

func TestState_PointerMatchesRowsDuringPlays(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	event := env.createEvent(t)

	const tracks = 15
	ids := make([]uuid.UUID, 0, tracks)
	for i := 0; i < tracks; i++ {
		sub := env.submit(t, event.ID, "t"+string(rune('a'+i)))
		env.approve(t, sub.ID)
		ids = append(ids, sub.ID)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, id := range ids {
			_, err := env.service.Play(ctx, PlayCommand{SubmissionID: id, EventID: event.ID})
			if !assert.NoError(t, err) {
				return
			}
		}
	}()

	reads := 0
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}

		state, err := env.service.State(ctx, event.ID)
		require.NoError(t, err)
		reads++

		var playing *models.Submission
		for _, sub := range state.Queue {
			if sub.Status == models.StatusPlaying {
				playing = sub
			}
		}
		if playing == nil {
			assert.Nil(t, state.NowPlaying)
			continue
		}
		if assert.NotNil(t, state.NowPlaying, "row %s playing without pointer", playing.ID) {
			assert.Equal(t, playing.ID, state.NowPlaying.ID)
		}
	}
	assert.Positive(t, reads)
}
