package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/lecturesfrom/internal/config"
	"github.com/stwalsh4118/lecturesfrom/internal/db"
	"github.com/stwalsh4118/lecturesfrom/internal/models"
)

// setupTestDB creates a migrated database in a temp dir
func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "server.db"), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	sqlDB, err := database.GetSQLDB()
	require.NoError(t, err)

	// Resolve migrations relative to this file so the working directory doesn't matter
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok)
	migrationsDir := filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
	require.NoError(t, db.RunMigrations(sqlDB, "file://"+migrationsDir))

	return database
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           0,
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   5 * time.Second,
			RequestTimeout: 5 * time.Second,
		},
		Logging:   config.LoggingConfig{Level: "info"},
		RateLimit: config.RateLimitConfig{Enabled: true, Requests: 3, HostRequests: 5, Window: time.Minute},
		Notifier: config.NotifierConfig{
			BufferSize:   16,
			PingInterval: time.Second,
			WriteWait:    time.Second,
		},
		Queue: config.QueueConfig{LockTimeout: time.Second},
		Audit: config.AuditConfig{BufferSize: 16, Retention: time.Hour, PruneInterval: time.Hour},
	}
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	return postFrom(t, h, "", path, body)
}

// postFrom sends a request with the given X-Forwarded-For header, if any
func postFrom(t *testing.T, h http.Handler, forwardedFor, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createLiveEvent(t *testing.T, h http.Handler) models.Event {
	t.Helper()
	w := post(t, h, "/api/events", map[string]any{"name": "Room", "is_live": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var event models.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &event))
	return event
}

func submission(title string) map[string]any {
	return map[string]any{
		"artist_name": "A",
		"track_title": title,
		"file_url":    "https://cdn.example.com/" + title + ".mp3",
	}
}

func TestServer_RoutesAndRateLimit(t *testing.T) {
	srv, err := New(testConfig(), setupTestDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	event := createLiveEvent(t, srv.Handler())
	submitPath := "/api/events/" + event.ID.String() + "/submissions"

	for _, title := range []string{"one", "two", "three"} {
		w = post(t, srv.Handler(), submitPath, submission(title))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	}

	w = post(t, srv.Handler(), submitPath, submission("four"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// the host budget is separate from the submission budget
	w = post(t, srv.Handler(), "/api/events/"+event.ID.String()+"/live", map[string]any{"is_live": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
}

func TestServer_ForwardedForIgnoredWithoutTrustedProxy(t *testing.T) {
	srv, err := New(testConfig(), setupTestDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	event := createLiveEvent(t, srv.Handler())
	submitPath := "/api/events/" + event.ID.String() + "/submissions"

	// a fresh forwarded address per request must not buy a fresh budget
	for i, title := range []string{"one", "two", "three"} {
		w := postFrom(t, srv.Handler(), fmt.Sprintf("203.0.113.%d", i+1), submitPath, submission(title))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	w := postFrom(t, srv.Handler(), "203.0.113.99", submitPath, submission("four"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestServer_ForwardedForHonoredFromTrustedProxy(t *testing.T) {
	cfg := testConfig()
	// httptest requests arrive from 192.0.2.1
	cfg.Server.TrustedProxies = []string{"192.0.2.0/24"}
	srv, err := New(cfg, setupTestDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	event := createLiveEvent(t, srv.Handler())
	submitPath := "/api/events/" + event.ID.String() + "/submissions"

	for i, title := range []string{"one", "two", "three", "four", "five"} {
		w := postFrom(t, srv.Handler(), fmt.Sprintf("203.0.113.%d", i+1), submitPath, submission(title))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
}

func TestServer_RejectsInvalidTrustedProxy(t *testing.T) {
	cfg := testConfig()
	cfg.Server.TrustedProxies = []string{"not-an-ip"}
	_, err := New(cfg, setupTestDB(t))
	assert.Error(t, err)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	database := setupTestDB(t)
	srv, err := New(testConfig(), database)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	// Queue an audit entry so shutdown has something to flush
	event := createLiveEvent(t, srv.Handler())
	w := post(t, srv.Handler(), "/api/events/"+event.ID.String()+"/submissions", submission("t"))
	require.Equal(t, http.StatusCreated, w.Code)

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	logs, err := db.NewRepositories(database).EventLogs.ListByEvent(context.Background(), event.ID, 10, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)
}
