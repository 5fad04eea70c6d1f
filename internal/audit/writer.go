// Package audit writes the append-only event log off the request path.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/lecturesfrom/internal/logger"
	"github.com/stwalsh4118/lecturesfrom/internal/models"
)

const writeTimeout = 5 * time.Second

// Store persists event log entries
type Store interface {
	Create(ctx context.Context, entry *models.EventLog) error
}

// PruneStore removes old event log entries
type PruneStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Writer buffers event log entries and writes them from a single worker.
// Record never blocks: when the buffer is full the entry is dropped and
// logged. Write failures are logged and never retried.
type Writer struct {
	store   Store
	entries chan *models.EventLog
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewWriter starts a writer with the given buffer size
func NewWriter(store Store, bufferSize int) *Writer {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	w := &Writer{
		store:   store,
		entries: make(chan *models.EventLog, bufferSize),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Record queues an entry for writing
func (w *Writer) Record(eventID uuid.UUID, action string, payload map[string]any) {
	entry := models.NewEventLog(eventID, action, payload)

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.drop(entry, "writer closed")
		return
	}

	select {
	case w.entries <- entry:
	default:
		w.drop(entry, "buffer full")
	}
}

func (w *Writer) drop(entry *models.EventLog, reason string) {
	w.dropped.Add(1)
	logger.Log.Warn().
		Str("event_id", entry.EventID.String()).
		Str("action", entry.Action).
		Str("reason", reason).
		Msg("Event log entry dropped")
}

func (w *Writer) run() {
	defer close(w.done)
	for entry := range w.entries {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := w.store.Create(ctx, entry)
		cancel()
		if err != nil {
			w.failed.Add(1)
			logger.Log.Error().
				Err(err).
				Str("event_id", entry.EventID.String()).
				Str("action", entry.Action).
				Msg("Failed to write event log entry")
			continue
		}
		w.written.Add(1)
	}
}

// Close stops accepting entries and waits for the buffer to drain or ctx to end
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.entries)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports how many entries were written, dropped and failed
func (w *Writer) Stats() (written, dropped, failed uint64) {
	return w.written.Load(), w.dropped.Load(), w.failed.Load()
}

// Prune deletes entries older than retention
func Prune(ctx context.Context, store PruneStore, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	removed, err := store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logger.Log.Info().
			Int64("removed", removed).
			Time("cutoff", cutoff).
			Msg("Pruned event log")
	}
	return removed, nil
}
