package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// eventLocks serializes mutations per event. Each event gets a one-slot
// channel that is created on first use and dropped when no caller holds or
// waits for it.
type eventLocks struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newEventLocks() *eventLocks {
	return &eventLocks{slots: make(map[uuid.UUID]*lockSlot)}
}

// acquire blocks until the event slot is free or ctx is done. The returned
// func releases the slot and must be called exactly once.
func (l *eventLocks) acquire(ctx context.Context, eventID uuid.UUID) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[eventID]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[eventID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		return func() {
			<-slot.ch
			l.unref(eventID, slot)
		}, nil
	case <-ctx.Done():
		l.unref(eventID, slot)
		return nil, ctx.Err()
	}
}

func (l *eventLocks) unref(eventID uuid.UUID, slot *lockSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, eventID)
	}
}

// size returns the number of events with a live slot
func (l *eventLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
