package notify

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stwalsh4118/lecturesfrom/internal/logger"
)

// ErrHubClosed is returned when subscribing to a closed hub
var ErrHubClosed = errors.New("notifier is closed")

const defaultBufferSize = 64

// Forwarder receives locally published changes after local delivery
type Forwarder func(changes []Change)

// Hub is an in-process publish/subscribe channel keyed by event id.
//
// Publish assigns a per-event sequence number and delivers to every
// subscriber of that event in call order. A subscriber whose buffer is full
// is dropped and flagged as lagged instead of blocking the publisher.
type Hub struct {
	mu         sync.Mutex
	bufferSize int
	seqs       map[uuid.UUID]uint64
	subs       map[uuid.UUID]map[*Subscription]struct{}
	forward    Forwarder
	closed     bool
}

// Subscription is one subscriber's view of an event
type Subscription struct {
	EventID uuid.UUID
	// C is closed when the subscription ends
	C <-chan Change

	ch     chan Change
	hub    *Hub
	lagged atomic.Bool
	once   sync.Once
}

// NewHub creates a hub with the given per-subscriber buffer size
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		bufferSize: bufferSize,
		seqs:       make(map[uuid.UUID]uint64),
		subs:       make(map[uuid.UUID]map[*Subscription]struct{}),
	}
}

// SetForwarder registers the function that relays published changes to
// other instances
func (h *Hub) SetForwarder(fn Forwarder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forward = fn
}

// Subscribe registers a subscriber for one event
func (h *Hub) Subscribe(eventID uuid.UUID) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	ch := make(chan Change, h.bufferSize)
	sub := &Subscription{EventID: eventID, C: ch, ch: ch, hub: h}
	if h.subs[eventID] == nil {
		h.subs[eventID] = make(map[*Subscription]struct{})
	}
	h.subs[eventID][sub] = struct{}{}

	logger.Log.Debug().
		Str("event_id", eventID.String()).
		Int("subscribers", len(h.subs[eventID])).
		Msg("Subscriber added")

	return sub, nil
}

// Close ends the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s)
}

// Lagged reports whether the subscription was dropped for falling behind
func (s *Subscription) Lagged() bool {
	return s.lagged.Load()
}

// removeLocked detaches and closes a subscription (must hold lock)
func (h *Hub) removeLocked(s *Subscription) {
	s.once.Do(func() {
		if set, ok := h.subs[s.EventID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.EventID)
			}
		}
		close(s.ch)
	})
}

// Publish assigns sequence numbers to changes of one event, delivers them
// locally and hands them to the forwarder. It returns the stamped changes.
func (h *Hub) Publish(eventID uuid.UUID, changes ...Change) []Change {
	stamped, forward := h.dispatch(eventID, changes)
	if forward != nil && len(stamped) > 0 {
		forward(stamped)
	}
	return stamped
}

// Deliver hands changes received from another instance to local
// subscribers. They are resequenced locally and not forwarded again.
func (h *Hub) Deliver(change Change) {
	h.dispatch(change.EventID, []Change{change})
}

func (h *Hub) dispatch(eventID uuid.UUID, changes []Change) ([]Change, Forwarder) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || len(changes) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	stamped := make([]Change, 0, len(changes))
	for _, c := range changes {
		h.seqs[eventID]++
		c.EventID = eventID
		c.Seq = h.seqs[eventID]
		if c.At.IsZero() {
			c.At = now
		}
		stamped = append(stamped, c)
	}

	for sub := range h.subs[eventID] {
		for _, c := range stamped {
			select {
			case sub.ch <- c:
				continue
			default:
			}
			sub.lagged.Store(true)
			logger.Log.Warn().
				Str("event_id", eventID.String()).
				Uint64("seq", c.Seq).
				Msg("Dropping lagging subscriber")
			h.removeLocked(sub)
			break
		}
	}

	return stamped, h.forward
}

// LastSeq returns the sequence number of the last change published for an event
func (h *Hub) LastSeq(eventID uuid.UUID) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seqs[eventID]
}

// SubscriberCount returns the number of live subscribers for an event
func (h *Hub) SubscriberCount(eventID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[eventID])
}

// Close drops every subscriber and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, set := range h.subs {
		for sub := range set {
			h.removeLocked(sub)
		}
	}
}
