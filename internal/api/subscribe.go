package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stwalsh4118/lecturesfrom/internal/logger"
	"github.com/stwalsh4118/lecturesfrom/internal/notify"
	"github.com/stwalsh4118/lecturesfrom/internal/queue"
)

const maxClientMessageSize = 1024

// Stream message types
const (
	StreamSnapshot = "snapshot"
	StreamChange   = "change"
	StreamResync   = "resync"
)

// StreamConfig holds subscription and request timing
type StreamConfig struct {
	RequestTimeout time.Duration
	PingInterval   time.Duration
	WriteWait      time.Duration
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	return c
}

// StreamMessage is one frame sent to a subscriber.
// A snapshot comes first; changes with Seq at or below the snapshot's Seq are
// already reflected in it. A resync frame means changes were missed and the
// client must reconnect to get a fresh snapshot.
type StreamMessage struct {
	Type   string            `json:"type"`
	Seq    uint64            `json:"seq"`
	State  *queue.QueueState `json:"state,omitempty"`
	Change *notify.Change    `json:"change,omitempty"`
}

// SubscribeHandler streams an event's changes over a websocket
type SubscribeHandler struct {
	service  *queue.QueueService
	hub      *notify.Hub
	cfg      StreamConfig
	upgrader websocket.Upgrader
}

// NewSubscribeHandler creates a new subscription handler
func NewSubscribeHandler(service *queue.QueueService, hub *notify.Hub, cfg StreamConfig) *SubscribeHandler {
	return &SubscribeHandler{
		service: service,
		hub:     hub,
		cfg:     cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Subscribe handles GET /api/events/:id/subscribe
func (h *SubscribeHandler) Subscribe(c *gin.Context) {
	eventID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	if _, err := h.service.GetEvent(ctx, eventID); err != nil {
		cancel()
		respondError(c, err)
		return
	}
	cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written an HTTP error
		logger.Log.Warn().Err(err).Str("event_id", eventID.String()).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	// subscribe before reading state so nothing committed in between is lost
	sub, err := h.hub.Subscribe(eventID)
	if err != nil {
		h.closeWith(conn, websocket.CloseTryAgainLater, "notifier unavailable")
		return
	}
	defer sub.Close()

	ctx, cancel = context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	state, err := h.service.State(ctx, eventID)
	cancel()
	if err != nil {
		h.closeWith(conn, websocket.CloseTryAgainLater, "state unavailable")
		return
	}

	if err := h.write(conn, StreamMessage{Type: StreamSnapshot, Seq: state.Seq, State: state}); err != nil {
		return
	}

	logger.Log.Info().
		Str("event_id", eventID.String()).
		Uint64("seq", state.Seq).
		Msg("Subscriber connected")

	closed := make(chan struct{})
	go h.readPump(conn, closed)

	h.writePump(conn, sub, state.Seq, closed)

	logger.Log.Info().
		Str("event_id", eventID.String()).
		Bool("lagged", sub.Lagged()).
		Msg("Subscriber disconnected")
}

// readPump discards client frames and signals when the connection goes away
func (h *SubscribeHandler) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	pongWait := h.cfg.PingInterval * 2
	conn.SetReadLimit(maxClientMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Log.Debug().Err(err).Msg("Subscriber read error")
			}
			return
		}
	}
}

func (h *SubscribeHandler) writePump(conn *websocket.Conn, sub *notify.Subscription, after uint64, closed <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case change, ok := <-sub.C:
			if !ok {
				if sub.Lagged() {
					_ = h.write(conn, StreamMessage{Type: StreamResync, Seq: after})
					h.closeWith(conn, websocket.CloseTryAgainLater, "subscriber lagged")
				} else {
					h.closeWith(conn, websocket.CloseGoingAway, "server shutting down")
				}
				return
			}
			if change.Seq <= after {
				continue
			}
			after = change.Seq
			if err := h.write(conn, StreamMessage{Type: StreamChange, Seq: change.Seq, Change: &change}); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-closed:
			return
		}
	}
}

func (h *SubscribeHandler) write(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
	return conn.WriteJSON(msg)
}

func (h *SubscribeHandler) closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(h.cfg.WriteWait))
}
