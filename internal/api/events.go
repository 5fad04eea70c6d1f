package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/lecturesfrom/internal/queue"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultLogLimit       = 100
	maxLogLimit           = 1000
)

// QueueHandler handles event, submission and queue requests
type QueueHandler struct {
	service *queue.QueueService
	timeout time.Duration
}

// NewQueueHandler creates a new queue handler instance
func NewQueueHandler(service *queue.QueueService, timeout time.Duration) *QueueHandler {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &QueueHandler{service: service, timeout: timeout}
}

func (h *QueueHandler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

// CreateEvent handles POST /api/events
func (h *QueueHandler) CreateEvent(c *gin.Context) {
	var cmd queue.CreateEventCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	event, err := h.service.CreateEvent(ctx, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// GetEvent handles GET /api/events/:id
func (h *QueueHandler) GetEvent(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	event, err := h.service.GetEvent(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// GetEventByToken handles GET /api/tokens/:token
func (h *QueueHandler) GetEventByToken(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	event, err := h.service.GetEventByToken(ctx, c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// GetEventLog handles GET /api/events/:id/log?limit=&before=
func (h *QueueHandler) GetEventLog(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxLogLimit {
			badRequest(c, "limit must be between 1 and "+strconv.Itoa(maxLogLimit))
			return
		}
		limit = n
	}

	var before int64
	if raw := c.Query("before"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			badRequest(c, "before must be a positive log entry id")
			return
		}
		before = n
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	page, err := h.service.EventLog(ctx, id, limit, before)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// SetLive handles POST /api/events/:id/live
func (h *QueueHandler) SetLive(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var cmd queue.SetLiveCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err.Error())
		return
	}
	cmd.EventID = id

	ctx, cancel := h.requestContext(c)
	defer cancel()

	event, err := h.service.SetLive(ctx, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// AppendLog handles POST /api/log
func (h *QueueHandler) AppendLog(c *gin.Context) {
	var cmd queue.LogCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	entry, err := h.service.AppendLog(ctx, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}
