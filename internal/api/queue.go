package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/lecturesfrom/internal/notify"
	"github.com/stwalsh4118/lecturesfrom/internal/queue"
)

// Submit handles POST /api/events/:id/submissions
func (h *QueueHandler) Submit(c *gin.Context) {
	eventID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var cmd queue.SubmitCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err.Error())
		return
	}
	cmd.EventID = eventID

	ctx, cancel := h.requestContext(c)
	defer cancel()

	sub, err := h.service.Submit(ctx, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// GetSubmission handles GET /api/submissions/:id
func (h *QueueHandler) GetSubmission(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	sub, err := h.service.GetSubmission(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Approve handles POST /api/queue/approve
func (h *QueueHandler) Approve(c *gin.Context) {
	var cmd queue.ApproveCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	sub, err := h.service.Approve(ctx, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Play handles POST /api/queue/play
func (h *QueueHandler) Play(c *gin.Context) {
	var cmd queue.PlayCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	sub, err := h.service.Play(ctx, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Skip handles POST /api/queue/skip
func (h *QueueHandler) Skip(c *gin.Context) {
	var cmd queue.SkipCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	sub, err := h.service.Skip(ctx, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// Reorder handles POST /api/queue/reorder
func (h *QueueHandler) Reorder(c *gin.Context) {
	var cmd queue.ReorderCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	active, err := h.service.Reorder(ctx, cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": active})
}

// GetQueue handles GET /api/events/:id/queue
func (h *QueueHandler) GetQueue(c *gin.Context) {
	eventID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	state, err := h.service.State(ctx, eventID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// GetNowPlaying handles GET /api/events/:id/now-playing
func (h *QueueHandler) GetNowPlaying(c *gin.Context) {
	eventID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	sub, err := h.service.NowPlaying(ctx, eventID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_id": eventID, "submission": sub})
}

// RouteLimits holds the middleware applied to mutating routes. Fan runs on
// the public submission and log routes, Host on event management and queue
// actions, so a flood of submissions cannot lock the host out.
type RouteLimits struct {
	Fan  []gin.HandlerFunc
	Host []gin.HandlerFunc
}

// SetupQueueRoutes registers event, submission, queue and subscription routes.
func SetupQueueRoutes(apiGroup *gin.RouterGroup, service *queue.QueueService, hub *notify.Hub, stream StreamConfig, limits RouteLimits) {
	handler := NewQueueHandler(service, stream.RequestTimeout)
	subscriber := NewSubscribeHandler(service, hub, stream)

	fan := apiGroup.Group("", limits.Fan...)
	host := apiGroup.Group("", limits.Host...)

	events := apiGroup.Group("/events")
	{
		events.GET("/:id", handler.GetEvent)
		events.GET("/:id/queue", handler.GetQueue)
		events.GET("/:id/now-playing", handler.GetNowPlaying)
		events.GET("/:id/log", handler.GetEventLog)
		events.GET("/:id/subscribe", subscriber.Subscribe)
	}
	apiGroup.GET("/tokens/:token", handler.GetEventByToken)
	apiGroup.GET("/submissions/:id", handler.GetSubmission)

	fan.POST("/events/:id/submissions", handler.Submit)
	fan.POST("/log", handler.AppendLog)

	host.POST("/events", handler.CreateEvent)
	host.POST("/events/:id/live", handler.SetLive)
	host.POST("/queue/approve", handler.Approve)
	host.POST("/queue/play", handler.Play)
	host.POST("/queue/skip", handler.Skip)
	host.POST("/queue/reorder", handler.Reorder)
}
