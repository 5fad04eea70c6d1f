package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stwalsh4118/lecturesfrom/internal/db"
)

const healthCheckTimeout = 2 * time.Second

// HealthResponse represents the response from the health check endpoint
type HealthResponse struct {
	Status   string                 `json:"status"`
	Database string                 `json:"database"`
	Redis    string                 `json:"redis,omitempty"`
	Time     string                 `json:"time"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db    *db.DB
	redis *redis.Client
}

// NewHealthHandler creates a new health check handler. redisClient may be nil.
func NewHealthHandler(database *db.DB, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{db: database, redis: redisClient}
}

// Check handles GET /api/health
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	response := HealthResponse{
		Status:   "ok",
		Database: "healthy",
		Time:     time.Now().UTC().Format(time.RFC3339),
		Details:  make(map[string]interface{}),
	}
	status := http.StatusOK

	if err := h.db.Health(ctx); err != nil {
		response.Status = "degraded"
		response.Database = "unhealthy"
		response.Details["database_error"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	// Redis only carries fan-out and shared counters, so losing it degrades without failing
	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			response.Status = "degraded"
			response.Redis = "unhealthy"
			response.Details["redis_error"] = err.Error()
		} else {
			response.Redis = "healthy"
		}
	}

	c.JSON(status, response)
}

// SetupHealthRoutes registers health check routes
func SetupHealthRoutes(apiGroup *gin.RouterGroup, database *db.DB, redisClient *redis.Client) {
	handler := NewHealthHandler(database, redisClient)
	apiGroup.GET("/health", handler.Check)
}
