// Package server provides the HTTP server setup and routing configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stwalsh4118/lecturesfrom/internal/api"
	"github.com/stwalsh4118/lecturesfrom/internal/audit"
	"github.com/stwalsh4118/lecturesfrom/internal/config"
	"github.com/stwalsh4118/lecturesfrom/internal/db"
	"github.com/stwalsh4118/lecturesfrom/internal/logger"
	"github.com/stwalsh4118/lecturesfrom/internal/middleware"
	"github.com/stwalsh4118/lecturesfrom/internal/notify"
	"github.com/stwalsh4118/lecturesfrom/internal/queue"
	"github.com/stwalsh4118/lecturesfrom/internal/ratelimit"
	"github.com/stwalsh4118/lecturesfrom/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 10 * time.Second
	fanLimitPrefix    = "lecturesfrom:ratelimit:fan:"
	hostLimitPrefix   = "lecturesfrom:ratelimit:host:"
	auditPruneTimeout = 30 * time.Second
)

// Server represents the HTTP server and the background workers it owns
type Server struct {
	config    *config.Config
	db        *db.DB
	repos     *db.Repositories
	redis     *redis.Client
	hub       *notify.Hub
	bridge    *notify.RedisBridge
	audit     *audit.Writer
	service   *queue.QueueService
	fanLimit  ratelimit.Limiter
	hostLimit ratelimit.Limiter
	scheduler *scheduler.Scheduler
	router    *gin.Engine
	server    *http.Server
}

// New creates a new server instance. Redis is only dialled when enabled.
func New(cfg *config.Config, database *db.DB) (*Server, error) {
	repos := db.NewRepositories(database)
	hub := notify.NewHub(cfg.Notifier.BufferSize)
	writer := audit.NewWriter(repos.EventLogs, cfg.Audit.BufferSize)

	s := &Server{
		config:  cfg,
		db:      database,
		repos:   repos,
		hub:     hub,
		audit:   writer,
		service: queue.NewQueueService(database, hub, writer, cfg.Queue.LockTimeout),
	}

	if cfg.Redis.Enabled {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.bridge = notify.NewRedisBridge(s.redis, hub, cfg.Redis.ChannelPrefix)
	}

	var jobs []scheduler.Job
	if cfg.RateLimit.Enabled {
		var fanJob, hostJob *scheduler.Job
		s.fanLimit, fanJob = s.newLimiter("fan", fanLimitPrefix, cfg.RateLimit.Requests)
		s.hostLimit, hostJob = s.newLimiter("host", hostLimitPrefix, cfg.RateLimit.HostRequests)
		for _, job := range []*scheduler.Job{fanJob, hostJob} {
			if job != nil {
				jobs = append(jobs, *job)
			}
		}
	}

	if cfg.Audit.Retention > 0 && cfg.Audit.PruneInterval > 0 {
		jobs = append(jobs, scheduler.Job{
			Name:  "audit-prune",
			Every: cfg.Audit.PruneInterval,
			Run: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, auditPruneTimeout)
				defer cancel()
				_, err := audit.Prune(ctx, repos.EventLogs, cfg.Audit.Retention)
				return err
			},
		})
	}

	sched, err := scheduler.New(jobs...)
	if err != nil {
		return nil, fmt.Errorf("failed to build scheduler: %w", err)
	}
	s.scheduler = sched

	if err := s.setupRouter(); err != nil {
		return nil, err
	}
	return s, nil
}

// newLimiter builds a limiter for one route budget. Counters live in Redis
// when it is enabled; otherwise they are in memory and swept on a schedule.
func (s *Server) newLimiter(name, prefix string, requests int) (ratelimit.Limiter, *scheduler.Job) {
	window := s.config.RateLimit.Window
	if s.redis != nil {
		return ratelimit.NewRedisLimiter(s.redis, prefix, requests, window), nil
	}
	memory := ratelimit.NewMemoryLimiter(requests, window)
	return memory, &scheduler.Job{
		Name:  "ratelimit-sweep-" + name,
		Every: window,
		Run: func(context.Context) error {
			memory.Sweep()
			return nil
		},
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter initializes the Gin router with middleware and routes
func (s *Server) setupRouter() error {
	if s.config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	// Limits key on the client IP, so forwarding headers only count from
	// configured proxies
	if err := s.router.SetTrustedProxies(s.config.Server.TrustedProxies); err != nil {
		return fmt.Errorf("invalid trusted proxies: %w", err)
	}
	s.router.Use(middleware.RequestLogger())
	s.router.Use(gin.Recovery())
	s.router.Use(cors.Default())

	var limits api.RouteLimits
	if s.fanLimit != nil {
		limits.Fan = append(limits.Fan, middleware.RateLimit(s.fanLimit))
	}
	if s.hostLimit != nil {
		limits.Host = append(limits.Host, middleware.RateLimit(s.hostLimit))
	}

	apiGroup := s.router.Group("/api")
	api.SetupHealthRoutes(apiGroup, s.db, s.redis)
	api.SetupQueueRoutes(apiGroup, s.service, s.hub, api.StreamConfig{
		RequestTimeout: s.config.Server.RequestTimeout,
		PingInterval:   s.config.Notifier.PingInterval,
		WriteWait:      s.config.Notifier.WriteWait,
	}, limits)
	return nil
}

// Run serves HTTP and runs the background workers until ctx is cancelled or
// one of them fails, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Log.Info().
			Str("host", s.config.Server.Host).
			Int("port", s.config.Server.Port).
			Bool("redis", s.redis != nil).
			Msg("Starting HTTP server")

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return s.scheduler.Run(gctx)
	})

	if s.bridge != nil {
		g.Go(func() error {
			if err := s.bridge.Run(gctx); err != nil {
				return fmt.Errorf("change relay: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown gracefully shuts down the server. Open subscriptions are closed
// and buffered event log entries are flushed before the connections go.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Log.Info().Msg("Shutting down server gracefully")

	var errs []error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	s.hub.Close()

	if err := s.audit.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("audit flush error: %w", err))
	}
	written, dropped, failed := s.audit.Stats()
	logger.Log.Info().
		Uint64("written", written).
		Uint64("dropped", dropped).
		Uint64("failed", failed).
		Msg("Event log writer stopped")

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	logger.Log.Info().Msg("Server stopped")
	return errors.Join(errs...)
}
