package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/AnTengye/leaseflow/config"
	"github.com/AnTengye/leaseflow/handler"
	"github.com/AnTengye/leaseflow/middleware"
	"github.com/AnTengye/leaseflow/service"
)

// app holds the wired services behind the HTTP API.
type app struct {
	cfg     *config.Config
	orch    *service.Orchestrator
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	repo, err := a.repository(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = service.NewRedisClient(&cfg.Redis)
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { rdb.Close() })
	}

	var guard service.InflightGuard = service.NewLocalGuard()
	if rdb != nil {
		guard = service.NewRedisGuard(rdb, cfg.Redis.LockTTL)
		slog.Info("in-flight guard initialized", "backend", "redis", "ttl", cfg.Redis.LockTTL)
	}

	notifier, err := a.notifier(rdb)
	if err != nil {
		a.Close()
		return nil, err
	}

	var signatures service.SignatureStore
	if cfg.Minio.Endpoint != "" {
		store, err := service.NewMinioSignatureStore(&cfg.Minio)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			a.Close()
			return nil, err
		}
		signatures = store
	} else {
		slog.Warn("no signature store configured, signature capture is disabled")
	}

	a.orch = service.NewOrchestrator(repo, guard, notifier, signatures)
	return a, nil
}

func (a *app) repository(ctx context.Context) (service.ContractRepository, error) {
	switch a.cfg.Store.Driver {
	case "memory":
		return service.NewMemoryStore(), nil
	case "postgres":
		db, err := service.OpenPostgres(&a.cfg.Store)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { db.Close() })
		store := service.NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		slog.Info("contract store initialized", "driver", "postgres")
		return store, nil
	case "remote":
		if a.cfg.Store.RemoteURL == "" {
			return nil, fmt.Errorf("store.remote_url is required for the remote driver")
		}
		slog.Info("contract store initialized", "driver", "remote", "url", a.cfg.Store.RemoteURL)
		return service.NewRemoteStore(&a.cfg.Store), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
}

func (a *app) notifier(rdb *redis.Client) (service.Notifier, error) {
	var sinks service.Notifiers
	for _, sink := range a.cfg.Notify.Sinks {
		switch sink {
		case "log":
			sinks = append(sinks, service.LogNotifier{})
		case "redis":
			if rdb == nil {
				return nil, fmt.Errorf("notify sink redis needs redis.addr")
			}
			sinks = append(sinks, service.NewRedisStreamNotifier(rdb, a.cfg.Notify.Stream))
		case "mqtt":
			client, err := service.NewMQTTClient(&a.cfg.MQTT)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, func(c mqtt.Client) func() {
				return func() { c.Disconnect(250) }
			}(client))
			sinks = append(sinks, service.NewMQTTNotifier(client, a.cfg.MQTT.TopicPrefix))
		default:
			return nil, fmt.Errorf("unknown notify sink %q", sink)
		}
	}
	return sinks, nil
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Router builds the HTTP API.
func (a *app) Router() *gin.Engine {
	authHandler := handler.NewAuthHandler(a.cfg)
	contractHandler := handler.NewContractHandler(a.orch)
	eventsHandler := handler.NewEventsHandler(a.orch, a.cfg.Events.Secret)
	limiter := middleware.NewRateLimiter(a.cfg.Server.RateLimit, time.Minute)

	router := gin.New()

	router.Use(middleware.RequestID())     // Request ID for tracing
	router.Use(middleware.Recovery())      // Panic recovery
	router.Use(middleware.RequestLogger()) // Access logging
	router.Use(corsMiddleware())           // CORS
	router.Use(noStoreMiddleware())        // Cache control

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"store":     a.cfg.Store.Driver,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Public routes, limited per client IP
	api := router.Group("/api")
	public := api.Group("/")
	public.Use(middleware.RateLimitWith(limiter))
	{
		public.POST("/auth/login", authHandler.Login)
		public.POST("/events/counterpart", eventsHandler.HandleCounterpart)
	}

	// Protected routes, limited per account
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&a.cfg.Auth))
	protected.Use(middleware.RateLimitWith(limiter))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.POST("/contracts", contractHandler.Create)
		protected.GET("/contracts", contractHandler.List)
		protected.GET("/contracts/:id", contractHandler.Get)
		protected.GET("/contracts/:id/actions", contractHandler.Actions)
		protected.POST("/contracts/:id/actions/:action", contractHandler.Perform)
		protected.POST("/contracts/:id/signature", contractHandler.CaptureSignature)
		protected.GET("/contracts/:id/confirmations", contractHandler.GetConfirmation)
		protected.POST("/contracts/:id/confirmations", contractHandler.OpenConfirmation)
		protected.POST("/contracts/:id/confirmations/commit", contractHandler.CommitConfirmation)
		protected.DELETE("/contracts/:id/confirmations", contractHandler.CancelConfirmation)
	}

	return router
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// noStoreMiddleware keeps contract state out of shared caches
func noStoreMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Next()
	}
}
