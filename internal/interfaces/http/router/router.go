// Package router assembles the gin engine of the API gateway.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kb-rag-api/internal/config"
	"kb-rag-api/internal/interfaces/http/handler"
	"kb-rag-api/internal/interfaces/http/middleware"
)

// Handlers groups everything the routes dispatch to.
type Handlers struct {
	Health    *handler.HealthHandler
	Chat      *handler.ChatHandler
	Documents *handler.DocumentHandler
	Ephemeral *handler.EphemeralHandler
}

type Router struct {
	engine  *gin.Engine
	cfg     *config.Config
	h       Handlers
	limiter middleware.RateLimiter
}

// New builds the engine. limiter may be nil, which disables rate limiting.
func New(cfg *config.Config, h Handlers, limiter middleware.RateLimiter) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:  gin.New(),
		cfg:     cfg,
		h:       h,
		limiter: limiter,
	}
	r.engine.MaxMultipartMemory = cfg.Ephemeral.MaxFileBytes()

	r.setupMiddleware()
	r.setupRoutes()
	return r
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.CORS(r.cfg.Security.CORS))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.h.Health.Health)
	r.engine.GET("/ready", r.h.Health.Ready)
	r.engine.GET("/live", r.h.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/v1")
	v1.Use(middleware.RateLimit(r.cfg.Security.RateLimit, r.limiter))
	RegisterV1Routes(v1, r.h)
}

// RegisterV1Routes mounts the versioned API on group.
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers) {
	v1.POST("/chat", h.Chat.Chat)

	conversations := v1.Group("/conversations")
	{
		conversations.GET("/:id", h.Chat.History)
		conversations.DELETE("/:id", h.Chat.Reset)
	}

	documents := v1.Group("/documents")
	{
		documents.POST("", h.Documents.Ingest)
		documents.POST("/batch", h.Documents.IngestBatch)
		documents.POST("/async", h.Documents.IngestAsync)
		documents.GET("", h.Documents.List)
		documents.GET("/catalog", h.Documents.Catalog)
		documents.DELETE("", h.Documents.Clear)
		documents.DELETE("/:source", h.Documents.Delete)
	}
	v1.DELETE("/categories/:category", h.Documents.DeleteCategory)
	v1.GET("/stats", h.Documents.Stats)

	eph := v1.Group("/ephemeral")
	{
		eph.POST("", h.Ephemeral.Upload)
		eph.GET("/:id", h.Ephemeral.Get)
		eph.POST("/:id/ask", h.Ephemeral.Ask)
		eph.DELETE("/:id", h.Ephemeral.Delete)
	}
}
