// Package http exposes the extraction service over a JSON API.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lupa/internal/interfaces/http/handlers"
	"github.com/turtacn/lupa/internal/interfaces/http/middleware"
	"github.com/turtacn/lupa/pkg/errors"
)

// RouterConfig collects the handlers and middleware dependencies of the
// route tree. Nil optional members are skipped.
type RouterConfig struct {
	MatchHandler  *handlers.MatchHandler
	ModelHandler  *handlers.ModelHandler
	HealthHandler *handlers.HealthHandler

	Logger      logging.Logger
	Recorder    middleware.HTTPRecorder
	RateLimiter *middleware.RateLimiter
	CORS        *middleware.CORSConfig
	Logging     middleware.LoggingConfig

	// MetricsPath mounts MetricsHandler when both are set.
	MetricsPath    string
	MetricsHandler http.Handler
	// MaxBodySize caps request bodies in bytes. Zero means unlimited.
	MaxBodySize int64
}

// NewRouter builds the gin engine serving the health probes, the metrics
// endpoint and the /api/v1 group.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(log), middleware.RequestLogging(log, cfg.Logging))
	if cfg.Recorder != nil {
		r.Use(middleware.Metrics(cfg.Recorder))
	}
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	if cfg.MaxBodySize > 0 {
		r.Use(limitBody(cfg.MaxBodySize))
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsPath != "" && cfg.MetricsHandler != nil {
		r.GET(cfg.MetricsPath, gin.WrapH(cfg.MetricsHandler))
	}

	api := r.Group("/api/v1")
	if cfg.RateLimiter != nil {
		api.Use(middleware.RateLimit(cfg.RateLimiter))
	}
	if h := cfg.MatchHandler; h != nil {
		api.POST("/match", h.Match)
		api.POST("/match/batch", h.MatchBatch)
		api.POST("/tokenize", h.Tokenize)
	}
	if h := cfg.ModelHandler; h != nil {
		model := api.Group("/model")
		model.GET("", h.Info)
		model.GET("/warnings", h.Warnings)
		model.GET("/patterns", h.Patterns)
		model.POST("/reload", h.Reload)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{
			Code:      errors.ErrCodeNotFound.String(),
			Message:   "route not found",
			RequestID: middleware.GetRequestID(c),
		})
	})
	return r
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
