package app

import (
	"context"

	"github.com/gin-gonic/gin"

	httpapi "github.com/turtacn/lupa/internal/interfaces/http"
	"github.com/turtacn/lupa/internal/interfaces/http/handlers"
	"github.com/turtacn/lupa/internal/interfaces/http/middleware"
)

// Router builds the API route tree over the app's service. The gin mode is
// taken from server.mode.
func (a *App) Router() *gin.Engine {
	httpapi.SetMode(a.Config.Server.Mode)

	cfg := httpapi.RouterConfig{
		MatchHandler:  handlers.NewMatchHandler(a.Service, handlers.DefaultMaxBatchSize),
		ModelHandler:  handlers.NewModelHandler(a.Service),
		HealthHandler: handlers.NewHealthHandler(Version, a.checkers...),
		Logger:        a.Logger,
		Logging:       middleware.DefaultLoggingConfig(),
		MaxBodySize:   a.Config.Server.MaxBodySize,
	}
	if len(a.Config.Server.CORSOrigins) > 0 {
		cors := middleware.DefaultCORSConfig()
		cors.AllowedOrigins = a.Config.Server.CORSOrigins
		cors.AllowWildcard = true
		cfg.CORS = &cors
	}
	if rl := a.Config.Server.RateLimit; rl.RequestsPerSecond > 0 {
		cfg.RateLimiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
		})
	}
	a.withMetrics(&cfg)
	return httpapi.NewRouter(cfg)
}

func (a *App) withMetrics(cfg *httpapi.RouterConfig) {
	if a.Metrics == nil {
		return
	}
	cfg.Recorder = a.Metrics
	cfg.MetricsPath = a.Config.Metrics.Path
	cfg.MetricsHandler = a.Collector.Handler()
}

// Serve runs the HTTP API until ctx is done, keeping the model fresh in
// the background.
func (a *App) Serve(ctx context.Context) error {
	a.Background(ctx)
	srv := httpapi.NewServer(a.Config.Server, a.Router(), a.Logger)
	return srv.Run(ctx)
}
