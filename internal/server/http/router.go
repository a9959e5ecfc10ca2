package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"mediasvc/internal/logging"
	"mediasvc/internal/media"
	"mediasvc/internal/observability"
	"mediasvc/internal/server/app"
)

// LegacyBasePath keeps the short /media prefix reachable next to the configured base path.
const LegacyBasePath = "/media"

const defaultMaxMultipartMemory = 8 << 20

// RouterConfig configures the HTTP surface.
type RouterConfig struct {
	AllowedOrigins []string
	RateLimit      RateLimitConfig
	UploadTimeout  time.Duration
	StreamGuard    StreamGuardConfig
	Debug          bool
	// LatencyLog enables one latency line per request.
	LatencyLog bool
}

// NewRouter creates the HTTP handler serving the media API.
func NewRouter(service *app.MediaService, cfg RouterConfig, obs *observability.Observability) http.Handler {
	logger := logging.NewComponentLogger("Router")
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.UseRawPath = true
	engine.UnescapePathValues = true
	engine.MaxMultipartMemory = defaultMaxMultipartMemory
	engine.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.FromContext(c.Request.Context(), logger).Error("Panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, apiError{Message: "Internal server error", Code: media.CodeInternal})
	}))
	engine.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	engine.Use(routeAnnotation(), identity())
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, apiError{Message: "Route not found", Code: "NOT_FOUND"})
	})

	handler := NewMediaHandler(service, WithHandlerObservability(obs))
	basePath := service.Config().BasePath
	handler.register(engine.Group(basePath))
	if basePath != LegacyBasePath {
		handler.register(engine.Group(LegacyBasePath))
	}

	var latencyLogger logging.Logger
	if cfg.LatencyLog {
		latencyLogger = logging.NewLatencyLogger("HTTP")
	}

	var h http.Handler = engine
	h = UploadTimeoutMiddleware(cfg.UploadTimeout)(h)
	h = StreamGuardMiddleware(cfg.StreamGuard)(h)
	h = RateLimitMiddleware(cfg.RateLimit)(h)
	h = ObservabilityMiddleware(obs, latencyLogger)(h)
	h = LoggingMiddleware(logging.NewComponentLogger("HTTP"))(h)
	h = RequestIDMiddleware(h)
	return RouteContextMiddleware(h)
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{"GET", "HEAD", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Range", "If-None-Match", headerUserID, headerRequestID}
	config.ExposeHeaders = []string{"Content-Length", "Content-Range", "Accept-Ranges", "ETag", headerRequestID}
	config.MaxAge = 12 * time.Hour

	trimmed := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			trimmed = nil
			break
		}
		if origin != "" {
			trimmed = append(trimmed, origin)
		}
	}
	if len(trimmed) == 0 {
		config.AllowAllOrigins = true
		return config
	}
	config.AllowOrigins = trimmed
	return config
}

func isUploadPath(path string) bool {
	return strings.HasSuffix(path, "/upload") || strings.HasSuffix(path, "/upload-multiple")
}
