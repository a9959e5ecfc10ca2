package bootstrap

import (
	"strings"

	"mediasvc/internal/config"
	"mediasvc/internal/server/app"
	serverHTTP "mediasvc/internal/server/http"
)

// MediaConfig maps the loaded configuration onto the service limits.
func MediaConfig(cfg config.Config) app.MediaConfig {
	return app.MediaConfig{
		MaxFileSize:       cfg.Media.MaxFileSize,
		MaxFiles:          cfg.Media.MaxFiles,
		UploadConcurrency: cfg.Media.UploadConcurrency,
		BasePath:          cfg.Media.BasePath,
		CacheSize:         cfg.Media.CacheSize,
		MetadataTTL:       cfg.Media.MetadataTTL,
		StatsTTL:          cfg.Media.StatsTTL,
	}
}

// RouterConfig maps the server section onto the HTTP layer settings.
func RouterConfig(cfg config.Config) serverHTTP.RouterConfig {
	return serverHTTP.RouterConfig{
		AllowedOrigins: normalizeAllowedOrigins(cfg.Server.AllowedOrigins),
		RateLimit: serverHTTP.RateLimitConfig{
			RequestsPerMinute: cfg.Server.RateLimitRPM,
			Burst:             cfg.Server.RateLimitBurst,
		},
		UploadTimeout: cfg.Server.UploadTimeout,
		StreamGuard: serverHTTP.StreamGuardConfig{
			MaxConcurrent: cfg.Server.MaxStreams,
			MaxDuration:   cfg.Server.StreamMaxDuration,
		},
		Debug:      cfg.Server.Debug,
		LatencyLog: cfg.Server.LatencyLog,
	}
}

// normalizeAllowedOrigins trims entries, splits comma separated values coming
// from a single environment variable and drops duplicates.
func normalizeAllowedOrigins(origins []string) []string {
	normalized := make([]string, 0, len(origins))
	seen := make(map[string]struct{}, len(origins))
	for _, raw := range origins {
		for _, origin := range strings.Split(raw, ",") {
			origin = strings.TrimSpace(origin)
			if origin == "" {
				continue
			}
			if _, ok := seen[origin]; ok {
				continue
			}
			seen[origin] = struct{}{}
			normalized = append(normalized, origin)
		}
	}
	return normalized
}
