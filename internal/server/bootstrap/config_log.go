package bootstrap

import (
	"errors"
	"os"
	"time"

	"mediasvc/internal/config"
	"mediasvc/internal/logging"
	"mediasvc/internal/observability"
	"mediasvc/internal/server/app"
)

// LogServerConfiguration prints a redacted snapshot of the loaded configuration.
func LogServerConfiguration(logger logging.Logger, cfg config.Config) {
	logger = logging.OrNop(logger)

	logger.Info("=== Server Configuration ===")
	if cfg.Source != "" {
		logger.Info("Config file: %s", cfg.Source)
		if info, err := os.Stat(cfg.Source); err == nil {
			logger.Info("Config mtime: %s", info.ModTime().UTC().Format(time.RFC3339))
		} else if errors.Is(err, os.ErrNotExist) {
			logger.Warn("Config file missing: %s", cfg.Source)
		}
	} else {
		logger.Info("Config file: (none; defaults and environment)")
	}

	logger.Info("Listen: %s", cfg.Server.Addr())
	logger.Info("Base path: %s", cfg.Media.BasePath)
	logger.Info("Max file size: %s", app.FormatMegabytes(cfg.Media.MaxFileSize))
	logger.Info("Max files per request: %d", cfg.Media.MaxFiles)
	logger.Info("Storage: %s", cfg.Storage.Type)
	switch cfg.Storage.Type {
	case config.StorageLocal:
		logger.Info("Upload dir: %s", cfg.Storage.Local.Dir)
		if cfg.Storage.Local.BackupDir != "" {
			logger.Info("Backup dir: %s", cfg.Storage.Local.BackupDir)
		}
	case config.StorageDatabase:
		logger.Info("Database: (set) table=%s", cfg.Storage.Database.Table)
	case config.StorageS3:
		logger.Info("Bucket: %s region=%s prefix=%s", cfg.Storage.S3.Bucket, cfg.Storage.S3.Region, cfg.Storage.S3.Prefix)
		if cfg.Storage.S3.Endpoint != "" {
			logger.Info("S3 endpoint: %s", cfg.Storage.S3.Endpoint)
		}
		if cfg.Storage.S3.AccessKeyID != "" {
			logger.Info("S3 credentials: static key %s", observability.SanitizeAccessKey(cfg.Storage.S3.AccessKeyID))
		} else {
			logger.Info("S3 credentials: (default chain)")
		}
	}
	if retention := cfg.Storage.Retention(); retention > 0 {
		logger.Info("Retention: %s (sweep every %s)", retention, cfg.Storage.SweepInterval)
	}
	if cfg.Server.RateLimitRPM > 0 {
		logger.Info("Rate limit: %d/min burst=%d", cfg.Server.RateLimitRPM, cfg.Server.RateLimitBurst)
	}
	logger.Info("============================")
}
