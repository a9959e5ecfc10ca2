package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"mediasvc/internal/config"
	"mediasvc/internal/errors"
	"mediasvc/internal/logging"
	"mediasvc/internal/storage"
	"mediasvc/internal/storage/blobstore"
	"mediasvc/internal/storage/postgres"
	"mediasvc/internal/storage/s3store"
)

// BuildStore opens the configured backend and wraps it with metrics and,
// for remote backends, retries. The returned cleanup releases connections.
func BuildStore(ctx context.Context, cfg config.StorageConfig, logger logging.Logger, reg prometheus.Registerer) (storage.BlobStore, func(), error) {
	logger = logging.OrNop(logger)
	cleanup := func() {}

	var (
		store  storage.BlobStore
		remote bool
	)
	switch cfg.Type {
	case config.StorageLocal, "":
		opts := []blobstore.FilesystemOption{blobstore.WithLogger(logger)}
		if cfg.Local.BackupDir != "" {
			opts = append(opts, blobstore.WithBackupDir(cfg.Local.BackupDir))
		}
		fs, err := blobstore.NewFilesystemStore(cfg.Local.Dir, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("local storage: %w", err)
		}
		store = fs
	case config.StorageMemory:
		store = blobstore.NewMemoryStore()
	case config.StorageDatabase:
		pool, err := postgres.NewPool(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("database storage: %w", err)
		}
		pg, err := postgres.New(pool, cfg.Database.Table)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("database storage: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("database schema: %w", err)
		}
		store, remote, cleanup = pg, true, pool.Close
	case config.StorageS3:
		client, err := s3store.NewClient(ctx, s3store.Options{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			AccessKey:    cfg.S3.AccessKeyID,
			SecretKey:    cfg.S3.SecretAccessKey,
			UsePathStyle: cfg.S3.UsePathStyle,
			Prefix:       cfg.S3.Prefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 storage: %w", err)
		}
		bucket, err := s3store.New(client, cfg.S3.Bucket, cfg.S3.Prefix)
		if err != nil {
			return nil, nil, fmt.Errorf("s3 storage: %w", err)
		}
		if cfg.S3.CreateBucket {
			if err := bucket.EnsureBucket(ctx); err != nil {
				return nil, nil, fmt.Errorf("s3 bucket: %w", err)
			}
		}
		store, remote = bucket, true
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}

	if remote {
		store = storage.WithRetry(store, errors.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		}, logger)
	}

	observer, err := storage.NewPrometheusObserver("", reg)
	if err != nil {
		logger.Warn("Storage metrics disabled: %v", err)
		return store, cleanup, nil
	}
	logger.Info("Storage backend ready: %s", store.Kind())
	return storage.Instrument(store, observer), cleanup, nil
}
