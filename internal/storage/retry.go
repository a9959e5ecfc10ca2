package storage

import (
	"context"
	"io"

	"mediasvc/internal/errors"
	"mediasvc/internal/logging"
	"mediasvc/internal/media"
)

// RetryingStore retries idempotent reads and deletes on transient failures.
// Put is passed through because its body cannot be replayed.
type RetryingStore struct {
	delegate BlobStore
	config   errors.RetryConfig
	logger   logging.Logger
}

// WithRetry wraps store with the given retry policy.
func WithRetry(store BlobStore, config errors.RetryConfig, logger logging.Logger) *RetryingStore {
	return &RetryingStore{delegate: store, config: config, logger: logging.OrNop(logger)}
}

func (s *RetryingStore) Kind() string { return s.delegate.Kind() }

// Unwrap returns the underlying store.
func (s *RetryingStore) Unwrap() BlobStore { return s.delegate }

func (s *RetryingStore) Put(ctx context.Context, obj media.Object, body io.Reader) (media.Object, error) {
	return s.delegate.Put(ctx, obj, body)
}

func (s *RetryingStore) Open(ctx context.Context, id string, r *media.ByteRange) (*Reader, error) {
	var reader *Reader
	err := errors.Retry(ctx, s.config, s.logger, func(ctx context.Context) error {
		var err error
		reader, err = s.delegate.Open(ctx, id, r)
		return err
	})
	return reader, err
}

func (s *RetryingStore) Stat(ctx context.Context, id string) (media.Object, error) {
	var obj media.Object
	err := errors.Retry(ctx, s.config, s.logger, func(ctx context.Context) error {
		var err error
		obj, err = s.delegate.Stat(ctx, id)
		return err
	})
	return obj, err
}

func (s *RetryingStore) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := errors.Retry(ctx, s.config, s.logger, func(ctx context.Context) error {
		var err error
		deleted, err = s.delegate.Delete(ctx, id)
		return err
	})
	return deleted, err
}

func (s *RetryingStore) List(ctx context.Context, filter Filter) ([]media.Object, error) {
	var objects []media.Object
	err := errors.Retry(ctx, s.config, s.logger, func(ctx context.Context) error {
		var err error
		objects, err = s.delegate.List(ctx, filter)
		return err
	})
	return objects, err
}

// Stats delegates to the wrapped store when it aggregates natively.
func (s *RetryingStore) Stats(ctx context.Context) (media.Stats, error) {
	provider, ok := s.delegate.(StatsProvider)
	if !ok {
		return media.Stats{}, ErrStatsUnsupported
	}
	var stats media.Stats
	err := errors.Retry(ctx, s.config, s.logger, func(ctx context.Context) error {
		var err error
		stats, err = provider.Stats(ctx)
		return err
	})
	return stats, err
}

var (
	_ BlobStore     = (*RetryingStore)(nil)
	_ StatsProvider = (*RetryingStore)(nil)
)
