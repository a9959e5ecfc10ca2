package app

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mediasvc/internal/logging"
	"mediasvc/internal/media"
	"mediasvc/internal/observability"
	"mediasvc/internal/storage"
	"mediasvc/internal/utils/id"
)

const (
	DefaultMaxFileSize       int64 = 50 << 20
	DefaultMaxFiles                = 10
	DefaultUploadConcurrency       = 4
	DefaultPageSize                = 20
	MaxPageSize                    = 100
	DefaultBasePath                = "/api/media"
	defaultCacheSize               = 1024
	defaultMetadataTTL             = time.Minute
	defaultStatsTTL                = 5 * time.Second
)

// MediaConfig holds the limits applied by MediaService.
type MediaConfig struct {
	MaxFileSize       int64
	MaxFiles          int
	UploadConcurrency int
	// BasePath prefixes generated retrieval URLs.
	BasePath    string
	CacheSize   int
	MetadataTTL time.Duration
	StatsTTL    time.Duration
}

func (c MediaConfig) withDefaults() MediaConfig {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = DefaultMaxFiles
	}
	if c.UploadConcurrency <= 0 {
		c.UploadConcurrency = DefaultUploadConcurrency
	}
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	if c.CacheSize <= 0 {
		c.CacheSize = defaultCacheSize
	}
	if c.MetadataTTL <= 0 {
		c.MetadataTTL = defaultMetadataTTL
	}
	if c.StatsTTL <= 0 {
		c.StatsTTL = defaultStatsTTL
	}
	return c
}

// MediaService implements upload, streaming lookup, catalog and lifecycle
// operations on top of a BlobStore.
type MediaService struct {
	store     storage.BlobStore
	config    MediaConfig
	ids       *id.Generator
	validator *media.TypeValidator
	cache     *metadataCache
	logger    logging.Logger
	metrics   *observability.MetricsCollector
	tracer    *observability.TracerProvider
	now       func() time.Time
}

// MediaServiceOption customises a MediaService.
type MediaServiceOption func(*MediaService)

// WithIDGenerator overrides the identifier generator.
func WithIDGenerator(gen *id.Generator) MediaServiceOption {
	return func(s *MediaService) {
		if gen != nil {
			s.ids = gen
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger logging.Logger) MediaServiceOption {
	return func(s *MediaService) { s.logger = logging.OrNop(logger) }
}

// WithObservability wires metrics and tracing.
func WithObservability(obs *observability.Observability) MediaServiceOption {
	return func(s *MediaService) {
		if obs == nil {
			return
		}
		s.metrics = obs.Metrics
		s.tracer = obs.Tracer
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MediaServiceOption {
	return func(s *MediaService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMediaService builds the service. store must not be nil.
func NewMediaService(store storage.BlobStore, config MediaConfig, opts ...MediaServiceOption) (*MediaService, error) {
	if store == nil {
		return nil, errors.New("media service requires a blob store")
	}
	config = config.withDefaults()
	s := &MediaService{
		store:     store,
		config:    config,
		ids:       id.Default(),
		validator: media.NewTypeValidator(),
		logger:    logging.NewComponentLogger("MediaService"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	cache, err := newMetadataCache(config.CacheSize, config.MetadataTTL, config.StatsTTL, s.now)
	if err != nil {
		return nil, err
	}
	s.cache = cache
	return s, nil
}

// Config returns the effective limits.
func (s *MediaService) Config() MediaConfig { return s.config }

// StorageType reports the backend kind.
func (s *MediaService) StorageType() string { return s.store.Kind() }

// AllowedTypes lists accepted MIME types.
func (s *MediaService) AllowedTypes() []string { return s.validator.AllowedTypes() }

// URLFor returns the retrieval URL of obj. File-backed stores address objects
// by stored name, row-backed stores by id.
func (s *MediaService) URLFor(obj media.Object) string {
	switch s.store.Kind() {
	case storage.KindDatabase, storage.KindMemory:
		return s.config.BasePath + "/view/" + obj.ID
	default:
		return s.config.BasePath + "/files/" + obj.StoredName
	}
}

func (s *MediaService) log(ctx context.Context) logging.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *MediaService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.StartSpan(ctx, name)
}

// stat resolves metadata through the cache.
func (s *MediaService) stat(ctx context.Context, mediaID string) (media.Object, error) {
	if obj, ok := s.cache.object(mediaID); ok {
		return obj, nil
	}
	obj, err := s.store.Stat(ctx, mediaID)
	if err != nil {
		return media.Object{}, err
	}
	s.cache.putObject(obj)
	return obj, nil
}

// statFresh reads metadata from the store and refreshes the cache. Objects
// removed by another process drop out of the cache here.
func (s *MediaService) statFresh(ctx context.Context, mediaID string) (media.Object, error) {
	obj, err := s.store.Stat(ctx, mediaID)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			s.cache.evict(mediaID)
		}
		return media.Object{}, err
	}
	s.cache.putObject(obj)
	return obj, nil
}

// classifyStoreError keeps typed media errors and wraps anything else.
func classifyStoreError(err error, code, message string) error {
	if err == nil {
		return nil
	}
	var mediaErr *media.Error
	if errors.As(err, &mediaErr) {
		return err
	}
	return media.StoreError(code, message, err)
}
