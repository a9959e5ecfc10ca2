package app

import (
	"context"
	"errors"
	"time"

	"mediasvc/internal/media"
	"mediasvc/internal/storage"
)

// MediaPage is one page of the catalog.
type MediaPage struct {
	Media      []media.Object
	Pagination media.Pagination
}

// List returns a newest-first page of objects matching q.
func (s *MediaService) List(ctx context.Context, q media.ListQuery) (MediaPage, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	filter := storage.Filter{Category: q.Category, OwnerRef: q.OwnerRef}
	if q.TaskID != "" || q.BuildingID != "" {
		filter.Tags = map[string]string{}
		if q.TaskID != "" {
			filter.Tags[media.TagTaskID] = q.TaskID
		}
		if q.BuildingID != "" {
			filter.Tags[media.TagBuildingID] = q.BuildingID
		}
	}
	objects, err := s.store.List(ctx, filter)
	if err != nil {
		return MediaPage{}, classifyStoreError(err, media.CodeListError, "Failed to list media")
	}
	storage.SortNewestFirst(objects)

	total := len(objects)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	items := make([]media.Object, 0, end-start)
	items = append(items, objects[start:end]...)
	return MediaPage{Media: items, Pagination: media.NewPagination(page, limit, total)}, nil
}

// Stats aggregates catalog counters, served from a short-lived cache.
func (s *MediaService) Stats(ctx context.Context) (media.Stats, error) {
	kind := s.store.Kind()
	if stats, ok := s.cache.statsFor(kind); ok {
		return stats, nil
	}
	stats, err := s.computeStats(ctx)
	if err != nil {
		return media.Stats{}, classifyStoreError(err, media.CodeStatsError, "Failed to get storage stats")
	}
	stats.StorageType = kind
	s.cache.putStats(kind, stats)
	return stats, nil
}

func (s *MediaService) computeStats(ctx context.Context) (media.Stats, error) {
	if provider, ok := s.store.(storage.StatsProvider); ok {
		stats, err := provider.Stats(ctx)
		if !errors.Is(err, storage.ErrStatsUnsupported) {
			return stats, err
		}
	}
	objects, err := s.store.List(ctx, storage.Filter{})
	if err != nil {
		return media.Stats{}, err
	}
	var stats media.Stats
	for _, obj := range objects {
		stats.Add(obj)
	}
	return stats, nil
}

// Health summarises service state for the health endpoint.
type Health struct {
	Healthy     bool
	StorageType string
	MediaCount  int
	TotalSize   int64
	MaxFileSize int64
	MaxFiles    int
	CheckedAt   time.Time
	Err         error
}

// Health reports whether the store is reachable and can be enumerated.
// Backends with a connectivity check are asked directly; the stats cache
// alone could hide an outage.
func (s *MediaService) Health(ctx context.Context) Health {
	h := Health{
		StorageType: s.store.Kind(),
		MaxFileSize: s.config.MaxFileSize,
		MaxFiles:    s.config.MaxFiles,
		CheckedAt:   s.now().UTC(),
	}
	if err := storage.Ping(ctx, s.store); err != nil {
		h.Err = err
		s.log(ctx).Error("Health check failed: %v", err)
		return h
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		h.Err = err
		s.log(ctx).Error("Health check failed: %v", err)
		return h
	}
	h.Healthy = true
	h.MediaCount = stats.TotalFiles
	h.TotalSize = stats.TotalSize
	return h
}
