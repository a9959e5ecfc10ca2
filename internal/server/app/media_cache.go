package app

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"mediasvc/internal/media"
)

type cachedObject struct {
	obj      media.Object
	storedAt time.Time
}

type cachedStats struct {
	stats    media.Stats
	storedAt time.Time
}

// metadataCache holds recently resolved objects and the last stats snapshot.
// Entries expire after their TTL; deletes and uploads evict eagerly.
type metadataCache struct {
	objects     *lru.Cache[string, cachedObject]
	stats       *lru.Cache[string, cachedStats]
	metadataTTL time.Duration
	statsTTL    time.Duration
	now         func() time.Time
}

func newMetadataCache(size int, metadataTTL, statsTTL time.Duration, now func() time.Time) (*metadataCache, error) {
	objects, err := lru.New[string, cachedObject](size)
	if err != nil {
		return nil, fmt.Errorf("create metadata cache: %w", err)
	}
	stats, err := lru.New[string, cachedStats](4)
	if err != nil {
		return nil, fmt.Errorf("create stats cache: %w", err)
	}
	return &metadataCache{
		objects:     objects,
		stats:       stats,
		metadataTTL: metadataTTL,
		statsTTL:    statsTTL,
		now:         now,
	}, nil
}

func (c *metadataCache) object(mediaID string) (media.Object, bool) {
	entry, ok := c.objects.Get(mediaID)
	if !ok {
		return media.Object{}, false
	}
	if c.now().Sub(entry.storedAt) >= c.metadataTTL {
		c.objects.Remove(mediaID)
		return media.Object{}, false
	}
	return entry.obj.Clone(), true
}

func (c *metadataCache) putObject(obj media.Object) {
	c.objects.Add(obj.ID, cachedObject{obj: obj.Clone(), storedAt: c.now()})
}

func (c *metadataCache) evict(mediaID string) {
	c.objects.Remove(mediaID)
}

func (c *metadataCache) statsFor(kind string) (media.Stats, bool) {
	entry, ok := c.stats.Get(kind)
	if !ok {
		return media.Stats{}, false
	}
	if c.now().Sub(entry.storedAt) >= c.statsTTL {
		c.stats.Remove(kind)
		return media.Stats{}, false
	}
	return entry.stats, true
}

func (c *metadataCache) putStats(kind string, stats media.Stats) {
	c.stats.Add(kind, cachedStats{stats: stats, storedAt: c.now()})
}

func (c *metadataCache) invalidateStats() {
	c.stats.Purge()
}
