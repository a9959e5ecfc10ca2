package blobstore

import (
	"bytes"
	"context"
	"hash/fnv"
	"io"
	"sync"
	"time"

	"mediasvc/internal/media"
	"mediasvc/internal/storage"
)

const memoryShards = 32

// MemoryStore keeps payloads in process memory. Contents are lost on restart.
type MemoryStore struct {
	shards [memoryShards]memoryShard
	now    func() time.Time
}

type memoryShard struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	obj  media.Object
	data []byte
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]memoryEntry)
	}
	return s
}

func (s *MemoryStore) shard(id string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.shards[h.Sum32()%memoryShards]
}

func (s *MemoryStore) Kind() string { return storage.KindMemory }

func (s *MemoryStore) Put(ctx context.Context, obj media.Object, body io.Reader) (media.Object, error) {
	if err := media.ValidateKey(obj.ID); err != nil {
		return media.Object{}, err
	}
	data, err := io.ReadAll(contextReader{ctx: ctx, r: body})
	if err != nil {
		return media.Object{}, err
	}
	obj = obj.Clone()
	obj.SizeBytes = int64(len(data))
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = s.now().UTC()
	}
	obj.ModifiedAt = obj.CreatedAt

	sh := s.shard(obj.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, exists := sh.entries[obj.ID]; exists {
		return media.Object{}, storage.ErrExists
	}
	sh.entries[obj.ID] = memoryEntry{obj: obj, data: data}
	return obj.Clone(), nil
}

func (s *MemoryStore) lookup(id string) (memoryEntry, error) {
	if err := media.ValidateKey(id); err != nil {
		return memoryEntry{}, err
	}
	sh := s.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	entry, ok := sh.entries[id]
	if !ok {
		return memoryEntry{}, storage.NotFound(id)
	}
	return entry, nil
}

func (s *MemoryStore) Stat(ctx context.Context, id string) (media.Object, error) {
	entry, err := s.lookup(id)
	if err != nil {
		return media.Object{}, err
	}
	return entry.obj.Clone(), nil
}

func (s *MemoryStore) Open(ctx context.Context, id string, r *media.ByteRange) (*storage.Reader, error) {
	entry, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	data := entry.data
	if r != nil {
		if r.Start < 0 || r.End >= int64(len(data)) || r.Start > r.End {
			return nil, media.RangeError(int64(len(data)))
		}
		data = data[r.Start : r.End+1]
	}
	return &storage.Reader{
		ReadCloser: io.NopCloser(bytes.NewReader(data)),
		Object:     entry.obj.Clone(),
		Range:      r,
	}, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := media.ValidateKey(id); err != nil {
		return false, err
	}
	sh := s.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.entries[id]; !ok {
		return false, nil
	}
	delete(sh.entries, id)
	return true, nil
}

func (s *MemoryStore) List(ctx context.Context, filter storage.Filter) ([]media.Object, error) {
	var objects []media.Object
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, entry := range sh.entries {
			if filter.Match(entry.obj) {
				objects = append(objects, entry.obj.Clone())
			}
		}
		sh.mu.RUnlock()
	}
	return objects, nil
}

// Stats aggregates counters under each shard's read lock.
func (s *MemoryStore) Stats(ctx context.Context) (media.Stats, error) {
	stats := media.Stats{StorageType: storage.KindMemory}
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, entry := range sh.entries {
			stats.Add(entry.obj)
		}
		sh.mu.RUnlock()
	}
	return stats, nil
}

var (
	_ storage.BlobStore     = (*MemoryStore)(nil)
	_ storage.StatsProvider = (*MemoryStore)(nil)
)
