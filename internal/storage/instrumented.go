package storage

import (
	"context"
	"io"
	"time"

	"mediasvc/internal/media"
)

// InstrumentedStore reports every call on the wrapped store to an Observer.
type InstrumentedStore struct {
	delegate BlobStore
	observer Observer
	now      func() time.Time
}

// Instrument wraps store. A nil observer records nothing.
func Instrument(store BlobStore, observer Observer) *InstrumentedStore {
	if observer == nil {
		observer = nopObserver{}
	}
	return &InstrumentedStore{delegate: store, observer: observer, now: time.Now}
}

func (s *InstrumentedStore) Kind() string { return s.delegate.Kind() }

// Unwrap returns the underlying store.
func (s *InstrumentedStore) Unwrap() BlobStore { return s.delegate }

func (s *InstrumentedStore) Put(ctx context.Context, obj media.Object, body io.Reader) (media.Object, error) {
	start := s.now()
	stored, err := s.delegate.Put(ctx, obj, body)
	s.observer.RecordPut(s.Kind(), s.now().Sub(start), stored.SizeBytes, err)
	return stored, err
}

func (s *InstrumentedStore) Open(ctx context.Context, id string, r *media.ByteRange) (*Reader, error) {
	start := s.now()
	reader, err := s.delegate.Open(ctx, id, r)
	s.observer.RecordOperation(s.Kind(), "open", s.now().Sub(start), err)
	return reader, err
}

func (s *InstrumentedStore) Stat(ctx context.Context, id string) (media.Object, error) {
	start := s.now()
	obj, err := s.delegate.Stat(ctx, id)
	s.observer.RecordOperation(s.Kind(), "stat", s.now().Sub(start), err)
	return obj, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, id string) (bool, error) {
	start := s.now()
	deleted, err := s.delegate.Delete(ctx, id)
	s.observer.RecordOperation(s.Kind(), "delete", s.now().Sub(start), err)
	return deleted, err
}

func (s *InstrumentedStore) List(ctx context.Context, filter Filter) ([]media.Object, error) {
	start := s.now()
	objects, err := s.delegate.List(ctx, filter)
	s.observer.RecordOperation(s.Kind(), "list", s.now().Sub(start), err)
	return objects, err
}

// Stats delegates to the wrapped store when it aggregates natively.
func (s *InstrumentedStore) Stats(ctx context.Context) (media.Stats, error) {
	provider, ok := s.delegate.(StatsProvider)
	if !ok {
		return media.Stats{}, ErrStatsUnsupported
	}
	start := s.now()
	stats, err := provider.Stats(ctx)
	s.observer.RecordOperation(s.Kind(), "stats", s.now().Sub(start), err)
	return stats, err
}

var (
	_ BlobStore     = (*InstrumentedStore)(nil)
	_ StatsProvider = (*InstrumentedStore)(nil)
)
