// Package storage defines the blob store contract shared by every media backend.
package storage

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"

	"mediasvc/internal/media"
)

// Backend kinds as they appear in configuration and health output.
const (
	KindLocal    = "local"
	KindMemory   = "memory"
	KindDatabase = "database"
	KindS3       = "s3"
)

var (
	// ErrExists is returned by Put when the id is already taken.
	ErrExists = errors.New("storage: object already exists")
	// ErrStatsUnsupported is returned by Stats when the backend cannot aggregate natively.
	ErrStatsUnsupported = errors.New("storage: native stats unsupported")
)

// BlobStore persists media payloads together with their metadata.
//
// Put must make the object visible atomically: a concurrent Stat or List either
// sees the complete object or nothing. Missing objects are reported with
// errors wrapping media.ErrNotFound.
type BlobStore interface {
	Kind() string
	// Put consumes body and stores it under obj.ID. The returned object carries
	// the byte count actually written.
	Put(ctx context.Context, obj media.Object, body io.Reader) (media.Object, error)
	// Open returns the payload, or only the bytes of r when r is non-nil.
	Open(ctx context.Context, id string, r *media.ByteRange) (*Reader, error)
	Stat(ctx context.Context, id string) (media.Object, error)
	// Delete reports whether an object was removed.
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, filter Filter) ([]media.Object, error)
}

// StatsProvider is implemented by backends that aggregate counters without enumerating.
type StatsProvider interface {
	Stats(ctx context.Context) (media.Stats, error)
}

// Pinger is implemented by backends with a cheap connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping runs the connectivity check of the first Pinger found through the
// decorator chain of store. Stores without one report nil.
func Ping(ctx context.Context, store BlobStore) error {
	for store != nil {
		if p, ok := store.(Pinger); ok {
			return p.Ping(ctx)
		}
		wrapper, ok := store.(interface{ Unwrap() BlobStore })
		if !ok {
			return nil
		}
		store = wrapper.Unwrap()
	}
	return nil
}

// Reader streams an object payload. Callers must Close it.
type Reader struct {
	io.ReadCloser
	Object media.Object
	// Range is the served byte interval, nil for the whole payload.
	Range *media.ByteRange
}

// Length returns the number of bytes the reader will yield.
func (r *Reader) Length() int64 {
	if r.Range != nil {
		return r.Range.Length()
	}
	return r.Object.SizeBytes
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Category      media.Category
	OwnerRef      string
	Tags          map[string]string
	CreatedBefore time.Time
}

// Match reports whether obj satisfies every set field.
func (f Filter) Match(obj media.Object) bool {
	if f.Category != "" && obj.Category != f.Category {
		return false
	}
	if f.OwnerRef != "" && obj.OwnerRef != f.OwnerRef {
		return false
	}
	for k, v := range f.Tags {
		if obj.Tags[k] != v {
			return false
		}
	}
	if !f.CreatedBefore.IsZero() && !obj.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}

// SortNewestFirst orders objects by creation time descending, ties by id.
func SortNewestFirst(objects []media.Object) {
	sort.SliceStable(objects, func(i, j int) bool {
		a, b := objects[i], objects[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Exists reports whether id is present in store.
func Exists(ctx context.Context, store BlobStore, id string) (bool, error) {
	_, err := store.Stat(ctx, id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, media.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// NotFound builds the error backends return for a missing id.
func NotFound(id string) error {
	return &media.Error{
		Kind:    media.ErrNotFound,
		Code:    media.CodeMediaNotFound,
		Message: "Media not found",
		Err:     errors.New("object " + id + " does not exist"),
	}
}

// LimitedReadCloser reads at most n bytes from rc and closes rc on Close.
func LimitedReadCloser(rc io.ReadCloser, n int64) io.ReadCloser {
	return &limitedReadCloser{Reader: io.LimitReader(rc, n), closer: rc}
}

type limitedReadCloser struct {
	io.Reader
	closer io.Closer
}

func (l *limitedReadCloser) Close() error {
	return l.closer.Close()
}
