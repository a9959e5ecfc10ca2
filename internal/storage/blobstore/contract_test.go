package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediasvc/internal/media"
	"mediasvc/internal/storage"
)

func newObject(id string, category media.Category, created time.Time) media.Object {
	ext := ".jpg"
	mimeType := "image/jpeg"
	if category == media.CategoryVideo {
		ext = ".mp4"
		mimeType = "video/mp4"
	}
	return media.Object{
		ID:           id,
		StoredName:   id + ext,
		OriginalName: "original" + ext,
		MimeType:     mimeType,
		Category:     category,
		CreatedAt:    created,
	}
}

func readAll(t *testing.T, r *storage.Reader) []byte {
	t.Helper()
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, store storage.BlobStore) {
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	payload := bytes.Repeat([]byte("0123456789"), 100)

	t.Run("round trip", func(t *testing.T) {
		stored, err := store.Put(ctx, newObject("rt-1", media.CategoryVideo, created), bytes.NewReader(payload))
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), stored.SizeBytes)

		reader, err := store.Open(ctx, "rt-1", nil)
		require.NoError(t, err)
		assert.Equal(t, payload, readAll(t, reader))

		obj, err := store.Stat(ctx, "rt-1")
		require.NoError(t, err)
		assert.Equal(t, "rt-1.mp4", obj.StoredName)
		assert.Equal(t, "video/mp4", obj.MimeType)
		assert.Equal(t, int64(len(payload)), obj.SizeBytes)
		assert.True(t, obj.CreatedAt.Equal(created))
	})

	t.Run("range", func(t *testing.T) {
		reader, err := store.Open(ctx, "rt-1", &media.ByteRange{Start: 0, End: 99})
		require.NoError(t, err)
		assert.Equal(t, payload[:100], readAll(t, reader))

		reader, err = store.Open(ctx, "rt-1", &media.ByteRange{Start: 990, End: 999})
		require.NoError(t, err)
		assert.Equal(t, int64(10), reader.Length())
		assert.Equal(t, payload[990:], readAll(t, reader))
	})

	t.Run("duplicate id", func(t *testing.T) {
		_, err := store.Put(ctx, newObject("rt-1", media.CategoryVideo, created), strings.NewReader("x"))
		if !errors.Is(err, storage.ErrExists) {
			t.Fatalf("expected ErrExists, got %v", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := store.Stat(ctx, "absent")
		if !errors.Is(err, media.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		_, err = store.Open(ctx, "absent", nil)
		if !errors.Is(err, media.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("rejects traversal", func(t *testing.T) {
		_, err := store.Stat(ctx, "../etc/passwd")
		if !errors.Is(err, media.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
		_, err = store.Delete(ctx, `..\secret`)
		require.Error(t, err)
	})

	t.Run("list filters", func(t *testing.T) {
		img := newObject("img-1", media.CategoryImage, created.Add(time.Minute))
		img.OwnerRef = "user-7"
		img.Tags = map[string]string{media.TagTaskID: "task-1"}
		_, err := store.Put(ctx, img, strings.NewReader("image-bytes"))
		require.NoError(t, err)

		all, err := store.List(ctx, storage.Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		videos, err := store.List(ctx, storage.Filter{Category: media.CategoryVideo})
		require.NoError(t, err)
		require.Len(t, videos, 1)
		assert.Equal(t, "rt-1", videos[0].ID)

		owned, err := store.List(ctx, storage.Filter{OwnerRef: "user-7", Tags: map[string]string{media.TagTaskID: "task-1"}})
		require.NoError(t, err)
		require.Len(t, owned, 1)
		assert.Equal(t, "img-1", owned[0].ID)
		assert.Equal(t, "task-1", owned[0].Tags[media.TagTaskID])

		old, err := store.List(ctx, storage.Filter{CreatedBefore: created.Add(30 * time.Second)})
		require.NoError(t, err)
		require.Len(t, old, 1)
		assert.Equal(t, "rt-1", old[0].ID)
	})

	t.Run("delete twice", func(t *testing.T) {
		deleted, err := store.Delete(ctx, "img-1")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = store.Delete(ctx, "img-1")
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = store.Stat(ctx, "img-1")
		if !errors.Is(err, media.ErrNotFound) {
			t.Fatalf("expected not found after delete, got %v", err)
		}
	})

	t.Run("concurrent puts", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := "c-" + string(rune('a'+i))
				_, err := store.Put(ctx, newObject(id, media.CategoryImage, created), bytes.NewReader(payload[:i+1]))
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		all, err := store.List(ctx, storage.Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 17)
	})
	t.Run("read during delete of same id", func(t *testing.T) {
		const readers = 8
		for round := 0; round < 50; round++ {
			id := "race-" + strconv.Itoa(round)
			_, err := store.Put(ctx, newObject(id, media.CategoryVideo, created), bytes.NewReader(payload))
			require.NoError(t, err)

			var wg sync.WaitGroup
			results := make(chan error, readers)
			for i := 0; i < readers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					reader, err := store.Open(ctx, id, nil)
					if err != nil {
						results <- err
						return
					}
					defer reader.Close()
					data, err := io.ReadAll(reader)
					if err != nil {
						results <- err
						return
					}
					if !bytes.Equal(data, payload) {
						results <- errors.New("partial payload of " + strconv.Itoa(len(data)) + " bytes")
						return
					}
					results <- nil
				}()
			}
			deleted, err := store.Delete(ctx, id)
			require.NoError(t, err)
			assert.True(t, deleted)
			wg.Wait()
			close(results)

			for err := range results {
				if err != nil && !errors.Is(err, media.ErrNotFound) {
					t.Fatalf("round %d: expected full payload or not found, got %v", round, err)
				}
			}
		}
	})
}
