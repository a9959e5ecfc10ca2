package app

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"mediasvc/internal/media"
	"mediasvc/internal/observability"
	"mediasvc/internal/storage"
)

// Open resolves key (an id or stored name) and returns a reader for the bytes
// to serve. Range headers are honoured for videos only; any other object is
// always returned whole.
func (s *MediaService) Open(ctx context.Context, key, rangeHeader string) (*storage.Reader, error) {
	ctx, span := s.startSpan(ctx, observability.SpanMediaStream)
	reader, err := s.open(ctx, key, rangeHeader)
	if err == nil {
		span.SetAttributes(observability.MediaAttrs(reader.Object.ID, reader.Object.MimeType, reader.Object.SizeBytes)...)
		span.SetAttributes(attribute.Bool(observability.AttrPartial, reader.Range != nil))
	}
	observability.EndSpan(span, err)
	return reader, err
}

func (s *MediaService) open(ctx context.Context, key, rangeHeader string) (*storage.Reader, error) {
	mediaID, err := media.ParseKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := s.stat(ctx, mediaID)
	if err != nil {
		return nil, classifyStoreError(err, media.CodeServeError, "Failed to serve file")
	}
	var byteRange *media.ByteRange
	if obj.IsVideo() {
		byteRange, err = media.ParseRange(rangeHeader, obj.SizeBytes)
		if err != nil {
			return nil, err
		}
	}
	reader, err := s.store.Open(ctx, mediaID, byteRange)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			s.cache.evict(mediaID)
		}
		return nil, classifyStoreError(err, media.CodeServeError, "Failed to serve file")
	}
	return reader, nil
}

// Info returns the metadata of the object addressed by key. It always asks
// the store so a delete made elsewhere is seen at once.
func (s *MediaService) Info(ctx context.Context, key string) (media.Object, error) {
	mediaID, err := media.ParseKey(key)
	if err != nil {
		return media.Object{}, err
	}
	obj, err := s.statFresh(ctx, mediaID)
	if err != nil {
		return media.Object{}, classifyStoreError(err, media.CodeInfoError, "Failed to get file info")
	}
	return obj, nil
}

// Delete removes the object addressed by key. Deleting an absent object
// reports not found, so a repeated delete never succeeds twice.
func (s *MediaService) Delete(ctx context.Context, key string) (media.Object, error) {
	ctx, span := s.startSpan(ctx, observability.SpanMediaDelete)
	obj, err := s.delete(ctx, key)
	observability.EndSpan(span, err)
	if err == nil {
		s.log(ctx).Info("Deleted media %s", obj.ID)
	}
	return obj, err
}

func (s *MediaService) delete(ctx context.Context, key string) (media.Object, error) {
	mediaID, err := media.ParseKey(key)
	if err != nil {
		return media.Object{}, err
	}
	obj, statErr := s.store.Stat(ctx, mediaID)
	if statErr != nil && !errors.Is(statErr, media.ErrNotFound) {
		return media.Object{}, classifyStoreError(statErr, media.CodeDeleteError, "Failed to delete file")
	}
	deleted, err := s.store.Delete(ctx, mediaID)
	s.cache.evict(mediaID)
	if err != nil {
		return media.Object{}, classifyStoreError(err, media.CodeDeleteError, "Failed to delete file")
	}
	if !deleted {
		return media.Object{}, storage.NotFound(mediaID)
	}
	s.cache.invalidateStats()
	if statErr != nil {
		obj = media.Object{ID: mediaID}
	}
	return obj, nil
}
