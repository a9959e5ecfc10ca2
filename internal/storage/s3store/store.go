// Package s3store keeps media objects in an S3-compatible bucket (AWS S3, MinIO, R2).
package s3store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"mediasvc/internal/logging"
	"mediasvc/internal/media"
	"mediasvc/internal/storage"
)

// User metadata keys. S3 lowercases them on the way back.
const (
	metaStoredName   = "stored-name"
	metaOriginalName = "original-name"
	metaCategory     = "category"
	metaOwnerRef     = "owner-ref"
	metaTags         = "tags"
	metaCreatedAt    = "created-at"
)

// API is the subset of the S3 client used by the store.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Options holds connection settings for NewClient.
type Options struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	Prefix       string
}

// NewClient builds an S3 client from the default credential chain, overridden
// by static keys and a custom endpoint when set.
func NewClient(ctx context.Context, opts Options) (*s3.Client, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	}), nil
}

// Store implements storage.BlobStore on top of an S3 bucket.
type Store struct {
	api    API
	bucket string
	prefix string
	logger logging.Logger
}

// New constructs a store writing under prefix in bucket.
func New(api API, bucket, prefix string) (*Store, error) {
	if api == nil {
		return nil, errors.New("s3 store requires a client")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("s3 store requires a bucket")
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Store{api: api, bucket: bucket, prefix: prefix, logger: logging.NewComponentLogger("MediaS3Store")}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	if _, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err == nil {
		return nil
	}
	_, err := s.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		s.logger.Info("Created bucket %s", s.bucket)
		return nil
	}
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return nil
	}
	return fmt.Errorf("create bucket %s: %w", s.bucket, err)
}

func (s *Store) Kind() string { return storage.KindS3 }

// Ping checks that the bucket is reachable with the configured credentials.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) key(id string) string { return s.prefix + id }

func (s *Store) Put(ctx context.Context, obj media.Object, body io.Reader) (media.Object, error) {
	if err := media.ValidateKey(obj.ID); err != nil {
		return media.Object{}, err
	}
	if _, err := s.Stat(ctx, obj.ID); err == nil {
		return media.Object{}, storage.ErrExists
	} else if !errors.Is(err, media.ErrNotFound) {
		return media.Object{}, err
	}

	// PutObject needs a seekable body with a known length.
	spool, err := os.CreateTemp("", "mediasvc-s3-*")
	if err != nil {
		return media.Object{}, fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()
	written, err := io.Copy(spool, body)
	if err != nil {
		return media.Object{}, err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return media.Object{}, fmt.Errorf("rewind spool file: %w", err)
	}

	obj = obj.Clone()
	obj.SizeBytes = written
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}
	obj.ModifiedAt = obj.CreatedAt
	metadata, err := encodeMetadata(obj)
	if err != nil {
		return media.Object{}, err
	}

	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(obj.ID)),
		Body:          spool,
		ContentType:   aws.String(obj.MimeType),
		ContentLength: aws.Int64(written),
		Metadata:      metadata,
	})
	if err != nil {
		return media.Object{}, fmt.Errorf("put object %s: %w", obj.ID, err)
	}
	return obj, nil
}

func (s *Store) Stat(ctx context.Context, id string) (media.Object, error) {
	if err := media.ValidateKey(id); err != nil {
		return media.Object{}, err
	}
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return media.Object{}, storage.NotFound(id)
		}
		return media.Object{}, fmt.Errorf("head object %s: %w", id, err)
	}
	obj := decodeMetadata(id, out.Metadata)
	obj.MimeType = aws.ToString(out.ContentType)
	obj.SizeBytes = aws.ToInt64(out.ContentLength)
	if obj.Category == "" {
		obj.Category, _ = media.Classify(obj.MimeType)
	}
	if out.LastModified != nil {
		obj.ModifiedAt = out.LastModified.UTC()
	}
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = obj.ModifiedAt
	}
	return obj, nil
}

func (s *Store) Open(ctx context.Context, id string, r *media.ByteRange) (*storage.Reader, error) {
	obj, err := s.Stat(ctx, id)
	if err != nil {
		return nil, err
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	}
	if r != nil {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", r.Start, r.End))
	}
	out, err := s.api.GetObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.NotFound(id)
		}
		return nil, fmt.Errorf("get object %s: %w", id, err)
	}
	return &storage.Reader{ReadCloser: out.Body, Object: obj, Range: r}, nil
}

// Delete heads the key first because DeleteObject succeeds for missing keys.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := s.Stat(ctx, id); err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return false, fmt.Errorf("delete object %s: %w", id, err)
	}
	return true, nil
}

// List pages through the prefix and heads each key for its metadata.
func (s *Store) List(ctx context.Context, filter storage.Filter) ([]media.Object, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}
	var objects []media.Object
	paginator := s3.NewListObjectsV2Paginator(s.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects in %s: %w", s.bucket, err)
		}
		for _, item := range page.Contents {
			id := strings.TrimPrefix(aws.ToString(item.Key), s.prefix)
			if media.ValidateKey(id) != nil {
				continue
			}
			obj, err := s.Stat(ctx, id)
			if err != nil {
				if errors.Is(err, media.ErrNotFound) {
					continue
				}
				return nil, err
			}
			if filter.Match(obj) {
				objects = append(objects, obj)
			}
		}
	}
	return objects, nil
}

func encodeMetadata(obj media.Object) (map[string]string, error) {
	metadata := map[string]string{
		metaStoredName:   obj.StoredName,
		metaOriginalName: url.QueryEscape(obj.OriginalName),
		metaCategory:     string(obj.Category),
		metaCreatedAt:    obj.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if obj.OwnerRef != "" {
		metadata[metaOwnerRef] = url.QueryEscape(obj.OwnerRef)
	}
	if len(obj.Tags) > 0 {
		raw, err := json.Marshal(obj.Tags)
		if err != nil {
			return nil, fmt.Errorf("encode tags: %w", err)
		}
		metadata[metaTags] = url.QueryEscape(string(raw))
	}
	return metadata, nil
}

func decodeMetadata(id string, metadata map[string]string) media.Object {
	get := func(key string) string {
		if v, ok := metadata[key]; ok {
			return v
		}
		// Some S3-compatible servers keep the original casing.
		for k, v := range metadata {
			if strings.EqualFold(k, key) {
				return v
			}
		}
		return ""
	}
	unescape := func(raw string) string {
		if v, err := url.QueryUnescape(raw); err == nil {
			return v
		}
		return raw
	}
	obj := media.Object{
		ID:           id,
		StoredName:   get(metaStoredName),
		OriginalName: unescape(get(metaOriginalName)),
		Category:     media.Category(get(metaCategory)),
		OwnerRef:     unescape(get(metaOwnerRef)),
	}
	if obj.StoredName == "" {
		obj.StoredName = id
	}
	if created, err := time.Parse(time.RFC3339Nano, get(metaCreatedAt)); err == nil {
		obj.CreatedAt = created.UTC()
	}
	if raw := get(metaTags); raw != "" {
		var tags map[string]string
		if err := json.Unmarshal([]byte(unescape(raw)), &tags); err == nil && len(tags) > 0 {
			obj.Tags = tags
		}
	}
	return obj
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

var _ storage.BlobStore = (*Store)(nil)
