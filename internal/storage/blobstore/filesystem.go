package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediasvc/internal/logging"
	"mediasvc/internal/media"
	"mediasvc/internal/storage"
)

const (
	metaSuffix = ".meta.json"
	tempPrefix = ".upload-"
)

// FilesystemStore keeps each object as "<id><ext>" plus a "<id>.meta.json"
// sidecar under one directory. The sidecar is renamed into place last, so an
// object without one is invisible.
type FilesystemStore struct {
	baseDir   string
	backupDir string
	logger    logging.Logger
	now       func() time.Time
}

// FilesystemOption customises a FilesystemStore.
type FilesystemOption func(*FilesystemStore)

// WithBackupDir mirrors every payload into dir on a best-effort basis.
func WithBackupDir(dir string) FilesystemOption {
	return func(s *FilesystemStore) { s.backupDir = dir }
}

// WithLogger sets the logger used for skipped entries and backup failures.
func WithLogger(logger logging.Logger) FilesystemOption {
	return func(s *FilesystemStore) { s.logger = logging.OrNop(logger) }
}

// NewFilesystemStore creates a store rooted at baseDir, creating it if needed.
// A leading "~/" is expanded to the user's home directory.
func NewFilesystemStore(baseDir string, opts ...FilesystemOption) (*FilesystemStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		baseDir = "uploads"
	}
	resolved, err := expandHome(baseDir)
	if err != nil {
		return nil, err
	}
	s := &FilesystemStore{baseDir: resolved, logger: logging.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if s.backupDir != "" {
		backup, err := expandHome(s.backupDir)
		if err != nil {
			return nil, err
		}
		s.backupDir = backup
		if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
			return nil, fmt.Errorf("create backup dir: %w", err)
		}
	}
	return s, nil
}

func expandHome(dir string) (string, error) {
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	return filepath.Clean(dir), nil
}

func (s *FilesystemStore) Kind() string { return storage.KindLocal }

func (s *FilesystemStore) Put(ctx context.Context, obj media.Object, body io.Reader) (media.Object, error) {
	if err := media.ValidateKey(obj.ID); err != nil {
		return media.Object{}, err
	}
	if err := media.ValidateKey(obj.StoredName); err != nil {
		return media.Object{}, err
	}
	payloadPath, err := s.resolve(obj.StoredName)
	if err != nil {
		return media.Object{}, err
	}
	metaPath, err := s.resolve(obj.ID + metaSuffix)
	if err != nil {
		return media.Object{}, err
	}
	if _, err := os.Stat(metaPath); err == nil {
		return media.Object{}, storage.ErrExists
	}

	tmp, err := os.CreateTemp(s.baseDir, tempPrefix+"*")
	if err != nil {
		return media.Object{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: body})
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return media.Object{}, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return media.Object{}, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, payloadPath); err != nil {
		_ = os.Remove(tmpPath)
		return media.Object{}, fmt.Errorf("rename payload: %w", err)
	}

	obj.SizeBytes = written
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = s.now().UTC()
	}
	obj.ModifiedAt = obj.CreatedAt
	if err := s.writeMeta(metaPath, obj); err != nil {
		_ = os.Remove(payloadPath)
		return media.Object{}, err
	}
	s.backup(obj.StoredName, payloadPath)
	return obj, nil
}

func (s *FilesystemStore) writeMeta(metaPath string, obj media.Object) error {
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	tmp, err := os.CreateTemp(s.baseDir, tempPrefix+"meta-*")
	if err != nil {
		return fmt.Errorf("create temp metadata: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close metadata: %w", err)
	}
	if err := os.Rename(tmpPath, metaPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename metadata: %w", err)
	}
	return nil
}

func (s *FilesystemStore) backup(name, payloadPath string) {
	if s.backupDir == "" {
		return
	}
	src, err := os.Open(payloadPath)
	if err != nil {
		s.logger.Warn("Backup of %s skipped: %v", name, err)
		return
	}
	defer src.Close()
	dst, err := os.Create(filepath.Join(s.backupDir, name))
	if err != nil {
		s.logger.Warn("Backup of %s skipped: %v", name, err)
		return
	}
	if _, err := io.Copy(dst, src); err != nil {
		s.logger.Warn("Backup of %s failed: %v", name, err)
	}
	if err := dst.Close(); err != nil {
		s.logger.Warn("Backup of %s failed: %v", name, err)
	}
}

func (s *FilesystemStore) Stat(ctx context.Context, id string) (media.Object, error) {
	if err := media.ValidateKey(id); err != nil {
		return media.Object{}, err
	}
	metaPath, err := s.resolve(id + metaSuffix)
	if err != nil {
		return media.Object{}, err
	}
	obj, err := readMeta(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return media.Object{}, storage.NotFound(id)
	}
	if err != nil {
		return media.Object{}, err
	}
	payloadPath, err := s.resolve(obj.StoredName)
	if err != nil {
		return media.Object{}, err
	}
	info, err := os.Stat(payloadPath)
	if errors.Is(err, fs.ErrNotExist) {
		return media.Object{}, storage.NotFound(id)
	}
	if err != nil {
		return media.Object{}, fmt.Errorf("stat payload: %w", err)
	}
	obj.SizeBytes = info.Size()
	obj.ModifiedAt = info.ModTime().UTC()
	return obj, nil
}

func readMeta(path string) (media.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return media.Object{}, err
	}
	var obj media.Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return media.Object{}, fmt.Errorf("decode metadata %s: %w", filepath.Base(path), err)
	}
	if obj.ID == "" || media.ValidateKey(obj.StoredName) != nil {
		return media.Object{}, fmt.Errorf("metadata %s is incomplete", filepath.Base(path))
	}
	return obj, nil
}

func (s *FilesystemStore) Open(ctx context.Context, id string, r *media.ByteRange) (*storage.Reader, error) {
	obj, err := s.Stat(ctx, id)
	if err != nil {
		return nil, err
	}
	payloadPath, err := s.resolve(obj.StoredName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(payloadPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	if r == nil {
		return &storage.Reader{ReadCloser: f, Object: obj}, nil
	}
	if _, err := f.Seek(r.Start, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("seek payload: %w", err)
	}
	return &storage.Reader{
		ReadCloser: storage.LimitedReadCloser(f, r.Length()),
		Object:     obj,
		Range:      r,
	}, nil
}

func (s *FilesystemStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := media.ValidateKey(id); err != nil {
		return false, err
	}
	metaPath, err := s.resolve(id + metaSuffix)
	if err != nil {
		return false, err
	}
	obj, err := readMeta(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := os.Remove(metaPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("delete metadata: %w", err)
	}
	payloadPath, err := s.resolve(obj.StoredName)
	if err != nil {
		return true, err
	}
	if err := os.Remove(payloadPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return true, fmt.Errorf("delete payload: %w", err)
	}
	if s.backupDir != "" {
		if err := os.Remove(filepath.Join(s.backupDir, obj.StoredName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to remove backup of %s: %v", obj.StoredName, err)
		}
	}
	return true, nil
}

func (s *FilesystemStore) List(ctx context.Context, filter storage.Filter) ([]media.Object, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read upload dir: %w", err)
	}
	objects := make([]media.Object, 0, len(entries)/2)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, metaSuffix) || strings.HasPrefix(name, tempPrefix) {
			continue
		}
		id := strings.TrimSuffix(name, metaSuffix)
		obj, err := s.Stat(ctx, id)
		if err != nil {
			if !errors.Is(err, media.ErrNotFound) {
				s.logger.Warn("Skipping unreadable entry %s: %v", name, err)
			}
			continue
		}
		if filter.Match(obj) {
			objects = append(objects, obj)
		}
	}
	return objects, nil
}

// resolve joins name onto the base directory and refuses anything that escapes it.
func (s *FilesystemStore) resolve(name string) (string, error) {
	path := filepath.Join(s.baseDir, name)
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return "", media.ValidationError(media.CodeInvalidIdentifier, "Invalid file identifier")
	}
	return path, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ storage.BlobStore = (*FilesystemStore)(nil)
