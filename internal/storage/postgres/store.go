// Package postgres stores media payloads and metadata in a single Postgres table.
package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mediasvc/internal/logging"
	"mediasvc/internal/media"
	"mediasvc/internal/storage"
)

const defaultTable = "media_objects"

var objectColumns = []string{
	"id", "stored_name", "original_name", "mime_type", "category",
	"size_bytes", "owner_ref", "tags", "created_at",
}

// pool abstracts the subset of pgxpool.Pool used by the store for easier testing.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store keeps each object as one row, payload included.
type Store struct {
	pool   pool
	table  string
	logger logging.Logger
}

// NewPool opens a pgx connection pool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return p, nil
}

// New builds a Store backed by the provided connection pool.
func New(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, errors.New("postgres store requires pool")
	}
	if table == "" {
		table = defaultTable
	}
	return &Store{pool: p, table: table, logger: logging.NewComponentLogger("MediaPostgresStore")}, nil
}

func (s *Store) qb() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// EnsureSchema creates the table and its indexes if needed.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    stored_name TEXT NOT NULL,
    original_name TEXT NOT NULL DEFAULT '',
    mime_type TEXT NOT NULL,
    category TEXT NOT NULL,
    size_bytes BIGINT NOT NULL,
    owner_ref TEXT NOT NULL DEFAULT '',
    tags JSONB NOT NULL DEFAULT '{}'::jsonb,
    file_data BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_created ON %s (created_at DESC, id);`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_category ON %s (category);`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s (owner_ref);`, s.table, s.table),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure media schema: %w", err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Kind() string { return storage.KindDatabase }

func (s *Store) Put(ctx context.Context, obj media.Object, body io.Reader) (media.Object, error) {
	if err := media.ValidateKey(obj.ID); err != nil {
		return media.Object{}, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return media.Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return media.Object{}, err
	}
	tags, err := json.Marshal(nonNilTags(obj.Tags))
	if err != nil {
		return media.Object{}, fmt.Errorf("encode tags: %w", err)
	}
	obj = obj.Clone()
	obj.SizeBytes = int64(len(data))
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}
	obj.ModifiedAt = obj.CreatedAt

	sqlStr, args, err := s.qb().Insert(s.table).
		Columns(append(objectColumns, "file_data")...).
		Values(obj.ID, obj.StoredName, obj.OriginalName, obj.MimeType, string(obj.Category),
			obj.SizeBytes, obj.OwnerRef, tags, obj.CreatedAt, data).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return media.Object{}, fmt.Errorf("build insert: %w", err)
	}
	tag, err := s.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return media.Object{}, fmt.Errorf("insert media %s: %w", obj.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return media.Object{}, storage.ErrExists
	}
	s.logger.Debug("Stored media %s (%d bytes)", obj.ID, obj.SizeBytes)
	return obj, nil
}

func (s *Store) Stat(ctx context.Context, id string) (media.Object, error) {
	if err := media.ValidateKey(id); err != nil {
		return media.Object{}, err
	}
	sqlStr, args, err := s.qb().Select(objectColumns...).
		From(s.table).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return media.Object{}, fmt.Errorf("build select: %w", err)
	}
	obj, err := scanObject(s.pool.QueryRow(ctx, sqlStr, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return media.Object{}, storage.NotFound(id)
	}
	if err != nil {
		return media.Object{}, fmt.Errorf("select media %s: %w", id, err)
	}
	return obj, nil
}

func (s *Store) Open(ctx context.Context, id string, r *media.ByteRange) (*storage.Reader, error) {
	obj, err := s.Stat(ctx, id)
	if err != nil {
		return nil, err
	}
	payload := sq.Expr("file_data")
	if r != nil {
		if r.Start < 0 || r.End >= obj.SizeBytes || r.Start > r.End {
			return nil, media.RangeError(obj.SizeBytes)
		}
		// substring positions are 1-based.
		payload = sq.Expr("substring(file_data FROM ? FOR ?)", r.Start+1, r.Length())
	}
	sqlStr, args, err := s.qb().Select().Column(payload).
		From(s.table).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build payload select: %w", err)
	}
	var data []byte
	if err := s.pool.QueryRow(ctx, sqlStr, args...).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.NotFound(id)
		}
		return nil, fmt.Errorf("select payload %s: %w", id, err)
	}
	return &storage.Reader{
		ReadCloser: io.NopCloser(bytes.NewReader(data)),
		Object:     obj,
		Range:      r,
	}, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if err := media.ValidateKey(id); err != nil {
		return false, err
	}
	sqlStr, args, err := s.qb().Delete(s.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete: %w", err)
	}
	tag, err := s.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("delete media %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) List(ctx context.Context, filter storage.Filter) ([]media.Object, error) {
	query := s.qb().Select(objectColumns...).From(s.table)
	if filter.Category != "" {
		query = query.Where(sq.Eq{"category": string(filter.Category)})
	}
	if filter.OwnerRef != "" {
		query = query.Where(sq.Eq{"owner_ref": filter.OwnerRef})
	}
	if len(filter.Tags) > 0 {
		tags, err := json.Marshal(filter.Tags)
		if err != nil {
			return nil, fmt.Errorf("encode tag filter: %w", err)
		}
		query = query.Where(sq.Expr("tags @> ?::jsonb", string(tags)))
	}
	if !filter.CreatedBefore.IsZero() {
		query = query.Where(sq.Lt{"created_at": filter.CreatedBefore})
	}
	sqlStr, args, err := query.OrderBy("created_at DESC", "id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}
	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var objects []media.Object
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return objects, nil
}

// Stats aggregates counters in a single query.
func (s *Store) Stats(ctx context.Context) (media.Stats, error) {
	sqlStr, args, err := s.qb().Select(
		"COUNT(*)",
		"COALESCE(SUM(size_bytes), 0)::BIGINT",
		"COUNT(*) FILTER (WHERE category = 'image')",
		"COUNT(*) FILTER (WHERE category = 'video')",
		"MAX(created_at)",
	).From(s.table).ToSql()
	if err != nil {
		return media.Stats{}, fmt.Errorf("build stats: %w", err)
	}
	stats := media.Stats{StorageType: storage.KindDatabase}
	var lastUpload *time.Time
	if err := s.pool.QueryRow(ctx, sqlStr, args...).Scan(
		&stats.TotalFiles, &stats.TotalSize, &stats.ImageCount, &stats.VideoCount, &lastUpload,
	); err != nil {
		return media.Stats{}, fmt.Errorf("aggregate media: %w", err)
	}
	if lastUpload != nil {
		utc := lastUpload.UTC()
		stats.LastUpload = &utc
	}
	return stats, nil
}

func scanObject(row pgx.Row) (media.Object, error) {
	var (
		obj      media.Object
		category string
		rawTags  []byte
	)
	if err := row.Scan(
		&obj.ID, &obj.StoredName, &obj.OriginalName, &obj.MimeType, &category,
		&obj.SizeBytes, &obj.OwnerRef, &rawTags, &obj.CreatedAt,
	); err != nil {
		return media.Object{}, err
	}
	obj.Category = media.Category(category)
	obj.CreatedAt = obj.CreatedAt.UTC()
	obj.ModifiedAt = obj.CreatedAt
	if len(rawTags) > 0 {
		var tags map[string]string
		if err := json.Unmarshal(rawTags, &tags); err != nil {
			return media.Object{}, fmt.Errorf("decode tags for %s: %w", obj.ID, err)
		}
		if len(tags) > 0 {
			obj.Tags = tags
		}
	}
	return obj, nil
}

func nonNilTags(tags map[string]string) map[string]string {
	if tags == nil {
		return map[string]string{}
	}
	return tags
}

var (
	_ storage.BlobStore     = (*Store)(nil)
	_ storage.StatsProvider = (*Store)(nil)
)
