package postgres

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediasvc/internal/media"
	"mediasvc/internal/storage"
)

var rowColumns = []string{
	"id", "stored_name", "original_name", "mime_type", "category",
	"size_bytes", "owner_ref", "tags", "created_at",
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to build pgx mock: %v", err)
	}
	t.Cleanup(pool.Close)
	s, err := New(pool, "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s, pool
}

func videoRow(created time.Time) []any {
	return []any{"vid", "vid.mp4", "clip.mp4", "video/mp4", "video", int64(1000), "user-1", []byte(`{"taskId":"t-1"}`), created}
}

func TestNewRequiresPool(t *testing.T) {
	if _, err := New(nil, ""); err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestEnsureSchemaCreatesTableAndIndexes(t *testing.T) {
	s, pool := newMockStore(t)
	pool.ExpectExec("CREATE TABLE IF NOT EXISTS media_objects").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	pool.ExpectExec("CREATE INDEX IF NOT EXISTS idx_media_objects_created").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	pool.ExpectExec("CREATE INDEX IF NOT EXISTS idx_media_objects_category").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	pool.ExpectExec("CREATE INDEX IF NOT EXISTS idx_media_objects_owner").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPingReachesPool(t *testing.T) {
	s, pool := newMockStore(t)
	pool.ExpectPing()
	pool.ExpectPing().WillReturnError(errors.New("connection refused"))

	require.NoError(t, storage.Ping(context.Background(), s))
	require.Error(t, s.Ping(context.Background()))
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPutInsertsRow(t *testing.T) {
	s, pool := newMockStore(t)
	created := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	obj := media.Object{
		ID: "vid", StoredName: "vid.mp4", OriginalName: "clip.mp4",
		MimeType: "video/mp4", Category: media.CategoryVideo, CreatedAt: created,
	}

	pool.ExpectExec("INSERT INTO media_objects").
		WithArgs("vid", "vid.mp4", "clip.mp4", "video/mp4", "video", int64(5), "", pgxmock.AnyArg(), created, []byte("hello")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	stored, err := s.Put(context.Background(), obj, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), stored.SizeBytes)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestPutReportsDuplicate(t *testing.T) {
	s, pool := newMockStore(t)
	pool.ExpectExec("INSERT INTO media_objects .* ON CONFLICT \\(id\\) DO NOTHING").
		WithArgs("dup", "dup.png", "", "", "", int64(1), "", pgxmock.AnyArg(), pgxmock.AnyArg(), []byte("x")).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	_, err := s.Put(context.Background(), media.Object{ID: "dup", StoredName: "dup.png"}, strings.NewReader("x"))
	if !errors.Is(err, storage.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestStatMapsRow(t *testing.T) {
	s, pool := newMockStore(t)
	created := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	pool.ExpectQuery(`SELECT id, stored_name, .* FROM media_objects WHERE id = \$1`).
		WithArgs("vid").
		WillReturnRows(pgxmock.NewRows(rowColumns).AddRow(videoRow(created)...))

	obj, err := s.Stat(context.Background(), "vid")
	require.NoError(t, err)
	assert.Equal(t, media.CategoryVideo, obj.Category)
	assert.Equal(t, int64(1000), obj.SizeBytes)
	assert.Equal(t, "user-1", obj.OwnerRef)
	assert.Equal(t, "t-1", obj.Tags[media.TagTaskID])
	assert.True(t, obj.CreatedAt.Equal(created))
}

func TestStatMissingRow(t *testing.T) {
	s, pool := newMockStore(t)
	pool.ExpectQuery(`FROM media_objects WHERE id = \$1`).WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := s.Stat(context.Background(), "nope")
	if !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStatRejectsTraversalWithoutQuery(t *testing.T) {
	s, pool := newMockStore(t)
	_, err := s.Stat(context.Background(), "../x")
	if !errors.Is(err, media.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestOpenRangeUsesSubstring(t *testing.T) {
	s, pool := newMockStore(t)
	created := time.Now().UTC()
	pool.ExpectQuery(`FROM media_objects WHERE id = \$1`).
		WithArgs("vid").
		WillReturnRows(pgxmock.NewRows(rowColumns).AddRow(videoRow(created)...))
	pool.ExpectQuery(`SELECT substring\(file_data FROM \$1 FOR \$2\) FROM media_objects WHERE id = \$3`).
		WithArgs(int64(1), int64(100), "vid").
		WillReturnRows(pgxmock.NewRows([]string{"substring"}).AddRow([]byte(strings.Repeat("a", 100))))

	reader, err := s.Open(context.Background(), "vid", &media.ByteRange{Start: 0, End: 99})
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Len(t, data, 100)
	assert.Equal(t, int64(1000), reader.Object.SizeBytes)
	require.NoError(t, pool.ExpectationsWereMet())
}

func TestDeleteReportsRowsAffected(t *testing.T) {
	s, pool := newMockStore(t)
	pool.ExpectExec(`DELETE FROM media_objects WHERE id = \$1`).WithArgs("vid").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	pool.ExpectExec(`DELETE FROM media_objects WHERE id = \$1`).WithArgs("vid").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	deleted, err := s.Delete(context.Background(), "vid")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.Delete(context.Background(), "vid")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestListPushesFiltersIntoQuery(t *testing.T) {
	s, pool := newMockStore(t)
	created := time.Now().UTC()
	pool.ExpectQuery(`FROM media_objects WHERE category = \$1 AND owner_ref = \$2 ORDER BY created_at DESC, id ASC`).
		WithArgs("video", "user-1").
		WillReturnRows(pgxmock.NewRows(rowColumns).AddRow(videoRow(created)...))

	objects, err := s.List(context.Background(), storage.Filter{Category: media.CategoryVideo, OwnerRef: "user-1"})
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "vid", objects[0].ID)
}

func TestStatsAggregates(t *testing.T) {
	s, pool := newMockStore(t)
	last := time.Date(2025, 5, 5, 5, 5, 5, 0, time.UTC)
	pool.ExpectQuery(`SELECT COUNT\(\*\), COALESCE\(SUM\(size_bytes\), 0\)::BIGINT`).
		WillReturnRows(pgxmock.NewRows([]string{"count", "sum", "images", "videos", "max"}).
			AddRow(3, int64(4096), 2, 1, &last))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalFiles)
	assert.Equal(t, int64(4096), stats.TotalSize)
	assert.Equal(t, 2, stats.ImageCount)
	assert.Equal(t, 1, stats.VideoCount)
	assert.Equal(t, "database", stats.StorageType)
	require.NotNil(t, stats.LastUpload)
	assert.True(t, stats.LastUpload.Equal(last))
}
