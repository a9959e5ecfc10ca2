package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"mediasvc/internal/utils/id"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWithContextAddsRequestFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(LogConfig{Level: "debug", Format: "json", Output: buf})

	ctx := id.WithRequestID(context.Background(), "req-7")
	ctx = id.WithUserID(ctx, "user-1")
	logger.InfoContext(ctx, "media stored", "media_id", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "media stored", entry["msg"])
	assert.Equal(t, "req-7", entry["request_id"])
	assert.Equal(t, "user-1", entry["user_id"])
	assert.Equal(t, "abc", entry["media_id"])
}

func TestLoggerLevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(LogConfig{Level: "error", Format: "text", Output: buf})
	logger.Info("hidden")
	assert.Zero(t, buf.Len())
	logger.Error("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestSanitizeAccessKey(t *testing.T) {
	assert.Equal(t, "***", SanitizeAccessKey("short"))
	assert.Equal(t, "AKIA...WXYZ", SanitizeAccessKey("AKIAABCDEFGHWXYZ"))
}

func TestLoggerWithContextBindsFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(LogConfig{Level: "bogus", Format: "json", Output: buf})

	ctx := id.WithRequestID(context.Background(), "req-9")
	logger.WithContext(ctx).Info("listed", "count", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "req-9", entry["request_id"])
	assert.EqualValues(t, 3, entry["count"])
}
