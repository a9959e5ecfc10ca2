package media

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyAllowList(t *testing.T) {
	cases := []struct {
		mime     string
		category Category
		ok       bool
	}{
		{"image/jpeg", CategoryImage, true},
		{"IMAGE/PNG", CategoryImage, true},
		{"image/webp; charset=binary", CategoryImage, true},
		{"video/mp4", CategoryVideo, true},
		{"video/quicktime", CategoryVideo, true},
		{"video/x-flv", CategoryVideo, true},
		{"application/pdf", "", false},
		{"text/plain", "", false},
		{"image/svg+xml", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.mime, func(t *testing.T) {
			category, ok := Classify(tc.mime)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.category, category)
		})
	}
}

func TestResolveRejectsDisallowedType(t *testing.T) {
	v := NewTypeValidator()
	_, _, err := v.Resolve("application/pdf", []byte("%PDF-1.4"))
	require.Error(t, err)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	assert.Equal(t, CodeInvalidFileType, CodeOf(err))
	assert.Contains(t, MessageOf(err), "application/pdf")
}

func TestResolveSniffsOctetStream(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	v := NewTypeValidator()

	mimeType, category, err := v.Resolve("application/octet-stream", png)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, CategoryImage, category)

	mimeType, _, err = v.Resolve("", png)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
}

func TestResolveKeepsDeclaredType(t *testing.T) {
	v := NewTypeValidator()
	mimeType, category, err := v.Resolve("Video/MP4", []byte("not really a video"))
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", mimeType)
	assert.Equal(t, CategoryVideo, category)
}

func TestAllowedTypesSorted(t *testing.T) {
	types := NewTypeValidator().AllowedTypes()
	require.NotEmpty(t, types)
	for i := 1; i < len(types); i++ {
		if types[i-1] > types[i] {
			t.Fatalf("types not sorted at %d: %q > %q", i, types[i-1], types[i])
		}
	}
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory(" Images ")
	assert.True(t, ok)
	assert.Equal(t, CategoryImage, c)

	c, ok = ParseCategory("video")
	assert.True(t, ok)
	assert.Equal(t, CategoryVideo, c)

	_, ok = ParseCategory("audio")
	assert.False(t, ok)
}
