package media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKeyRejectsTraversal(t *testing.T) {
	bad := []string{
		"",
		"..",
		"../etc/passwd",
		"a/b",
		`a\b`,
		"abc..def",
		"id\x00.jpg",
		" padded",
		strings.Repeat("a", 256),
	}
	for _, key := range bad {
		err := ValidateKey(key)
		if err == nil {
			t.Fatalf("expected %q to be rejected", key)
		}
		assert.Equal(t, CodeInvalidIdentifier, CodeOf(err))
	}
}

func TestParseKey(t *testing.T) {
	id, err := ParseKey("0b6f1e2c-8a3d-4d8e-9f11-2a4a5b6c7d8e.mp4")
	require.NoError(t, err)
	assert.Equal(t, "0b6f1e2c-8a3d-4d8e-9f11-2a4a5b6c7d8e", id)

	id, err = ParseKey("plain-id")
	require.NoError(t, err)
	assert.Equal(t, "plain-id", id)

	_, err = ParseKey(".hidden")
	require.Error(t, err)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".png", ExtensionFor("photo.PNG", "image/png"))
	assert.Equal(t, ".jpg", ExtensionFor("no-extension", "image/jpeg"))
	assert.Equal(t, ".mov", ExtensionFor("clip.<script>", "video/quicktime"))
	assert.Equal(t, "", ExtensionFor("clip", "application/x-unknown-thing"))
}

func TestSanitizeExt(t *testing.T) {
	assert.Equal(t, ".mp4", SanitizeExt(".MP4"))
	assert.Equal(t, "", SanitizeExt("mp4"))
	assert.Equal(t, "", SanitizeExt(".a/b"))
	assert.Equal(t, "", SanitizeExt(".waytoolongext"))
}

func TestStoredNameIgnoresClientPath(t *testing.T) {
	name := StoredName("abc", "../../evil.jpg", "image/jpeg")
	assert.Equal(t, "abc.jpg", name)
}

func TestNormalizeOriginalName(t *testing.T) {
	assert.Equal(t, "evil.jpg", NormalizeOriginalName(`C:\Users\me\..\evil.jpg`))
	assert.Equal(t, "evil.jpg", NormalizeOriginalName("../../evil.jpg"))
	assert.Equal(t, "upload", NormalizeOriginalName(".."))
	assert.Equal(t, "ab.png", NormalizeOriginalName("a\x07b.png"))
}

func TestSafeFileName(t *testing.T) {
	assert.Equal(t, "my_holiday_photo.jpg", SafeFileName("my holiday photo.jpg"))
	assert.Equal(t, "upload", SafeFileName("???"))
	assert.Len(t, SafeFileName(strings.Repeat("x", 200)), 80)
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `inline; filename=clip.mp4`, ContentDisposition("clip.mp4"))
	assert.Equal(t, `inline; filename="my clip.mp4"`, ContentDisposition("my clip.mp4"))
}
