package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "input.pdf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	src := writeTemp(t, "%PDF-1.4 test bytes")
	url, err := l.Upload(ctx, src, "uploads/doc-1/original.pdf", "application/pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"), "got %s", url)

	dst := filepath.Join(t.TempDir(), "copy.pdf")
	require.NoError(t, l.Download(ctx, "uploads/doc-1/original.pdf", dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 test bytes", string(got))
}

func TestLocalSignedURL(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	src := writeTemp(t, "data")
	_, err = l.Upload(ctx, src, "k/v.pdf", "application/pdf")
	require.NoError(t, err)

	url, err := l.SignedURL(ctx, "k/v.pdf", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"))

	_, err = l.SignedURL(ctx, "k/missing.pdf", time.Minute)
	assert.Error(t, err)
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	src := writeTemp(t, "data")
	_, err = l.Upload(ctx, src, "../outside.pdf", "application/pdf")
	assert.Error(t, err)

	err = l.Download(ctx, "", filepath.Join(t.TempDir(), "out.pdf"))
	assert.Error(t, err)
}

func TestLocalDownloadMissing(t *testing.T) {
	l, err := NewLocal(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)

	err = l.Download(context.Background(), "never/stored.pdf", filepath.Join(t.TempDir(), "out.pdf"))
	assert.Error(t, err)
}

func TestNewDispatch(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, Config{Backend: BackendLocal, LocalDir: filepath.Join(t.TempDir(), "a")})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s)

	s, err = New(ctx, Config{LocalDir: filepath.Join(t.TempDir(), "b")})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s, "empty backend should default to local")

	_, err = New(ctx, Config{Backend: "ftp"})
	assert.Error(t, err)
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), Config{Backend: BackendS3})
	assert.Error(t, err)
}

func TestS3SignedURL(t *testing.T) {
	// Presigning is local computation, no network involved.
	s, err := NewS3(context.Background(), Config{
		Backend:   BackendS3,
		Bucket:    "forms",
		Region:    "us-east-1",
		Endpoint:  "http://localhost:9000",
		AccessKey: "test-access",
		SecretKey: "test-secret",
	})
	require.NoError(t, err)

	url, err := s.SignedURL(context.Background(), "uploads/doc.pdf", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "forms")
	assert.Contains(t, url, "uploads/doc.pdf")
	assert.Contains(t, url, "X-Amz-Signature")
}
