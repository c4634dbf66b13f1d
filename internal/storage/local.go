package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Local stores objects as plain files under a root directory. Signed URLs
// degrade to file URLs since there is nothing to sign.
type Local struct {
	root string
}

// NewLocal creates the root directory when missing.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		root = DefaultConfig().LocalDir
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("storage: creating root %s: %w", root, err)
	}
	return &Local{root: root}, nil
}

// resolve maps a key onto a path inside the root. Keys that would escape
// the root are rejected.
func (l *Local) resolve(key string) (string, error) {
	if key == "" {
		return "", errors.New("storage: empty key")
	}
	path := filepath.Join(l.root, filepath.FromSlash(key))
	if !strings.HasPrefix(path, filepath.Clean(l.root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: key %q escapes the storage root", key)
	}
	return path, nil
}

func (l *Local) Upload(ctx context.Context, localPath, key, contentType string) (string, error) {
	dst, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("storage: creating directory for %s: %w", key, err)
	}
	if err := copyFile(localPath, dst); err != nil {
		return "", fmt.Errorf("storage: storing %s: %w", key, err)
	}
	return l.urlFor(dst)
}

func (l *Local) Download(ctx context.Context, key, localPath string) error {
	src, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := copyFile(src, localPath); err != nil {
		return fmt.Errorf("storage: fetching %s: %w", key, err)
	}
	return nil
}

func (l *Local) SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	path, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("storage: object %s: %w", key, err)
	}
	return l.urlFor(path)
}

func (l *Local) urlFor(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("storage: resolving %s: %w", path, err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
