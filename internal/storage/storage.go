package storage

import (
	"context"
	"fmt"
	"time"
)

// Backend names accepted in configuration.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Storage moves document files between workers and a backing object store.
type Storage interface {
	// Upload copies a local file under the given key and returns a URL
	// describing the stored object.
	Upload(ctx context.Context, localPath, key, contentType string) (string, error)
	// Download copies the object under key to a local file.
	Download(ctx context.Context, key, localPath string) error
	// SignedURL returns a URL that grants read access for the given time.
	SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend string

	// Local backend.
	LocalDir string

	// S3 backend. Endpoint is optional and switches the client to
	// path-style addressing for S3-compatible servers.
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// DefaultConfig returns a local backend rooted in ./data/storage.
func DefaultConfig() Config {
	return Config{Backend: BackendLocal, LocalDir: "data/storage"}
}

// New builds the storage backend named by cfg.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Backend {
	case "", BackendLocal:
		return NewLocal(cfg.LocalDir)
	case BackendS3:
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}
