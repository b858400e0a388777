package objectstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// BackendType identifies an object store implementation.
type BackendType string

const (
	// BackendGCS is Google Cloud Storage.
	BackendGCS BackendType = "gcs"
	// BackendS3 is S3-compatible storage.
	BackendS3 BackendType = "s3"
	// BackendLocal is a directory on the local filesystem.
	BackendLocal BackendType = "local"
)

// Config selects and configures an object store backend.
type Config struct {
	Backend BackendType `yaml:"backend"`
	GCS     GCSConfig   `yaml:"gcs,omitempty"`
	S3      S3Config    `yaml:"s3,omitempty"`
	// LocalDir is the object directory for the local backend.
	LocalDir string `yaml:"local_dir,omitempty"`
}

// New creates the object store Backend selected by cfg.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (Backend, error) {
	switch cfg.Backend {
	case BackendGCS:
		return NewGCSBackend(ctx, cfg.GCS, logger)
	case BackendS3:
		return NewS3Backend(ctx, cfg.S3, logger)
	case BackendLocal:
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("local backend: local_dir is required")
		}
		return NewLocalBackend(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unsupported object store backend: %q", cfg.Backend)
	}
}
