package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/rs/zerolog"
)

// GCSConfig holds connection settings for a Google Cloud Storage bucket.
type GCSConfig struct {
	Bucket string `yaml:"bucket"`
	// CredentialsFile optionally points at a service-account JSON key.
	// Application default credentials are used when empty.
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// GCSBackend implements Backend for Google Cloud Storage, the deployment
// wizard's primary cloud.
type GCSBackend struct {
	client *storage.Client
	bucket string
	logger zerolog.Logger
}

// NewGCSBackend creates a GCS-backed object store.
func NewGCSBackend(ctx context.Context, cfg GCSConfig, logger zerolog.Logger) (*GCSBackend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs backend: bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	return &GCSBackend{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With().Str("component", "gcs_store").Logger(),
	}, nil
}

// Put uploads the local file under the object name, overwriting any
// existing object.
func (b *GCSBackend) Put(ctx context.Context, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open upload source: %w", err)
	}
	defer f.Close()

	w := b.client.Bucket(b.bucket).Object(name).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("upload object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize object %s: %w", name, err)
	}
	return nil
}

// Get downloads the named object to the local path.
func (b *GCSBackend) Get(ctx context.Context, name, path string) error {
	r, err := b.client.Bucket(b.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("open object %s: %w", name, err)
	}
	defer r.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create download target: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("download object %s: %w", name, err)
	}
	return nil
}

// Exists reports whether the named object exists.
func (b *GCSBackend) Exists(ctx context.Context, name string) (bool, error) {
	_, err := b.client.Bucket(b.bucket).Object(name).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %s: %w", name, err)
	}
	return true, nil
}

// List returns the sorted names of objects matching the prefix.
func (b *GCSBackend) List(ctx context.Context, prefix string) ([]string, error) {
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		names = append(names, attrs.Name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the named object if present.
func (b *GCSBackend) Delete(ctx context.Context, name string) error {
	err := b.client.Bucket(b.bucket).Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object %s: %w", name, err)
	}
	return nil
}

// Close releases the underlying client.
func (b *GCSBackend) Close() error {
	return b.client.Close()
}
