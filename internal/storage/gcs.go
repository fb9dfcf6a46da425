package storage

import (
	"context"
	"errors"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig captures the parameters required to connect to GCS.
type GCSConfig struct {
	Bucket string
	// Prefix namespaces all migrated objects inside the bucket; it plays
	// the role of the destination folder.
	Prefix string
	// CredentialsFile points at a service account key. Empty falls back to
	// Application Default Credentials.
	CredentialsFile string
}

// GCSStore writes migrated files to a Google Cloud Storage bucket. The
// underlying client is safe for concurrent use, so one store instance can
// be shared across pool workers.
type GCSStore struct {
	client *storage.Client
	cfg    GCSConfig
}

// NewGCSStore initializes a GCS client and verifies bucket access, failing
// fast on misconfiguration before any item is processed.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("access bucket %q: %w", cfg.Bucket, err)
	}
	return &GCSStore{client: client, cfg: cfg}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Find probes for an object with the exact namespaced name and returns its
// link when present.
func (s *GCSStore) Find(ctx context.Context, name string) (string, bool, error) {
	_, err := s.client.Bucket(s.cfg.Bucket).Object(s.objectPath(name)).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("probe object %q: %w", name, err)
	}
	return s.link(name), true, nil
}

// Create uploads the object and returns its link.
func (s *GCSStore) Create(ctx context.Context, name string, contentType string, data []byte) (string, error) {
	writer := s.client.Bucket(s.cfg.Bucket).Object(s.objectPath(name)).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object %q: %w (close writer: %v)", name, err, closeErr)
		}
		return "", fmt.Errorf("write object %q: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer for object %q: %w", name, err)
	}
	return s.link(name), nil
}

func (s *GCSStore) objectPath(name string) string {
	return path.Join(s.cfg.Prefix, name)
}

func (s *GCSStore) link(name string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.cfg.Bucket, s.objectPath(name))
}
