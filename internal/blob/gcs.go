package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
)

// gcsStore keeps blobs in a GCS bucket under blobs/<hash>. Application
// Default Credentials must be configured in the environment.
type gcsStore struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

func NewGCSStore(ctx context.Context, bucket string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &gcsStore{client: client, bucket: bucket, logger: logger}, nil
}

func (s *gcsStore) object(key string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object("blobs/" + key)
}

func (s *gcsStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	obj := s.object(key)
	if _, err := obj.Attrs(ctx); err == nil {
		// content-addressed: identical bytes already stored
		return key, nil
	}

	// DoesNotExist makes the write conditional, so two concurrent uploads of
	// the same bytes cannot clobber each other
	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write blob object: %w", err)
	}
	if err := w.Close(); err != nil {
		// a precondition failure means another writer won the race; the
		// content is identical so the blob is still good
		if _, attrsErr := obj.Attrs(ctx); attrsErr != nil {
			return "", fmt.Errorf("finalize blob object: %w", err)
		}
		s.logger.Debug("blob already written by concurrent upload", "key", key)
	}
	return key, nil
}

func (s *gcsStore) Get(ctx context.Context, ref string) ([]byte, error) {
	rc, err := s.object(ref).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read blob object: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read blob bytes: %w", err)
	}
	return data, nil
}

func (s *gcsStore) Delete(ctx context.Context, ref string) error {
	if err := s.object(ref).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete blob object: %w", err)
	}
	return nil
}
