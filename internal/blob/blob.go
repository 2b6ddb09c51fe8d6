package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a blob reference does not resolve.
var ErrNotFound = errors.New("blob not found")

// Store is durable, content-addressed storage for uploaded image bytes.
// Put is write-once per content hash: storing the same bytes twice returns
// the same reference and is not an error.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}
