package storage

import (
	"context"
	"errors"
	"time"
)

var ErrKeyRequired = errors.New("object key is required")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the object-storage collaborator used by the post service,
// the upload presigner and the orphan sweep.
type ObjectStore interface {
	// DeleteObject removes key. Deleting a missing key is not an error.
	DeleteObject(ctx context.Context, key string) error
	PresignPut(ctx context.Context, key string, expires time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
	// ListObjects calls fn for every object under prefix; returning an error stops the walk.
	ListObjects(ctx context.Context, prefix string, fn func(ObjectInfo) error) error
}
