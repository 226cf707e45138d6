package repository

import (
	"context"
	"errors"

	"github.com/postboard/postboard/backend/go-services/internal/post"
)

var (
	ErrNotFound = errors.New("post not found")
)

// Repository is the database side of the post service. Implementations must
// apply Patch as a partial update, never as a whole-document replace.
type Repository interface {
	Create(ctx context.Context, p *post.Post) error
	FindByID(ctx context.Context, id string) (*post.Post, error)
	// FindLatestByOwner returns the owner's post with the highest number, or nil.
	FindLatestByOwner(ctx context.Context, owner string) (*post.Post, error)
	// List returns posts matching f, newest first.
	List(ctx context.Context, f post.Filter) ([]*post.Post, error)
	Count(ctx context.Context, f post.Filter) (int64, error)
	UpdateFields(ctx context.Context, id string, patch post.Patch) (*post.Post, error)
	Remove(ctx context.Context, id string) error
	// ReferencedKeys yields every raw reference held by any post, list and legacy field alike.
	ReferencedKeys(ctx context.Context, fn func(ref string)) error
}
