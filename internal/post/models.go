package post

import (
	"time"

	"github.com/postboard/postboard/backend/go-services/internal/post/refs"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post is the persisted blog post. JSON names follow the wire format the
// frontend already speaks (user, number, fileUrl, imageUrl).
type Post struct {
	ID          primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Owner       string             `json:"user" bson:"user"`
	Number      int64              `json:"number" bson:"number"`
	Title       string             `json:"title" bson:"title"`
	Content     string             `json:"content" bson:"content"`
	FileRefs    refs.List          `json:"fileUrl" bson:"fileUrl"`
	LegacyImage string             `json:"imageUrl,omitempty" bson:"imageUrl,omitempty"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Clone returns a copy that shares no slices with p.
func (p *Post) Clone() *Post {
	c := *p
	c.FileRefs = append(refs.List{}, p.FileRefs...)
	return &c
}

// Patch carries the fields of a partial update. Nil pointers are left untouched.
type Patch struct {
	Title       *string
	Content     *string
	FileRefs    *refs.List
	ClearLegacy bool
}

// Empty reports whether applying p would change nothing but updatedAt.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.FileRefs == nil && !p.ClearLegacy
}

// Filter selects posts for listing. Zero values mean "no constraint".
type Filter struct {
	Owner string
	// Q matches title or content, case-insensitively.
	Q     string
	Skip  int64
	Limit int64
}
