package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/postboard/postboard/backend/go-services/internal/post"
	"github.com/postboard/postboard/backend/go-services/internal/post/refs"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryRepo is an in-memory repository used for unit tests and for running
// the API without MongoDB.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*post.Post
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*post.Post)}
}

func (m *MemoryRepo) Create(_ context.Context, p *post.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.UpdatedAt = p.CreatedAt
	m.store[p.ID.Hex()] = p.Clone()
	return nil
}

func (m *MemoryRepo) FindByID(_ context.Context, id string) (*post.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.store[id]; ok {
		return p.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) FindLatestByOwner(_ context.Context, owner string) (*post.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *post.Post
	for _, p := range m.store {
		if p.Owner != owner {
			continue
		}
		if latest == nil || p.Number > latest.Number {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	return latest.Clone(), nil
}

func (m *MemoryRepo) matching(f post.Filter) []*post.Post {
	q := strings.ToLower(f.Q)
	out := make([]*post.Post, 0, len(m.store))
	for _, p := range m.store {
		if f.Owner != "" && p.Owner != f.Owner {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Title), q) && !strings.Contains(strings.ToLower(p.Content), q) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (m *MemoryRepo) List(_ context.Context, f post.Filter) ([]*post.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.matching(f)
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.Hex() > all[j].ID.Hex()
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if f.Skip > 0 {
		if f.Skip >= int64(len(all)) {
			return []*post.Post{}, nil
		}
		all = all[f.Skip:]
	}
	if f.Limit > 0 && f.Limit < int64(len(all)) {
		all = all[:f.Limit]
	}
	out := make([]*post.Post, 0, len(all))
	for _, p := range all {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (m *MemoryRepo) Count(_ context.Context, f post.Filter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.matching(f))), nil
}

func (m *MemoryRepo) UpdateFields(_ context.Context, id string, patch post.Patch) (*post.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Content != nil {
		p.Content = *patch.Content
	}
	if patch.FileRefs != nil {
		p.FileRefs = append(refs.List{}, (*patch.FileRefs)...)
	}
	if patch.ClearLegacy {
		p.LegacyImage = ""
	}
	p.UpdatedAt = time.Now().UTC()
	return p.Clone(), nil
}

func (m *MemoryRepo) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *MemoryRepo) ReferencedKeys(_ context.Context, fn func(ref string)) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.store {
		for _, r := range p.FileRefs {
			fn(r)
		}
		if p.LegacyImage != "" {
			fn(p.LegacyImage)
		}
	}
	return nil
}
