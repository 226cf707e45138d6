package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/postboard/postboard/backend/go-services/internal/post"
	"github.com/postboard/postboard/backend/go-services/internal/post/reconcile"
	"github.com/postboard/postboard/backend/go-services/internal/post/refs"
	"github.com/postboard/postboard/backend/go-services/internal/post/repository"
	"github.com/postboard/postboard/backend/go-services/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = "http://localhost:9000/posts"

type env struct {
	repo  *repository.MemoryRepo
	store *storage.MemoryStorage
	now   time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{repo: repository.NewMemoryRepo(), store: storage.NewMemoryStorage(base), now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	ctx := context.Background()
	old := e.now.Add(-48 * time.Hour)

	e.store.Put("uploads/u1/kept.png", 1, old)
	e.store.Put("uploads/u1/legacy.png", 1, old)
	e.store.Put("uploads/u1/orphan.png", 1, old)
	e.store.Put("uploads/u1/fresh.png", 1, e.now.Add(-time.Hour))
	e.store.Put("other/outside.png", 1, old)

	require.NoError(t, e.repo.Create(ctx, &post.Post{Owner: "u1", FileRefs: refs.List{base + "/uploads/u1/kept.png"}}))
	require.NoError(t, e.repo.Create(ctx, &post.Post{Owner: "u1", FileRefs: refs.List{}, LegacyImage: "uploads/u1/legacy.png"}))
	return e
}

func (e *env) sweeper(opts Options) *Sweeper {
	s := New(e.repo, e.store, reconcile.New(e.store, 2), refs.NewNormalizer(base), opts)
	s.now = func() time.Time { return e.now }
	return s
}

func TestRunDeletesOnlyOldUnreferencedObjects(t *testing.T) {
	e := newEnv(t)
	rep, err := e.sweeper(Options{Prefix: "uploads/", MinAge: 24 * time.Hour}).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, rep.Scanned)
	assert.Equal(t, 2, rep.Referenced)
	assert.Equal(t, []string{"uploads/u1/orphan.png"}, rep.Orphans)
	assert.Equal(t, []string{"uploads/u1/orphan.png"}, rep.Deleted)
	assert.Empty(t, rep.Failed)

	assert.False(t, e.store.Has("uploads/u1/orphan.png"))
	assert.True(t, e.store.Has("uploads/u1/kept.png"))
	assert.True(t, e.store.Has("uploads/u1/legacy.png"))
	assert.True(t, e.store.Has("uploads/u1/fresh.png"))
	assert.True(t, e.store.Has("other/outside.png"))
}

func TestDryRunReportsWithoutDeleting(t *testing.T) {
	e := newEnv(t)
	s := e.sweeper(Options{Prefix: "uploads/", MinAge: 24 * time.Hour, DryRun: true})

	rep, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.DryRun)
	assert.Equal(t, []string{"uploads/u1/orphan.png"}, rep.Orphans)
	assert.Empty(t, rep.Deleted)
	assert.Empty(t, e.store.Deletes())

	rep, err = s.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"uploads/u1/orphan.png"}, rep.Deleted)
}

func TestRunReportsDeleteFailures(t *testing.T) {
	e := newEnv(t)
	e.store.FailDelete("uploads/u1/orphan.png", errors.New("denied"))

	rep, err := e.sweeper(Options{Prefix: "uploads/", MinAge: 24 * time.Hour}).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Deleted)
	require.Len(t, rep.Failed, 1)
	assert.Equal(t, "uploads/u1/orphan.png", rep.Failed[0].Key)
}

type failingKeys struct{}

func (failingKeys) ReferencedKeys(context.Context, func(string)) error {
	return errors.New("mongo down")
}

func TestRunAbortsWhenReferencesUnavailable(t *testing.T) {
	store := storage.NewMemoryStorage(base)
	store.Put("uploads/a", 1, time.Now().Add(-72*time.Hour))
	s := New(failingKeys{}, store, reconcile.New(store, 1), refs.NewNormalizer(base), Options{MinAge: time.Hour})

	_, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Empty(t, store.Deletes(), "nothing is deleted without a complete reference set")
}

func TestStartStop(t *testing.T) {
	e := newEnv(t)
	s := e.sweeper(Options{Prefix: "uploads/", MinAge: 24 * time.Hour, Interval: 10 * time.Millisecond})
	s.Start(context.Background())

	require.Eventually(t, func() bool { return !e.store.Has("uploads/u1/orphan.png") }, 2*time.Second, 10*time.Millisecond)
	s.Stop()
	s.Stop()

	disabled := e.sweeper(Options{})
	disabled.Start(context.Background())
	disabled.Stop()
}
