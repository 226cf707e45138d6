package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	calls   map[string]int
	fail    map[string]error
	delay   time.Duration
	active  atomic.Int32
	maxSeen atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{calls: map[string]int{}, fail: map[string]error{}}
}

func (f *fakeStore) DeleteObject(ctx context.Context, key string) error {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	return f.fail[key]
}

func TestDiff(t *testing.T) {
	assert.Equal(t, []string{"a"}, Diff([]string{"a", "b"}, []string{"b", "c"}))
	assert.Empty(t, Diff([]string{"a", "b"}, []string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, Diff([]string{"a", "b", "a", ""}, nil))
	assert.Empty(t, Diff(nil, []string{"x"}))
}

func TestDiffIsSetDifference(t *testing.T) {
	sets := [][]string{{}, {"a"}, {"a", "b"}, {"b", "c", "d"}, {"a", "d"}}
	for _, a := range sets {
		for _, b := range sets {
			got := Diff(a, b)
			inB := map[string]bool{}
			for _, k := range b {
				inB[k] = true
			}
			want := []string{}
			for _, k := range a {
				if !inB[k] {
					want = append(want, k)
				}
			}
			assert.ElementsMatch(t, want, got, "a=%v b=%v", a, b)
		}
		assert.Empty(t, Diff(a, a))
	}
}

func TestApplyDeletesOnlyRemovedKeys(t *testing.T) {
	store := newFakeStore()
	r := New(store, 4)

	res := r.Apply(context.Background(), []string{"a", "b"}, []string{"b", "c"})

	require.True(t, res.OK())
	assert.Equal(t, []string{"a"}, res.Deleted)
	assert.Equal(t, map[string]int{"a": 1}, store.calls)
}

func TestDeleteAllCollectsFailuresWithoutAborting(t *testing.T) {
	store := newFakeStore()
	store.fail["b"] = errors.New("access denied")
	r := New(store, 0)

	res := r.DeleteAll(context.Background(), []string{"a", "b", "c", "a"})

	assert.False(t, res.OK())
	assert.ElementsMatch(t, []string{"a", "c"}, res.Deleted)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, Failure{Key: "b", Reason: "access denied"}, res.Failed[0])
	assert.Equal(t, []string{"b"}, res.FailedKeys())
	// duplicates collapse to a single call, failures are not retried
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, store.calls)
}

func TestDeleteAllRespectsConcurrencyBound(t *testing.T) {
	store := newFakeStore()
	store.delay = 20 * time.Millisecond
	r := New(store, 2)

	keys := []string{"k1", "k2", "k3", "k4", "k5", "k6"}
	res := r.DeleteAll(context.Background(), keys)

	assert.Len(t, res.Deleted, len(keys))
	assert.LessOrEqual(t, store.maxSeen.Load(), int32(2))
	assert.GreaterOrEqual(t, store.maxSeen.Load(), int32(1))
}

func TestDeleteAllEmpty(t *testing.T) {
	store := newFakeStore()
	res := New(store, 1).DeleteAll(context.Background(), nil)
	assert.True(t, res.OK())
	assert.Empty(t, res.Deleted)
	assert.Empty(t, store.calls)
}

// cancellingStore cancels the caller's context on its first delete and fails
// any delete whose context is done.
type cancellingStore struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	deleted []string
}

func (s *cancellingStore) DeleteObject(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.deleted = append(s.deleted, key)
	return nil
}

func TestDeleteAllIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancellingStore{cancel: cancel}

	res := New(store, 1).DeleteAll(ctx, []string{"a", "b", "c"})
	require.True(t, res.OK(), "failed: %v", res.Failed)
	assert.Equal(t, []string{"a", "b", "c"}, res.Deleted)
	assert.Equal(t, []string{"a", "b", "c"}, store.deleted)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestApplySkipsForeignURLs(t *testing.T) {
	store := newFakeStore()
	res := New(store, 2).Apply(context.Background(), []string{"a", "https://cdn.example.com/x.png", "HTTP://other/y"}, nil)
	assert.Equal(t, []string{"a"}, res.Deleted)
	assert.Equal(t, map[string]int{"a": 1}, store.calls)
}
