package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/postboard/postboard/backend/go-services/internal/post/refs"
	"github.com/postboard/postboard/backend/go-services/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the delete fan-out when none is configured.
const DefaultConcurrency = 8

// DefaultTimeout bounds one whole fan-out once it has been detached from the
// caller's cancellation.
const DefaultTimeout = 30 * time.Second

// Deleter is the object-storage side of reconciliation.
type Deleter interface {
	DeleteObject(ctx context.Context, key string) error
}

// Failure records one key whose deletion did not succeed.
type Failure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Result is the settled outcome of a delete fan-out.
type Result struct {
	Deleted []string  `json:"deleted"`
	Failed  []Failure `json:"failed,omitempty"`
}

// OK reports whether every deletion succeeded.
func (r Result) OK() bool { return len(r.Failed) == 0 }

// FailedKeys lists the keys that could not be deleted.
func (r Result) FailedKeys() []string {
	out := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		out = append(out, f.Key)
	}
	return out
}

// Diff returns the keys of oldKeys absent from newKeys, without duplicates,
// in the order they appear in oldKeys.
func Diff(oldKeys, newKeys []string) []string {
	keep := make(map[string]struct{}, len(newKeys))
	for _, k := range newKeys {
		keep[k] = struct{}{}
	}
	seen := make(map[string]struct{}, len(oldKeys))
	out := make([]string, 0, len(oldKeys))
	for _, k := range oldKeys {
		if k == "" {
			continue
		}
		if _, ok := keep[k]; ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func ownedKeys(keys []string) []string {
	out := keys[:0]
	for _, k := range keys {
		if refs.Classify(k).Kind == refs.KindURL {
			continue
		}
		out = append(out, k)
	}
	return out
}

// Reconciler deletes storage objects that a mutation stopped referencing.
type Reconciler struct {
	store   Deleter
	limit   int
	timeout time.Duration
}

// New returns a Reconciler issuing at most concurrency deletes at a time
// (DefaultConcurrency when concurrency <= 0).
func New(store Deleter, concurrency int) *Reconciler {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Reconciler{store: store, limit: concurrency, timeout: DefaultTimeout}
}

// Apply deletes Diff(oldKeys, newKeys).
func (r *Reconciler) Apply(ctx context.Context, oldKeys, newKeys []string) Result {
	return r.DeleteAll(ctx, Diff(oldKeys, newKeys))
}

// DeleteAll issues one independent delete per distinct key and waits for all
// of them to settle. A failing delete neither cancels the others nor is retried.
// Absolute URLs are foreign objects and are skipped. Cancelling ctx does not
// abort the fan-out; only the reconciler's own timeout does.
func (r *Reconciler) DeleteAll(ctx context.Context, keys []string) Result {
	keys = ownedKeys(Diff(keys, nil))
	res := Result{Deleted: []string{}}
	if len(keys) == 0 {
		return res
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.limit)
	for _, key := range keys {
		g.Go(func() error {
			err := r.store.DeleteObject(ctx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed = append(res.Failed, Failure{Key: key, Reason: err.Error()})
				metrics.StorageDeletes.WithLabelValues("failed").Inc()
				return nil
			}
			res.Deleted = append(res.Deleted, key)
			metrics.StorageDeletes.WithLabelValues("ok").Inc()
			return nil
		})
	}
	_ = g.Wait()
	return res
}
