// Package sweep deletes stored objects that no post references any more.
//
// Reconciliation on update and delete is fail-soft, so a failed delete leaves
// an orphan behind; uploads that were never attached to a post leave orphans
// too. The sweeper finds them by listing the bucket and subtracting every key
// referenced by a document. Objects younger than MinAge are kept so uploads
// still waiting to be attached survive.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/postboard/postboard/backend/go-services/internal/post/reconcile"
	"github.com/postboard/postboard/backend/go-services/internal/post/refs"
	"github.com/postboard/postboard/backend/go-services/internal/storage"
	"github.com/postboard/postboard/backend/go-services/pkg/logger"
	"github.com/postboard/postboard/backend/go-services/pkg/metrics"
)

// KeySource enumerates every reference held by any post.
type KeySource interface {
	ReferencedKeys(ctx context.Context, fn func(ref string)) error
}

type Options struct {
	Prefix   string
	MinAge   time.Duration
	Interval time.Duration
	DryRun   bool
}

// Report is the outcome of one run.
type Report struct {
	Scanned    int                 `json:"scanned"`
	Referenced int                 `json:"referenced"`
	Orphans    []string            `json:"orphans"`
	Deleted    []string            `json:"deleted"`
	Failed     []reconcile.Failure `json:"failed"`
	DryRun     bool                `json:"dryRun"`
	Duration   time.Duration       `json:"duration"`
}

type Sweeper struct {
	keys  KeySource
	store storage.ObjectStore
	rec   *reconcile.Reconciler
	norm  *refs.Normalizer
	opts  Options
	now   func() time.Time
	hist  History

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(keys KeySource, store storage.ObjectStore, rec *reconcile.Reconciler, norm *refs.Normalizer, opts Options) *Sweeper {
	return &Sweeper{keys: keys, store: store, rec: rec, norm: norm, opts: opts, now: time.Now}
}

// SetHistory makes every run persist a Record to h.
func (s *Sweeper) SetHistory(h History) { s.hist = h }

// LastRun returns the most recent persisted run, or nil when there is none
// or no history is configured.
func (s *Sweeper) LastRun(ctx context.Context) (*Record, error) {
	if s.hist == nil {
		return nil, nil
	}
	return s.hist.Last(ctx)
}

// RunOnce sweeps with the configured dry-run setting.
func (s *Sweeper) RunOnce(ctx context.Context) (*Report, error) {
	return s.Run(ctx, s.opts.DryRun)
}

// Run performs one sweep. Runs are serialized.
func (s *Sweeper) Run(ctx context.Context, dryRun bool) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	rep := &Report{DryRun: dryRun, Orphans: []string{}, Deleted: []string{}, Failed: []reconcile.Failure{}}

	// references first: an object attached after this point is young enough to be kept
	referenced := map[string]struct{}{}
	err := s.keys.ReferencedKeys(ctx, func(ref string) {
		if k := s.norm.ToKey(ref); k != "" {
			referenced[k] = struct{}{}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("collect referenced keys: %w", err)
	}
	rep.Referenced = len(referenced)

	cutoff := s.now().Add(-s.opts.MinAge)
	err = s.store.ListObjects(ctx, s.opts.Prefix, func(o storage.ObjectInfo) error {
		rep.Scanned++
		if _, ok := referenced[o.Key]; ok {
			return nil
		}
		if o.LastModified.After(cutoff) {
			return nil
		}
		rep.Orphans = append(rep.Orphans, o.Key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects under %q: %w", s.opts.Prefix, err)
	}

	if !dryRun && len(rep.Orphans) > 0 {
		res := s.rec.DeleteAll(ctx, rep.Orphans)
		rep.Deleted = append(rep.Deleted, res.Deleted...)
		rep.Failed = append(rep.Failed, res.Failed...)
	}
	rep.Duration = time.Since(start)

	metrics.SweepRuns.Inc()
	metrics.SweepOrphans.Add(float64(len(rep.Orphans)))
	metrics.SweepDuration.Observe(rep.Duration.Seconds())

	logger.Infow("orphan sweep finished",
		"scanned", rep.Scanned,
		"referenced", rep.Referenced,
		"orphans", len(rep.Orphans),
		"deleted", len(rep.Deleted),
		"failed", len(rep.Failed),
		"dryRun", dryRun,
		"duration", rep.Duration.String(),
	)
	if s.hist != nil {
		if err := s.hist.Save(ctx, newRecord(start, rep)); err != nil {
			logger.Warnf("failed to record sweep run: %v", err)
		}
	}
	return rep, nil
}

// Start runs the sweep every Interval until Stop or ctx is done. It is a
// no-op when Interval is not positive.
func (s *Sweeper) Start(ctx context.Context) {
	if s.opts.Interval <= 0 {
		logger.Infof("orphan sweep disabled")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx)
	logger.Infof("orphan sweep started interval=%s minAge=%s prefix=%q dryRun=%t", s.opts.Interval, s.opts.MinAge, s.opts.Prefix, s.opts.DryRun)
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				logger.Errorf("orphan sweep failed: %v", err)
			}
		}
	}
}

// Stop cancels the background loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	logger.Infof("orphan sweep stopped")
}
