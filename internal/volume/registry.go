package volume

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quickseek/internal/builder"
	"quickseek/internal/compare"
	"quickseek/internal/ignore"
	"quickseek/internal/logging"
	"quickseek/internal/maintainer"
	"quickseek/internal/shard"
	"quickseek/internal/walker"
	"quickseek/internal/watcher"
)

// IgnoreOptions are the rules shared by every volume.
type IgnoreOptions struct {
	Patterns     []string
	IgnoreHidden bool
}

// Status describes one volume for health reporting.
type Status struct {
	Volume
	Indexed     bool   `json:"indexed"`
	Watching    bool   `json:"watching"`
	WatchedDirs int64  `json:"watchedDirs"`
	WatchErrors uint64 `json:"watchErrors"`
}

// Registry owns the per-volume lifecycle: build the index when missing, then
// keep it current through a recursive watch.
type Registry struct {
	volumes  []Volume
	store    *shard.Store
	builder  *builder.Builder
	maint    *maintainer.Maintainer
	matchers map[string]*ignore.Matcher
	workers  int
	log      *zap.Logger

	mu       sync.Mutex
	watchers map[string]*watcher.Watcher
}

// NewRegistry wires the volumes to the store. Each volume gets its own ignore
// matcher which, besides the shared rules, prunes the index directory and any
// other volume mounted below it.
func NewRegistry(volumes []Volume, store *shard.Store, b *builder.Builder, m *maintainer.Maintainer, opts IgnoreOptions, workers int) *Registry {
	if workers <= 0 {
		workers = 1
	}
	r := &Registry{
		volumes:  append([]Volume(nil), volumes...),
		store:    store,
		builder:  b,
		maint:    m,
		matchers: make(map[string]*ignore.Matcher, len(volumes)),
		workers:  workers,
		log:      logging.Named("volume"),
		watchers: make(map[string]*watcher.Watcher),
	}
	for _, v := range r.volumes {
		matcher := ignore.New(opts.Patterns,
			ignore.WithHidden(opts.IgnoreHidden),
			ignore.WithPrefixes(store.Dir()),
			ignore.WithPrefixes(nestedRoots(v, r.volumes)...))
		r.matchers[v.ID] = matcher
		m.AddVolume(v.ID, v.Root, matcher)
	}
	return r
}

func nestedRoots(v Volume, all []Volume) []string {
	var nested []string
	for _, o := range all {
		if o.Root != v.Root && ignore.Under(o.Root, v.Root) {
			nested = append(nested, o.Root)
		}
	}
	return nested
}

// Volumes returns the registered volumes.
func (r *Registry) Volumes() []Volume {
	return append([]Volume(nil), r.volumes...)
}

// Find resolves a registered volume by ID or root.
func (r *Registry) Find(key string) (Volume, error) {
	return Find(r.volumes, key)
}

// Matcher returns the ignore matcher used for v.
func (r *Registry) Matcher(v Volume) *ignore.Matcher {
	return r.matchers[v.ID]
}

// Ensure builds the index of every volume that has none, in parallel. A
// failed volume does not stop the others; all failures are returned joined.
func (r *Registry) Ensure(ctx context.Context) ([]*builder.Result, error) {
	results := make([]*builder.Result, len(r.volumes))
	errs := make([]error, len(r.volumes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, v := range r.volumes {
		i, v := i, v
		g.Go(func() error {
			res, err := r.builder.BuildWith(gctx, v.ID, v.Root, r.Matcher(v))
			if err != nil {
				r.log.Error("failed to index volume",
					logging.String("volume", v.ID),
					logging.String("root", v.Root),
					logging.Err(err))
				errs[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// Start ensures every index and then watches every volume. Build and watch
// failures are logged and only affect their own volume.
func (r *Registry) Start(ctx context.Context) error {
	if _, err := r.Ensure(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}

	for _, v := range r.volumes {
		w := watcher.New(v.ID, v.Root, r.Matcher(v), r.maint)
		if err := w.Start(ctx); err != nil {
			r.log.Warn("live tracking disabled for volume",
				logging.String("volume", v.ID),
				logging.String("root", v.Root),
				logging.Err(err))
			continue
		}
		r.mu.Lock()
		r.watchers[v.ID] = w
		r.mu.Unlock()
	}
	return nil
}

// Watching reports whether the volume has a live watch.
func (r *Registry) Watching(id string) bool {
	r.mu.Lock()
	w := r.watchers[id]
	r.mu.Unlock()
	return w != nil && w.Healthy()
}

// Pending returns the number of change events waiting to be applied.
func (r *Registry) Pending() int {
	return r.maint.Pending()
}

// Status reports every volume's index and watch state.
func (r *Registry) Status() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Status, 0, len(r.volumes))
	for _, v := range r.volumes {
		s := Status{Volume: v, Indexed: r.store.HasIndex(v.ID)}
		if w := r.watchers[v.ID]; w != nil {
			s.Watching = w.Healthy()
			s.WatchedDirs = w.Dirs()
			s.WatchErrors = w.Errors()
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Root < out[j].Root })
	return out
}

// Close stops every watch.
func (r *Registry) Close() error {
	r.mu.Lock()
	watchers := r.watchers
	r.watchers = make(map[string]*watcher.Watcher)
	r.mu.Unlock()

	var errs []error
	for _, w := range watchers {
		if err := w.Stop(); err != nil {
			errs = append(errs, err)
		}
		w.Wait()
	}
	return errors.Join(errs...)
}

// Rebuild discards and rebuilds the index of v.
func (r *Registry) Rebuild(ctx context.Context, v Volume) (*builder.Result, error) {
	return r.builder.RebuildWith(ctx, v.ID, v.Root, r.Matcher(v))
}

// Reconcile walks v again and diffs it against the index. With apply set the
// missing entries are inserted and stale or duplicated ones removed through
// the maintainer.
func (r *Registry) Reconcile(ctx context.Context, v Volume, apply bool) (*compare.CompareResult, error) {
	indexed, err := r.store.Locations(v.ID)
	if err != nil {
		return nil, err
	}

	var onDisk []string
	if _, err := walker.Walk(ctx, v.Root, r.Matcher(v), func(e walker.Entry) error {
		onDisk = append(onDisk, e.Path)
		return nil
	}); err != nil {
		return nil, err
	}

	result := compare.Compare(indexed, onDisk)
	if !apply || !result.HasChanges() {
		return result, nil
	}

	var errs []error
	applyAll := func(op maintainer.Op, changes []compare.Change) {
		for _, c := range changes {
			if err := r.maint.Apply(maintainer.Event{Volume: v.ID, Op: op, Path: c.Path}); err != nil {
				errs = append(errs, err)
			}
		}
	}
	applyAll(maintainer.Remove, result.Deleted)
	applyAll(maintainer.Remove, result.Duplicates)
	applyAll(maintainer.Create, result.Added)

	r.log.Info("volume reconciled",
		logging.String("volume", v.ID),
		logging.Int("added", len(result.Added)),
		logging.Int("removed", len(result.Deleted)),
		logging.Int("deduplicated", len(result.Duplicates)))
	return result, errors.Join(errs...)
}

// ReconcileEvery reconciles all volumes on each tick until ctx is done.
func (r *Registry) ReconcileEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, v := range r.volumes {
				if _, err := r.Reconcile(ctx, v, true); err != nil {
					r.log.Warn("reconcile failed", logging.String("volume", v.ID), logging.Err(err))
				}
			}
		}
	}
}
