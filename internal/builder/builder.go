// Package builder performs the one-time full index of a volume.
//
// The walk fills an in-memory accumulator trie keyed by entry base name;
// every first-level child of its root then becomes one shard file.
package builder

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quickseek/internal/ignore"
	"quickseek/internal/logging"
	"quickseek/internal/metrics"
	"quickseek/internal/shard"
	"quickseek/internal/trie"
	"quickseek/internal/walker"
)

// Reporter receives build progress.
type Reporter interface {
	Visit(volume, dir string)
	Done(volume string)
}

// WalkFunc walks a volume root; walker.Walk in production.
type WalkFunc func(ctx context.Context, root string, m *ignore.Matcher, fn func(walker.Entry) error) (*walker.WalkResult, error)

// Result summarizes one Build call.
type Result struct {
	Volume   string
	Root     string
	Skipped  bool // index already present, or another process is building it
	Busy     bool // skipped because the build lock is held elsewhere
	Entries  int
	Shards   int
	Errors   int // entries that could not be read during the walk
	Duration time.Duration

	// Unencodable entries were left out because their path is not valid UTF-8.
	Unencodable int
}

type Builder struct {
	store    *shard.Store
	matcher  *ignore.Matcher
	workers  int
	reporter Reporter
	walk     WalkFunc
	log      *zap.Logger
}

type Option func(*Builder)

// WithWorkers bounds the number of shards written concurrently.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

func WithReporter(r Reporter) Option {
	return func(b *Builder) {
		b.reporter = r
	}
}

// WithWalker replaces the directory walk.
func WithWalker(w WalkFunc) Option {
	return func(b *Builder) {
		if w != nil {
			b.walk = w
		}
	}
}

func New(store *shard.Store, matcher *ignore.Matcher, opts ...Option) *Builder {
	b := &Builder{
		store:   store,
		matcher: matcher,
		workers: runtime.NumCPU(),
		walk:    walker.Walk,
		log:     logging.Named("builder"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build indexes root into volume unless the volume already has shards. An
// existing index is trusted as is: it is neither verified nor merged.
func (b *Builder) Build(ctx context.Context, volume, root string) (*Result, error) {
	return b.BuildWith(ctx, volume, root, b.matcher)
}

// BuildWith is Build with a volume-specific ignore matcher.
func (b *Builder) BuildWith(ctx context.Context, volume, root string, matcher *ignore.Matcher) (*Result, error) {
	result := &Result{Volume: volume, Root: root}

	if b.store.HasIndex(volume) {
		result.Skipped = true
		metrics.RecordBuild("skipped", volume, 0, 0)
		b.log.Debug("volume already indexed", logging.String("volume", volume))
		return result, nil
	}

	lock := flock.New(filepath.Join(b.store.Dir(), "."+volume+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire build lock for %s: %w", volume, err)
	}
	if !locked {
		result.Skipped = true
		result.Busy = true
		b.log.Info("volume is being indexed by another process", logging.String("volume", volume))
		return result, nil
	}
	defer func() { _ = lock.Unlock() }()

	// Another process may have finished between the check and the lock.
	if b.store.HasIndex(volume) {
		result.Skipped = true
		metrics.RecordBuild("skipped", volume, 0, 0)
		return result, nil
	}

	start := time.Now()
	b.log.Info("indexing volume", logging.String("volume", volume), logging.String("root", root))

	acc := trie.New()
	walked, err := b.walk(ctx, root, matcher, func(e walker.Entry) error {
		acc.Insert(e.Name, e.Path)
		result.Entries++
		if b.reporter != nil {
			b.reporter.Visit(volume, filepath.Dir(e.Path))
		}
		return nil
	})
	if b.reporter != nil {
		b.reporter.Done(volume)
	}
	if err != nil {
		metrics.RecordBuild("error", volume, 0, 0)
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	result.Errors = len(walked.Errors)
	result.Unencodable = walked.Unencodable
	if walked.Unencodable > 0 {
		b.log.Warn("skipped paths that are not valid UTF-8",
			logging.String("volume", volume),
			logging.Int("entries", walked.Unencodable))
	}

	if err := b.saveShards(ctx, volume, acc); err != nil {
		// A partial shard set would be mistaken for a finished index.
		if resetErr := b.store.Reset(volume); resetErr != nil {
			b.log.Error("failed to discard partial index", logging.String("volume", volume), logging.Err(resetErr))
		}
		metrics.RecordBuild("error", volume, 0, 0)
		return nil, fmt.Errorf("save shards for %s: %w", volume, err)
	}
	result.Shards = len(acc.Root.Children)
	result.Duration = time.Since(start)

	if err := b.store.WriteManifest(volume, shard.Manifest{
		Root:    root,
		Built:   time.Now().UTC(),
		Entries: result.Entries,
		Shards:  result.Shards,
	}); err != nil {
		b.log.Warn("failed to write manifest", logging.String("volume", volume), logging.Err(err))
	}

	metrics.RecordBuild("built", volume, result.Entries, result.Duration)
	b.log.Info("volume indexed",
		logging.String("volume", volume),
		logging.Int("entries", result.Entries),
		logging.Int("shards", result.Shards),
		logging.Int("unreadable", result.Errors),
		logging.Duration("took", result.Duration))
	return result, nil
}

// saveShards writes one shard per first byte of the accumulator.
func (b *Builder) saveShards(ctx context.Context, volume string, acc *trie.Trie) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for _, first := range acc.Root.Keys() {
		first := first
		sub := acc.Subtree(first)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return b.store.Save(volume, first, sub)
		})
	}
	return g.Wait()
}

// RebuildWith discards the volume's shards and indexes it again with matcher.
func (b *Builder) RebuildWith(ctx context.Context, volume, root string, matcher *ignore.Matcher) (*Result, error) {
	if err := b.store.Reset(volume); err != nil {
		return nil, err
	}
	return b.BuildWith(ctx, volume, root, matcher)
}
