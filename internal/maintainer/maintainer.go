// Package maintainer applies filesystem change events to the shard store.
//
// Events are queued in arrival order and consumed by a single goroutine, so
// two events for the same path are always applied in the order they were
// observed.
package maintainer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	ierrors "quickseek/internal/errors"
	"quickseek/internal/ignore"
	"quickseek/internal/logging"
	"quickseek/internal/metrics"
	"quickseek/internal/shard"
	"quickseek/internal/trie"
	"quickseek/internal/walker"
)

type Op int

const (
	Create Op = iota
	Remove
	RenameFrom
	RenameTo
	Modify
)

func (o Op) String() string {
	switch o {
	case Create:
		return "create"
	case Remove:
		return "remove"
	case RenameFrom:
		return "rename_from"
	case RenameTo:
		return "rename_to"
	case Modify:
		return "modify"
	default:
		return "unknown"
	}
}

// Event is one observed change. IsDir is set when the path named a
// directory at the time the event was produced.
type Event struct {
	Volume string
	Op     Op
	Path   string
	IsDir  bool
}

const DefaultQueueSize = 4096

// maxWalked bounds the set of paths indexed by directory walks whose own
// Create may still be queued.
const maxWalked = 1 << 16

type Maintainer struct {
	store   *shard.Store
	matcher *ignore.Matcher
	queue   chan Event
	log     *zap.Logger

	mu      sync.RWMutex
	volumes map[string]volumeState

	// walked holds paths a directory walk indexed ahead of their own Create
	// event, keyed by volume and path.
	walkedMu sync.Mutex
	walked   map[walkedKey]struct{}
}

type walkedKey struct {
	volume string
	path   string
}

type volumeState struct {
	root    string
	matcher *ignore.Matcher
}

type Option func(*Maintainer)

// WithQueueSize sets the capacity of the event queue.
func WithQueueSize(n int) Option {
	return func(m *Maintainer) {
		if n > 0 {
			m.queue = make(chan Event, n)
		}
	}
}

func New(store *shard.Store, matcher *ignore.Matcher, opts ...Option) *Maintainer {
	m := &Maintainer{
		store:   store,
		matcher: matcher,
		queue:   make(chan Event, DefaultQueueSize),
		log:     logging.Named("maintainer"),
		volumes: make(map[string]volumeState),
		walked:  make(map[walkedKey]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddVolume registers the root of a volume so ignore rules can be evaluated
// relative to it. A nil matcher selects the maintainer's default rules.
func (m *Maintainer) AddVolume(volume, root string, matcher *ignore.Matcher) {
	if matcher == nil {
		matcher = m.matcher
	}
	m.mu.Lock()
	m.volumes[volume] = volumeState{root: filepath.Clean(root), matcher: matcher}
	m.mu.Unlock()
}

func (m *Maintainer) volume(name string) volumeState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.volumes[name]; ok {
		return v
	}
	return volumeState{matcher: m.matcher}
}

// Submit enqueues ev, blocking while the queue is full.
func (m *Maintainer) Submit(ctx context.Context, ev Event) error {
	select {
	case m.queue <- ev:
		metrics.SetQueueDepth(len(m.queue))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued events.
func (m *Maintainer) Pending() int {
	return len(m.queue)
}

// Run consumes the queue until ctx is done. Failures are logged per event and
// never stop the loop.
func (m *Maintainer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-m.queue:
			metrics.SetQueueDepth(len(m.queue))
			if err := m.Apply(ev); err != nil {
				m.logFailure(ev, err)
			}
		}
	}
}

func (m *Maintainer) logFailure(ev Event, err error) {
	fields := []zap.Field{
		logging.String("volume", ev.Volume),
		logging.String("op", ev.Op.String()),
		logging.String("path", ev.Path),
		logging.Err(err),
	}
	if ierrors.KindOf(err) == ierrors.KindPathEncoding {
		m.log.Warn("dropping malformed event", fields...)
		return
	}
	m.log.Error("failed to apply event", fields...)
}

// Apply updates the index for a single event synchronously.
func (m *Maintainer) Apply(ev Event) error {
	if err := validate(ev.Path); err != nil {
		metrics.RecordEvent(ev.Op.String(), "invalid")
		return err
	}
	path := filepath.Clean(ev.Path)

	vol := m.volume(ev.Volume)
	if m.dropped(vol, path) {
		metrics.RecordEvent(ev.Op.String(), "ignored")
		return nil
	}

	var err error
	switch ev.Op {
	case Create, RenameTo:
		switch {
		case ev.IsDir:
			err = m.insertTree(ev.Volume, vol, path)
		case m.consumeWalked(ev.Volume, path):
			metrics.RecordEvent(ev.Op.String(), "walked")
			return nil
		default:
			err = m.store.Insert(ev.Volume, filepath.Base(path), path)
		}
	case Remove, RenameFrom:
		m.forgetWalked(ev.Volume, path)
		err = m.store.Remove(ev.Volume, filepath.Base(path), path)
		if ev.IsDir {
			err = errors.Join(err, m.removeTree(ev.Volume, path))
		}
	case Modify:
		metrics.RecordEvent(ev.Op.String(), "noop")
		return nil
	default:
		metrics.RecordEvent(ev.Op.String(), "invalid")
		return fmt.Errorf("unknown event op %d for %s", int(ev.Op), path)
	}

	if err != nil {
		metrics.RecordEvent(ev.Op.String(), "error")
		return err
	}
	metrics.RecordEvent(ev.Op.String(), "applied")
	m.log.Debug("applied event",
		logging.String("volume", ev.Volume),
		logging.String("op", ev.Op.String()),
		logging.String("path", path))
	return nil
}

func validate(path string) error {
	switch {
	case path == "":
		return ierrors.New(ierrors.KindPathEncoding, "maintainer.apply", "", "empty path")
	case !utf8.ValidString(path):
		return ierrors.New(ierrors.KindPathEncoding, "maintainer.apply", "", "path is not valid UTF-8: %q", path)
	case !filepath.IsAbs(path):
		return ierrors.New(ierrors.KindPathEncoding, "maintainer.apply", path, "path is not absolute")
	}
	return nil
}

// dropped reports whether path must stay out of the index: the store's own
// files, the volume root and anything the ignore rules prune.
func (m *Maintainer) dropped(vol volumeState, path string) bool {
	if ignore.Under(path, m.store.Dir()) {
		return true
	}
	if vol.root != "" && path == vol.root {
		return true
	}
	if filepath.Base(path) == string(filepath.Separator) {
		return true
	}
	return vol.matcher != nil && vol.matcher.Match(vol.root, path)
}

// insertTree indexes a directory that appeared as a whole, together with
// everything below it. Entries are grouped by first byte so each shard is
// loaded and saved once.
func (m *Maintainer) insertTree(volume string, vol volumeState, dir string) error {
	groups := make(map[byte]*trie.Trie)
	add := func(name, path string) {
		if name == "" {
			return
		}
		t, ok := groups[name[0]]
		if !ok {
			t = trie.New()
			groups[name[0]] = t
		}
		t.Insert(name[1:], path)
	}
	add(filepath.Base(dir), dir)

	var files []string
	res, err := walker.Walk(context.Background(), dir, nil, func(e walker.Entry) error {
		if m.dropped(vol, e.Path) {
			if e.IsDir {
				return filepath.SkipDir
			}
			return nil
		}
		add(e.Name, e.Path)
		if !e.IsDir {
			files = append(files, e.Path)
		}
		return nil
	})
	if err != nil {
		// The directory may be gone again already; index what is known.
		m.log.Debug("subtree walk failed", logging.String("path", dir), logging.Err(err))
	} else if len(res.Errors) > 0 {
		m.log.Debug("subtree walk skipped entries",
			logging.String("path", dir),
			logging.Int("errors", len(res.Errors)))
	}

	var errs []error
	for first, t := range groups {
		if err := m.store.MergeMissing(volume, first, t); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	// Files created after the watch was added also get their own Create.
	m.rememberWalked(volume, files)
	return nil
}

// removeTree drops everything indexed below a directory that was removed or
// moved away. Its children produce no events of their own.
func (m *Maintainer) removeTree(volume, dir string) error {
	m.forgetWalkedUnder(volume, dir)
	n, err := m.store.RemoveUnder(volume, dir)
	if n > 0 {
		m.log.Debug("removed subtree",
			logging.String("volume", volume),
			logging.String("path", dir),
			logging.Int("entries", n))
	}
	return err
}

func (m *Maintainer) rememberWalked(volume string, paths []string) {
	m.walkedMu.Lock()
	defer m.walkedMu.Unlock()
	if len(m.walked)+len(paths) > maxWalked {
		clear(m.walked)
	}
	for _, p := range paths {
		m.walked[walkedKey{volume, p}] = struct{}{}
	}
}

// consumeWalked reports whether path was already indexed by a directory walk
// and clears the mark, so its Create is applied at most once on top of it.
func (m *Maintainer) consumeWalked(volume, path string) bool {
	m.walkedMu.Lock()
	defer m.walkedMu.Unlock()
	k := walkedKey{volume, path}
	if _, ok := m.walked[k]; !ok {
		return false
	}
	delete(m.walked, k)
	return true
}

func (m *Maintainer) forgetWalked(volume, path string) {
	m.walkedMu.Lock()
	delete(m.walked, walkedKey{volume, path})
	m.walkedMu.Unlock()
}

func (m *Maintainer) forgetWalkedUnder(volume, dir string) {
	m.walkedMu.Lock()
	defer m.walkedMu.Unlock()
	for k := range m.walked {
		if k.volume == volume && ignore.Under(k.path, dir) {
			delete(m.walked, k)
		}
	}
}
