// Package watcher turns fsnotify notifications for one volume into index
// change events.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	ierrors "quickseek/internal/errors"
	"quickseek/internal/ignore"
	"quickseek/internal/logging"
	"quickseek/internal/maintainer"
	"quickseek/internal/metrics"
)

// Sink receives events in the order they were observed.
type Sink interface {
	Submit(ctx context.Context, ev maintainer.Event) error
}

// Watcher holds one recursive fsnotify watch over a volume root.
type Watcher struct {
	volume  string
	root    string
	matcher *ignore.Matcher
	sink    Sink
	log     *zap.Logger

	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	done    chan struct{}
	mu      sync.Mutex
	started bool
	stopped bool

	// dirs holds every watched directory below root, so a Remove or Rename
	// can be recognized as a directory after it is gone.
	dirsMu sync.Mutex
	dirs   map[string]struct{}

	watched atomic.Int64
	errs    atomic.Uint64
}

func New(volume, root string, matcher *ignore.Matcher, sink Sink) *Watcher {
	return &Watcher{
		volume:  volume,
		root:    filepath.Clean(root),
		matcher: matcher,
		sink:    sink,
		log:     logging.Named("watcher").With(logging.String("volume", volume)),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		dirs:    make(map[string]struct{}),
	}
}

// Start registers the watch and begins forwarding events until ctx is done
// or Stop is called. A failure to watch the root itself is returned as a
// watch error; failures below it are logged and leave those directories
// untracked.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return ierrors.Watch("watcher.start", w.root, err)
	}
	if err := fsw.Add(w.root); err != nil {
		_ = fsw.Close()
		return ierrors.Watch("watcher.start", w.root, err)
	}
	w.fsw = fsw
	w.watched.Add(1)
	w.addRecursive(w.root)

	w.started = true
	go w.loop(ctx)

	w.log.Info("watching volume", logging.String("root", w.root), zap.Int64("dirs", w.watched.Load()))
	return nil
}

// addRecursive watches every directory below dir that the ignore rules keep.
func (w *Watcher) addRecursive(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() || path == w.root {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.reportError(ierrors.Watch("watcher.add", path, err))
			return filepath.SkipDir
		}
		w.dirsMu.Lock()
		if _, ok := w.dirs[path]; !ok {
			w.dirs[path] = struct{}{}
			w.watched.Add(1)
		}
		w.dirsMu.Unlock()
		return nil
	})
}

// forget drops path and every watched directory below it. It reports whether
// path itself was a watched directory and returns the dropped directories.
func (w *Watcher) forget(path string) (bool, []string) {
	w.dirsMu.Lock()
	defer w.dirsMu.Unlock()
	_, isDir := w.dirs[path]
	var gone []string
	for d := range w.dirs {
		if ignore.Under(d, path) {
			gone = append(gone, d)
			delete(w.dirs, d)
		}
	}
	w.watched.Add(-int64(len(gone)))
	return isDir, gone
}

func (w *Watcher) ignored(path string) bool {
	return w.matcher != nil && w.matcher.Match(w.root, path)
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.handle(ctx, event) {
				return
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warn("event queue overflowed, index may drift until the next reconcile")
			}
			w.reportError(ierrors.Watch("watcher.events", w.root, err))
		}
	}
}

// handle translates one notification. It returns false once the sink no
// longer accepts events.
func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) bool {
	path := filepath.Clean(event.Name)
	if path == w.root || w.ignored(path) {
		return true
	}

	var op maintainer.Op
	isDir := false
	switch {
	case event.Has(fsnotify.Create):
		op = maintainer.Create
		if info, err := os.Lstat(path); err == nil && info.IsDir() {
			isDir = true
			w.addRecursive(path)
		}
	case event.Has(fsnotify.Write):
		op = maintainer.Modify
	case event.Has(fsnotify.Remove):
		op = maintainer.Remove
		isDir, _ = w.forget(path)
	case event.Has(fsnotify.Rename):
		op = maintainer.RenameFrom
		var gone []string
		isDir, gone = w.forget(path)
		// The moved directories are watched again under their new name.
		for _, d := range gone {
			_ = w.fsw.Remove(d)
		}
	default:
		// Chmod
		return true
	}

	err := w.sink.Submit(ctx, maintainer.Event{
		Volume: w.volume,
		Op:     op,
		Path:   path,
		IsDir:  isDir,
	})
	return err == nil
}

func (w *Watcher) reportError(err error) {
	w.errs.Add(1)
	metrics.RecordWatchError(w.volume)
	w.log.Warn("watch error", logging.Err(err))
}

// Stop closes the watch. It is safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// Wait blocks until the event loop has exited.
func (w *Watcher) Wait() {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
}

// Healthy reports whether the watch is registered and not stopped.
func (w *Watcher) Healthy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started && !w.stopped
}

// Dirs returns the number of directories under watch.
func (w *Watcher) Dirs() int64 {
	return w.watched.Load()
}

// Errors returns the number of watch errors seen so far.
func (w *Watcher) Errors() uint64 {
	return w.errs.Load()
}

func (w *Watcher) Volume() string { return w.volume }

func (w *Watcher) Root() string { return w.root }
