// Package shard persists one trie per (volume, first byte of name).
//
// A shard holds every indexed name of a volume that starts with a given byte.
// That byte is implied by the file name and never stored in the trie, so a
// shard's root corresponds to the second byte of a name. Shards are loaded,
// mutated and saved independently; a missing shard file is an empty shard.
package shard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	ierrors "quickseek/internal/errors"
	"quickseek/internal/logging"
	"quickseek/internal/metrics"
	"quickseek/internal/trie"
)

const (
	shardExt = ".shard"

	// DefaultCacheSize is the number of decoded shards kept in memory.
	DefaultCacheSize = 64
)

// ErrEmptyName is returned when a name has no first byte to select a shard.
var ErrEmptyName = errors.New("empty name")

// Key identifies a shard.
type Key struct {
	Volume string
	First  byte
}

func (k Key) String() string {
	return k.Volume + "/" + FileName(k.First)
}

// FileName returns the shard file name for a first byte.
func FileName(b byte) string {
	return fmt.Sprintf("%02x%s", b, shardExt)
}

// Store maps shard keys to files under a root directory and serializes access
// to each shard with its own lock.
type Store struct {
	dir   string
	cache *lru.Cache[Key, *trie.Trie]
	log   *zap.Logger

	mu    sync.Mutex
	locks map[Key]*sync.RWMutex
}

// Option configures a Store.
type Option func(*Store) error

// WithCacheSize keeps up to n decoded shards in memory. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(s *Store) error {
		if n <= 0 {
			s.cache = nil
			return nil
		}
		cache, err := lru.New[Key, *trie.Trie](n)
		if err != nil {
			return fmt.Errorf("create shard cache: %w", err)
		}
		s.cache = cache
		return nil
	}
}

// Open creates the store root if needed and returns a Store.
func Open(dir string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve index directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, ierrors.IO("shard.open", abs, err)
	}

	s := &Store{
		dir:   abs,
		log:   logging.Named("shard"),
		locks: make(map[Key]*sync.RWMutex),
	}
	opts = append([]Option{WithCacheSize(DefaultCacheSize)}, opts...)
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Dir returns the absolute store root.
func (s *Store) Dir() string {
	return s.dir
}

// VolumeDir returns the directory holding a volume's shards.
func (s *Store) VolumeDir(volume string) string {
	return filepath.Join(s.dir, volume)
}

// Path returns the file backing a shard.
func (s *Store) Path(k Key) string {
	return filepath.Join(s.VolumeDir(k.Volume), FileName(k.First))
}

func (s *Store) lock(k Key) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[k]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[k] = l
	}
	return l
}

// read returns the shard for k from cache or disk. A missing file yields an
// empty trie and no error.
func (s *Store) read(k Key) (*trie.Trie, error) {
	if s.cache != nil {
		if t, ok := s.cache.Get(k); ok {
			metrics.RecordShardLoad("hit")
			return t, nil
		}
	}

	path := s.Path(k)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			metrics.RecordShardLoad("missing")
			return trie.New(), nil
		}
		metrics.RecordShardLoad("error")
		return nil, ierrors.IO("shard.load", path, err)
	}

	t, err := trie.Unmarshal(data)
	if err != nil {
		metrics.RecordShardLoad("corrupt")
		return nil, ierrors.Serialization("shard.load", path, err)
	}
	metrics.RecordShardLoad("disk")
	if s.cache != nil {
		s.cache.Add(k, t)
	}
	return t, nil
}

// readOrEmpty treats any load failure as an empty shard.
func (s *Store) readOrEmpty(k Key) *trie.Trie {
	t, err := s.read(k)
	if err != nil {
		s.log.Warn("shard unreadable, treating as empty",
			logging.String("volume", k.Volume),
			logging.Byte("first", k.First),
			logging.Err(err))
		return trie.New()
	}
	return t
}

// write persists t for k atomically. An empty trie removes the shard file.
func (s *Store) write(k Key, t *trie.Trie) error {
	path := s.Path(k)
	if t.Empty() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ierrors.IO("shard.save", path, err)
		}
		return nil
	}
	return writeFileAtomic(path, trie.Marshal(t))
}

// writeFileAtomic writes data to a temp file next to path, syncs it and renames
// it over path, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ierrors.IO("shard.save", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return ierrors.IO("shard.save", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return ierrors.IO("shard.save", tmp.Name(), err)
	}
	if err = tmp.Sync(); err != nil {
		return ierrors.IO("shard.save", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return ierrors.IO("shard.save", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return ierrors.IO("shard.save", path, err)
	}
	return nil
}

// Load reads a shard from disk into a trie owned by the caller. Absent,
// unreadable and corrupt shards all load as empty.
func (s *Store) Load(volume string, first byte) *trie.Trie {
	k := Key{Volume: volume, First: first}
	l := s.lock(k)
	l.RLock()
	defer l.RUnlock()

	path := s.Path(k)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("shard unreadable, treating as empty", logging.String("path", path), logging.Err(err))
		}
		return trie.New()
	}
	t, err := trie.Unmarshal(data)
	if err != nil {
		s.log.Warn("shard corrupt, treating as empty", logging.String("path", path), logging.Err(err))
		return trie.New()
	}
	return t
}

// Save replaces a shard with t.
func (s *Store) Save(volume string, first byte, t *trie.Trie) error {
	k := Key{Volume: volume, First: first}
	l := s.lock(k)
	l.Lock()
	defer l.Unlock()

	err := s.write(k, t)
	metrics.RecordShardSave(err)
	if s.cache != nil {
		// The caller keeps t; cache a private copy on next read instead.
		s.cache.Remove(k)
	}
	return err
}

// Update runs fn on the shard under its exclusive lock and saves the result
// when fn reports a change. If the save fails the change is discarded: the
// cached copy is dropped so the next access reloads what is on disk.
//
// A corrupt shard is replaced as if it were empty. A shard that cannot be read
// at all is left untouched and the IO error is returned.
func (s *Store) Update(volume string, first byte, fn func(*trie.Trie) bool) error {
	k := Key{Volume: volume, First: first}
	l := s.lock(k)
	l.Lock()
	defer l.Unlock()

	t, err := s.read(k)
	if err != nil {
		if ierrors.KindOf(err) != ierrors.KindSerialization {
			s.log.Error("shard unreadable, change dropped",
				logging.String("volume", volume),
				logging.Byte("first", first),
				logging.Err(err))
			return err
		}
		s.log.Warn("shard corrupt, replacing",
			logging.String("volume", volume),
			logging.Byte("first", first),
			logging.Err(err))
		t = trie.New()
	}
	if !fn(t) {
		return nil
	}

	err = s.write(k, t)
	metrics.RecordShardSave(err)
	if err != nil {
		if s.cache != nil {
			s.cache.Remove(k)
		}
		s.log.Error("shard save failed, change dropped",
			logging.String("volume", volume),
			logging.Byte("first", first),
			logging.Err(err))
		return err
	}
	if s.cache != nil {
		if t.Empty() {
			s.cache.Remove(k)
		} else {
			s.cache.Add(k, t)
		}
	}
	return nil
}

// View runs fn on the shard under its shared lock. fn must not modify the trie.
func (s *Store) View(volume string, first byte, fn func(*trie.Trie)) {
	k := Key{Volume: volume, First: first}
	l := s.lock(k)
	l.RLock()
	defer l.RUnlock()

	fn(s.readOrEmpty(k))
}

// Insert records location under name in the shard selected by name's first byte.
func (s *Store) Insert(volume, name, location string) error {
	if name == "" {
		return ErrEmptyName
	}
	return s.Update(volume, name[0], func(t *trie.Trie) bool {
		t.Insert(name[1:], location)
		return true
	})
}

// Remove deletes location from name in the shard selected by name's first
// byte. Removing an unindexed name is not an error.
func (s *Store) Remove(volume, name, location string) error {
	if name == "" {
		return ErrEmptyName
	}
	return s.Update(volume, name[0], func(t *trie.Trie) bool {
		return t.Remove(name[1:], location)
	})
}

// Merge appends every location of src, a shard-relative trie, into the shard.
func (s *Store) Merge(volume string, first byte, src *trie.Trie) error {
	if src == nil || src.Empty() {
		return nil
	}
	return s.Update(volume, first, func(t *trie.Trie) bool {
		t.Merge(src)
		return true
	})
}

// MergeMissing is Merge that skips locations the shard already holds under
// the same name.
func (s *Store) MergeMissing(volume string, first byte, src *trie.Trie) error {
	if src == nil || src.Empty() {
		return nil
	}
	return s.Update(volume, first, func(t *trie.Trie) bool {
		before := t.Len()
		t.MergeMissing(src)
		return t.Len() != before
	})
}

// RemoveUnder deletes every location of volume that lies strictly below dir
// and returns how many were removed.
func (s *Store) RemoveUnder(volume, dir string) (int, error) {
	prefix := filepath.Clean(dir)
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	firsts, err := s.Shards(volume)
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, b := range firsts {
		n := 0
		err := s.Update(volume, b, func(t *trie.Trie) bool {
			n = t.RemoveIf(func(loc string) bool {
				return strings.HasPrefix(loc, prefix)
			})
			return n > 0
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		removed += n
	}
	return removed, errors.Join(errs...)
}

// Shards lists the first bytes that have a shard file for volume.
func (s *Store) Shards(volume string) ([]byte, error) {
	entries, err := os.ReadDir(s.VolumeDir(volume))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, ierrors.IO("shard.list", s.VolumeDir(volume), err)
	}

	var firsts []byte
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, shardExt) {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSuffix(name, shardExt), 16, 8)
		if err != nil {
			continue
		}
		firsts = append(firsts, byte(v))
	}
	sort.Slice(firsts, func(i, j int) bool { return firsts[i] < firsts[j] })
	return firsts, nil
}

// HasIndex reports whether volume has at least one shard on disk.
func (s *Store) HasIndex(volume string) bool {
	firsts, err := s.Shards(volume)
	return err == nil && len(firsts) > 0
}

// Volumes lists the volume directories present in the store.
func (s *Store) Volumes() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, ierrors.IO("shard.volumes", s.dir, err)
	}
	var volumes []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			volumes = append(volumes, e.Name())
		}
	}
	return volumes, nil
}

// Locations returns every location stored for volume, across all shards.
func (s *Store) Locations(volume string) ([]string, error) {
	firsts, err := s.Shards(volume)
	if err != nil {
		return nil, err
	}
	var all []string
	for _, b := range firsts {
		s.View(volume, b, func(t *trie.Trie) {
			all = append(all, t.Collect()...)
		})
	}
	return all, nil
}

// Reset deletes every shard of volume. All of the volume's shard locks are
// held while the directory is removed.
func (s *Store) Reset(volume string) error {
	held := make([]*sync.RWMutex, 0, 256)
	for b := 0; b < 256; b++ {
		l := s.lock(Key{Volume: volume, First: byte(b)})
		l.Lock()
		held = append(held, l)
	}
	defer func() {
		for _, l := range held {
			l.Unlock()
		}
	}()

	if s.cache != nil {
		for b := 0; b < 256; b++ {
			s.cache.Remove(Key{Volume: volume, First: byte(b)})
		}
	}
	if err := os.RemoveAll(s.VolumeDir(volume)); err != nil {
		return ierrors.IO("shard.reset", s.VolumeDir(volume), err)
	}
	return nil
}
