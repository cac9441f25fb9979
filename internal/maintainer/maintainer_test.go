package maintainer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "quickseek/internal/errors"
	"quickseek/internal/ignore"
	"quickseek/internal/shard"
	"quickseek/internal/trie"
)

type fixture struct {
	root  string
	store *shard.Store
	m     *Maintainer
}

func newFixture(t *testing.T, patterns ...string) *fixture {
	t.Helper()
	root := t.TempDir()
	store, err := shard.Open(filepath.Join(t.TempDir(), "index"))
	require.NoError(t, err)
	matcher := ignore.New(patterns, ignore.WithPrefixes(store.Dir()))
	m := New(store, matcher, WithQueueSize(8))
	m.AddVolume("vol", root, nil)
	return &fixture{root: root, store: store, m: m}
}

func (f *fixture) lookup(prefix string) []string {
	var out []string
	f.store.View("vol", prefix[0], func(t *trie.Trie) {
		out = t.Prefix(prefix[1:])
	})
	sort.Strings(out)
	return out
}

func (f *fixture) path(rel string) string {
	return filepath.Join(f.root, filepath.FromSlash(rel))
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "create", Create.String())
	assert.Equal(t, "rename_from", RenameFrom.String())
	assert.Equal(t, "unknown", Op(42).String())
}

func TestApply_EventTable(t *testing.T) {
	f := newFixture(t)
	a := f.path("a.txt")
	b := f.path("b.txt")

	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: a}))
	assert.Equal(t, []string{a}, f.lookup("a"))

	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Modify, Path: a}))
	assert.Equal(t, []string{a}, f.lookup("a"))

	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: RenameFrom, Path: a}))
	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: RenameTo, Path: b}))
	assert.Empty(t, f.lookup("a"))
	assert.Equal(t, []string{b}, f.lookup("b"))

	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Remove, Path: b}))
	assert.Empty(t, f.lookup("b"))
	assert.False(t, f.store.HasIndex("vol"))
}

func TestApply_RemoveKeepsSameNameElsewhere(t *testing.T) {
	f := newFixture(t)
	x := f.path("x/index.js")
	y := f.path("y/index.js")

	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: x}))
	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: y}))
	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Remove, Path: x}))

	assert.Equal(t, []string{y}, f.lookup("index"))
}

func TestApply_RemoveUnknownIsNoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Remove, Path: f.path("ghost")}))
	assert.False(t, f.store.HasIndex("vol"))
}

func TestApply_DropsIgnoredPaths(t *testing.T) {
	f := newFixture(t, "node_modules/", "*.tmp")

	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: f.path("node_modules/lodash/index.js")}))
	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: f.path("scratch.tmp")}))
	assert.False(t, f.store.HasIndex("vol"))
}

func TestApply_DropsStoreDirectory(t *testing.T) {
	f := newFixture(t)
	inside := filepath.Join(f.store.Dir(), "vol", "61.shard")

	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: inside}))
	assert.False(t, f.store.HasIndex("vol"))
}

func TestApply_DropsVolumeRoot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: f.root, IsDir: true}))
	assert.False(t, f.store.HasIndex("vol"))
}

func TestApply_MalformedPaths(t *testing.T) {
	f := newFixture(t)

	for name, path := range map[string]string{
		"empty":    "",
		"relative": filepath.Join("rel", "a.txt"),
		"invalid":  f.path("bad\xff.txt"),
	} {
		t.Run(name, func(t *testing.T) {
			err := f.m.Apply(Event{Volume: "vol", Op: Create, Path: path})
			require.Error(t, err)
			assert.ErrorIs(t, err, ierrors.ErrPathEncoding)
		})
	}
	assert.False(t, f.store.HasIndex("vol"))
}

func TestApply_DirectoryCreateIndexesSubtree(t *testing.T) {
	f := newFixture(t, "node_modules/")
	dir := f.path("project")
	for _, rel := range []string{"project/src/main.go", "project/README.md", "project/node_modules/dep/main.go"} {
		p := f.path(rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: RenameTo, Path: dir, IsDir: true}))

	assert.Equal(t, []string{dir}, f.lookup("project"))
	assert.Equal(t, []string{f.path("project/src")}, f.lookup("src"))
	assert.Equal(t, []string{f.path("project/src/main.go")}, f.lookup("main"))
	assert.Equal(t, []string{f.path("project/README.md")}, f.lookup("READ"))
	assert.Empty(t, f.lookup("node"))
	assert.Empty(t, f.lookup("dep"))
}

func TestApply_DirectoryCreateThenChildCreateIndexesOnce(t *testing.T) {
	f := newFixture(t)
	dir := f.path("proj")
	file := f.path("proj/zeta.txt")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	// The file's own Create is queued behind the directory's.
	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: dir, IsDir: true}))
	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: file}))
	assert.Equal(t, []string{file}, f.lookup("zeta"))

	// A later Create of the same path is a plain insert again.
	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: file}))
	assert.Len(t, f.lookup("zeta"), 2)
}

func TestApply_ChildCreateThenDirectoryCreateIndexesOnce(t *testing.T) {
	f := newFixture(t)
	dir := f.path("proj")
	file := f.path("proj/zeta.txt")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: file}))
	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: dir, IsDir: true}))
	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: dir, IsDir: true}))

	assert.Equal(t, []string{file}, f.lookup("zeta"))
	assert.Equal(t, []string{dir}, f.lookup("proj"))
}

func TestApply_DirectoryMoveDropsDescendants(t *testing.T) {
	f := newFixture(t)
	for _, rel := range []string{"proj/zeta.txt", "proj/src/main.go"} {
		p := f.path(rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: f.path("proj"), IsDir: true}))
	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: f.path("other.txt")}))

	require.NoError(t, os.Rename(f.path("proj"), f.path("moved")))
	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: RenameFrom, Path: f.path("proj"), IsDir: true}))
	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: f.path("moved"), IsDir: true}))

	assert.Empty(t, f.lookup("proj"))
	assert.Equal(t, []string{f.path("moved/zeta.txt")}, f.lookup("zeta"))
	assert.Equal(t, []string{f.path("moved/src/main.go")}, f.lookup("main"))
	assert.Equal(t, []string{f.path("other.txt")}, f.lookup("other"))

	require.NoError(t, os.RemoveAll(f.path("moved")))
	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Remove, Path: f.path("moved"), IsDir: true}))

	locations, err := f.store.Locations("vol")
	require.NoError(t, err)
	assert.Equal(t, []string{f.path("other.txt")}, locations)
}

func TestApply_DirectoryCreateAlreadyGone(t *testing.T) {
	f := newFixture(t)
	dir := f.path("vanished")

	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: dir, IsDir: true}))
	assert.Equal(t, []string{dir}, f.lookup("van"))
}

func TestApply_SaveFailureReturnsIOError(t *testing.T) {
	f := newFixture(t)
	// A directory where the shard file belongs makes the rename fail.
	blocker := f.store.Path(shard.Key{Volume: "vol", First: 'a'})
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "child"), 0o755))

	err := f.m.Apply(Event{Volume: "vol", Op: Create, Path: f.path("a.txt")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ierrors.ErrIO)

	require.NoError(t, f.m.Apply(Event{Volume: "vol", Op: Create, Path: f.path("b.txt")}))
	assert.Equal(t, []string{f.path("b.txt")}, f.lookup("b"))
}

func TestRun_AppliesInOrder(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.m.Run(ctx) }()

	p := f.path("flip.txt")
	for i := 0; i < 10; i++ {
		require.NoError(t, f.m.Submit(ctx, Event{Volume: "vol", Op: Create, Path: p}))
		require.NoError(t, f.m.Submit(ctx, Event{Volume: "vol", Op: Remove, Path: p}))
	}
	require.NoError(t, f.m.Submit(ctx, Event{Volume: "vol", Op: Create, Path: p}))
	require.NoError(t, f.m.Submit(ctx, Event{Volume: "vol", Op: Create, Path: ""}))

	assert.Eventually(t, func() bool {
		return f.m.Pending() == 0 && len(f.lookup("flip")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestSubmit_BlocksWhenFullUntilCancelled(t *testing.T) {
	f := newFixture(t)
	m := New(f.store, nil, WithQueueSize(1))

	require.NoError(t, m.Submit(context.Background(), Event{Volume: "vol", Op: Modify, Path: f.path("a")}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := m.Submit(ctx, Event{Volume: "vol", Op: Modify, Path: f.path("b")})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, m.Pending())
}
