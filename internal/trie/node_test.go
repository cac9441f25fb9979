package trie

import (
	"fmt"
	"sort"
	"testing"
)

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestInsert_PrefixQueries(t *testing.T) {
	tr := New()
	path := `C:\Users\a\report.txt`
	tr.Insert("report.txt", path)

	for _, prefix := range []string{"r", "rep", "report.txt"} {
		if !contains(tr.Prefix(prefix), path) {
			t.Errorf("Prefix(%q) should include %q", prefix, path)
		}
	}

	if got := tr.Prefix("x"); len(got) != 0 {
		t.Errorf("Prefix(%q) should be empty, got %v", "x", got)
	}
	if got := tr.Prefix("report.txt2"); len(got) != 0 {
		t.Errorf("Prefix longer than any name should be empty, got %v", got)
	}
}

func TestInsert_SharedNameKeepsAllLocations(t *testing.T) {
	tr := New()
	tr.Insert("a.txt", "/one/a.txt")
	tr.Insert("a.txt", "/two/a.txt")

	got := tr.Prefix("a.txt")
	if len(got) != 2 || got[0] != "/one/a.txt" || got[1] != "/two/a.txt" {
		t.Errorf("Expected both locations in insertion order, got %v", got)
	}
}

func TestInsert_DuplicatesAreNotDeduplicated(t *testing.T) {
	tr := New()
	tr.Insert("a", "/a")
	tr.Insert("a", "/a")

	if tr.Len() != 2 {
		t.Errorf("Expected 2 stored locations, got %d", tr.Len())
	}
}

func TestInsert_EmptyNameMarksRoot(t *testing.T) {
	tr := New()
	tr.Insert("", "/x")

	if !tr.Root.Terminal {
		t.Error("Root should be terminal after inserting an empty suffix")
	}
	if !contains(tr.Prefix(""), "/x") {
		t.Error("Empty prefix should return the root location")
	}
}

func TestRemove_KeepsOtherLocations(t *testing.T) {
	tr := New()
	tr.Insert("report.txt", "/a/report.txt")
	tr.Insert("report.txt", "/b/report.txt")

	if !tr.Remove("report.txt", "/a/report.txt") {
		t.Fatal("Remove should report a change")
	}

	got := tr.Prefix("report")
	if contains(got, "/a/report.txt") {
		t.Error("Removed location should not be returned")
	}
	if !contains(got, "/b/report.txt") {
		t.Error("Second location sharing the name should still be returned")
	}
}

func TestRemove_MissingIsNoop(t *testing.T) {
	tr := New()
	tr.Insert("abc", "/abc")

	if tr.Remove("abd", "/abd") {
		t.Error("Removing a missing name should not report a change")
	}
	if tr.Remove("abc", "/other") {
		t.Error("Removing a missing location should not report a change")
	}
	if tr.Remove("abcdef", "/abc") {
		t.Error("Removing a longer name should not report a change")
	}
	if tr.Len() != 1 {
		t.Errorf("Expected 1 location after no-op removals, got %d", tr.Len())
	}
}

func TestRemove_PrunesEmptyBranches(t *testing.T) {
	tr := New()
	tr.Insert("abc", "/abc")
	tr.Insert("abxyz", "/abxyz")

	tr.Remove("abxyz", "/abxyz")

	if tr.Find("abx") != nil {
		t.Error("Branch with no remaining names should be pruned")
	}
	if tr.Find("abc") == nil {
		t.Error("Sibling branch should survive pruning")
	}

	tr.Remove("abc", "/abc")
	if !tr.Empty() {
		t.Error("Trie should be empty after removing every name")
	}
}

func TestRemove_KeepsInteriorTerminal(t *testing.T) {
	tr := New()
	tr.Insert("ab", "/ab")
	tr.Insert("abcd", "/abcd")

	tr.Remove("abcd", "/abcd")

	node := tr.Find("ab")
	if node == nil || !node.Terminal {
		t.Fatal("Terminal ancestor should survive removal of a longer name")
	}
	if len(node.Children) != 0 {
		t.Errorf("Expected pruned children, got %d", len(node.Children))
	}
}

func TestRemove_ClearsTerminalButKeepsChildren(t *testing.T) {
	tr := New()
	tr.Insert("ab", "/ab")
	tr.Insert("abcd", "/abcd")

	tr.Remove("ab", "/ab")

	node := tr.Find("ab")
	if node == nil {
		t.Fatal("Node with descendants should persist")
	}
	if node.Terminal {
		t.Error("Terminal flag should be cleared when no locations remain")
	}
	if !contains(tr.Prefix("a"), "/abcd") {
		t.Error("Descendant should still be returned")
	}
}

func TestCollect_Deterministic(t *testing.T) {
	tr := New()
	names := []string{"zeta", "alpha", "beta", "al", "b"}
	for _, n := range names {
		tr.Insert(n, "/"+n)
	}

	got := tr.Collect()
	want := []string{"/al", "/alpha", "/b", "/beta", "/zeta"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Collect() = %v, want %v", got, want)
	}
}

func TestMerge(t *testing.T) {
	dst := New()
	dst.Insert("a.txt", "/x/a.txt")

	src := New()
	src.Insert("a.txt", "/y/a.txt")
	src.Insert("b.txt", "/y/b.txt")

	dst.Merge(src)

	got := dst.Collect()
	sort.Strings(got)
	want := []string{"/x/a.txt", "/y/a.txt", "/y/b.txt"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Merged locations = %v, want %v", got, want)
	}
}

func TestMergeMissing_SkipsHeldLocations(t *testing.T) {
	dst := New()
	dst.Insert("a.txt", "/x/a.txt")

	src := New()
	src.Insert("a.txt", "/x/a.txt")
	src.Insert("a.txt", "/y/a.txt")
	src.Insert("b.txt", "/y/b.txt")

	dst.MergeMissing(src)

	got := dst.Collect()
	sort.Strings(got)
	want := []string{"/x/a.txt", "/y/a.txt", "/y/b.txt"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Merged locations = %v, want %v", got, want)
	}
	if n := dst.Len(); n != 3 {
		t.Errorf("Expected 3 locations, got %d", n)
	}
}

func TestRemoveIf_PrunesMatchingLocations(t *testing.T) {
	tr := New()
	tr.Insert("proj", "/home/proj")
	tr.Insert("main.go", "/home/proj/main.go")
	tr.Insert("main.go", "/home/other/main.go")
	tr.Insert("readme", "/home/proj/docs/readme")
	tr.Insert("project.txt", "/home/project.txt")

	removed := tr.RemoveIf(func(loc string) bool {
		return len(loc) > len("/home/proj/") && loc[:len("/home/proj/")] == "/home/proj/"
	})
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}

	got := tr.Collect()
	sort.Strings(got)
	want := []string{"/home/other/main.go", "/home/proj", "/home/project.txt"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Remaining locations = %v, want %v", got, want)
	}
	if tr.Find("readme") != nil {
		t.Error("Emptied branch should be pruned")
	}
}

func TestSubtree(t *testing.T) {
	tr := New()
	tr.Insert("apple", "/apple")
	tr.Insert("banana", "/banana")

	sub := tr.Subtree('a')
	if sub == nil {
		t.Fatal("Subtree('a') should exist")
	}
	if !contains(sub.Prefix("pp"), "/apple") {
		t.Error("Subtree should be addressed by the remaining suffix")
	}
	if contains(sub.Collect(), "/banana") {
		t.Error("Subtree should not contain other first bytes")
	}
	if tr.Subtree('z') != nil {
		t.Error("Missing subtree should be nil")
	}
}
