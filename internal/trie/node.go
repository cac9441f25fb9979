package trie

import (
	"slices"
	"sort"
)

// Node is a trie node keyed by single bytes. A terminal node carries the
// full paths of every entry whose name ends there; names shared by several
// directories produce several locations on one node.
type Node struct {
	Children  map[byte]*Node
	Terminal  bool
	Locations []string
}

// Trie owns a single root node and represents the content of one shard.
type Trie struct {
	Root *Node
}

func newNode() *Node {
	return &Node{}
}

// New returns an empty trie.
func New() *Trie {
	return &Trie{Root: newNode()}
}

// child returns the child for b, creating it when create is set.
func (n *Node) child(b byte, create bool) *Node {
	if c, ok := n.Children[b]; ok {
		return c
	}
	if !create {
		return nil
	}
	if n.Children == nil {
		n.Children = make(map[byte]*Node)
	}
	c := newNode()
	n.Children[b] = c
	return c
}

// Keys returns the node's child keys in ascending order.
func (n *Node) Keys() []byte {
	keys := make([]byte, 0, len(n.Children))
	for k := range n.Children {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Empty reports whether the node holds nothing and has no children.
func (n *Node) Empty() bool {
	return !n.Terminal && len(n.Locations) == 0 && len(n.Children) == 0
}

// Insert records location under name. Repeated pairs are appended again.
func (t *Trie) Insert(name, location string) {
	current := t.Root
	for i := 0; i < len(name); i++ {
		current = current.child(name[i], true)
	}
	current.Terminal = true
	current.Locations = append(current.Locations, location)
}

// Remove deletes one occurrence of location from the node addressed by name
// and prunes nodes left empty along the way. Removing something that was never
// inserted is a no-op; the return value reports whether anything changed.
func (t *Trie) Remove(name, location string) bool {
	path := make([]*Node, 0, len(name)+1)
	current := t.Root
	path = append(path, current)
	for i := 0; i < len(name); i++ {
		current = current.child(name[i], false)
		if current == nil {
			return false
		}
		path = append(path, current)
	}

	idx := -1
	for i, loc := range current.Locations {
		if loc == location {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	current.Locations = append(current.Locations[:idx], current.Locations[idx+1:]...)
	if len(current.Locations) == 0 {
		current.Terminal = false
		current.Locations = nil
	}

	for i := len(path) - 1; i > 0; i-- {
		if !path[i].Empty() {
			break
		}
		delete(path[i-1].Children, name[i-1])
	}
	return true
}

// Find returns the node reached by walking prefix, or nil when absent.
func (t *Trie) Find(prefix string) *Node {
	current := t.Root
	for i := 0; i < len(prefix); i++ {
		current = current.child(prefix[i], false)
		if current == nil {
			return nil
		}
	}
	return current
}

// Prefix returns every location stored under names starting with prefix.
func (t *Trie) Prefix(prefix string) []string {
	node := t.Find(prefix)
	if node == nil {
		return nil
	}
	return Collect(node)
}

// Collect gathers every location in the subtree rooted at node, depth first
// with children visited in ascending byte order.
func Collect(node *Node) []string {
	var result []string
	Walk(node, func(n *Node) {
		if n.Terminal {
			result = append(result, n.Locations...)
		}
	})
	return result
}

// Walk visits node and its descendants depth first in ascending key order.
func Walk(node *Node, fn func(*Node)) {
	if node == nil {
		return
	}
	stack := []*Node{node}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(n)
		keys := n.Keys()
		for i := len(keys) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[keys[i]])
		}
	}
}

// Collect returns every location in the trie.
func (t *Trie) Collect() []string {
	return Collect(t.Root)
}

// Merge appends all locations of src into t at the same byte paths.
func (t *Trie) Merge(src *Trie) {
	if src == nil || src.Root == nil {
		return
	}
	mergeNode(t.Root, src.Root)
}

func mergeNode(dst, src *Node) {
	if src.Terminal {
		dst.Terminal = true
		dst.Locations = append(dst.Locations, src.Locations...)
	}
	for k, c := range src.Children {
		mergeNode(dst.child(k, true), c)
	}
}

// MergeMissing is Merge that skips locations the target node already holds.
func (t *Trie) MergeMissing(src *Trie) {
	if src == nil || src.Root == nil {
		return
	}
	mergeMissing(t.Root, src.Root)
}

func mergeMissing(dst, src *Node) {
	for _, loc := range src.Locations {
		if !slices.Contains(dst.Locations, loc) {
			dst.Terminal = true
			dst.Locations = append(dst.Locations, loc)
		}
	}
	for k, c := range src.Children {
		mergeMissing(dst.child(k, true), c)
	}
}

// RemoveIf deletes every location for which match returns true, prunes the
// nodes left empty and returns the number of locations removed.
func (t *Trie) RemoveIf(match func(location string) bool) int {
	if t.Root == nil {
		return 0
	}
	return removeIf(t.Root, match)
}

func removeIf(n *Node, match func(string) bool) int {
	removed := 0
	if len(n.Locations) > 0 {
		kept := n.Locations[:0]
		for _, loc := range n.Locations {
			if match(loc) {
				removed++
				continue
			}
			kept = append(kept, loc)
		}
		n.Locations = kept
		if len(kept) == 0 {
			n.Terminal = false
			n.Locations = nil
		}
	}
	for k, c := range n.Children {
		removed += removeIf(c, match)
		if c.Empty() {
			delete(n.Children, k)
		}
	}
	return removed
}

// Len returns the number of stored locations.
func (t *Trie) Len() int {
	n := 0
	Walk(t.Root, func(node *Node) {
		n += len(node.Locations)
	})
	return n
}

// Empty reports whether the trie stores nothing.
func (t *Trie) Empty() bool {
	return t.Root == nil || t.Root.Empty()
}

// Subtree wraps the child of the root under b as a standalone trie. The
// returned trie shares nodes with t.
func (t *Trie) Subtree(b byte) *Trie {
	c := t.Root.child(b, false)
	if c == nil {
		return nil
	}
	return &Trie{Root: c}
}
