// Package ignore decides which paths are left out of the index.
//
// Rules are plain strings:
//
//	node_modules/   prune any path segment matching the glob
//	/proc           prune an absolute path and everything under it
//	target/debug    glob against the volume-relative path (contains a separator)
//	*.tmp           glob against the base name
//
// Matching a directory prunes its whole subtree.
package ignore

import (
	"path/filepath"
	"runtime"
	"strings"
)

// foldCase is set where file names compare case-insensitively.
var foldCase = runtime.GOOS == "windows"

type ruleKind int

const (
	ruleSegment ruleKind = iota
	rulePrefix
	ruleRelative
	ruleBase
)

type rule struct {
	kind    ruleKind
	pattern string
}

// Matcher evaluates an explicit list of ignore rules.
type Matcher struct {
	rules        []rule
	ignoreHidden bool
	foldCase     bool
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithHidden prunes entries whose name starts with a dot.
func WithHidden(ignore bool) Option {
	return func(m *Matcher) {
		m.ignoreHidden = ignore
	}
}

// WithFoldCase makes rules match regardless of letter case. It defaults to
// true on Windows.
func WithFoldCase(fold bool) Option {
	return func(m *Matcher) {
		m.foldCase = fold
	}
}

// WithPrefixes adds absolute path prefixes that are always pruned, such as the
// index's own storage directory.
func WithPrefixes(prefixes ...string) Option {
	return func(m *Matcher) {
		for _, p := range prefixes {
			if p == "" {
				continue
			}
			m.rules = append(m.rules, rule{kind: rulePrefix, pattern: filepath.Clean(p)})
		}
	}
}

// New builds a Matcher from patterns.
func New(patterns []string, opts ...Option) *Matcher {
	m := &Matcher{foldCase: foldCase}
	for _, p := range patterns {
		if r, ok := parse(p); ok {
			m.rules = append(m.rules, r)
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.foldCase {
		for i := range m.rules {
			m.rules[i].pattern = strings.ToLower(m.rules[i].pattern)
		}
	}
	return m
}

func parse(pattern string) (rule, bool) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return rule{}, false
	}
	switch {
	case strings.HasSuffix(pattern, "/") || strings.HasSuffix(pattern, `\`):
		return rule{kind: ruleSegment, pattern: strings.TrimRight(pattern, `/\`)}, true
	case isAbs(pattern):
		return rule{kind: rulePrefix, pattern: filepath.Clean(pattern)}, true
	case strings.ContainsAny(pattern, `/\`):
		return rule{kind: ruleRelative, pattern: toSlash(pattern)}, true
	default:
		return rule{kind: ruleBase, pattern: pattern}, true
	}
}

// isAbs accepts both host-absolute paths and drive-rooted Windows paths, so a
// config file can carry rules for every platform.
func isAbs(p string) bool {
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return true
	}
	return len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}

func toSlash(p string) string {
	return strings.ReplaceAll(filepath.ToSlash(p), `\`, "/")
}

// Match reports whether path, an entry under root, should be pruned. root may
// be empty, in which case relative rules match against the whole path.
func (m *Matcher) Match(root, path string) bool {
	clean := filepath.Clean(path)
	if root != "" {
		root = filepath.Clean(root)
	}
	if m.foldCase {
		clean = strings.ToLower(clean)
		root = strings.ToLower(root)
	}
	rel := clean
	if root != "" {
		if r, err := filepath.Rel(root, clean); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	if rel == "." {
		// The volume root itself is never pruned.
		return false
	}

	relSlash := toSlash(rel)
	segments := strings.Split(strings.Trim(relSlash, "/"), "/")
	base := segments[len(segments)-1]

	if m.ignoreHidden {
		for _, seg := range segments {
			if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
				return true
			}
		}
	}

	for _, r := range m.rules {
		switch r.kind {
		case ruleSegment:
			for _, seg := range segments {
				if seg == r.pattern {
					return true
				}
				if matched, _ := filepath.Match(r.pattern, seg); matched {
					return true
				}
			}
		case rulePrefix:
			if hasPathPrefix(clean, r.pattern) {
				return true
			}
		case ruleRelative:
			if strings.Contains("/"+strings.Trim(relSlash, "/")+"/", "/"+r.pattern+"/") {
				return true
			}
			if matched, _ := filepath.Match(r.pattern, relSlash); matched {
				return true
			}
		case ruleBase:
			if matched, _ := filepath.Match(r.pattern, base); matched {
				return true
			}
		}
	}
	return false
}

// hasPathPrefix reports whether path equals prefix or lies below it.
func hasPathPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if strings.HasSuffix(prefix, string(filepath.Separator)) {
		return true
	}
	return path[len(prefix)] == filepath.Separator
}

// Under reports whether path lies at or below dir.
func Under(path, dir string) bool {
	if dir == "" {
		return false
	}
	path, dir = filepath.Clean(path), filepath.Clean(dir)
	if foldCase {
		path, dir = strings.ToLower(path), strings.ToLower(dir)
	}
	return hasPathPrefix(path, dir)
}

// Len returns the number of parsed rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}
