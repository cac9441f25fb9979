// Package query answers prefix searches against the shard store.
package query

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"quickseek/internal/logging"
	"quickseek/internal/metrics"
	"quickseek/internal/shard"
	"quickseek/internal/trie"
)

// FileResult describes one matching file or directory.
type FileResult struct {
	Name            string `json:"name"`
	Path            string `json:"path"`
	ParentDirectory string `json:"parentDirectory"`
	Extension       string `json:"extension"`
}

// NewFileResult derives the display fields from a stored location. The
// extension carries no leading dot and is empty for directories and dotfiles
// without one.
func NewFileResult(location string) FileResult {
	name := filepath.Base(location)
	ext := filepath.Ext(name)
	if ext == name {
		ext = ""
	}
	return FileResult{
		Name:            name,
		Path:            location,
		ParentDirectory: filepath.Dir(location),
		Extension:       strings.TrimPrefix(ext, "."),
	}
}

type Engine struct {
	store *shard.Store
	log   *zap.Logger
}

func New(store *shard.Store) *Engine {
	return &Engine{store: store, log: logging.Named("query")}
}

// Lookup returns every location in volume whose entry name starts with
// prefix. Matching is byte-wise and case-sensitive.
func (e *Engine) Lookup(volume, prefix string) []string {
	if prefix == "" {
		return nil
	}
	var out []string
	e.store.View(volume, prefix[0], func(t *trie.Trie) {
		out = t.Prefix(prefix[1:])
	})
	return out
}

// Search unions Lookup over every indexed volume. Volumes are visited in
// name order; unreadable shards contribute nothing.
func (e *Engine) Search(prefix string) []FileResult {
	return e.SearchLimit(prefix, 0)
}

// SearchLimit is Search that stops after limit results when limit is positive.
func (e *Engine) SearchLimit(prefix string, limit int) []FileResult {
	if prefix == "" {
		return []FileResult{}
	}
	start := time.Now()
	defer func() { metrics.RecordQuery(time.Since(start)) }()

	volumes, err := e.store.Volumes()
	if err != nil {
		e.log.Warn("failed to list volumes", logging.Err(err))
		return []FileResult{}
	}
	sort.Strings(volumes)

	results := make([]FileResult, 0)
	for _, v := range volumes {
		for _, loc := range e.Lookup(v, prefix) {
			results = append(results, NewFileResult(loc))
			if limit > 0 && len(results) >= limit {
				return results
			}
		}
	}
	return results
}
