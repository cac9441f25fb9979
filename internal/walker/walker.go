package walker

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"unicode/utf8"

	ierrors "quickseek/internal/errors"
	"quickseek/internal/ignore"
	"quickseek/internal/metrics"
)

// Entry is one file or directory found under a walked root.
type Entry struct {
	Name  string
	Path  string
	IsDir bool
}

type WalkResult struct {
	Files  int
	Dirs   int
	Errors []error
	// Unencodable counts entries skipped because their path is not valid
	// UTF-8. Each is also recorded in Errors as a path encoding error.
	Unencodable int
}

// Total returns the number of entries visited.
func (r *WalkResult) Total() int {
	return r.Files + r.Dirs
}

// Walk visits every entry below rootPath that the matcher does not prune and
// calls fn for each. Ignored directories are skipped as a whole subtree. The
// root itself is not reported. Unreadable entries and paths that are not valid
// UTF-8 are recorded in the result and the walk continues; only a failure on
// the root aborts it.
func Walk(ctx context.Context, rootPath string, matcher *ignore.Matcher, fn func(Entry) error) (*WalkResult, error) {
	result := &WalkResult{
		Errors: make([]error, 0),
	}

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// If error is on the root path, return it (don't continue walking)
			if path == rootPath {
				return err
			}
			// Skip permission errors and continue walking
			result.Errors = append(result.Errors, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if path == rootPath {
			return nil
		}

		if matcher != nil && matcher.Match(rootPath, path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !utf8.ValidString(path) {
			result.Unencodable++
			result.Errors = append(result.Errors,
				ierrors.New(ierrors.KindPathEncoding, "walker.walk", "", "path is not valid UTF-8: %q", path))
			metrics.RecordUnencodable()
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			result.Dirs++
		} else {
			result.Files++
		}

		return fn(Entry{
			Name:  d.Name(),
			Path:  path,
			IsDir: d.IsDir(),
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return result, nil
}
