// Package compare diffs the locations held by an index against what is on
// disk.
package compare

import (
	"fmt"
	"sort"
	"strings"
)

type ChangeType string

const (
	Added     ChangeType = "ADDED"
	Deleted   ChangeType = "DELETED"
	Duplicate ChangeType = "DUPLICATE"
)

type Change struct {
	Type ChangeType
	Path string
}

// CompareResult lists what the index is missing (Added), what it still holds
// although it is gone from disk (Deleted), and extra copies of a location
// that is indexed more than once (Duplicate, one Change per surplus copy).
type CompareResult struct {
	Added      []Change
	Deleted    []Change
	Duplicates []Change
}

func (r *CompareResult) HasChanges() bool {
	return len(r.Added) > 0 || len(r.Deleted) > 0 || len(r.Duplicates) > 0
}

// Compare diffs indexed locations against the locations found on disk.
// Both inputs may be in any order.
func Compare(indexed, onDisk []string) *CompareResult {
	result := &CompareResult{
		Added:      make([]Change, 0),
		Deleted:    make([]Change, 0),
		Duplicates: make([]Change, 0),
	}

	counts := make(map[string]int, len(indexed))
	for _, p := range indexed {
		counts[p]++
	}
	present := make(map[string]struct{}, len(onDisk))
	for _, p := range onDisk {
		present[p] = struct{}{}
	}

	// Check for added entries
	for p := range present {
		if counts[p] == 0 {
			result.Added = append(result.Added, Change{Type: Added, Path: p})
		}
	}

	// Check for deleted and duplicated entries
	for p, n := range counts {
		if _, ok := present[p]; !ok {
			for i := 0; i < n; i++ {
				result.Deleted = append(result.Deleted, Change{Type: Deleted, Path: p})
			}
			continue
		}
		for i := 1; i < n; i++ {
			result.Duplicates = append(result.Duplicates, Change{Type: Duplicate, Path: p})
		}
	}

	// Sort for deterministic output
	byPath := func(c []Change) {
		sort.Slice(c, func(i, j int) bool { return c[i].Path < c[j].Path })
	}
	byPath(result.Added)
	byPath(result.Deleted)
	byPath(result.Duplicates)

	return result
}

func FormatReport(result *CompareResult) string {
	if !result.HasChanges() {
		return "Index is up to date."
	}

	var report strings.Builder
	report.WriteString("Index drift detected:\n\n")

	section := func(title, mark string, changes []Change) {
		if len(changes) == 0 {
			return
		}
		fmt.Fprintf(&report, "%s (%d entries):\n", title, len(changes))
		for _, change := range changes {
			fmt.Fprintf(&report, "  %s %s\n", mark, change.Path)
		}
		report.WriteString("\n")
	}
	section("MISSING FROM INDEX", "+", result.Added)
	section("STALE IN INDEX", "-", result.Deleted)
	section("DUPLICATED IN INDEX", "=", result.Duplicates)

	fmt.Fprintf(&report, "Summary: %d missing, %d stale, %d duplicated\n",
		len(result.Added), len(result.Deleted), len(result.Duplicates))

	return report.String()
}
