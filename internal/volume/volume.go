// Package volume discovers the roots to index and runs the per-volume build
// and watch lifecycle.
package volume

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"quickseek/internal/hash"
	"quickseek/internal/logging"
)

// Volume is an independently indexed filesystem root.
type Volume struct {
	ID   string `json:"id" yaml:"id"`
	Root string `json:"root" yaml:"root"`
}

// ErrNoVolumes is returned when discovery finds nothing to index.
var ErrNoVolumes = errors.New("no volumes to index")

// New derives the volume for root.
func New(root string) Volume {
	clean := filepath.Clean(root)
	return Volume{ID: hash.VolumeID(clean), Root: clean}
}

// Discover returns the volumes for the configured roots, or the platform
// defaults when none are configured. Roots that are missing or not
// directories are skipped with a warning.
func Discover(roots []string) ([]Volume, error) {
	if len(roots) == 0 {
		roots = defaultRoots()
	}

	log := logging.Named("volume")
	seen := make(map[string]bool)
	var volumes []Volume
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			log.Warn("skipping volume", logging.String("root", r), logging.Err(err))
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			log.Warn("skipping volume", logging.String("root", abs), logging.Err(err))
			continue
		}
		if !info.IsDir() {
			log.Warn("skipping volume, not a directory", logging.String("root", abs))
			continue
		}
		v := New(abs)
		if seen[v.ID] {
			continue
		}
		seen[v.ID] = true
		volumes = append(volumes, v)
	}

	if len(volumes) == 0 {
		return nil, ErrNoVolumes
	}
	sort.Slice(volumes, func(i, j int) bool { return volumes[i].Root < volumes[j].Root })
	return volumes, nil
}

// Find resolves a volume by ID or root path.
func Find(volumes []Volume, key string) (Volume, error) {
	for _, v := range volumes {
		if v.ID == key {
			return v, nil
		}
	}
	if abs, err := filepath.Abs(key); err == nil {
		for _, v := range volumes {
			if v.Root == filepath.Clean(abs) {
				return v, nil
			}
		}
	}
	return Volume{}, fmt.Errorf("unknown volume %q", key)
}
