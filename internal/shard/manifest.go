package shard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	ierrors "quickseek/internal/errors"
)

const manifestFile = "volume.yaml"

// Manifest describes a built volume index. It is informational: whether a
// volume counts as indexed is decided by its shard files alone.
type Manifest struct {
	Root    string    `yaml:"root"`
	Built   time.Time `yaml:"built"`
	Entries int       `yaml:"entries"`
	Shards  int       `yaml:"shards"`
}

// WriteManifest stores m for volume.
func (s *Store) WriteManifest(volume string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(s.VolumeDir(volume), manifestFile), data)
}

// ReadManifest loads the manifest of volume. It returns fs.ErrNotExist (wrapped)
// when the volume has never completed a build.
func (s *Store) ReadManifest(volume string) (*Manifest, error) {
	path := filepath.Join(s.VolumeDir(volume), manifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no manifest for %s: %w", volume, err)
		}
		return nil, ierrors.IO("manifest.read", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, ierrors.Serialization("manifest.read", path, err)
	}
	return &m, nil
}
