package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ierrors "quickseek/internal/errors"
)

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	IndexDir          string        `yaml:"index_dir"`
	Volumes           []string      `yaml:"volumes"`
	Ignore            []string      `yaml:"ignore"`
	IgnoreHidden      bool          `yaml:"ignore_hidden"`
	CacheShards       int           `yaml:"cache_shards"`
	QueueSize         int           `yaml:"queue_size"`
	Workers           int           `yaml:"workers"`
	Listen            string        `yaml:"listen"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	Log               LogConfig     `yaml:"log"`
}

// DefaultIgnore is the noise list pruned from every volume: package-manager
// caches, OS system and profile directories, version-control metadata and
// build output.
func DefaultIgnore() []string {
	return []string{
		// version control
		".git/",
		".svn/",
		".hg/",
		// package managers
		"node_modules/",
		"__pycache__/",
		".npm/",
		".cargo/registry/",
		"go/pkg/mod",
		// build output
		"target/debug",
		"target/release",
		// Windows system and profile directories
		"AppData/",
		"ProgramData/",
		"Windows/",
		"Windows.old/",
		"Program Files/",
		"Program Files (x86)/",
		"$*/",
		"System Volume Information/",
		// Unix pseudo and system trees
		"/proc",
		"/sys",
		"/dev",
		"/run",
		"/tmp",
		"/var/cache",
		"/var/lib/docker",
		"/snap",
		// editor and OS litter
		"*.swp",
		"*.tmp",
		".DS_Store",
		"Thumbs.db",
	}
}

// DefaultConfigPath is where the CLI looks for its config file.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "quickseek.yaml"
	}
	return filepath.Join(home, ".quickseek", "config.yaml")
}

func DefaultIndexDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".quickseek", "index")
	}
	return filepath.Join(home, ".quickseek", "index")
}

func DefaultConfig() *Config {
	return &Config{
		IndexDir:     DefaultIndexDir(),
		Ignore:       DefaultIgnore(),
		IgnoreHidden: true,
		CacheShards:  64,
		QueueSize:    4096,
		Workers:      runtime.NumCPU(),
		Listen:       "127.0.0.1:7373",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads a YAML config file on top of the defaults. A missing file
// yields the defaults; keys absent from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, ierrors.Wrap(ierrors.KindConfig, "config.parse", path, fmt.Errorf("failed to parse config YAML: %w", err))
	}

	// Initialize slices if nil (for explicit empty lists)
	if cfg.Ignore == nil {
		cfg.Ignore = []string{}
	}

	cfg.IndexDir = expandHome(cfg.IndexDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values the index cannot run with.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return ierrors.New(ierrors.KindConfig, "config.validate", "", format, args...)
	}
	if strings.TrimSpace(c.IndexDir) == "" {
		return invalid("index_dir must not be empty")
	}
	if c.CacheShards < 0 {
		return invalid("cache_shards must be >= 0, got %d", c.CacheShards)
	}
	if c.QueueSize <= 0 {
		return invalid("queue_size must be > 0, got %d", c.QueueSize)
	}
	if c.Workers <= 0 {
		return invalid("workers must be > 0, got %d", c.Workers)
	}
	if c.ReconcileInterval < 0 {
		return invalid("reconcile_interval must be >= 0, got %s", c.ReconcileInterval)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		return invalid("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
