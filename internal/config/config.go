// Package config loads migr8's project configuration from a TOML file
// (.migr8.toml at the project root by default). Everything has a working
// default; the file and every key in it are optional, and CLI flags
// override whatever the file says.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultFileName is looked up relative to the project root.
const DefaultFileName = ".migr8.toml"

type Config struct {
	Discovery   Discovery   `toml:"discovery"`
	Performance Performance `toml:"performance"`
	Cache       Cache       `toml:"cache"`
}

type Discovery struct {
	IncludeGlobs    []string `toml:"include_globs"`
	ExcludeDirs     []string `toml:"exclude_dirs"`
	MaxFileKB       int      `toml:"max_file_kb"`
	MaxLines        int      `toml:"max_lines"`
	SkipTestFiles   bool     `toml:"skip_test_files"`
	SkipConfigFiles bool     `toml:"skip_config_files"`
	BatchSize       int      `toml:"batch_size"`
}

type Performance struct {
	Workers       int  `toml:"workers"`       // 0 = NumCPU
	TimeoutSec    int  `toml:"timeout_sec"`   // 0 = no timeout
	MaxMemoryMB   int  `toml:"max_memory_mb"` // adaptive batch high-water mark
	Parallel      bool `toml:"parallel"`
	WatchDebounce int  `toml:"watch_debounce_ms"`
}

type Cache struct {
	Dir        string `toml:"dir"`
	MaxUpdates int    `toml:"max_updates"`
	Disabled   bool   `toml:"disabled"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Discovery: Discovery{
			MaxFileKB:       512,
			MaxLines:        10000,
			SkipTestFiles:   true,
			SkipConfigFiles: true,
			BatchSize:       100,
		},
		Performance: Performance{
			Parallel:      true,
			MaxMemoryMB:   1024,
			WatchDebounce: 300,
		},
		Cache: Cache{
			Dir:        ".migr8",
			MaxUpdates: 50,
		},
	}
}

// Load reads a config file, layering it over the defaults. A missing file
// is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// LoadForRoot loads root/.migr8.toml if it exists.
func LoadForRoot(root string) (Config, error) {
	return Load(filepath.Join(root, DefaultFileName))
}

func (c Config) validate() error {
	if c.Discovery.MaxFileKB < 0 || c.Discovery.MaxLines < 0 || c.Discovery.BatchSize < 0 {
		return fmt.Errorf("discovery limits must be non-negative")
	}
	if c.Performance.Workers < 0 || c.Performance.TimeoutSec < 0 {
		return fmt.Errorf("performance values must be non-negative")
	}
	return nil
}

// Timeout returns the configured wall-clock budget, zero meaning none.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Performance.TimeoutSec) * time.Second
}

// CacheDir resolves the cache directory against the project root.
func (c Config) CacheDir(root string) string {
	if filepath.IsAbs(c.Cache.Dir) {
		return c.Cache.Dir
	}
	return filepath.Join(root, c.Cache.Dir)
}
