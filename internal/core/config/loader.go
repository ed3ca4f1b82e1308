package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads a TOML config file, applies defaults and validates the result.
// Relative paths are anchored at the file's directory unless paths.root says
// otherwise.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Paths.Root) == "" {
		if abs, err := filepath.Abs(filepath.Dir(path)); err == nil {
			cfg.Paths.Root = abs
		}
	}

	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads path when it exists. A missing file at the default
// location yields the built-in defaults; a missing explicit file is an error.
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), nil
		}
		return nil, err
	}
	return Load(path)
}

// Default returns a validated config anchored at the working directory.
func Default() *Config {
	var cfg Config
	if cwd, err := os.Getwd(); err == nil {
		cfg.Paths.Root = cwd
	}
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Paths.CacheDir) == "" {
		cfg.Paths.CacheDir = "data/cache"
	}
	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = "data/state"
	}

	if cfg.Sampling.Count <= 0 {
		cfg.Sampling.Count = DefaultSampleCount
	}

	if strings.TrimSpace(cfg.Registry.BaseURL) == "" {
		cfg.Registry.BaseURL = DefaultRegistryURL
	}
	if strings.TrimSpace(cfg.Registry.DownloadURL) == "" {
		cfg.Registry.DownloadURL = DefaultDownloadURL
	}
	if strings.TrimSpace(cfg.Registry.UserAgent) == "" {
		cfg.Registry.UserAgent = DefaultUserAgent
	}
	if cfg.Registry.RateLimit == 0 {
		cfg.Registry.RateLimit = DefaultRateLimit
	}
	if cfg.Registry.Burst <= 0 {
		cfg.Registry.Burst = 1
	}
	if cfg.Registry.Timeout <= 0 {
		cfg.Registry.Timeout = DefaultRequestTimeout
	}
	if cfg.Registry.CacheTTL == 0 {
		cfg.Registry.CacheTTL = DefaultCacheTTL
	}
	if cfg.Registry.Retries <= 0 {
		cfg.Registry.Retries = 3
	}

	if strings.TrimSpace(cfg.Expansions.Dir) == "" {
		cfg.Expansions.Dir = "."
	}
	if strings.TrimSpace(cfg.Expansions.Std) == "" {
		cfg.Expansions.Std = "expanded-std.rs"
	}
	if strings.TrimSpace(cfg.Expansions.Core) == "" {
		cfg.Expansions.Core = "expanded-core.rs"
	}
	if strings.TrimSpace(cfg.Expansions.Alloc) == "" {
		cfg.Expansions.Alloc = "expanded-alloc.rs"
	}

	if cfg.Fetch.MaxArchiveBytes <= 0 {
		cfg.Fetch.MaxArchiveBytes = 256 << 20
	}
	if cfg.Fetch.MaxFileBytes <= 0 {
		cfg.Fetch.MaxFileBytes = 32 << 20
	}

	if cfg.Parser.MaxMacroDepth <= 0 {
		cfg.Parser.MaxMacroDepth = DefaultMaxMacroDepth
	}

	if strings.TrimSpace(cfg.Output.ResultsDir) == "" {
		cfg.Output.ResultsDir = "results"
	}
	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = "history.db"
	}
}
