package config

import (
	"time"
)

const (
	DefaultFileName       = "modernity.toml"
	DefaultSampleCount    = 20
	DefaultMaxMacroDepth  = 64
	DefaultRegistryURL    = "https://crates.io/api/v1"
	DefaultDownloadURL    = "https://static.crates.io/crates"
	DefaultUserAgent      = "modernity/1.0 (crate modernity metrics)"
	DefaultRateLimit      = 1.0
	DefaultRequestTimeout = 30 * time.Second
	DefaultCacheTTL       = 6 * time.Hour
)

type Config struct {
	Version       int           `toml:"version"`
	Paths         Paths         `toml:"paths"`
	Sampling      Sampling      `toml:"sampling"`
	Registry      Registry      `toml:"registry"`
	Expansions    Expansions    `toml:"expansions"`
	Fetch         Fetch         `toml:"fetch"`
	Parser        Parser        `toml:"parser"`
	Workers       Workers       `toml:"workers"`
	Output        Output        `toml:"output"`
	History       History       `toml:"history"`
	Observability Observability `toml:"observability"`
}

type Paths struct {
	// Root anchors every relative path below. Empty means the directory of
	// the config file, or the working directory when no file is used.
	Root     string `toml:"root"`
	CacheDir string `toml:"cache_dir"`
	StateDir string `toml:"state_dir"`
}

type Sampling struct {
	Count int `toml:"count"`
}

type Registry struct {
	BaseURL     string        `toml:"base_url"`
	DownloadURL string        `toml:"download_url"`
	UserAgent   string        `toml:"user_agent"`
	RateLimit   float64       `toml:"rate_limit"` // requests per second and host
	Burst       int           `toml:"burst"`
	Timeout     time.Duration `toml:"timeout"`
	CacheTTL    time.Duration `toml:"cache_ttl"`
	Retries     int           `toml:"retries"`
}

type Expansions struct {
	Dir   string `toml:"dir"`
	Std   string `toml:"std"`
	Core  string `toml:"core"`
	Alloc string `toml:"alloc"`
	Cache *bool  `toml:"cache"`
}

type Fetch struct {
	ScratchDir      string `toml:"scratch_dir"`
	MaxArchiveBytes int64  `toml:"max_archive_bytes"`
	MaxFileBytes    int64  `toml:"max_file_bytes"`
}

type Parser struct {
	Strict        *bool    `toml:"strict"`
	MaxMacroDepth int      `toml:"max_macro_depth"`
	Exclude       []string `toml:"exclude"`
}

type Workers struct {
	Count int `toml:"count"`
}

type Output struct {
	ResultsDir string `toml:"results_dir"`
}

type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type Observability struct {
	MetricsFile  string `toml:"metrics_file"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
}

func (e Expansions) CacheEnabled() bool {
	if e.Cache == nil {
		return true
	}
	return *e.Cache
}

func (p Parser) IsStrict() bool {
	if p.Strict == nil {
		return true
	}
	return *p.Strict
}
