package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// Validate checks a config after defaults have been applied.
func Validate(cfg *Config) error {
	if err := validateVersion(cfg); err != nil {
		return err
	}
	if err := validateSampling(cfg); err != nil {
		return err
	}
	if err := validateRegistry(cfg); err != nil {
		return err
	}
	if err := validateParser(cfg); err != nil {
		return err
	}
	if cfg.Workers.Count < 0 {
		return fmt.Errorf("workers.count must be >= 0, got %d", cfg.Workers.Count)
	}
	return nil
}

func validateVersion(cfg *Config) error {
	if cfg.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", cfg.Version)
	}
	if cfg.Version > 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validateSampling(cfg *Config) error {
	if cfg.Sampling.Count < 1 {
		return fmt.Errorf("sampling.count must be >= 1, got %d", cfg.Sampling.Count)
	}
	return nil
}

func validateRegistry(cfg *Config) error {
	for key, raw := range map[string]string{
		"registry.base_url":     cfg.Registry.BaseURL,
		"registry.download_url": cfg.Registry.DownloadURL,
	} {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s is not a valid URL: %w", key, err)
		}
		switch u.Scheme {
		case "http", "https", "file":
		default:
			return fmt.Errorf("%s must use http, https or file scheme, got %q", key, raw)
		}
	}
	if cfg.Registry.RateLimit < 0 {
		return fmt.Errorf("registry.rate_limit must be >= 0, got %v", cfg.Registry.RateLimit)
	}
	return nil
}

func validateParser(cfg *Config) error {
	if cfg.Parser.MaxMacroDepth < 1 {
		return fmt.Errorf("parser.max_macro_depth must be >= 1, got %d", cfg.Parser.MaxMacroDepth)
	}
	for i, pattern := range cfg.Parser.Exclude {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("parser.exclude[%d] must not be empty", i)
		}
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("parser.exclude[%d] invalid pattern %q: %w", i, pattern, err)
		}
	}
	return nil
}
