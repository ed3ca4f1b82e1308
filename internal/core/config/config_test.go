package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `
version = 1

[sampling]
count = 12

[registry]
base_url = "http://localhost:9999/api/v1"
rate_limit = 2.5
timeout = "5s"

[expansions]
dir = "expansions"

[parser]
strict = false
max_macro_depth = 16
exclude = ["**/tests/**", "benches/*.rs"]

[workers]
count = 3

[output]
results_dir = "out"

[history]
enabled = true
`
	dir := t.TempDir()
	path := filepath.Join(dir, "modernity.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Sampling.Count != 12 {
		t.Errorf("expected sampling.count 12, got %d", cfg.Sampling.Count)
	}
	if cfg.Registry.BaseURL != "http://localhost:9999/api/v1" {
		t.Errorf("unexpected base url %q", cfg.Registry.BaseURL)
	}
	if cfg.Registry.RateLimit != 2.5 {
		t.Errorf("expected rate limit 2.5, got %v", cfg.Registry.RateLimit)
	}
	if cfg.Registry.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", cfg.Registry.Timeout)
	}
	if cfg.Parser.IsStrict() {
		t.Error("expected strict mode off")
	}
	if cfg.Parser.MaxMacroDepth != 16 {
		t.Errorf("expected max_macro_depth 16, got %d", cfg.Parser.MaxMacroDepth)
	}
	if len(cfg.Parser.Exclude) != 2 {
		t.Errorf("expected 2 exclude patterns, got %v", cfg.Parser.Exclude)
	}
	if cfg.Workers.Count != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Workers.Count)
	}
	if !cfg.History.Enabled {
		t.Error("expected history enabled")
	}

	abs, _ := filepath.Abs(dir)
	if cfg.Paths.Root != abs {
		t.Errorf("expected root anchored at config dir %q, got %q", abs, cfg.Paths.Root)
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modernity.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Version != 1 {
		t.Errorf("expected version 1, got %d", cfg.Version)
	}
	if cfg.Sampling.Count != DefaultSampleCount {
		t.Errorf("expected default count %d, got %d", DefaultSampleCount, cfg.Sampling.Count)
	}
	if cfg.Registry.BaseURL != DefaultRegistryURL {
		t.Errorf("unexpected default base url %q", cfg.Registry.BaseURL)
	}
	if cfg.Registry.RateLimit != DefaultRateLimit || cfg.Registry.Burst != 1 {
		t.Errorf("unexpected default rate limit %v/%d", cfg.Registry.RateLimit, cfg.Registry.Burst)
	}
	if !cfg.Parser.IsStrict() {
		t.Error("expected strict mode on by default")
	}
	if cfg.Parser.MaxMacroDepth != DefaultMaxMacroDepth {
		t.Errorf("expected default depth %d, got %d", DefaultMaxMacroDepth, cfg.Parser.MaxMacroDepth)
	}
	if !cfg.Expansions.CacheEnabled() {
		t.Error("expected index cache enabled by default")
	}
	if cfg.Expansions.Std != "expanded-std.rs" || cfg.Expansions.Core != "expanded-core.rs" || cfg.Expansions.Alloc != "expanded-alloc.rs" {
		t.Errorf("unexpected expansion names %+v", cfg.Expansions)
	}
	if cfg.Output.ResultsDir != "results" {
		t.Errorf("expected results dir 'results', got %q", cfg.Output.ResultsDir)
	}
	if cfg.History.Enabled {
		t.Error("expected history disabled by default")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"future version", "version = 2\n", "unsupported config version"},
		{"bad scheme", "[registry]\nbase_url = \"ftp://example.com\"\n", "registry.base_url"},
		{"negative workers", "[workers]\ncount = -1\n", "workers.count"},
		{"bad glob", "[parser]\nexclude = [\"[\"]\n", "parser.exclude[0]"},
		{"empty glob", "[parser]\nexclude = [\" \"]\n", "must not be empty"},
		{"negative rate", "[registry]\nrate_limit = -1.0\n", "registry.rate_limit"},
		{"syntax", "[sampling\ncount = 1\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "modernity.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")

	cfg, err := LoadOrDefault(missing, false)
	if err != nil {
		t.Fatalf("expected defaults for implicit missing file, got %v", err)
	}
	if cfg.Sampling.Count != DefaultSampleCount {
		t.Errorf("expected default count, got %d", cfg.Sampling.Count)
	}

	if _, err := LoadOrDefault(missing, true); err == nil {
		t.Error("expected error for explicit missing file")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("MODERNITY_SAMPLING_COUNT", "7")
	t.Setenv("MODERNITY_WORKERS_COUNT", "2")
	t.Setenv("MODERNITY_REGISTRY_RATE_LIMIT", "0.5")
	t.Setenv("MODERNITY_REGISTRY_TIMEOUT", "45s")
	t.Setenv("MODERNITY_HISTORY_ENABLED", "TRUE")
	t.Setenv("MODERNITY_OUTPUT_RESULTS_DIR", "/tmp/out")
	t.Setenv("MODERNITY_PARSER_MAX_MACRO_DEPTH", "not-a-number")

	cfg := Default()
	ApplyEnvOverrides(cfg)

	if cfg.Sampling.Count != 7 {
		t.Errorf("expected count 7, got %d", cfg.Sampling.Count)
	}
	if cfg.Workers.Count != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.Workers.Count)
	}
	if cfg.Registry.RateLimit != 0.5 {
		t.Errorf("expected rate 0.5, got %v", cfg.Registry.RateLimit)
	}
	if cfg.Registry.Timeout != 45*time.Second {
		t.Errorf("expected timeout 45s, got %v", cfg.Registry.Timeout)
	}
	if !cfg.History.Enabled {
		t.Error("expected history enabled")
	}
	if cfg.Output.ResultsDir != "/tmp/out" {
		t.Errorf("expected results dir override, got %q", cfg.Output.ResultsDir)
	}
	if cfg.Parser.MaxMacroDepth != DefaultMaxMacroDepth {
		t.Errorf("invalid int override should be ignored, got %d", cfg.Parser.MaxMacroDepth)
	}
}
