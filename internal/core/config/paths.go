package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

type ResolvedPaths struct {
	Root         string
	CacheDir     string
	StateDir     string
	ScratchDir   string // empty means the OS temp dir
	ResultsDir   string
	HistoryPath  string
	MetricsFile  string
	StdPath      string
	CorePath     string
	AllocPath    string
	IndexCache   string
	RegistryHTTP string
}

func ResolvePaths(cfg *Config) (ResolvedPaths, error) {
	root := strings.TrimSpace(cfg.Paths.Root)
	if root == "" {
		return ResolvedPaths{}, fmt.Errorf("paths.root must not be empty")
	}
	root = filepath.Clean(root)

	cacheDir := ResolveRelative(root, cfg.Paths.CacheDir)
	stateDir := ResolveRelative(root, cfg.Paths.StateDir)
	expansionDir := ResolveRelative(root, cfg.Expansions.Dir)

	resolved := ResolvedPaths{
		Root:         root,
		CacheDir:     cacheDir,
		StateDir:     stateDir,
		ResultsDir:   ResolveRelative(root, cfg.Output.ResultsDir),
		HistoryPath:  ResolveRelative(stateDir, cfg.History.Path),
		StdPath:      ResolveRelative(expansionDir, cfg.Expansions.Std),
		CorePath:     ResolveRelative(expansionDir, cfg.Expansions.Core),
		AllocPath:    ResolveRelative(expansionDir, cfg.Expansions.Alloc),
		IndexCache:   filepath.Join(cacheDir, "stdindex"),
		RegistryHTTP: filepath.Join(cacheDir, "registry"),
	}
	if scratch := strings.TrimSpace(cfg.Fetch.ScratchDir); scratch != "" {
		resolved.ScratchDir = ResolveRelative(root, scratch)
	}
	if metrics := strings.TrimSpace(cfg.Observability.MetricsFile); metrics != "" {
		resolved.MetricsFile = ResolveRelative(root, metrics)
	}
	return resolved, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}
