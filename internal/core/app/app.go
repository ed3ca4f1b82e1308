package app

import (
	"context"
	"fmt"
	"log/slog"

	"modernity/internal/core/config"
	"modernity/internal/core/ports"
	"modernity/internal/data/fetch"
	"modernity/internal/data/history"
	"modernity/internal/data/registry"
	"modernity/internal/engine/metrics"
	"modernity/internal/engine/parser"
	"modernity/internal/engine/sampling"
	"modernity/internal/engine/stdindex"
	"modernity/internal/shared/httputil"
	"modernity/internal/shared/util"
)

// Dependencies are the pipeline stages. History is optional.
type Dependencies struct {
	Selector ports.VersionSelector
	Fetcher  ports.ArchiveFetcher
	Parser   ports.ForestParser
	Engine   ports.MetricEngine
	History  ports.RunHistory
}

type App struct {
	Config *config.Config
	Paths  config.ResolvedPaths

	selector ports.VersionSelector
	fetcher  ports.ArchiveFetcher
	parser   ports.ForestParser
	engine   ports.MetricEngine
	history  ports.RunHistory
	workers  int
}

// New wires the production stages from cfg. It loads the standard library
// index, so missing or malformed expansion artifacts fail here.
func New(cfg *config.Config) (*App, error) {
	paths, err := config.ResolvePaths(cfg)
	if err != nil {
		return nil, err
	}

	indexOpts := stdindex.Options{}
	if cfg.Expansions.CacheEnabled() {
		indexOpts.CacheDir = paths.IndexCache
	}
	index, err := stdindex.Load(stdindex.Paths{Std: paths.StdPath, Core: paths.CorePath, Alloc: paths.AllocPath}, indexOpts)
	if err != nil {
		return nil, err
	}
	slog.Info("standard library index ready", "items", index.Size())

	client := registry.NewClient(registry.ClientOptions{
		UserAgent: cfg.Registry.UserAgent,
		Timeout:   cfg.Registry.Timeout,
		RateLimit: cfg.Registry.RateLimit,
		Burst:     cfg.Registry.Burst,
		Attempts:  cfg.Registry.Retries,
	})
	var cache *httputil.Cache
	if cfg.Registry.CacheTTL > 0 {
		if cache, err = httputil.NewCache(paths.RegistryHTTP, cfg.Registry.CacheTTL); err != nil {
			return nil, fmt.Errorf("create registry cache: %w", err)
		}
	}

	p, err := parser.New(index, parser.Options{
		Strict:        cfg.Parser.IsStrict(),
		MaxMacroDepth: cfg.Parser.MaxMacroDepth,
		Exclude:       cfg.Parser.Exclude,
		MaxFileBytes:  cfg.Fetch.MaxFileBytes,
	})
	if err != nil {
		return nil, err
	}

	deps := Dependencies{
		Selector: sampling.NewSelector(registry.NewCrates(client, cache, cfg.Registry.BaseURL, cfg.Registry.DownloadURL)),
		Fetcher: fetch.NewFetcher(client, fetch.Options{
			ScratchDir:      paths.ScratchDir,
			MaxArchiveBytes: cfg.Fetch.MaxArchiveBytes,
			MaxFileBytes:    cfg.Fetch.MaxFileBytes,
		}),
		Parser: p,
		Engine: metrics.NewEngine(index),
	}
	if cfg.History.Enabled {
		store, err := history.Open(paths.HistoryPath)
		switch {
		case err != nil && history.IsCorruptError(err):
			slog.Warn("run history unreadable, recording disabled", "path", paths.HistoryPath, "error", err)
		case err != nil:
			return nil, err
		default:
			slog.Debug("run history enabled", "path", store.Path())
			deps.History = history.NewAdapter(store)
		}
	}

	a, err := NewWithDependencies(cfg, deps)
	if err != nil {
		if deps.History != nil {
			_ = deps.History.Close()
		}
		return nil, err
	}
	a.Paths = paths
	return a, nil
}

// NewWithDependencies builds an App around injected stages.
func NewWithDependencies(cfg *config.Config, deps Dependencies) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	switch {
	case deps.Selector == nil:
		return nil, fmt.Errorf("version selector dependency is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("archive fetcher dependency is required")
	case deps.Parser == nil:
		return nil, fmt.Errorf("parser dependency is required")
	case deps.Engine == nil:
		return nil, fmt.Errorf("metric engine dependency is required")
	}

	a := &App{
		Config:   cfg,
		selector: deps.Selector,
		fetcher:  deps.Fetcher,
		parser:   deps.Parser,
		engine:   deps.Engine,
		history:  deps.History,
		workers:  util.WorkerCount(cfg.Workers.Count),
	}
	if paths, err := config.ResolvePaths(cfg); err == nil {
		a.Paths = paths
	}
	return a, nil
}

func (a *App) Close(ctx context.Context) error {
	if a == nil || a.history == nil {
		return nil
	}
	return a.history.Close()
}
