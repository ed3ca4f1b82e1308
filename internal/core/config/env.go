package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: MODERNITY_[SECTION]_[KEY] (e.g., MODERNITY_WORKERS_COUNT).
func ApplyEnvOverrides(cfg *Config) {
	// Paths
	setEnvString(&cfg.Paths.Root, "MODERNITY_PATHS_ROOT")
	setEnvString(&cfg.Paths.CacheDir, "MODERNITY_PATHS_CACHE_DIR")
	setEnvString(&cfg.Paths.StateDir, "MODERNITY_PATHS_STATE_DIR")

	// Sampling
	setEnvInt(&cfg.Sampling.Count, "MODERNITY_SAMPLING_COUNT")

	// Registry
	setEnvString(&cfg.Registry.BaseURL, "MODERNITY_REGISTRY_BASE_URL")
	setEnvString(&cfg.Registry.DownloadURL, "MODERNITY_REGISTRY_DOWNLOAD_URL")
	setEnvString(&cfg.Registry.UserAgent, "MODERNITY_REGISTRY_USER_AGENT")
	setEnvFloat64(&cfg.Registry.RateLimit, "MODERNITY_REGISTRY_RATE_LIMIT")
	setEnvDuration(&cfg.Registry.Timeout, "MODERNITY_REGISTRY_TIMEOUT")
	setEnvDuration(&cfg.Registry.CacheTTL, "MODERNITY_REGISTRY_CACHE_TTL")

	// Expansions
	setEnvString(&cfg.Expansions.Dir, "MODERNITY_EXPANSIONS_DIR")

	// Parser
	setEnvInt(&cfg.Parser.MaxMacroDepth, "MODERNITY_PARSER_MAX_MACRO_DEPTH")

	// Workers
	setEnvInt(&cfg.Workers.Count, "MODERNITY_WORKERS_COUNT")

	// Output
	setEnvString(&cfg.Output.ResultsDir, "MODERNITY_OUTPUT_RESULTS_DIR")

	// History
	setEnvBool(&cfg.History.Enabled, "MODERNITY_HISTORY_ENABLED")
	setEnvString(&cfg.History.Path, "MODERNITY_HISTORY_PATH")

	// Observability
	setEnvString(&cfg.Observability.MetricsFile, "MODERNITY_OBSERVABILITY_METRICS_FILE")
	setEnvString(&cfg.Observability.OTLPEndpoint, "MODERNITY_OBSERVABILITY_OTLP_ENDPOINT")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
