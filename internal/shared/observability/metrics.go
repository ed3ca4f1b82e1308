package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParsingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modernity_parsing_seconds",
		Help:    "Time spent parsing a source unit.",
		Buckets: prometheus.DefBuckets,
	}, []string{"origin"})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "modernity_fetch_seconds",
		Help:    "Time spent downloading and extracting a version archive.",
		Buckets: prometheus.DefBuckets,
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modernity_stage_seconds",
		Help:    "Time spent in a pipeline stage for one version.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	RegistryRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modernity_registry_requests_total",
		Help: "Registry requests by outcome.",
	}, []string{"outcome"})

	VersionsSelected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "modernity_versions_selected",
		Help: "Number of versions chosen by the selector in the current run.",
	})

	VersionsAnalyzedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modernity_versions_analyzed_total",
		Help: "Total number of versions that produced a report row.",
	})

	VersionsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modernity_versions_dropped_total",
		Help: "Total number of versions dropped, by error category.",
	}, []string{"reason"})

	FilesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modernity_files_skipped_total",
		Help: "Total number of source files skipped because they failed to parse.",
	})

	MacroOverflowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modernity_macro_overflows_total",
		Help: "Total number of macro expansion chains truncated at the depth limit.",
	})

	MetricUnavailableTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modernity_metric_unavailable_total",
		Help: "Total number of metric cells reported as unavailable.",
	}, []string{"metric"})
)

// WriteTextfile dumps the default registry in the node-exporter textfile
// format. Batch runs have no scrape window, so this is how their metrics leave
// the process.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
