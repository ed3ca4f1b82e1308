package ports

import (
	"context"
	"time"

	"modernity/internal/core/domain"
	"modernity/internal/data/fetch"
	"modernity/internal/data/history"
	"modernity/internal/engine/parser"
)

// VersionSelector picks the releases of a library to analyze.
type VersionSelector interface {
	Select(ctx context.Context, name string, count int, window domain.TimeRange) ([]domain.Release, error)
}

// ArchiveFetcher materializes one release on disk. The caller owns the
// checkout and must call Cleanup.
type ArchiveFetcher interface {
	Fetch(ctx context.Context, name string, release domain.Release) (*fetch.Checkout, error)
}

// ForestParser parses an unpacked version.
type ForestParser interface {
	Parse(ctx context.Context, version domain.LibraryVersion) (*parser.SyntaxForest, error)
}

// MetricEngine computes the metric vector of a parsed version.
type MetricEngine interface {
	Compute(forest *parser.SyntaxForest) domain.MetricVector
}

// RunHistory persists completed runs.
type RunHistory interface {
	SaveRun(run history.Run, report *domain.LibraryReport) error
	LoadRuns(library string, since time.Time) ([]history.Run, error)
	Close() error
}

// AnalyzeRequest drives one analysis run.
type AnalyzeRequest struct {
	Library    string
	Count      int
	Window     domain.TimeRange
	ResultsDir string // overrides the configured results directory
}

// AnalyzeResult summarizes a run whose table was written.
type AnalyzeResult struct {
	RunID     string
	Report    *domain.LibraryReport
	Path      string
	Requested int
	Dropped   []domain.VersionOutcome
	Duration  time.Duration
}

// AnalysisService is the driving port used by the CLI.
type AnalysisService interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (AnalyzeResult, error)
	History(ctx context.Context, library string, since time.Time) ([]history.Run, error)
}
