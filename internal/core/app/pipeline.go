package app

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"modernity/internal/core/domain"
	domainErrors "modernity/internal/core/errors"
	"modernity/internal/core/ports"
	"modernity/internal/data/history"
	"modernity/internal/engine/metrics"
	"modernity/internal/output"
	"modernity/internal/shared/observability"
	"modernity/internal/shared/util"
)

// Analyze runs select → fetch → parse → metrics for every sampled release,
// joins the surviving rows and writes the table. Nothing is written when ctx
// is cancelled or no version survives.
func (a *App) Analyze(ctx context.Context, req ports.AnalyzeRequest) (ports.AnalyzeResult, error) {
	runID := uuid.NewString()
	started := time.Now()
	ctx, span := observability.Tracer.Start(ctx, "app.Analyze", trace.WithAttributes(
		attribute.String("library", req.Library),
		attribute.String("run_id", runID),
	))
	defer span.End()

	result, err := a.analyze(ctx, runID, started, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (a *App) analyze(ctx context.Context, runID string, started time.Time, req ports.AnalyzeRequest) (ports.AnalyzeResult, error) {
	library := strings.TrimSpace(req.Library)
	if library == "" {
		return ports.AnalyzeResult{}, domainErrors.New(domainErrors.CodeValidationError, "library name is required")
	}
	count := req.Count
	if count <= 0 {
		count = a.Config.Sampling.Count
	}

	selectStart := time.Now()
	releases, err := a.selector.Select(ctx, library, count, req.Window)
	observability.StageDuration.WithLabelValues("select").Observe(time.Since(selectStart).Seconds())
	if err != nil {
		return ports.AnalyzeResult{}, err
	}

	outcomes := a.runVersions(ctx, library, releases)
	if err := ctx.Err(); err != nil {
		slog.Warn("run cancelled, no table written", "library", library, "run_id", runID)
		return ports.AnalyzeResult{}, err
	}

	report := &domain.LibraryReport{Library: library, Columns: metrics.Columns()}
	var dropped []domain.VersionOutcome
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			dropped = append(dropped, outcome)
			continue
		}
		report.Rows = append(report.Rows, *outcome.Row)
	}
	sort.SliceStable(report.Rows, func(i, j int) bool {
		return report.Rows[i].Version.PublishedAt.Before(report.Rows[j].Version.PublishedAt)
	})

	if len(report.Rows) == 0 {
		err := domainErrors.Newf(domainErrors.CodeNoVersionsAnalyzed, "all %d selected versions were dropped", len(releases))
		return ports.AnalyzeResult{Requested: len(releases), Dropped: dropped}, domainErrors.AddContext(err, domainErrors.CtxLibrary, library)
	}

	resultsDir := a.Paths.ResultsDir
	if req.ResultsDir != "" {
		resultsDir = req.ResultsDir
	}
	writeStart := time.Now()
	path, err := output.WriteReport(resultsDir, report)
	observability.StageDuration.WithLabelValues("write").Observe(time.Since(writeStart).Seconds())
	if err != nil {
		return ports.AnalyzeResult{}, err
	}

	result := ports.AnalyzeResult{
		RunID:     runID,
		Report:    report,
		Path:      path,
		Requested: len(releases),
		Dropped:   dropped,
		Duration:  time.Since(started),
	}
	a.recordRun(result, started)
	a.writeMetricsFile()

	slog.Info("report written",
		"library", library,
		"path", path,
		"rows", len(report.Rows),
		"dropped", len(dropped),
		"duration", result.Duration.Round(time.Millisecond),
		"heap_mb", util.HeapAllocMB(),
	)
	return result, nil
}

// runVersions processes releases on a bounded pool. Outcomes keep the
// selection order; a failed version never stops the others.
func (a *App) runVersions(ctx context.Context, library string, releases []domain.Release) []domain.VersionOutcome {
	outcomes := make([]domain.VersionOutcome, len(releases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, release := range releases {
		g.Go(func() error {
			outcomes[i] = a.analyzeVersion(gctx, library, release)
			return nil
		})
	}
	_ = g.Wait()

	for _, outcome := range outcomes {
		if outcome.Err == nil {
			continue
		}
		reason := string(domainErrors.CodeOf(outcome.Err))
		if reason == "" {
			reason = "other"
		}
		observability.VersionsDroppedTotal.WithLabelValues(reason).Inc()
		if ctx.Err() == nil {
			slog.Warn("version dropped", "library", library, "version", outcome.Release.Version, "reason", reason, "error", outcome.Err)
		}
	}
	return outcomes
}

func (a *App) analyzeVersion(ctx context.Context, library string, release domain.Release) (outcome domain.VersionOutcome) {
	outcome.Release = release
	start := time.Now()
	ctx, span := observability.Tracer.Start(ctx, "app.analyzeVersion", trace.WithAttributes(
		attribute.String("library", library),
		attribute.String("version", release.Version),
	))
	defer func() {
		if outcome.Err != nil {
			span.RecordError(outcome.Err)
			span.SetStatus(codes.Error, outcome.Err.Error())
		}
		span.End()
		observability.StageDuration.WithLabelValues("version").Observe(time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		outcome.Err = err
		return outcome
	}

	checkout, err := a.fetcher.Fetch(ctx, library, release)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	defer func() {
		if err := checkout.Cleanup(); err != nil {
			slog.Warn("scratch cleanup failed", "library", library, "version", release.Version, "error", err)
		}
	}()

	version := domain.LibraryVersion{
		Name:        library,
		Version:     release.Version,
		PublishedAt: release.PublishedAt,
		SourceRoot:  checkout.Root,
	}
	forest, err := a.parser.Parse(ctx, version)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	defer forest.Close()

	for _, issue := range forest.Issues {
		slog.Debug("file issue",
			"library", library,
			"version", release.Version,
			"code", issue.Code,
			"file", issue.File,
			"line", issue.Line,
			"macro", issue.Macro,
			"message", issue.Message,
		)
	}

	vector := a.engine.Compute(forest)
	observability.VersionsAnalyzedTotal.Inc()
	version.SourceRoot = ""
	outcome.Row = &domain.ReportRow{Version: version, Metrics: vector}
	return outcome
}

func (a *App) recordRun(result ports.AnalyzeResult, started time.Time) {
	if a.history == nil {
		return
	}
	run := history.Run{
		ID:           result.RunID,
		Library:      result.Report.Library,
		StartedAt:    started.UTC(),
		FinishedAt:   time.Now().UTC(),
		MetricSchema: metrics.SchemaVersion,
		Requested:    result.Requested,
		Analyzed:     len(result.Report.Rows),
		Dropped:      len(result.Dropped),
		ResultsPath:  result.Path,
	}
	if err := a.history.SaveRun(run, result.Report); err != nil {
		slog.Warn("run history not saved", "run_id", run.ID, "error", err)
	}
}

func (a *App) writeMetricsFile() {
	if a.Paths.MetricsFile == "" {
		return
	}
	if err := observability.WriteTextfile(a.Paths.MetricsFile); err != nil {
		slog.Warn("metrics textfile not written", "path", a.Paths.MetricsFile, "error", err)
	}
}
