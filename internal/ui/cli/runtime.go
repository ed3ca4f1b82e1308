package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"modernity/internal/core/config"
	"modernity/internal/core/domain"
	domainErrors "modernity/internal/core/errors"
	"modernity/internal/core/ports"
	"modernity/internal/shared/observability"
)

// Run executes the command line and returns the process exit status.
func Run(args []string) int {
	return run(context.Background(), args, os.Stdout, os.Stderr, coreAnalysisFactory{})
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, factory analysisFactory) int {
	var opts cliOptions
	code := 0
	cmd := newRootCommand(&opts, func(cmd *cobra.Command) error {
		code = execute(cmd.Context(), opts, stdout, stderr, factory)
		return nil
	})
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		fmt.Fprintln(stderr, cmd.UsageString())
		return 1
	}
	return code
}

func execute(ctx context.Context, opts cliOptions, stdout, stderr io.Writer, factory analysisFactory) int {
	restoreLogs := configureLogging(stderr, opts.verbose)
	defer restoreLogs()

	window, err := parseRange(opts.window)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if opts.count < 0 {
		fmt.Fprintf(stderr, "--count must be positive, got %d\n", opts.count)
		return 1
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Observability.OTLPEndpoint, versionString)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	analysis, closeAnalysis, err := initializeAnalysis(cfg, factory)
	if err != nil {
		logFailure("failed to initialize analysis", opts.library, err)
		return domainErrors.ExitCode(err)
	}
	defer func() {
		if err := closeAnalysis(context.Background()); err != nil {
			slog.Warn("failed to close analysis", "error", err)
		}
	}()

	result, err := analysis.Analyze(ctx, ports.AnalyzeRequest{
		Library: opts.library,
		Count:   opts.count,
		Window:  window,
	})
	if err != nil {
		if ctx.Err() != nil {
			slog.Error("analysis interrupted, no table written", "library", opts.library)
			return 1
		}
		logFailure("analysis failed", opts.library, err)
		return domainErrors.ExitCode(err)
	}

	fmt.Fprintln(stdout, renderSummary(result))

	if opts.history {
		runs, err := analysis.History(ctx, result.Report.Library, time.Time{})
		if err != nil {
			slog.Warn("failed to load run history", "error", err)
		} else {
			fmt.Fprintln(stdout, renderHistory(runs))
		}
	}
	return 0
}

// logFailure tags run-aborting categories with their code so wrappers can
// grep for them. Anything else is reported as unexpected.
func logFailure(msg, library string, err error) {
	if domainErrors.IsFatal(err) {
		slog.Error(msg, "library", library, "code", domainErrors.CodeOf(err), "error", err)
		return
	}
	slog.Error(msg+" unexpectedly", "library", library, "error", err)
}

// loadConfig layers file, environment and flag settings, in that order.
func loadConfig(opts cliOptions) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(opts.configPath, opts.configSet)
	if err != nil {
		return nil, err
	}
	config.ApplyEnvOverrides(cfg)

	if opts.count > 0 {
		cfg.Sampling.Count = opts.count
	}
	if strings.TrimSpace(opts.resultsDir) != "" {
		dir, err := filepath.Abs(opts.resultsDir)
		if err != nil {
			return nil, fmt.Errorf("resolve --results: %w", err)
		}
		cfg.Output.ResultsDir = dir
	}
	if opts.history {
		cfg.History.Enabled = true
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseRange parses START..END. A date-only END covers that whole day.
func parseRange(value string) (domain.TimeRange, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return domain.TimeRange{}, nil
	}
	startRaw, endRaw, ok := strings.Cut(raw, "..")
	if !ok {
		return domain.TimeRange{}, fmt.Errorf("--range must look like START..END, got %q", value)
	}

	var window domain.TimeRange
	if s := strings.TrimSpace(startRaw); s != "" {
		t, _, err := parseBound(s)
		if err != nil {
			return domain.TimeRange{}, err
		}
		window.Start = t
	}
	if s := strings.TrimSpace(endRaw); s != "" {
		t, dateOnly, err := parseBound(s)
		if err != nil {
			return domain.TimeRange{}, err
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		window.End = t
	}
	if !window.Start.IsZero() && !window.End.IsZero() && window.End.Before(window.Start) {
		return domain.TimeRange{}, fmt.Errorf("--range end %s is before start %s",
			window.End.Format(time.RFC3339), window.Start.Format(time.RFC3339))
	}
	return window, nil
}

func parseBound(raw string) (time.Time, bool, error) {
	rfc3339, err := time.Parse(time.RFC3339, raw)
	if err == nil {
		return rfc3339.UTC(), false, nil
	}

	dateOnly, err := time.Parse("2006-01-02", raw)
	if err == nil {
		return dateOnly.UTC(), true, nil
	}

	return time.Time{}, false, fmt.Errorf("--range bounds must be RFC3339 or YYYY-MM-DD, got %q", raw)
}
