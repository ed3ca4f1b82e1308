package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"modernity/internal/core/ports"
	"modernity/internal/data/history"
	"modernity/internal/shared/observability"
)

type analysisService struct {
	app *App
}

var _ ports.AnalysisService = (*analysisService)(nil)

func NewAnalysisService(app *App) ports.AnalysisService {
	return &analysisService{app: app}
}

func (a *App) AnalysisService() ports.AnalysisService {
	return NewAnalysisService(a)
}

func (s *analysisService) Analyze(ctx context.Context, req ports.AnalyzeRequest) (ports.AnalyzeResult, error) {
	if s.app == nil {
		return ports.AnalyzeResult{}, fmt.Errorf("app is required")
	}
	return s.app.Analyze(ctx, req)
}

func (s *analysisService) History(ctx context.Context, library string, since time.Time) ([]history.Run, error) {
	_, span := observability.Tracer.Start(ctx, "analysisService.History", trace.WithAttributes(
		attribute.String("library", library),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.app == nil {
		return nil, fmt.Errorf("app is required")
	}
	if s.app.history == nil {
		return nil, fmt.Errorf("run history is disabled")
	}
	return s.app.history.LoadRuns(library, since)
}
