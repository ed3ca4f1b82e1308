package cli

import (
	"context"
	"fmt"

	coreapp "modernity/internal/core/app"
	"modernity/internal/core/config"
	"modernity/internal/core/ports"
)

type analysisFactory interface {
	New(cfg *config.Config) (ports.AnalysisService, func(context.Context) error, error)
}

type coreAnalysisFactory struct{}

func (coreAnalysisFactory) New(cfg *config.Config) (ports.AnalysisService, func(context.Context) error, error) {
	app, err := coreapp.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return app.AnalysisService(), app.Close, nil
}

func initializeAnalysis(cfg *config.Config, factory analysisFactory) (ports.AnalysisService, func(context.Context) error, error) {
	if factory == nil {
		return nil, nil, fmt.Errorf("analysis factory is required")
	}
	service, closeFn, err := factory.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	if closeFn == nil {
		closeFn = func(context.Context) error { return nil }
	}
	return service, closeFn, nil
}
