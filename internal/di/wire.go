//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"BarFeed/internal/usecase"
	"BarFeed/pkg/config"
	"BarFeed/pkg/server"
)

var ingestionSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideSession,
	ProvideStorage,
	ProvideRedis,
	ProvideRunLock,
	ProvidePublisher,
	ProvideProviders,
	ProvideQualityEngine,
	ProvideIngestion,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ingestionSet,

		// Read side
		ProvideStatusUseCase,
		ProvideCandlesUseCase,

		// Transport and scheduling
		ProvideHTTPHandler,
		ProvideHTTPServer,
		ProvideScheduler,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeIngestion wires a standalone ingestion orchestrator for one-shot runs.
func InitializeIngestion(cfg *config.Config) (*usecase.Ingestion, func(), error) {
	wire.Build(ingestionSet)
	return nil, nil, nil
}

// InitializeStatus wires the health evaluator for the healthcheck command.
func InitializeStatus(cfg *config.Config) (*usecase.StatusUseCase, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideSession,
		ProvideStorage,
		ProvideRedis,
		ProvideStatusUseCase,
	)
	return nil, nil, nil
}
