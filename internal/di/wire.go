//go:build wireinject
// +build wireinject

package di

import (
	"CandleSync/internal/domain/repository"
	"CandleSync/internal/service/remotestore"
	"CandleSync/pkg/config"
	"CandleSync/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Metrics
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideCache,
		ProvideClickHouseClient,

		// Repositories
		ProvideRemoteStore,
		wire.Bind(new(repository.RemoteStore), new(*remotestore.Client)),
		ProvideJournal,

		// Transport
		ProvideLimiter,
		ProvideHub,

		// Use cases
		ProvideOrchestrator,
		ProvideViewportListener,
		ProvideStatusPoller,

		// HTTP
		ProvideSyncHandler,
		ProvideHealthHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
