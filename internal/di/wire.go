//go:build wireinject
// +build wireinject

package di

import (
	"TradeCore/internal/domain/repository"
	internalrepo "TradeCore/internal/repository"
	"TradeCore/pkg/config"
	"TradeCore/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideSharedCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Policy
		ProvidePolicyBounds,
		ProvideWriteLock,
		ProvidePolicyStore,
		wire.Bind(new(repository.PolicyStore), new(*internalrepo.FilePolicyStore)),

		// Collaborators
		ProvideAgentClient,
		ProvideLedger,
		ProvideLearningClient,
		ProvideScanner,

		// Market data
		ProvideQuoteBook,
		ProvideQuoteCollector,

		// Decision recording
		ProvideDecisionRecorder,

		// Use cases
		ProvideSignalFanout,
		ProvideFeedbackLoop,
		ProvideFeedbackPipeline,
		ProvideFeedbackSink,
		ProvideOrchestrator,

		// HTTP
		ProvideRateLimiter,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
