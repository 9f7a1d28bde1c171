package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TradeCore/internal/domain/models"
	"TradeCore/internal/domain/repository"
	domsvc "TradeCore/internal/domain/service"
	"TradeCore/internal/handler/api"
	mid "TradeCore/internal/middleware"
	internalrepo "TradeCore/internal/repository"
	icache "TradeCore/internal/service/cache"
	"TradeCore/internal/service/quotes"
	"TradeCore/internal/service/ratelimit"
	"TradeCore/internal/services/agents"
	"TradeCore/internal/services/learning"
	"TradeCore/internal/services/ledger"
	"TradeCore/internal/services/scanner"
	"TradeCore/internal/usecase"
	pkgcache "TradeCore/pkg/cache"
	pkgch "TradeCore/pkg/clickhouse"
	"TradeCore/pkg/config"
	xhttp "TradeCore/pkg/http"
	pkgkafka "TradeCore/pkg/kafka"
	applogger "TradeCore/pkg/logger"
	"TradeCore/pkg/metrics"
	"TradeCore/pkg/server"
)

const (
	policyLockWait  = 2 * time.Second
	feedbackTimeout = 30 * time.Second
)

// ProvideLogger builds the process logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideSharedCache connects to redis when enabled. A nil Service means single-replica mode.
func ProvideSharedCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	c, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
		pkgcache.WithRedisPool(cfg.Redis.Pool.Size, cfg.Redis.Pool.MinIdle, cfg.Redis.Pool.WaitTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvidePolicyBounds merges built-in bounds with config overrides. A configured agent weight
// becomes that agent's default weight.
func ProvidePolicyBounds(cfg *config.Config) (*models.Bounds, error) {
	names := make([]string, len(cfg.Agents))
	for i, a := range cfg.Agents {
		names[i] = a.Name
	}
	specs := models.BuiltinParameterBounds(names)
	index := make(map[string]int, len(specs))
	for i, s := range specs {
		index[s.Name] = i
	}
	for _, a := range cfg.Agents {
		if a.Weight != nil {
			specs[index[models.AgentWeightParam(a.Name)]].Default = *a.Weight
		}
	}
	for name, o := range cfg.Policy.Parameters {
		i, ok := index[strings.ToUpper(name)]
		if !ok {
			return nil, fmt.Errorf("policy.parameters: unknown parameter %s", name)
		}
		if o.Default != nil {
			specs[i].Default = *o.Default
		}
		if o.Min != nil {
			specs[i].Min = *o.Min
		}
		if o.Max != nil {
			specs[i].Max = *o.Max
		}
	}
	b, err := models.NewBounds(specs)
	if err != nil {
		return nil, fmt.Errorf("policy bounds: %w", err)
	}
	return b, nil
}

// ProvideWriteLock returns the cross-process policy lock, or nil without a shared cache.
func ProvideWriteLock(c pkgcache.Service, cfg *config.Config, l *applogger.Logger) repository.WriteLock {
	if c == nil {
		return nil
	}
	return internalrepo.NewPolicyLock(c, cfg.Policy.LockTTL, policyLockWait, l)
}

func ProvidePolicyStore(cfg *config.Config, b *models.Bounds, lock repository.WriteLock, m repository.Metrics, l *applogger.Logger) (*internalrepo.FilePolicyStore, error) {
	s, err := internalrepo.NewFilePolicyStore(cfg.Policy.Dir, b, lock, m, l.With(applogger.String("component", "policy_store")))
	if err != nil {
		return nil, fmt.Errorf("policy store: %w", err)
	}
	return s, nil
}

func ProvideAgentClient(cfg *config.Config) domsvc.AgentClient {
	return agents.NewHTTPAgentClient(cfg.Fanout.AgentTimeout)
}

func ProvideLedger(cfg *config.Config) repository.Ledger {
	return ledger.NewHTTPLedger(cfg.Ledger.URL, cfg.Ledger.Timeout)
}

// ProvideLearningClient returns nil when no learning agent is configured.
func ProvideLearningClient(cfg *config.Config) domsvc.LearningClient {
	if cfg.Learning.URL == "" {
		return nil
	}
	return learning.NewHTTPLearningClient(cfg.Learning.URL, cfg.Learning.Timeout)
}

// ProvideScanner returns nil when no scanner agent is configured.
func ProvideScanner(cfg *config.Config) domsvc.Scanner {
	if cfg.Scanner.URL == "" {
		return nil
	}
	return scanner.NewHTTPScanner(cfg.Scanner.URL, cfg.Scanner.Timeout)
}

func ProvideQuoteBook(c pkgcache.Service, cfg *config.Config, l *applogger.Logger) *icache.QuoteBook {
	return icache.NewQuoteBook(c, cfg.Quotes.MaxAge, cfg.Quotes.LocalCapacity, l)
}

// ProvideQuoteCollector returns nil when the quote stream is disabled.
func ProvideQuoteCollector(cfg *config.Config, book *icache.QuoteBook, m repository.Metrics, l *applogger.Logger) *usecase.QuoteCollector {
	if !cfg.Quotes.Enabled {
		return nil
	}
	l = l.With(applogger.String("component", "quotes"))
	stream := quotes.NewStream(
		cfg.Quotes.APIKey,
		cfg.Quotes.WebSocketURL,
		cfg.Quotes.Symbols,
		cfg.Quotes.ReconnectDelay,
		cfg.Quotes.PingInterval,
		l,
	)
	return usecase.NewQuoteCollector(stream, book, m, l)
}

// ProvideClickHouseClient creates a ClickHouse client when decision auditing is enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns),
		pkgch.WithConnMaxLifetime(cfg.ClickHouse.ConnMaxLifetime),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer when decision events are enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithAutoCreateTopic(cfg.Kafka.AutoCreate),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideDecisionRecorder fans decisions out to every enabled sink and prepares the audit schema.
func ProvideDecisionRecorder(cfg *config.Config, ch *pkgch.Client, producer *pkgkafka.Producer, l *applogger.Logger) (*internalrepo.MultiRecorder, error) {
	var sinks []repository.DecisionRecorder
	if ch != nil {
		store := internalrepo.NewClickHouseDecisionStore(ch, cfg.ClickHouse.Database+"."+cfg.ClickHouse.Table, l)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		stmts := append([]string{"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database}, store.SchemaStatements()...)
		if err := ch.InitSchema(ctx, stmts); err != nil {
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		sinks = append(sinks, store)
	}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaDecisionPublisher(producer, cfg.Kafka.Topic, l))
	}
	return internalrepo.NewMultiRecorder(sinks...), nil
}

func ProvideSignalFanout(cfg *config.Config, client domsvc.AgentClient, m repository.Metrics, l *applogger.Logger) *usecase.SignalFanout {
	return usecase.NewSignalFanout(client, m, l,
		usecase.WithRetryAllowance(cfg.Fanout.RetryAllowance),
		usecase.WithRetryBackoff(cfg.Fanout.RetryBackoff),
	)
}

// ProvideFeedbackLoop returns nil when learning is disabled.
func ProvideFeedbackLoop(cfg *config.Config, client domsvc.LearningClient, store repository.PolicyStore, lg repository.Ledger, m repository.Metrics, l *applogger.Logger) *usecase.LearningFeedbackLoop {
	if client == nil {
		return nil
	}
	return usecase.NewLearningFeedbackLoop(client, store, lg, m, l.With(applogger.String("component", "learning")), cfg.Learning.Mode, cfg.Learning.WindowSize)
}

// ProvideFeedbackPipeline returns the async runner, or nil when feedback is inline or disabled.
func ProvideFeedbackPipeline(cfg *config.Config, loop *usecase.LearningFeedbackLoop, c pkgcache.Service, m repository.Metrics, l *applogger.Logger) *mid.FeedbackPipeline {
	if loop == nil || cfg.Learning.Sync {
		return nil
	}
	opts := []mid.PipelineOption{
		mid.WithBufferSize(cfg.Learning.BufferSize),
		mid.WithWorkers(cfg.Learning.Workers),
		mid.WithCooldown(cfg.Learning.Cooldown),
		mid.WithJobTimeout(cfg.Learning.Timeout),
	}
	if c != nil {
		opts = append(opts, mid.WithSharedCooldown(c))
	}
	return mid.NewFeedbackPipeline(loop, m, l, opts...)
}

func ProvideFeedbackSink(cfg *config.Config, loop *usecase.LearningFeedbackLoop, pipe *mid.FeedbackPipeline) usecase.FeedbackSink {
	switch {
	case pipe != nil:
		return pipe
	case loop != nil:
		timeout := cfg.Learning.Timeout
		if timeout <= 0 {
			timeout = feedbackTimeout
		}
		return usecase.NewInlineFeedback(loop, timeout)
	}
	return nil
}

func ProvideOrchestrator(
	cfg *config.Config,
	fanout *usecase.SignalFanout,
	book *icache.QuoteBook,
	lg repository.Ledger,
	store repository.PolicyStore,
	recorder *internalrepo.MultiRecorder,
	feedback usecase.FeedbackSink,
	scan domsvc.Scanner,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Orchestrator {
	endpoints := make([]models.AgentEndpoint, len(cfg.Agents))
	for i, a := range cfg.Agents {
		endpoints[i] = models.AgentEndpoint{Name: a.Name, URL: a.URL, Timeout: a.Timeout}
	}
	var rec repository.DecisionRecorder
	if recorder.Len() > 0 {
		rec = recorder
	}
	var opts []usecase.OrchestratorOption
	if scan != nil {
		opts = append(opts, usecase.WithScanner(scan))
	}
	return usecase.NewOrchestrator(
		fanout,
		usecase.NewSignalSynthesizer(),
		usecase.NewPortfolioRiskManager(book),
		lg,
		store,
		rec,
		feedback,
		m,
		l,
		endpoints,
		cfg.Fanout.Deadline,
		opts...,
	)
}

// ProvideRateLimiter shares the per-account budget across replicas when redis is available.
func ProvideRateLimiter(cfg *config.Config, c pkgcache.Service, l *applogger.Logger) ratelimit.Allower {
	rl := cfg.Server.RateLimit
	local := ratelimit.New(rl.Capacity, rl.RefillPerSec)
	if c == nil || rl.RefillPerSec <= 0 {
		return local
	}
	window := time.Duration(rl.Capacity / rl.RefillPerSec * float64(time.Second))
	return ratelimit.NewSharedLimiter(c, int64(rl.Capacity), window, local, l)
}

func ProvideHTTPHandler(cfg *config.Config, orch *usecase.Orchestrator, store *internalrepo.FilePolicyStore, limiter ratelimit.Allower, l *applogger.Logger) xhttp.Handler {
	return api.NewHandler(orch, store, l,
		api.WithLimiter(limiter),
		api.WithAdminToken(cfg.Server.AdminToken),
		api.WithRequestTimeout(cfg.RequestTimeout()),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler xhttp.Handler,
	collector *usecase.QuoteCollector,
	book *icache.QuoteBook,
	pipeline *mid.FeedbackPipeline,
	recorder *internalrepo.MultiRecorder,
	ch *pkgch.Client,
	c pkgcache.Service,
) *server.App {
	opts := []server.Option{
		server.WithCloser("decision recorder", recorder),
		server.WithCloser("quote book", book),
	}
	if pipeline != nil {
		opts = append(opts, server.WithComponent("feedback pipeline", server.Funcs{
			StartFn: func(ctx context.Context) error { pipeline.Start(ctx); return nil },
			StopFn:  pipeline.Stop,
		}))
	}
	if collector != nil {
		opts = append(opts, server.WithComponent("quote collector", server.Funcs{
			StartFn: collector.Start,
			StopFn:  collector.Shutdown,
		}))
	}
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", ch))
	}
	if c != nil {
		opts = append(opts, server.WithCloser("cache", c))
	}
	return server.New(cfg, l, handler, opts...)
}
