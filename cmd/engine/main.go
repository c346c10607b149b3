package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vanshika/fingraph/internal/config"
	"github.com/vanshika/fingraph/internal/consumer"
	"github.com/vanshika/fingraph/internal/deadletter"
	"github.com/vanshika/fingraph/internal/graph"
	"github.com/vanshika/fingraph/internal/logging"
	"github.com/vanshika/fingraph/internal/metrics"
	"github.com/vanshika/fingraph/internal/pattern"
	"github.com/vanshika/fingraph/internal/repository"
	"github.com/vanshika/fingraph/internal/server"
	"github.com/vanshika/fingraph/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	if err := run(cfg, logger); err != nil {
		logger.Error("engine stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tracerProvider, shutdownTracing := logging.NewTracerProvider(cfg.Tracing, logger)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	graphClient, err := buildGraphClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create graph client: %w", err)
	}
	defer func() {
		if err := graphClient.Close(context.Background()); err != nil {
			logger.Warn("closing graph client failed", "error", err)
		}
	}()
	traced := graph.NewTracedClient(graphClient, cfg.Graph.Database,
		graph.WithTracerProvider(tracerProvider),
		graph.WithQueryObserver(m),
	)

	repo := repository.New(traced, repository.WithLogger(logger))
	if cfg.Graph.EnsureSchema {
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	topics := map[string]consumer.EntityKind{
		cfg.Sync.UserTopic:        consumer.KindUser,
		cfg.Sync.TransactionTopic: consumer.KindTransaction,
		cfg.Sync.BudgetTopic:      consumer.KindBudget,
		cfg.Sync.GoalTopic:        consumer.KindGoal,
	}
	names := make([]string, 0, len(topics))
	for topic := range topics {
		names = append(names, topic)
	}

	queue, err := transport.NewRedisQueue(ctx, transport.RedisOptions{
		URL:            cfg.Redis.URL,
		ConnectTimeout: cfg.Redis.ConnectTimeout,
		ReadTimeout:    cfg.Redis.ReadTimeout,
		WriteTimeout:   cfg.Redis.WriteTimeout,
		PollTimeout:    cfg.Redis.PollTimeout,
	}, names...)
	if err != nil {
		return err
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("closing redis failed", "error", err)
		}
	}()

	policy := deadletter.New(queue,
		deadletter.WithTopic(cfg.Sync.DeadLetterTopic),
		deadletter.WithMaxRetries(cfg.Sync.MaxRetries),
		deadletter.WithBaseDelay(cfg.Sync.BaseDelay),
		deadletter.WithLogger(logger),
		deadletter.WithMetrics(m),
	)

	var tracker consumer.AttemptTracker = consumer.NewMemoryAttemptTracker()
	if cfg.Sync.DurableAttempts {
		tracker = consumer.NewRedisAttemptTracker(queue.Client(), cfg.Sync.AttemptsHash)
	}

	mapper := consumer.NewMapper(repo)
	dispatcher := consumer.NewDispatcher(policy, logger)
	for topic, kind := range topics {
		c := consumer.New(kind, mapper, policy,
			consumer.WithTracker(tracker),
			consumer.WithLogger(logger),
			consumer.WithMetrics(m),
			consumer.WithRequeue(queue),
		)
		if err := dispatcher.Register(topic, c); err != nil {
			return err
		}
	}
	runner := consumer.NewRunner(queue, dispatcher, cfg.Sync.Workers, logger)

	engine := pattern.NewEngine(repo,
		pattern.WithLocation(cfg.Patterns.Location()),
		pattern.WithLogger(logger),
		pattern.WithMetrics(m),
		pattern.WithCache(cfg.Patterns.CacheSize, cfg.Patterns.CacheTTL),
	)

	deps := server.RouterDependencies{
		Health: server.CompositeHealthService{
			{Name: "graph", Probe: server.GraphHealthService{Client: traced}},
			{Name: "redis", Probe: server.TransportHealthService{Transport: queue}},
		},
		API:              server.NewAPIHandlers(logger, engine, repo),
		Recorder:         m,
		AllowedOrigins:   parseAllowedOrigins(cfg.HTTP.AllowedOriginsCSV),
		AllowCredentials: true,
	}
	if cfg.HTTP.MetricsEnabled {
		deps.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}
	srv := server.New(logger, cfg.HTTP, server.NewRouter(logger, deps))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("consuming events", "topics", dispatcher.Topics(), "workers", cfg.Sync.Workers)
		return runner.Run(gctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("engine stopped")
	return err
}

func buildGraphClient(ctx context.Context, cfg config.Config) (graph.Client, error) {
	if cfg.Graph.URI == "" {
		return nil, graph.ErrMissingURI
	}

	opts := graph.Options{
		URI:               cfg.Graph.URI,
		Database:          cfg.Graph.Database,
		Username:          cfg.Graph.Username,
		Password:          cfg.Graph.Password,
		MaxConnections:    cfg.Graph.MaxConnections,
		ConnectionTimeout: cfg.Graph.ConnectionTimeout,
		QueryTimeout:      cfg.Graph.QueryTimeout,
	}
	return graph.NewNeo4jClient(ctx, opts)
}

func parseAllowedOrigins(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	var origins []string
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}
