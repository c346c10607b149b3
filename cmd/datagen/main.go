package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vanshika/fingraph/internal/config"
	"github.com/vanshika/fingraph/internal/consumer"
	"github.com/vanshika/fingraph/internal/generator"
	"github.com/vanshika/fingraph/internal/logging"
	"github.com/vanshika/fingraph/internal/transport"
)

func main() {
	defaults := generator.DefaultConfig()
	var (
		users       = flag.Int("users", defaults.NumUsers, "number of users to generate")
		perUser     = flag.Int("transactions", defaults.TransactionsPerUser, "discretionary transactions per user")
		historyDays = flag.Int("history-days", defaults.HistoryDays, "days of history to generate")
		subChance   = flag.Float64("subscription-chance", defaults.SubscriptionChance, "probability a user carries each monthly subscription")
		seed        = flag.Int64("seed", defaults.Seed, "random seed for deterministic generation")
		outputDir   = flag.String("output-dir", "data", "directory to write events.json")
		writeStdout = flag.Bool("stdout", false, "write the dataset to stdout instead of a file")
		publish     = flag.Bool("publish", false, "publish events to the configured Redis topics instead of writing a file")
		timeout     = flag.Duration("timeout", 2*time.Minute, "overall deadline for generation and publishing")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging).With("component", "datagen")

	genCfg := generator.Config{
		NumUsers:            *users,
		TransactionsPerUser: *perUser,
		HistoryDays:         *historyDays,
		SubscriptionChance:  clampProbability(*subChance),
		Seed:                *seed,
		Topics: generator.Topics{
			Users:        cfg.Sync.UserTopic,
			Transactions: cfg.Sync.TransactionTopic,
			Budgets:      cfg.Sync.BudgetTopic,
			Goals:        cfg.Sync.GoalTopic,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dataset, err := generator.New(genCfg).Generate(ctx)
	if err != nil {
		logger.Error("generation failed", "error", err)
		os.Exit(1)
	}

	switch {
	case *publish:
		queue, err := transport.NewRedisQueue(ctx, transport.RedisOptions{
			URL:            cfg.Redis.URL,
			ConnectTimeout: cfg.Redis.ConnectTimeout,
			WriteTimeout:   cfg.Redis.WriteTimeout,
		})
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer queue.Close()

		sent, err := generator.Publish(ctx, queue, dataset)
		if err != nil {
			logger.Error("publishing stopped", "error", err, "sent", sent)
			os.Exit(1)
		}
		logger.Info("published events", "events", sent, "users", dataset.Count(consumer.KindUser))
	case *writeStdout:
		if err := json.NewEncoder(os.Stdout).Encode(dataset); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write dataset to stdout: %v\n", err)
			os.Exit(1)
		}
	default:
		if err := generator.WriteDataset(dataset, *outputDir); err != nil {
			logger.Error("failed to write dataset", "error", err)
			os.Exit(1)
		}
		logger.Info("wrote dataset", "events", len(dataset.Messages), "dir", *outputDir)
	}
}

func clampProbability(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
