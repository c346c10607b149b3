package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vanshika/fingraph/internal/config"
	"github.com/vanshika/fingraph/internal/deadletter"
	"github.com/vanshika/fingraph/internal/logging"
	"github.com/vanshika/fingraph/internal/transport"
)

func main() {
	var (
		limit   = flag.Int("limit", 0, "maximum envelopes to handle; 0 drains the queue")
		only    = flag.String("topic", "", "replay only events originally published to this topic")
		parking = flag.String("parking", "", "topic receiving skipped envelopes; empty discards them")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging).With("component", "replay")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	queue, err := transport.NewRedisQueue(ctx, transport.RedisOptions{
		URL:            cfg.Redis.URL,
		ConnectTimeout: cfg.Redis.ConnectTimeout,
		ReadTimeout:    cfg.Redis.ReadTimeout,
		WriteTimeout:   cfg.Redis.WriteTimeout,
		PollTimeout:    cfg.Redis.PollTimeout,
	}, cfg.Sync.DeadLetterTopic)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer queue.Close()

	replayer := deadletter.NewReplayer(queue, queue, logger)
	replayer.Only = *only
	replayer.Parking = *parking

	stats, err := replayer.Run(ctx, *limit)
	if err != nil {
		logger.Error("replay stopped", "error", err, "replayed", stats.Replayed, "skipped", stats.Skipped)
		os.Exit(1)
	}
	logger.Info("replay finished", "replayed", stats.Replayed, "skipped", stats.Skipped, "source", cfg.Sync.DeadLetterTopic)
}
