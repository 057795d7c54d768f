package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/umich-dbgroup/litmus/internal/config"
	"github.com/umich-dbgroup/litmus/internal/queue"
	"github.com/umich-dbgroup/litmus/internal/results"
	"github.com/umich-dbgroup/litmus/internal/runner"
	"github.com/umich-dbgroup/litmus/internal/store"
	"github.com/umich-dbgroup/litmus/internal/util"
	"github.com/umich-dbgroup/litmus/pkg/logger"
	"github.com/umich-dbgroup/litmus/pkg/logger/console"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  cfg.Debug,
		Prefix: "worker",
	})
	logger.Init(consoleLogger)

	if cfg.MetaDatabaseURL == "" {
		logger.Fatal("META_DATABASE_URL is required")
	}
	if err := store.Migrate(cfg.MetaDatabaseURL); err != nil {
		logger.Fatal("Failed to migrate metadata database", "err", err)
	}

	// Init pgx client
	pgConn, err := pgxpool.New(ctx, cfg.MetaDatabaseURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()
	if err := util.RetryErrWithContext(ctx, 5, time.Second, pgConn.Ping); err != nil {
		logger.Fatal("Metadata database unreachable", "err", err)
	}

	repo, err := runner.OpenRepository(ctx, cfg, pgConn)
	if err != nil {
		logger.Fatal("Failed to open cache", "err", err)
	}
	runners := runner.NewPool(cfg, repo, runner.OpenCatalog(cfg, repo, pgConn))
	defer runners.Close()

	// Init rabbitmq
	conn, err := util.RetryWithContext(ctx, 5, 2*time.Second, func(context.Context) (*amqp.Connection, error) {
		return queue.Init(cfg.RabbitMQ)
	})
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	params := queue.ProcessRunParams{
		Store:   results.NewStore(pgConn),
		Runners: runners.Runner,
		Workers: cfg.Workers,
		Stats:   pgConn,
		Publish: func(topic string, data []byte) error {
			return queue.PublishTopic(ch, topic, data)
		},
	}

	// Create a single consumer channel with prefetch=1
	// This ensures only ONE run is processed at a time across all queues
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	err = queue.Serve(ctx, consumerCh, queue.Queues, func(ctx context.Context, queueName string, body []byte) error {
		switch queueName {
		case queue.RunQueue:
			return queue.ProcessRunMessage(ctx, params, body)
		default:
			return fmt.Errorf("no handler for queue %s", queueName)
		}
	})
	if err != nil {
		logger.Fatal("Consumer stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}
