package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"graderelay/internal/amqp"
	"graderelay/internal/config"
	"graderelay/internal/worker"
)

func main() {
	configPath := flag.String("config", "graderelay-worker.toml", "configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *configPath); err != nil {
		logger.Error("worker exiting", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string) error {
	cfg, err := config.LoadWorker(configPath)
	if err != nil {
		return err
	}

	client, err := amqp.Dial(cfg.AMQP)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.DeclareExchangeAndQueue(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	parallelism := cfg.Tester.ParallelismOrDefault()
	deliveries, err := client.ConsumeRequests("graderelay-worker", parallelism)
	if err != nil {
		return err
	}

	requests := make(chan amqp.JobRequest, parallelism)
	responses := make(chan amqp.JobResponse, parallelism)

	executor := worker.NewExecutor(cfg.Tester, logger.With("component", "executor"))
	for i := 0; i < parallelism; i++ {
		go executor.Run(ctx, requests, responses)
	}

	relay := worker.NewRelay(client, client, logger.With("component", "relay"))
	go relay.Receive(ctx, deliveries, requests)

	logger.Info("worker ready", "queue", cfg.AMQP.Queue, "parallelism", parallelism)
	// The outbound half owns the main goroutine; it returns on shutdown.
	relay.Send(ctx, responses)
	return nil
}
