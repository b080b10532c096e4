package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"graderelay/internal/amqp"
	"graderelay/internal/artifact"
	"graderelay/internal/config"
	"graderelay/internal/dispatch"
	"graderelay/internal/gitlab"
	"graderelay/internal/result"
	"graderelay/internal/web"
)

func main() {
	configPath := flag.String("config", "graderelay.toml", "configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, *configPath); err != nil {
		logger.Error("server exiting", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, configPath string) error {
	cfg, err := config.LoadServer(configPath)
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

	store := artifact.NewStore(cfg.Package.ZipDir)
	if err := store.EnsureDir(); err != nil {
		return fmt.Errorf("creating zip dir %s: %w", cfg.Package.ZipDir, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gl := gitlab.NewClient(cfg.Gitlab.URL, cfg.Gitlab.Token, logger.With("component", "gitlab"))

	capacity := cfg.Queue.CapacityOrDefault()
	hooks := make(chan gitlab.PushEvent, capacity)
	queues := make(chan string, capacity)

	dispatcher := dispatch.New(client, gl, store, cfg.Labs.Steps, cfg.Server.BaseURL, queues,
		logger.With("component", "dispatch"))
	go dispatcher.Run(ctx, hooks)

	relay := result.NewRelay(client, gl, store, logger.With("component", "result"))
	go relay.Run(ctx, queues)

	server := web.NewServer(ctx, cfg.Gitlab.SecretToken, cfg.Package.ZipDir, hooks,
		logger.With("component", "web"))
	addr := net.JoinHostPort(cfg.Server.IP, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{Addr: addr, Handler: server.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", addr, "base_url", cfg.Server.BaseURL)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
