// Ingestor API - HTTP API для управления pipeline runs: создание run,
// просмотр дерева задач, планирование и сброс узлов, список jobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Ingestor/internal/api"
	"github.com/shaiso/Ingestor/internal/config"
	"github.com/shaiso/Ingestor/internal/ingest"
	"github.com/shaiso/Ingestor/internal/mq"
	"github.com/shaiso/Ingestor/internal/orchestrator"
	"github.com/shaiso/Ingestor/internal/repo"
	"github.com/shaiso/Ingestor/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := telemetry.SetupLogger("ingestor-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("ingestor-api failed", "error", err)
		os.Exit(1)
	}
	logger.Info("ingestor-api stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	// API не исполняет задачи, но реестр нужен для проверки корневых задач
	registry, err := ingest.New(ingest.Config{
		DataRoot:            cfg.DataRoot,
		MaxIdentifierLength: cfg.MaxIdentifierLength,
		Runs:                repo.NewRunRepo(pool),
		Sources:             repo.NewSourceRepo(pool),
		Tree:                repo.NewTaskRepo(pool),
		Logger:              logger,
	}).NewRegistry(ctx, repo.NewDefinitionRepo(pool))
	if err != nil {
		return err
	}

	// Без RabbitMQ воркеры находят jobs опросом
	var notifier orchestrator.Notifier
	if conn, err := mq.NewConnection(cfg.RabbitMQURL, logger); err != nil {
		logger.Warn("RabbitMQ not available, workers will poll", "error", err)
	} else {
		defer conn.Close()
		if err := mq.SetupTopology(ctx, conn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		notifier = mq.NewPublisher(conn, logger)
	}

	handler := api.NewHandler(api.Config{
		Service: orchestrator.New(orchestrator.Config{
			Store:    orchestrator.NewPGStore(pool),
			Registry: registry,
			Notifier: notifier,
			Logger:   logger,
		}),
		DefaultRootTasks: ingest.DefaultRootTasks,
		Logger:           logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
