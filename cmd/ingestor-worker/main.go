// Ingestor Worker - выполняет узлы pipeline runs.
//
// Worker:
//   - Забирает jobs из очереди в PostgreSQL (SKIP LOCKED + lease)
//   - Просыпается по уведомлениям RabbitMQ, без него опрашивает очередь
//   - Выполняет узел через Coordinator и продолжает цепочку run
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Ingestor/internal/config"
	"github.com/shaiso/Ingestor/internal/ingest"
	"github.com/shaiso/Ingestor/internal/mq"
	"github.com/shaiso/Ingestor/internal/orchestrator"
	"github.com/shaiso/Ingestor/internal/repo"
	"github.com/shaiso/Ingestor/internal/telemetry"
	"github.com/shaiso/Ingestor/internal/worker"
	"github.com/shaiso/Ingestor/migrations"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("ingestor-worker")
	logger.Info("starting ingestor-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	if _, err := repo.Migrate(ctx, pool, migrations.FS, logger); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	// Реестр задач: встроенные SYSTEM-функции + определения из БД
	registry, err := ingest.New(ingest.Config{
		DataRoot:            cfg.DataRoot,
		MaxIdentifierLength: cfg.MaxIdentifierLength,
		Concurrency:         cfg.WorkerConcurrency,
		Runs:                repo.NewRunRepo(pool),
		Sources:             repo.NewSourceRepo(pool),
		Tree:                repo.NewTaskRepo(pool),
		Logger:              logger,
	}).NewRegistry(ctx, repo.NewDefinitionRepo(pool))
	if err != nil {
		logger.Error("task registry does not match database", "error", err)
		os.Exit(1)
	}

	// RabbitMQ
	var mqConn *mq.Connection
	var notifier orchestrator.Notifier

	mqConn, err = mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		// Создаём топологию
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		logger.Debug("rabbitmq topology", "layout", mq.TopologyInfo())

		notifier = mq.NewPublisher(mqConn, logger)
	}

	store := orchestrator.NewPGStore(pool)
	service := orchestrator.New(orchestrator.Config{
		Store:    store,
		Registry: registry,
		Notifier: notifier,
		Logger:   logger,
	})

	// Создаём worker
	w := worker.New(worker.Config{
		Queue:        repo.NewJobRepo(pool),
		Executor:     orchestrator.NewCoordinator(store, registry, logger),
		Chain:        service,
		Conn:         mqConn,
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		Lease:        cfg.JobLease,
		DrainTimeout: cfg.WorkerDrainTimeout,
		Logger:       logger,
	})

	// Запускаем worker
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if mqConn != nil && !mqConn.Healthy() {
			w.Write([]byte("ok (rabbitmq disconnected, polling only)"))
			return
		}
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":" + cfg.WorkerPort

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем worker
	w.Stop()
	logger.Info("ingestor-worker stopped")
}
