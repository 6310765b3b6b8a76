// Ingestor Janitor - обслуживание очереди jobs.
//
// Возвращает в очередь jobs с истёкшим lease и удаляет завершённые
// jobs старше retention. Из нескольких экземпляров работает один:
// лидер выбирается через advisory lock PostgreSQL.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Ingestor/internal/config"
	"github.com/shaiso/Ingestor/internal/repo"
	"github.com/shaiso/Ingestor/internal/scheduler"
	"github.com/shaiso/Ingestor/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger("ingestor-janitor")
	logger.Info("starting ingestor-janitor")

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

	janitor := scheduler.New(scheduler.Config{
		Jobs:         repo.NewJobRepo(pool),
		Leader:       scheduler.NewAdvisoryLeader(pool),
		Interval:     cfg.JanitorInterval,
		JobRetention: cfg.JobRetention,
		Logger:       logger,
	})
	janitor.Start(ctx)

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":" + cfg.JanitorPort

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	janitor.Stop()
	logger.Info("ingestor-janitor stopped")
}
