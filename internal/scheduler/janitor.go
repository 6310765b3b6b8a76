package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Ingestor/internal/telemetry"
)

// Default configuration values.
const (
	defaultInterval  = 30 * time.Second
	defaultRetention = 7 * 24 * time.Hour
)

// JobStore: операции обслуживания очереди. Реализуется *repo.JobRepo.
type JobStore interface {
	RequeueExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Janitor: обслуживание очереди jobs.
type Janitor struct {
	jobs      JobStore
	leader    Leader
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config: конфигурация Janitor.
type Config struct {
	Jobs JobStore

	// Leader: опционально; без него каждый тик выполняется.
	Leader Leader

	Interval     time.Duration // период тиков (default: 30s)
	JobRetention time.Duration // хранение завершённых jobs (default: 7d)

	Logger *slog.Logger
}

// New создаёт новый Janitor.
func New(cfg Config) *Janitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	retention := cfg.JobRetention
	if retention <= 0 {
		retention = defaultRetention
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Janitor{
		jobs:      cfg.Jobs,
		leader:    cfg.Leader,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		logger:    logger.With("component", "janitor"),
	}
}

// TickResult: итог одного тика.
type TickResult struct {
	Requeued int64
	Purged   int64
}

// Tick выполняет один проход обслуживания.
//
// 1. Running jobs с истёкшим lease возвращаются в enqueued
// 2. Done/error jobs старше retention удаляются
func (j *Janitor) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult
	now := j.now()

	requeued, err := j.jobs.RequeueExpired(ctx, now)
	if err != nil {
		return res, fmt.Errorf("requeue expired jobs: %w", err)
	}
	res.Requeued = requeued
	telemetry.JobsRequeued.Add(float64(requeued))

	purged, err := j.jobs.DeleteFinishedBefore(ctx, now.Add(-j.retention))
	if err != nil {
		return res, fmt.Errorf("delete finished jobs: %w", err)
	}
	res.Purged = purged
	telemetry.JobsPurged.Add(float64(purged))

	if requeued > 0 || purged > 0 {
		j.logger.Info("janitor tick completed",
			"requeued", requeued,
			"purged", purged,
		)
	}
	if requeued > 0 {
		j.logger.Warn("requeued jobs with expired lease", "count", requeued)
	}

	return res, nil
}

// Start запускает цикл тиков в отдельной горутине.
func (j *Janitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	j.cancelFunc = cancel

	j.logger.Info("starting janitor",
		"interval", j.interval,
		"retention", j.retention,
	)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop(ctx)
	}()
}

// Stop останавливает цикл и отдаёт лидерство.
func (j *Janitor) Stop() {
	if j.cancelFunc != nil {
		j.cancelFunc()
	}
	j.wg.Wait()
	j.logger.Info("janitor stopped")
}

func (j *Janitor) loop(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	defer func() {
		if j.leader == nil {
			return
		}
		if err := j.leader.Release(context.WithoutCancel(ctx)); err != nil {
			j.logger.Warn("failed to release leadership", "error", err)
		}
	}()

	for {
		j.tickIfLeader(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (j *Janitor) tickIfLeader(ctx context.Context) {
	if j.leader != nil {
		ok, err := j.leader.TryAcquire(ctx)
		if err != nil {
			j.logger.Error("leader election failed", "error", err)
			return
		}
		if !ok {
			return
		}
	}

	if _, err := j.Tick(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("janitor tick failed", "error", err)
	}
}
