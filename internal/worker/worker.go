package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Ingestor/internal/mq"
)

// Default configuration values.
const (
	defaultConcurrency  = 4
	defaultPollInterval = time.Second
	defaultLease        = time.Hour
	defaultDrainTimeout = 30 * time.Second
	defaultPrefetch     = 10
)

// Worker забирает jobs из очереди и выполняет их узлы.
//
// Каждый из Concurrency слотов выполняет не больше одного job за раз.
// Слот опрашивает БД раз в PollInterval и дополнительно просыпается
// по уведомлению job.enqueued из RabbitMQ. Повторов нет: ошибка задачи
// завершает job статусом error. Инфраструктурная ошибка оставляет job
// в running до истечения lease.
type Worker struct {
	id       string
	queue    Queue
	executor Executor
	chain    Chainer
	conn     *mq.Connection

	concurrency  int
	pollInterval time.Duration
	lease        time.Duration
	drainTimeout time.Duration

	wake chan uuid.UUID

	logger     *slog.Logger
	consumer   *mq.Consumer
	group      *errgroup.Group
	stopClaim  context.CancelFunc
	cancelExec context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool
}

// Config: конфигурация Worker.
type Config struct {
	// ID: идентификатор воркера в lease (default: hostname-uuid).
	ID string

	Queue    Queue
	Executor Executor
	Chain    Chainer

	// Conn: RabbitMQ (опционально; без него только polling).
	Conn *mq.Connection

	Concurrency  int           // число слотов (default: 4)
	PollInterval time.Duration // интервал опроса очереди (default: 1s)
	Lease        time.Duration // lease на job (default: 1h)
	DrainTimeout time.Duration // ожидание in-flight jobs при остановке (default: 30s)

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	lease := cfg.Lease
	if lease <= 0 {
		lease = defaultLease
	}

	drainTimeout := cfg.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := cfg.ID
	if id == "" {
		id = defaultID()
	}

	return &Worker{
		id:           id,
		queue:        cfg.Queue,
		executor:     cfg.Executor,
		chain:        cfg.Chain,
		conn:         cfg.Conn,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		lease:        lease,
		drainTimeout: drainTimeout,
		wake:         make(chan uuid.UUID, concurrency),
		logger:       logger.With("component", "worker", "worker_id", id),
	}
}

func defaultID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// ID возвращает идентификатор воркера.
func (w *Worker) ID() string {
	return w.id
}

// Start запускает слоты и (если есть соединение) consumer уведомлений.
//
// Отмена ctx прекращает захват новых jobs, но не прерывает
// выполняющиеся: их дожидается Stop.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyStarted
	}
	w.started = true

	claimCtx, stopClaim := context.WithCancel(ctx)
	execCtx, cancelExec := context.WithCancel(context.WithoutCancel(ctx))
	w.stopClaim = stopClaim
	w.cancelExec = cancelExec

	w.logger.Info("starting worker",
		"concurrency", w.concurrency,
		"poll_interval", w.pollInterval,
		"lease", w.lease,
	)

	g := &errgroup.Group{}
	w.group = g

	if w.conn != nil {
		w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueJobsReady),
			Handler:  w.handleJobEnqueued,
			Tag:      w.id,
			Prefetch: defaultPrefetch,
			Types:    []mq.MessageType{mq.MessageTypeJobEnqueued},
		})
		g.Go(func() error {
			if err := w.consumer.Start(claimCtx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("job consumer error", "error", err)
				return err
			}
			return nil
		})
	} else {
		w.logger.Info("no RabbitMQ connection, running in polling-only mode")
	}

	for slot := 0; slot < w.concurrency; slot++ {
		g.Go(func() error {
			w.slotLoop(claimCtx, execCtx, slot)
			return nil
		})
	}

	w.logger.Info("worker started")
	return nil
}

// Stop прекращает захват jobs и ждёт выполняющиеся не дольше
// DrainTimeout, после чего отменяет их контекст.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.started || w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	w.logger.Info("stopping worker...", "drain_timeout", w.drainTimeout)

	w.stopClaim()
	if w.consumer != nil {
		w.consumer.Stop()
	}

	done := make(chan error, 1)
	go func() { done <- w.group.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(w.drainTimeout):
		w.logger.Warn("drain timeout exceeded, cancelling in-flight jobs")
		w.cancelExec()
		err = <-done
	}
	w.cancelExec()

	if err != nil {
		w.logger.Warn("worker stopped with error", "error", err)
		return
	}
	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

// slotLoop: цикл одного слота: выбрать всё готовое, затем ждать
// тика или уведомления.
func (w *Worker) slotLoop(claimCtx, execCtx context.Context, slot int) {
	logger := w.logger.With("slot", slot)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		for claimCtx.Err() == nil {
			job, err := w.claim(claimCtx, uuid.Nil)
			if err != nil {
				logger.Error("failed to claim job", "error", err)
				break
			}
			if job == nil {
				break
			}
			w.process(execCtx, job)
		}

		select {
		case <-claimCtx.Done():
			return
		case <-ticker.C:
		case id := <-w.wake:
			job, err := w.claim(claimCtx, id)
			if err != nil {
				logger.Error("failed to claim notified job", "job_id", id, "error", err)
				continue
			}
			if job != nil {
				w.process(execCtx, job)
			}
		}
	}
}
