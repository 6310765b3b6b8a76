package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/Ingestor/internal/domain"
	"github.com/shaiso/Ingestor/internal/engine"
	"github.com/shaiso/Ingestor/internal/repo"
	"github.com/shaiso/Ingestor/internal/tasks"
)

// Notifier будит воркеры после постановки job. Реализуется *mq.Publisher.
type Notifier interface {
	PublishJobEnqueued(ctx context.Context, job *domain.ScheduledJob) error
}

// Config: конфигурация Service.
type Config struct {
	Store    Store
	Registry Resolver

	// Notifier: необязателен: без него воркеры найдут job опросом.
	Notifier Notifier

	Logger *slog.Logger
}

// Service: граничные операции над pipeline runs.
//
// Каждая операция принимает id запрашивающего пользователя; он
// попадает в логи и в архив удалённых узлов.
type Service struct {
	store    Store
	registry Resolver
	notifier Notifier
	logger   *slog.Logger
}

// New создаёт Service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    cfg.Store,
		registry: cfg.Registry,
		notifier: cfg.Notifier,
		logger:   logger.With("component", "orchestrator"),
	}
}

// ScheduleOptions: параметры планирования.
type ScheduleOptions struct {
	// RunNext: после успеха запланировать следующую задачу.
	RunNext bool

	// SystemOnly: USER-задачу не планировать (останов цепочки).
	SystemOnly bool
}

// Scheduled: запланированный узел и его job.
type Scheduled struct {
	Node *domain.PipelineRunTask `json:"node"`
	Job  *domain.ScheduledJob    `json:"job"`
}

// ResetResult: итог reset.
type ResetResult struct {
	Node    *domain.PipelineRunTask   `json:"node"`
	Removed []*domain.PipelineRunTask `json:"removed"`
}

// CreateRunParams: параметры нового run.
type CreateRunParams struct {
	DataSourceID     int64
	RecordDate       time.Time
	Stage            string
	CollectionUserID *int64
	LoadUserID       *int64
	CheckUserID      *int64
	QAUserID         *int64

	// RootTasks: id определений корневых задач в порядке выполнения.
	RootTasks []int64
}

// GetRun возвращает run.
func (s *Service) GetRun(ctx context.Context, runID int64) (*domain.PipelineRun, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrRunNotFound, runID)
		}
		return nil, err
	}
	return run, nil
}

// ListRuns возвращает последние runs.
func (s *Service) ListRuns(ctx context.Context, limit, offset int) ([]domain.PipelineRun, error) {
	return s.store.ListRuns(ctx, limit, offset)
}

// OrderedTasks возвращает узлы run в порядке выполнения (pre-order).
// Непустой stage оставляет только узлы этой стадии.
func (s *Service) OrderedTasks(ctx context.Context, runID int64, stage string, userID int64) ([]*domain.PipelineRunTask, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	nodes, err := s.store.ListNodes(ctx, nil, runID)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("ordered tasks requested", "run_id", runID, "stage", stage, "user_id", userID)

	ordered := engine.Flatten(nodes)
	if stage != "" {
		ordered = engine.FilterStage(ordered, stage)
	}
	return ordered, nil
}

// RemovedTasks возвращает архив узлов, удалённых reset.
func (s *Service) RemovedTasks(ctx context.Context, runID int64) ([]domain.RemovedTask, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.store.ListRemoved(ctx, runID)
}

// ResetTask сбрасывает узел в Waiting, архивируя и удаляя его поддерево.
// Дети не восстанавливаются: их заново создаст логика задачи.
func (s *Service) ResetTask(ctx context.Context, nodeID, userID int64) (*ResetResult, error) {
	node, removed, err := s.store.ResetNode(ctx, nodeID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrTaskNotFound, nodeID)
		}
		return nil, fmt.Errorf("reset task: %w", err)
	}

	s.logger.Info("task reset",
		"run_id", node.RunID,
		"pipeline_run_task_id", nodeID,
		"removed", len(removed),
		"user_id", userID,
	)

	if _, err := s.RefreshRunState(ctx, node.RunID); err != nil {
		s.logger.Warn("failed to refresh run state", "run_id", node.RunID, "error", err)
	}

	return &ResetResult{Node: node, Removed: removed}, nil
}

// ScheduleNext планирует следующую задачу run (любого типа: планирование
// USER-задачи - способ её подтвердить).
func (s *Service) ScheduleNext(ctx context.Context, runID, userID int64) (*Scheduled, error) {
	return s.Schedule(ctx, runID, userID, ScheduleOptions{})
}

// ScheduleRunToCompletion планирует следующую задачу с runNext: после
// её успеха воркер продолжит цепочку через SYSTEM-задачи до первой
// ошибки или ручной контрольной точки.
func (s *Service) ScheduleRunToCompletion(ctx context.Context, runID, userID int64) (*Scheduled, error) {
	return s.Schedule(ctx, runID, userID, ScheduleOptions{RunNext: true})
}

// Schedule находит следующий исполнимый узел и ставит job в очередь.
//
// В одной транзакции: блокировка узла, проверка Waiting, перевод в
// Scheduled, вставка job, run → ACTIVE. Уведомление публикуется после
// commit. Если исполнять нечего, run переводится в READY и возвращается
// engine.ErrRunComplete, *engine.BlockedError или ErrAwaitingUser.
func (s *Service) Schedule(ctx context.Context, runID, userID int64, opts ScheduleOptions) (*Scheduled, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	var (
		result *Scheduled
		stop   error
	)

	err = s.store.InTx(ctx, func(tx pgx.Tx) error {
		result, stop = nil, nil

		nodes, err := s.store.ListNodes(ctx, tx, runID)
		if err != nil {
			return err
		}

		next, err := engine.NextRunnable(engine.Flatten(nodes), run.Stage)
		if err != nil {
			var blocked *engine.BlockedError
			if errors.Is(err, engine.ErrRunComplete) ||
				(errors.As(err, &blocked) && blocked.Status == string(domain.NodeStatusFailed)) {
				if err := s.store.SetRunState(ctx, tx, runID, domain.RunStateReady); err != nil {
					return err
				}
			}
			stop = err
			return nil
		}

		if opts.SystemOnly {
			entry, err := s.registry.Resolve(next.TaskID)
			if err != nil && !errors.Is(err, tasks.ErrTaskNotFound) {
				return err
			}
			if err == nil && entry.Kind != domain.TaskKindSystem {
				if err := s.store.SetRunState(ctx, tx, runID, runStateFor(nodes)); err != nil {
					return err
				}
				stop = fmt.Errorf("%w: %d", ErrAwaitingUser, next.ID)
				return nil
			}
		}

		node, err := s.store.LockNode(ctx, tx, next.ID)
		if err != nil {
			return fmt.Errorf("lock task: %w", err)
		}
		if node.Status != domain.NodeStatusWaiting {
			return fmt.Errorf("%w: %d is %s", ErrNodeNotWaiting, node.ID, node.Status)
		}
		if err := node.MarkScheduled(); err != nil {
			return err
		}
		if err := s.store.SetNodeStatus(ctx, tx, node.ID, node.Status); err != nil {
			return err
		}

		job, err := s.store.EnqueueJob(ctx, tx, domain.JobProperties{
			PipelineRunTaskID: node.ID,
			RunID:             runID,
			RunNext:           opts.RunNext,
		})
		if err != nil {
			return err
		}

		if err := s.store.SetRunState(ctx, tx, runID, domain.RunStateActive); err != nil {
			return err
		}

		result = &Scheduled{Node: node, Job: job}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stop != nil {
		return nil, stop
	}

	s.logger.Info("task scheduled",
		"run_id", runID,
		"pipeline_run_task_id", result.Node.ID,
		"task_id", result.Node.TaskID,
		"job_id", result.Job.ID,
		"run_next", opts.RunNext,
		"user_id", userID,
	)

	s.notify(ctx, result.Job)
	return result, nil
}

// Continue вызывается воркером после выполнения узла.
//
// Успех + runNext - планирование следующей SYSTEM-задачи. Иначе (и при
// естественном конце цепочки) состояние run пересчитывается.
// Возвращает запланированный узел или nil.
func (s *Service) Continue(ctx context.Context, props domain.JobProperties, out *Outcome) (*Scheduled, error) {
	if out == nil || !out.Succeeded || !props.RunNext {
		_, err := s.RefreshRunState(ctx, props.RunID)
		return nil, err
	}

	next, err := s.Schedule(ctx, props.RunID, 0, ScheduleOptions{RunNext: true, SystemOnly: true})
	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, engine.ErrRunComplete),
		errors.Is(err, engine.ErrRunBlocked),
		errors.Is(err, ErrAwaitingUser):
		s.logger.Info("chain stopped", "run_id", props.RunID, "reason", err.Error())
		_, refreshErr := s.RefreshRunState(ctx, props.RunID)
		return nil, refreshErr
	default:
		return nil, err
	}
}

// RefreshRunState выставляет ACTIVE, если в run есть узлы в работе,
// иначе READY.
func (s *Service) RefreshRunState(ctx context.Context, runID int64) (domain.RunState, error) {
	var state domain.RunState
	err := s.store.InTx(ctx, func(tx pgx.Tx) error {
		nodes, err := s.store.ListNodes(ctx, tx, runID)
		if err != nil {
			return err
		}
		state = runStateFor(nodes)
		return s.store.SetRunState(ctx, tx, runID, state)
	})
	if err != nil {
		return "", fmt.Errorf("refresh run state: %w", err)
	}
	return state, nil
}

// CreateRun создаёт run и его корневые задачи (sibling order 1..n).
func (s *Service) CreateRun(ctx context.Context, params CreateRunParams) (*domain.PipelineRun, []*domain.PipelineRunTask, error) {
	if len(params.RootTasks) == 0 {
		return nil, nil, ErrNoRootTasks
	}
	for _, id := range params.RootTasks {
		if _, err := s.registry.Resolve(id); err != nil {
			return nil, nil, err
		}
	}

	run := &domain.PipelineRun{
		DataSourceID:     params.DataSourceID,
		RecordDate:       params.RecordDate,
		Stage:            params.Stage,
		State:            domain.RunStateReady,
		CollectionUserID: params.CollectionUserID,
		LoadUserID:       params.LoadUserID,
		CheckUserID:      params.CheckUserID,
		QAUserID:         params.QAUserID,
	}
	var roots []*domain.PipelineRunTask

	err := s.store.InTx(ctx, func(tx pgx.Tx) error {
		roots = roots[:0]
		if err := s.store.CreateRun(ctx, tx, run); err != nil {
			return err
		}
		for i, taskID := range params.RootTasks {
			node := &domain.PipelineRunTask{
				RunID:        run.ID,
				TaskID:       taskID,
				SiblingOrder: i + 1,
				Status:       domain.NodeStatusWaiting,
				Stage:        params.Stage,
			}
			if err := s.store.InsertNode(ctx, tx, node); err != nil {
				return err
			}
			roots = append(roots, node)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create run: %w", err)
	}

	s.logger.Info("run created",
		"run_id", run.ID,
		"data_source_id", run.DataSourceID,
		"record_date", run.RecordDateKey(),
		"tasks", len(roots),
	)
	return run, roots, nil
}

// Jobs возвращает jobs в статусе (пустой - все).
func (s *Service) Jobs(ctx context.Context, status domain.JobStatus, limit int) ([]domain.ScheduledJob, error) {
	return s.store.ListJobs(ctx, status, limit)
}

// RunSummary: run с узлами по порядку и сводкой.
type RunSummary struct {
	Run   *domain.PipelineRun       `json:"run"`
	Tasks []*domain.PipelineRunTask `json:"tasks"`
	Stats RunStats                  `json:"stats"`
}

// Summary возвращает run, его узлы в порядке выполнения и сводку.
func (s *Service) Summary(ctx context.Context, runID int64) (*RunSummary, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	nodes, err := s.store.ListNodes(ctx, nil, runID)
	if err != nil {
		return nil, err
	}
	return &RunSummary{Run: run, Tasks: engine.Flatten(nodes), Stats: Stats(nodes)}, nil
}

func (s *Service) notify(ctx context.Context, job *domain.ScheduledJob) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishJobEnqueued(ctx, job); err != nil {
		s.logger.Warn("failed to publish job.enqueued",
			"job_id", job.ID,
			"error", err,
		)
	}
}
