package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Ingestor/internal/domain"
	"github.com/shaiso/Ingestor/internal/orchestrator"
)

// RunService: операции над runs. Реализуется *orchestrator.Service.
type RunService interface {
	GetRun(ctx context.Context, runID int64) (*domain.PipelineRun, error)
	ListRuns(ctx context.Context, limit, offset int) ([]domain.PipelineRun, error)
	Summary(ctx context.Context, runID int64) (*orchestrator.RunSummary, error)
	CreateRun(ctx context.Context, params orchestrator.CreateRunParams) (*domain.PipelineRun, []*domain.PipelineRunTask, error)
	OrderedTasks(ctx context.Context, runID int64, stage string, userID int64) ([]*domain.PipelineRunTask, error)
	RemovedTasks(ctx context.Context, runID int64) ([]domain.RemovedTask, error)
	ResetTask(ctx context.Context, nodeID, userID int64) (*orchestrator.ResetResult, error)
	ScheduleNext(ctx context.Context, runID, userID int64) (*orchestrator.Scheduled, error)
	ScheduleRunToCompletion(ctx context.Context, runID, userID int64) (*orchestrator.Scheduled, error)
	Jobs(ctx context.Context, status domain.JobStatus, limit int) ([]domain.ScheduledJob, error)
}

// Handler: главный обработчик API с зависимостями.
type Handler struct {
	service          RunService
	defaultRootTasks []int64
	logger           *slog.Logger
}

// Config: конфигурация для создания Handler.
type Config struct {
	Service RunService

	// DefaultRootTasks: корневые задачи run, если запрос их не указал.
	DefaultRootTasks []int64

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:          cfg.Service,
		defaultRootTasks: cfg.DefaultRootTasks,
		logger:           logger,
	}
}
