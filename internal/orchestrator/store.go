package orchestrator

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Ingestor/internal/domain"
	"github.com/shaiso/Ingestor/internal/repo"
	"github.com/shaiso/Ingestor/internal/tasks"
)

// Resolver возвращает поведение задачи по id. Реализуется *tasks.Registry.
type Resolver interface {
	Resolve(id int64) (tasks.Entry, error)
}

// NodeStore: операции над узлом, нужные Coordinator.
//
// Методы, принимающие tx, работают внутри транзакции; nil tx означает
// выполнение вне транзакции.
type NodeStore interface {
	// InTx выполняет fn в транзакции: commit при nil, rollback при ошибке.
	InTx(ctx context.Context, fn func(tx pgx.Tx) error) error

	// Savepoint выполняет fn во вложенной транзакции tx.
	Savepoint(ctx context.Context, tx pgx.Tx, fn func(sp pgx.Tx) error) error

	// MarkRunning: условный переход Scheduled → Running.
	// repo.ErrInvalidState, если узел не в Scheduled.
	MarkRunning(ctx context.Context, nodeID int64) error

	// RevertToScheduled: Running → Scheduled.
	RevertToScheduled(ctx context.Context, nodeID int64) error

	// LockNode читает узел с блокировкой строки до конца tx.
	LockNode(ctx context.Context, tx pgx.Tx, nodeID int64) (*domain.PipelineRunTask, error)

	// SaveResult сохраняет статус, время и сообщение узла.
	SaveResult(ctx context.Context, tx pgx.Tx, node *domain.PipelineRunTask) error
}

// Store: всё хранилище, нужное Service.
type Store interface {
	NodeStore

	SetNodeStatus(ctx context.Context, tx pgx.Tx, nodeID int64, status domain.NodeStatus) error
	InsertNode(ctx context.Context, tx pgx.Tx, node *domain.PipelineRunTask) error
	ListNodes(ctx context.Context, tx pgx.Tx, runID int64) ([]*domain.PipelineRunTask, error)
	GetNode(ctx context.Context, nodeID int64) (*domain.PipelineRunTask, error)
	ResetNode(ctx context.Context, nodeID, userID int64) (*domain.PipelineRunTask, []*domain.PipelineRunTask, error)
	ListRemoved(ctx context.Context, runID int64) ([]domain.RemovedTask, error)

	GetRun(ctx context.Context, runID int64) (*domain.PipelineRun, error)
	ListRuns(ctx context.Context, limit, offset int) ([]domain.PipelineRun, error)
	CreateRun(ctx context.Context, tx pgx.Tx, run *domain.PipelineRun) error
	SetRunState(ctx context.Context, tx pgx.Tx, runID int64, state domain.RunState) error

	EnqueueJob(ctx context.Context, tx pgx.Tx, props domain.JobProperties) (*domain.ScheduledJob, error)
	ListJobs(ctx context.Context, status domain.JobStatus, limit int) ([]domain.ScheduledJob, error)
}

// PGStore: Store поверх PostgreSQL.
type PGStore struct {
	pool  *pgxpool.Pool
	runs  *repo.RunRepo
	tasks *repo.TaskRepo
	jobs  *repo.JobRepo
}

// NewPGStore создаёт PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{
		pool:  pool,
		runs:  repo.NewRunRepo(pool),
		tasks: repo.NewTaskRepo(pool),
		jobs:  repo.NewJobRepo(pool),
	}
}

func (s *PGStore) q(tx pgx.Tx) repo.Querier {
	if tx == nil {
		return s.pool
	}
	return tx
}

func (s *PGStore) InTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return repo.WithTx(ctx, s.pool, fn)
}

func (s *PGStore) Savepoint(ctx context.Context, tx pgx.Tx, fn func(sp pgx.Tx) error) error {
	return repo.Savepoint(ctx, tx, fn)
}

func (s *PGStore) MarkRunning(ctx context.Context, nodeID int64) error {
	return s.tasks.MarkRunning(ctx, nodeID)
}

func (s *PGStore) RevertToScheduled(ctx context.Context, nodeID int64) error {
	return s.tasks.RevertToScheduled(ctx, nodeID)
}

func (s *PGStore) LockNode(ctx context.Context, tx pgx.Tx, nodeID int64) (*domain.PipelineRunTask, error) {
	return s.tasks.LockForUpdate(ctx, tx, nodeID)
}

func (s *PGStore) SaveResult(ctx context.Context, tx pgx.Tx, node *domain.PipelineRunTask) error {
	return s.tasks.SaveResult(ctx, s.q(tx), node)
}

func (s *PGStore) SetNodeStatus(ctx context.Context, tx pgx.Tx, nodeID int64, status domain.NodeStatus) error {
	return s.tasks.SetStatus(ctx, s.q(tx), nodeID, status)
}

func (s *PGStore) InsertNode(ctx context.Context, tx pgx.Tx, node *domain.PipelineRunTask) error {
	return s.tasks.Insert(ctx, s.q(tx), node)
}

func (s *PGStore) ListNodes(ctx context.Context, tx pgx.Tx, runID int64) ([]*domain.PipelineRunTask, error) {
	return s.tasks.ListByRun(ctx, s.q(tx), runID)
}

func (s *PGStore) GetNode(ctx context.Context, nodeID int64) (*domain.PipelineRunTask, error) {
	return s.tasks.GetByID(ctx, nodeID)
}

func (s *PGStore) ResetNode(ctx context.Context, nodeID, userID int64) (*domain.PipelineRunTask, []*domain.PipelineRunTask, error) {
	return s.tasks.Reset(ctx, nodeID, userID)
}

func (s *PGStore) ListRemoved(ctx context.Context, runID int64) ([]domain.RemovedTask, error) {
	return s.tasks.ListRemoved(ctx, runID)
}

func (s *PGStore) GetRun(ctx context.Context, runID int64) (*domain.PipelineRun, error) {
	return s.runs.GetByID(ctx, runID)
}

func (s *PGStore) ListRuns(ctx context.Context, limit, offset int) ([]domain.PipelineRun, error) {
	return s.runs.List(ctx, limit, offset)
}

func (s *PGStore) CreateRun(ctx context.Context, tx pgx.Tx, run *domain.PipelineRun) error {
	return s.runs.Create(ctx, s.q(tx), run)
}

func (s *PGStore) SetRunState(ctx context.Context, tx pgx.Tx, runID int64, state domain.RunState) error {
	return s.runs.SetState(ctx, s.q(tx), runID, state)
}

func (s *PGStore) EnqueueJob(ctx context.Context, tx pgx.Tx, props domain.JobProperties) (*domain.ScheduledJob, error) {
	return s.jobs.Enqueue(ctx, s.q(tx), props)
}

func (s *PGStore) ListJobs(ctx context.Context, status domain.JobStatus, limit int) ([]domain.ScheduledJob, error) {
	return s.jobs.ListByStatus(ctx, status, limit)
}
