package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Ingestor/internal/domain"
	"github.com/shaiso/Ingestor/internal/orchestrator"
)

// Queue: долговременная очередь jobs. Реализуется *repo.JobRepo.
type Queue interface {
	// Claim забирает следующий готовый job; repo.ErrNotFound, если очередь пуста.
	Claim(ctx context.Context, workerID string, lease time.Duration) (*domain.ScheduledJob, error)

	// ClaimByID забирает конкретный job; repo.ErrNotFound, если его уже забрали.
	ClaimByID(ctx context.Context, id uuid.UUID, workerID string, lease time.Duration) (*domain.ScheduledJob, error)

	// Finish завершает job статусом done или error.
	Finish(ctx context.Context, id uuid.UUID, workerID string, status domain.JobStatus, progress string) error
}

// Executor выполняет узел дерева. Реализуется *orchestrator.Coordinator.
type Executor interface {
	Execute(ctx context.Context, nodeID int64) (*orchestrator.Outcome, error)
}

// Chainer продолжает run после выполнения узла. Реализуется *orchestrator.Service.
type Chainer interface {
	Continue(ctx context.Context, props domain.JobProperties, out *orchestrator.Outcome) (*orchestrator.Scheduled, error)
}
