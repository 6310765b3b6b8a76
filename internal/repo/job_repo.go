package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Ingestor/internal/domain"
)

// JobRepo: долговременная очередь jobs (scheduled_jobs).
//
// Захват job атомарен: FOR UPDATE SKIP LOCKED + lease. Два воркера
// не могут одновременно держать один job; после истечения lease
// running job снова становится видимым (RequeueExpired).
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `
	id, status, scheduled_at, retry_count, settings, progress,
	leased_until, worker_id, created_at, updated_at`

// Enqueue ставит job в очередь. q - обычно транзакция, в которой
// узел переводится в Scheduled.
func (r *JobRepo) Enqueue(ctx context.Context, q Querier, props domain.JobProperties) (*domain.ScheduledJob, error) {
	job := domain.NewExecuteJob(props)

	settings, err := json.Marshal(job.Settings)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO scheduled_jobs (id, status, scheduled_at, retry_count, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, job.ID, job.Status, job.ScheduledAt, job.RetryCount, settings, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// Claim забирает самый старый готовый job и выдаёт lease.
// Возвращает ErrNotFound, если очередь пуста.
func (r *JobRepo) Claim(ctx context.Context, workerID string, lease time.Duration) (*domain.ScheduledJob, error) {
	now := time.Now()
	query := `
		UPDATE scheduled_jobs
		SET status = 'running', leased_until = $2, worker_id = $3, updated_at = $1
		WHERE id = (
			SELECT id FROM scheduled_jobs
			WHERE status = 'enqueued' AND scheduled_at <= $1
			ORDER BY scheduled_at, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns
	return scanJob(r.pool.QueryRow(ctx, query, now, now.Add(lease), workerID))
}

// ClaimByID забирает конкретный job (по MQ-уведомлению).
// ErrNotFound: job уже забран другим воркером или не существует.
func (r *JobRepo) ClaimByID(ctx context.Context, id uuid.UUID, workerID string, lease time.Duration) (*domain.ScheduledJob, error) {
	now := time.Now()
	query := `
		UPDATE scheduled_jobs
		SET status = 'running', leased_until = $3, worker_id = $4, updated_at = $2
		WHERE id = (
			SELECT id FROM scheduled_jobs
			WHERE id = $1 AND status = 'enqueued' AND scheduled_at <= $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns
	return scanJob(r.pool.QueryRow(ctx, query, id, now, now.Add(lease), workerID))
}

// Finish завершает job статусом done или error.
// Завершить можно только running job, принадлежащий workerID.
func (r *JobRepo) Finish(ctx context.Context, id uuid.UUID, workerID string, status domain.JobStatus, progress string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: finish with status %s", ErrInvalidState, status)
	}
	result, err := r.pool.Exec(ctx, `
		UPDATE scheduled_jobs
		SET status = $2, progress = $3, leased_until = NULL, updated_at = $4
		WHERE id = $1 AND status = 'running' AND worker_id = $5
	`, id, status, nullString(progress), time.Now(), workerID)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: job %s is not running for worker %s", ErrInvalidState, id, workerID)
	}
	return nil
}

// ListByStatus возвращает jobs в статусе (новые первыми).
// Пустой статус - все jobs.
func (r *JobRepo) ListByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.ScheduledJob, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM scheduled_jobs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, nullString(string(status)), limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// RequeueExpired возвращает в очередь running jobs с истёкшим lease.
func (r *JobRepo) RequeueExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE scheduled_jobs
		SET status = 'enqueued', leased_until = NULL, worker_id = NULL, updated_at = $1
		WHERE status = 'running' AND leased_until < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("requeue expired jobs: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteFinishedBefore удаляет done/error jobs, обновлённые раньше before.
func (r *JobRepo) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM scheduled_jobs
		WHERE status IN ('done', 'error') AND updated_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("delete finished jobs: %w", err)
	}
	return result.RowsAffected(), nil
}

func scanJob(row pgx.Row) (*domain.ScheduledJob, error) {
	var job domain.ScheduledJob
	var settings []byte
	var progress, workerID *string

	err := row.Scan(
		&job.ID,
		&job.Status,
		&job.ScheduledAt,
		&job.RetryCount,
		&settings,
		&progress,
		&job.LeasedUntil,
		&workerID,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if err := json.Unmarshal(settings, &job.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal job settings: %w", err)
	}
	job.Progress = derefString(progress)
	job.WorkerID = derefString(workerID)
	return &job, nil
}
