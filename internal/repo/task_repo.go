package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Ingestor/internal/domain"
	"github.com/shaiso/Ingestor/internal/engine"
)

// TaskRepo: репозиторий узлов дерева задач (pipeline_run_tasks).
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

const taskColumns = `
	id, run_id, task_id, parent_id, sibling_order, status,
	started_at, completed_at, message, failure_detail, stage, created_at`

// Insert вставляет узел; если ID = 0, он выдаётся БД.
func (r *TaskRepo) Insert(ctx context.Context, q Querier, node *domain.PipelineRunTask) error {
	if node.Status == "" {
		node.Status = domain.NodeStatusWaiting
	}

	var err error
	if node.ID == 0 {
		err = q.QueryRow(ctx, `
			INSERT INTO pipeline_run_tasks (run_id, task_id, parent_id, sibling_order, status, stage)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at
		`, node.RunID, node.TaskID, node.ParentID, node.SiblingOrder, node.Status, node.Stage,
		).Scan(&node.ID, &node.CreatedAt)
	} else {
		err = q.QueryRow(ctx, `
			INSERT INTO pipeline_run_tasks (id, run_id, task_id, parent_id, sibling_order, status, stage, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
			RETURNING created_at
		`, node.ID, node.RunID, node.TaskID, node.ParentID, node.SiblingOrder, node.Status, node.Stage,
			nullTime(node.CreatedAt),
		).Scan(&node.CreatedAt)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: node %d/%d in run %d", ErrAlreadyExists, node.ParentID, node.SiblingOrder, node.RunID)
		}
		return fmt.Errorf("insert task node: %w", err)
	}
	return nil
}

// AppendChild добавляет ребёнка последним среди братьев (sibling_order = max+1).
// Вызывается из SYSTEM-задач внутри транзакции координатора.
func (r *TaskRepo) AppendChild(ctx context.Context, q Querier, parent *domain.PipelineRunTask, taskID int64) (*domain.PipelineRunTask, error) {
	var next int
	err := q.QueryRow(ctx, `
		SELECT COALESCE(MAX(sibling_order), 0) + 1
		FROM pipeline_run_tasks
		WHERE run_id = $1 AND parent_id = $2
	`, parent.RunID, parent.ID).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("next sibling order: %w", err)
	}

	child := &domain.PipelineRunTask{
		RunID:        parent.RunID,
		TaskID:       taskID,
		ParentID:     parent.ID,
		SiblingOrder: next,
		Status:       domain.NodeStatusWaiting,
		Stage:        parent.Stage,
	}
	if err := r.Insert(ctx, q, child); err != nil {
		return nil, err
	}
	return child, nil
}

// GetByID возвращает узел по ID.
func (r *TaskRepo) GetByID(ctx context.Context, id int64) (*domain.PipelineRunTask, error) {
	query := `SELECT ` + taskColumns + ` FROM pipeline_run_tasks WHERE id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

// ListByRun возвращает все узлы run (порядок не гарантирован,
// порядок выполнения строит engine.Flatten).
func (r *TaskRepo) ListByRun(ctx context.Context, q Querier, runID int64) ([]*domain.PipelineRunTask, error) {
	if q == nil {
		q = r.pool
	}
	rows, err := q.Query(ctx, `SELECT `+taskColumns+` FROM pipeline_run_tasks WHERE run_id = $1`, runID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by run: %w", err)
	}
	defer rows.Close()

	var nodes []*domain.PipelineRunTask
	for rows.Next() {
		node, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// LockForUpdate читает узел с эксклюзивной блокировкой строки до конца tx.
func (r *TaskRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.PipelineRunTask, error) {
	query := `SELECT ` + taskColumns + ` FROM pipeline_run_tasks WHERE id = $1 FOR UPDATE`
	return scanTask(tx.QueryRow(ctx, query, id))
}

// MarkRunning атомарно переводит узел Scheduled → Running.
// Возвращает ErrInvalidState, если узел не в Scheduled.
func (r *TaskRepo) MarkRunning(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE pipeline_run_tasks
		SET status = 'Running', started_at = $2, completed_at = NULL
		WHERE id = $1 AND status = 'Scheduled'
	`, id, time.Now())
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.stateError(ctx, id, domain.NodeStatusScheduled)
	}
	return nil
}

// RevertToScheduled возвращает Running-узел в Scheduled
// (после инфраструктурной ошибки координатора).
func (r *TaskRepo) RevertToScheduled(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE pipeline_run_tasks
		SET status = 'Scheduled', started_at = NULL
		WHERE id = $1 AND status = 'Running'
	`, id)
	if err != nil {
		return fmt.Errorf("revert to scheduled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.stateError(ctx, id, domain.NodeStatusRunning)
	}
	return nil
}

// SaveResult сохраняет статус, время и сообщение узла.
func (r *TaskRepo) SaveResult(ctx context.Context, q Querier, node *domain.PipelineRunTask) error {
	result, err := q.Exec(ctx, `
		UPDATE pipeline_run_tasks
		SET status = $2, started_at = $3, completed_at = $4, message = $5, failure_detail = $6
		WHERE id = $1
	`, node.ID, node.Status, node.StartedAt, node.CompletedAt,
		nullString(node.Message), nullString(node.FailureDetail))
	if err != nil {
		return fmt.Errorf("save task result: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus меняет только статус узла (используется при планировании).
func (r *TaskRepo) SetStatus(ctx context.Context, q Querier, id int64, status domain.NodeStatus) error {
	result, err := q.Exec(ctx, `UPDATE pipeline_run_tasks SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reset архивирует узел и всех его потомков в removed_pipeline_run_tasks,
// удаляет их и вставляет исходный узел заново в статусе Waiting
// с тем же ID, родителем, порядком и стадией. Дети не восстанавливаются.
func (r *TaskRepo) Reset(ctx context.Context, id, userID int64) (*domain.PipelineRunTask, []*domain.PipelineRunTask, error) {
	var (
		fresh   *domain.PipelineRunTask
		removed []*domain.PipelineRunTask
	)

	err := WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		node, err := r.LockForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		all, err := r.ListByRun(ctx, tx, node.RunID)
		if err != nil {
			return err
		}
		descendants, err := engine.Descendants(all, id)
		if err != nil {
			return err
		}

		removed = append([]*domain.PipelineRunTask{node}, descendants...)
		ids := make([]int64, len(removed))
		for i, n := range removed {
			ids[i] = n.ID
		}

		now := time.Now()
		_, err = tx.Exec(ctx, `
			INSERT INTO removed_pipeline_run_tasks (
				id, run_id, task_id, parent_id, sibling_order, status,
				started_at, completed_at, message, failure_detail, stage, created_at,
				reset_root_id, removed_by, removed_at)
			SELECT id, run_id, task_id, parent_id, sibling_order, status,
			       started_at, completed_at, message, failure_detail, stage, created_at,
			       $2, $3, $4
			FROM pipeline_run_tasks
			WHERE id = ANY($1)
		`, ids, id, userID, now)
		if err != nil {
			return fmt.Errorf("archive tasks: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM pipeline_run_tasks WHERE id = ANY($1)`, ids); err != nil {
			return fmt.Errorf("delete tasks: %w", err)
		}

		fresh = &domain.PipelineRunTask{
			ID:           node.ID,
			RunID:        node.RunID,
			TaskID:       node.TaskID,
			ParentID:     node.ParentID,
			SiblingOrder: node.SiblingOrder,
			Stage:        node.Stage,
			CreatedAt:    node.CreatedAt,
		}
		fresh.ResetToWaiting()
		return r.Insert(ctx, tx, fresh)
	})
	if err != nil {
		return nil, nil, err
	}
	return fresh, removed, nil
}

// ListRemoved возвращает архивные записи узлов run.
func (r *TaskRepo) ListRemoved(ctx context.Context, runID int64) ([]domain.RemovedTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+`, reset_root_id, removed_by, removed_at
		FROM removed_pipeline_run_tasks
		WHERE run_id = $1
		ORDER BY removed_at, archive_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list removed tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.RemovedTask
	for rows.Next() {
		var rt domain.RemovedTask
		var message, detail *string
		err := rows.Scan(
			&rt.ID, &rt.RunID, &rt.TaskID, &rt.ParentID, &rt.SiblingOrder, &rt.Status,
			&rt.StartedAt, &rt.CompletedAt, &message, &detail, &rt.Stage, &rt.CreatedAt,
			&rt.ResetRootID, &rt.RemovedBy, &rt.RemovedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan removed task: %w", err)
		}
		rt.Message = derefString(message)
		rt.FailureDetail = derefString(detail)
		out = append(out, rt)
	}
	return out, rows.Err()
}

// stateError различает «узла нет» и «узел в другом статусе».
func (r *TaskRepo) stateError(ctx context.Context, id int64, want domain.NodeStatus) error {
	var status domain.NodeStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM pipeline_run_tasks WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read task status: %w", err)
	}
	return fmt.Errorf("%w: node %d is %s, expected %s", ErrInvalidState, id, status, want)
}

func scanTask(row pgx.Row) (*domain.PipelineRunTask, error) {
	var node domain.PipelineRunTask
	var message, detail *string
	err := row.Scan(
		&node.ID,
		&node.RunID,
		&node.TaskID,
		&node.ParentID,
		&node.SiblingOrder,
		&node.Status,
		&node.StartedAt,
		&node.CompletedAt,
		&message,
		&detail,
		&node.Stage,
		&node.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	node.Message = derefString(message)
	node.FailureDetail = derefString(detail)
	return &node, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
