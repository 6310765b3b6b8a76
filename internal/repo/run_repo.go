package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Ingestor/internal/domain"
)

// RunRepo: репозиторий для работы с pipeline_runs.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

const runColumns = `
	id, data_source_id, record_date, stage, state,
	collection_user_id, load_user_id, check_user_id, qa_user_id,
	created_at, updated_at`

// Create создаёт run; ID, CreatedAt и UpdatedAt заполняются из БД.
func (r *RunRepo) Create(ctx context.Context, q Querier, run *domain.PipelineRun) error {
	if run.State == "" {
		run.State = domain.RunStateReady
	}

	query := `
		INSERT INTO pipeline_runs (data_source_id, record_date, stage, state,
		                           collection_user_id, load_user_id, check_user_id, qa_user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := q.QueryRow(ctx, query,
		run.DataSourceID,
		run.RecordDate,
		run.Stage,
		run.State,
		run.CollectionUserID,
		run.LoadUserID,
		run.CheckUserID,
		run.QAUserID,
	).Scan(&run.ID, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id int64) (*domain.PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE id = $1`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// List возвращает последние runs (новые первыми).
func (r *RunRepo) List(ctx context.Context, limit, offset int) ([]domain.PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM pipeline_runs ORDER BY id DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// SetState меняет состояние run (READY/ACTIVE).
func (r *RunRepo) SetState(ctx context.Context, q Querier, id int64, state domain.RunState) error {
	result, err := q.Exec(ctx,
		`UPDATE pipeline_runs SET state = $2, updated_at = $3 WHERE id = $1`,
		id, state, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("update run state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRun(row pgx.Row) (*domain.PipelineRun, error) {
	var run domain.PipelineRun
	err := row.Scan(
		&run.ID,
		&run.DataSourceID,
		&run.RecordDate,
		&run.Stage,
		&run.State,
		&run.CollectionUserID,
		&run.LoadUserID,
		&run.CheckUserID,
		&run.QAUserID,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return &run, nil
}
