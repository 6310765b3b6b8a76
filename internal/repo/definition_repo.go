package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Ingestor/internal/domain"
)

// DefinitionRepo: определения задач (task_definitions).
type DefinitionRepo struct {
	pool *pgxpool.Pool
}

// NewDefinitionRepo создаёт новый DefinitionRepo.
func NewDefinitionRepo(pool *pgxpool.Pool) *DefinitionRepo {
	return &DefinitionRepo{pool: pool}
}

// List возвращает все определения по возрастанию id.
func (r *DefinitionRepo) List(ctx context.Context) ([]domain.TaskDefinition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, kind
		FROM task_definitions
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list task definitions: %w", err)
	}
	defer rows.Close()

	var defs []domain.TaskDefinition
	for rows.Next() {
		var d domain.TaskDefinition
		var desc *string
		if err := rows.Scan(&d.ID, &d.Name, &desc, &d.Kind); err != nil {
			return nil, fmt.Errorf("scan task definition: %w", err)
		}
		d.Description = derefString(desc)
		defs = append(defs, d)
	}
	return defs, rows.Err()
}
