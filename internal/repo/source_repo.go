package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Ingestor/internal/domain"
)

// SourceRepo: источники данных, ожидаемые файлы и результаты анализа.
type SourceRepo struct {
	pool *pgxpool.Pool
}

// NewSourceRepo создаёт новый SourceRepo.
func NewSourceRepo(pool *pgxpool.Pool) *SourceRepo {
	return &SourceRepo{pool: pool}
}

// GetDataSource возвращает источник по ID.
func (r *SourceRepo) GetDataSource(ctx context.Context, q Querier, id int64) (*domain.DataSource, error) {
	var ds domain.DataSource
	err := q.QueryRow(ctx,
		`SELECT id, code, name, load_schema FROM data_sources WHERE id = $1`, id,
	).Scan(&ds.ID, &ds.Code, &ds.Name, &ds.LoadSchema)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get data source: %w", err)
	}
	return &ds, nil
}

// ListSourceFiles возвращает ожидаемые файлы источника в порядке id.
func (r *SourceRepo) ListSourceFiles(ctx context.Context, q Querier, dataSourceID int64) ([]domain.SourceFile, error) {
	rows, err := q.Query(ctx, `
		SELECT id, data_source_id, file_name, table_name, delimiter, quote,
		       has_header, sheet, encoding, columns
		FROM source_files
		WHERE data_source_id = $1
		ORDER BY id
	`, dataSourceID)
	if err != nil {
		return nil, fmt.Errorf("list source files: %w", err)
	}
	defer rows.Close()

	var files []domain.SourceFile
	for rows.Next() {
		var f domain.SourceFile
		var delimiter, quote, sheet, encoding *string
		var columns []byte
		err := rows.Scan(&f.ID, &f.DataSourceID, &f.FileName, &f.TableName,
			&delimiter, &quote, &f.HasHeader, &sheet, &encoding, &columns)
		if err != nil {
			return nil, fmt.Errorf("scan source file: %w", err)
		}
		f.Delimiter = derefString(delimiter)
		f.Quote = derefString(quote)
		f.Sheet = derefString(sheet)
		f.Encoding = derefString(encoding)
		if len(columns) > 0 {
			if err := json.Unmarshal(columns, &f.Columns); err != nil {
				return nil, fmt.Errorf("unmarshal columns of %s: %w", f.FileName, err)
			}
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// SaveAnalysis сохраняет результат анализа (перезаписывает прежний
// для той же тройки run/файл/под-таблица).
func (r *SourceRepo) SaveAnalysis(ctx context.Context, q Querier, a *domain.FileAnalysis) error {
	columns, err := json.Marshal(a.Columns)
	if err != nil {
		return fmt.Errorf("marshal analysis columns: %w", err)
	}

	err = q.QueryRow(ctx, `
		INSERT INTO file_analyses (run_id, source_file_id, sub_table, table_name, record_count, columns, fingerprint)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, source_file_id, sub_table) DO UPDATE
		SET table_name = EXCLUDED.table_name,
		    record_count = EXCLUDED.record_count,
		    columns = EXCLUDED.columns,
		    fingerprint = EXCLUDED.fingerprint,
		    created_at = now()
		RETURNING id, created_at
	`, a.RunID, a.SourceFileID, a.SubTable, a.TableName, a.RecordCount, columns, nullString(a.Fingerprint),
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

// ListAnalyses возвращает анализы run, упорядоченные по файлу и под-таблице.
func (r *SourceRepo) ListAnalyses(ctx context.Context, q Querier, runID int64) ([]domain.FileAnalysis, error) {
	rows, err := q.Query(ctx, `
		SELECT id, run_id, source_file_id, sub_table, table_name, record_count,
		       columns, fingerprint, created_at
		FROM file_analyses
		WHERE run_id = $1
		ORDER BY source_file_id, sub_table
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var out []domain.FileAnalysis
	for rows.Next() {
		var a domain.FileAnalysis
		var columns []byte
		var fingerprint *string
		err := rows.Scan(&a.ID, &a.RunID, &a.SourceFileID, &a.SubTable, &a.TableName,
			&a.RecordCount, &columns, &fingerprint, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		if err := json.Unmarshal(columns, &a.Columns); err != nil {
			return nil, fmt.Errorf("unmarshal analysis columns: %w", err)
		}
		a.Fingerprint = derefString(fingerprint)
		out = append(out, a)
	}
	return out, rows.Err()
}

// StagingRepo выполняет DDL и подсчёт строк в staging-таблицах.
type StagingRepo struct{}

// Exec выполняет DDL-оператор (CREATE/DROP) в q.
func (StagingRepo) Exec(ctx context.Context, q Querier, sql string) error {
	if _, err := q.Exec(ctx, sql); err != nil {
		return fmt.Errorf("exec ddl: %w", err)
	}
	return nil
}

// Count выполняет SELECT count(*) и возвращает результат.
func (StagingRepo) Count(ctx context.Context, q Querier, sql string) (int64, error) {
	var n int64
	if err := q.QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

// tableLockNamespace отделяет блокировки staging-таблиц от прочих
// advisory-блокировок (двухаргументная форма pg_advisory_xact_lock).
const tableLockNamespace = 4243

// LockTable берёт транзакционную advisory-блокировку на таблицу schema.table.
// Блокировка держится до конца транзакции q, поэтому второй загрузчик той же
// таблицы, в любом процессе, ждёт commit или rollback первого.
func (StagingRepo) LockTable(ctx context.Context, q Querier, table string) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, tableLockNamespace, table); err != nil {
		return fmt.Errorf("lock table %s: %w", table, err)
	}
	return nil
}
