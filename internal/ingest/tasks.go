package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/Ingestor/internal/domain"
	"github.com/shaiso/Ingestor/internal/loader"
	"github.com/shaiso/Ingestor/internal/telemetry"
)

// CheckSourceFiles проверяет наличие всех ожидаемых файлов.
//
// Отсутствующие файлы не считаются ошибкой: узлу добавляется ребёнок
// collect-missing-files, и цепочка останавливается на нём.
// Неподдерживаемое расширение или путь-каталог - ошибка.
func (s *Suite) CheckSourceFiles(ctx context.Context, tx pgx.Tx, node *domain.PipelineRunTask) (string, error) {
	rc, err := s.loadRun(ctx, tx, node)
	if err != nil {
		return "", err
	}
	if len(rc.files) == 0 {
		return "", fmt.Errorf("%w: data source %s", ErrNoSourceFiles, rc.source.Code)
	}

	var missing []string
	for _, f := range rc.files {
		path := s.FilePath(rc.source, rc.run, f)
		if _, err := loader.DetectFormat(path); err != nil {
			return "", err
		}
		if err := loader.CheckFile(path); err != nil {
			if errors.Is(err, loader.ErrFileNotFound) {
				missing = append(missing, f.FileName)
				continue
			}
			return "", err
		}
	}

	if len(missing) == 0 {
		return fmt.Sprintf("all %d source files present", len(rc.files)), nil
	}

	if _, err := s.cfg.Tree.AppendChild(ctx, tx, node, TaskCollectMissingFiles); err != nil {
		return "", fmt.Errorf("append collect task: %w", err)
	}

	s.logger.Warn("source files missing",
		"run_id", rc.run.ID,
		"missing", len(missing),
		"total", len(rc.files),
	)
	return fmt.Sprintf("%d of %d source files missing: %s",
		len(missing), len(rc.files), strings.Join(missing, ", ")), nil
}

// AnalyzeSourceFiles считает статистику колонок каждого файла
// и сохраняет по одной FileAnalysis на под-таблицу.
func (s *Suite) AnalyzeSourceFiles(ctx context.Context, tx pgx.Tx, node *domain.PipelineRunTask) (string, error) {
	rc, err := s.loadRun(ctx, tx, node)
	if err != nil {
		return "", err
	}
	if len(rc.files) == 0 {
		return "", fmt.Errorf("%w: data source %s", ErrNoSourceFiles, rc.source.Code)
	}

	ctx = telemetry.WithLogger(ctx, telemetry.WithRunID(s.logger, rc.run.ID))

	var (
		tables  int
		records int64
		errs    []error
	)
	for _, f := range rc.files {
		path := s.FilePath(rc.source, rc.run, f)
		results, err := loader.Analyze(ctx, path, s.tableMeta(f), loader.AnalyzeOptions{
			Concurrency: s.cfg.Concurrency,
		})
		if err != nil {
			return "", fmt.Errorf("analyze %s: %w", f.FileName, err)
		}

		for _, res := range results {
			if len(res.MissingColumns) > 0 {
				errs = append(errs, fmt.Errorf("%w: %s [%s]: %s",
					ErrMissingColumns, f.FileName, res.Table, strings.Join(res.MissingColumns, ", ")))
				continue
			}

			a := &domain.FileAnalysis{
				RunID:        rc.run.ID,
				SourceFileID: f.ID,
				SubTable:     res.Table,
				TableName:    s.stagingTable(f, res.Table, len(results)),
				RecordCount:  res.RecordCount,
				Columns:      toAnalyzedColumns(res.Columns),
				Fingerprint:  res.Fingerprint,
			}
			if err := s.cfg.Sources.SaveAnalysis(ctx, tx, a); err != nil {
				return "", err
			}
			tables++
			records += res.RecordCount
		}
	}

	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return fmt.Sprintf("analyzed %d tables from %d files, %d records", tables, len(rc.files), records), nil
}

// CreateStagingTables пересоздаёт staging-таблицы по результатам анализа.
func (s *Suite) CreateStagingTables(ctx context.Context, tx pgx.Tx, node *domain.PipelineRunTask) (string, error) {
	rc, analyses, err := s.loadAnalyses(ctx, tx, node)
	if err != nil {
		return "", err
	}

	if err := s.cfg.Staging.Exec(ctx, tx, loader.CreateSchemaSQL(rc.source.LoadSchema)); err != nil {
		return "", err
	}

	for _, a := range analyses {
		dest := destination(rc.source, a)
		if err := s.cfg.Staging.Exec(ctx, tx, loader.DropTableSQL(dest)); err != nil {
			return "", fmt.Errorf("drop %s: %w", dest, err)
		}
		ddl, err := loader.CreateTableSQL(dest, toColumnStats(a.Columns))
		if err != nil {
			return "", err
		}
		if err := s.cfg.Staging.Exec(ctx, tx, ddl); err != nil {
			return "", fmt.Errorf("create %s: %w", dest, err)
		}
	}

	return fmt.Sprintf("created %d staging tables in %s", len(analyses), rc.source.LoadSchema), nil
}

// LoadSourceFiles копирует каждую проанализированную под-таблицу
// в её staging-таблицу через COPY FROM STDIN.
func (s *Suite) LoadSourceFiles(ctx context.Context, tx pgx.Tx, node *domain.PipelineRunTask) (string, error) {
	rc, analyses, err := s.loadAnalyses(ctx, tx, node)
	if err != nil {
		return "", err
	}

	files := make(map[int64]domain.SourceFile, len(rc.files))
	for _, f := range rc.files {
		files[f.ID] = f
	}

	ctx = telemetry.WithLogger(ctx, telemetry.WithRunID(s.logger, rc.run.ID))
	copier := s.cfg.CopierFor(tx)

	var total int64
	for _, a := range analyses {
		f, ok := files[a.SourceFileID]
		if !ok {
			return "", fmt.Errorf("%w: %d", ErrUnknownSourceFile, a.SourceFileID)
		}

		meta := s.tableMeta(f)
		meta.Sheet = a.SubTable
		dest := destination(rc.source, a)

		// Один писатель на таблицу во всех воркерах: блокировка живёт до конца транзакции узла
		if err := s.cfg.Staging.LockTable(ctx, tx, dest.String()); err != nil {
			return "", err
		}

		n, err := loader.Load(ctx, copier, s.FilePath(rc.source, rc.run, f), meta, dest)
		if err != nil {
			return "", err
		}
		total += n
	}

	return fmt.Sprintf("loaded %d records into %d tables", total, len(analyses)), nil
}

// VerifyRecordCounts сверяет count(*) staging-таблиц с анализом.
func (s *Suite) VerifyRecordCounts(ctx context.Context, tx pgx.Tx, node *domain.PipelineRunTask) (string, error) {
	rc, analyses, err := s.loadAnalyses(ctx, tx, node)
	if err != nil {
		return "", err
	}

	var mismatches []string
	for _, a := range analyses {
		dest := destination(rc.source, a)
		n, err := s.cfg.Staging.Count(ctx, tx, loader.CountSQL(dest))
		if err != nil {
			return "", fmt.Errorf("count %s: %w", dest, err)
		}
		if n != a.RecordCount {
			mismatches = append(mismatches, fmt.Sprintf("%s: loaded %d, expected %d", dest, n, a.RecordCount))
		}
	}

	if len(mismatches) > 0 {
		return "", fmt.Errorf("%w: %s", ErrCountMismatch, strings.Join(mismatches, "; "))
	}
	return fmt.Sprintf("record counts match for %d tables", len(analyses)), nil
}

func (s *Suite) loadAnalyses(ctx context.Context, tx pgx.Tx, node *domain.PipelineRunTask) (*runContext, []domain.FileAnalysis, error) {
	rc, err := s.loadRun(ctx, tx, node)
	if err != nil {
		return nil, nil, err
	}
	analyses, err := s.cfg.Sources.ListAnalyses(ctx, tx, rc.run.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(analyses) == 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrNoAnalysis, rc.run.ID)
	}
	return rc, analyses, nil
}
