package ingest

import (
	"context"
	"log/slog"
	"path/filepath"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/Ingestor/internal/domain"
	"github.com/shaiso/Ingestor/internal/loader"
	"github.com/shaiso/Ingestor/internal/repo"
)

// RunReader читает run.
type RunReader interface {
	GetByID(ctx context.Context, id int64) (*domain.PipelineRun, error)
}

// SourceStore: источники, файлы и результаты анализа.
// Реализуется *repo.SourceRepo.
type SourceStore interface {
	GetDataSource(ctx context.Context, q repo.Querier, id int64) (*domain.DataSource, error)
	ListSourceFiles(ctx context.Context, q repo.Querier, dataSourceID int64) ([]domain.SourceFile, error)
	SaveAnalysis(ctx context.Context, q repo.Querier, a *domain.FileAnalysis) error
	ListAnalyses(ctx context.Context, q repo.Querier, runID int64) ([]domain.FileAnalysis, error)
}

// TreeWriter добавляет узлы в дерево run.
// Реализуется *repo.TaskRepo.
type TreeWriter interface {
	AppendChild(ctx context.Context, q repo.Querier, parent *domain.PipelineRunTask, taskID int64) (*domain.PipelineRunTask, error)
}

// Staging выполняет DDL, подсчёт строк и блокировку таблицы на время загрузки.
// Реализуется repo.StagingRepo.
type Staging interface {
	Exec(ctx context.Context, q repo.Querier, sql string) error
	Count(ctx context.Context, q repo.Querier, sql string) (int64, error)
	LockTable(ctx context.Context, q repo.Querier, table string) error
}

// Config: конфигурация набора задач.
type Config struct {
	// DataRoot: корневой каталог файлов источников.
	DataRoot string

	// MaxIdentifierLength: предел длины имён колонок (0 - 63).
	MaxIdentifierLength int

	// Concurrency: параллелизм анализа чанков.
	Concurrency int

	Runs    RunReader
	Sources SourceStore
	Tree    TreeWriter
	Staging Staging

	// CopierFor возвращает COPY-канал транзакции.
	// По умолчанию - соединение транзакции (tx.Conn().PgConn()).
	CopierFor func(tx pgx.Tx) loader.Copier

	Logger *slog.Logger
}

// Suite: встроенные SYSTEM-задачи загрузки.
type Suite struct {
	cfg    Config
	logger *slog.Logger
}

// New создаёт набор задач.
func New(cfg Config) *Suite {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DataRoot == "" {
		cfg.DataRoot = "data"
	}
	if cfg.Staging == nil {
		cfg.Staging = repo.StagingRepo{}
	}
	if cfg.CopierFor == nil {
		cfg.CopierFor = func(tx pgx.Tx) loader.Copier {
			return tx.Conn().PgConn()
		}
	}
	return &Suite{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "ingest"),
	}
}

// runContext: run, источник и его файлы.
type runContext struct {
	run    *domain.PipelineRun
	source *domain.DataSource
	files  []domain.SourceFile
}

func (s *Suite) loadRun(ctx context.Context, tx pgx.Tx, node *domain.PipelineRunTask) (*runContext, error) {
	run, err := s.cfg.Runs.GetByID(ctx, node.RunID)
	if err != nil {
		return nil, err
	}
	ds, err := s.cfg.Sources.GetDataSource(ctx, tx, run.DataSourceID)
	if err != nil {
		return nil, err
	}
	files, err := s.cfg.Sources.ListSourceFiles(ctx, tx, ds.ID)
	if err != nil {
		return nil, err
	}
	return &runContext{run: run, source: ds, files: files}, nil
}

// FilePath возвращает путь файла источника для run.
func (s *Suite) FilePath(ds *domain.DataSource, run *domain.PipelineRun, file domain.SourceFile) string {
	return filepath.Join(s.cfg.DataRoot, ds.Code, run.RecordDateKey(), file.FileName)
}

func (s *Suite) tableMeta(file domain.SourceFile) loader.TableMeta {
	meta := loader.TableMeta{
		Table:               file.TableName,
		HasHeader:           file.HasHeader,
		Sheet:               file.Sheet,
		Encoding:            file.Encoding,
		MaxIdentifierLength: s.cfg.MaxIdentifierLength,
	}
	if file.Delimiter != "" {
		meta.Delimiter, _ = utf8.DecodeRuneInString(file.Delimiter)
	}
	if file.Quote != "" {
		meta.Quote, _ = utf8.DecodeRuneInString(file.Quote)
	}
	for _, c := range file.Columns {
		meta.Columns = append(meta.Columns, loader.ColumnMeta{Name: c.Name, Type: c.Type, Width: c.Width})
	}
	return meta
}

func (s *Suite) maxIdentLen() int {
	if s.cfg.MaxIdentifierLength > 0 {
		return s.cfg.MaxIdentifierLength
	}
	return loader.DefaultMaxIdentifierLength
}

// stagingTable: имя staging-таблицы под-таблицы файла.
// Единственная под-таблица грузится в TableName, несколько листов -
// в TableName_<ЛИСТ>.
func (s *Suite) stagingTable(file domain.SourceFile, subTable string, subTables int) string {
	if subTables <= 1 {
		return file.TableName
	}
	return loader.SanitizeColumnName(file.TableName+"_"+subTable, s.maxIdentLen())
}

func destination(ds *domain.DataSource, a domain.FileAnalysis) loader.Destination {
	return loader.Destination{Schema: ds.LoadSchema, Table: a.TableName}
}

func toAnalyzedColumns(cols []loader.ColumnStats) []domain.AnalyzedColumn {
	out := make([]domain.AnalyzedColumn, len(cols))
	for i, c := range cols {
		out[i] = domain.AnalyzedColumn{
			Index:     c.Index,
			Name:      c.Name,
			Sanitized: c.Sanitized,
			Type:      c.Type,
			MinLen:    c.MinLen,
			MaxLen:    c.MaxLen,
		}
	}
	return out
}

func toColumnStats(cols []domain.AnalyzedColumn) []loader.ColumnStats {
	out := make([]loader.ColumnStats, len(cols))
	for i, c := range cols {
		out[i] = loader.ColumnStats{
			Index:     c.Index,
			Name:      c.Name,
			Sanitized: c.Sanitized,
			Type:      c.Type,
			MinLen:    c.MinLen,
			MaxLen:    c.MaxLen,
			Seen:      c.MaxLen > 0,
		}
	}
	return out
}
