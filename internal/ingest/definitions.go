package ingest

import (
	"context"
	"fmt"

	"github.com/shaiso/Ingestor/internal/domain"
	"github.com/shaiso/Ingestor/internal/tasks"
)

// Идентификаторы задач. Совпадают с seed-миграцией task_definitions.
const (
	TaskCheckSourceFiles    int64 = 1
	TaskAnalyzeSourceFiles  int64 = 2
	TaskCreateStagingTables int64 = 3
	TaskLoadSourceFiles     int64 = 4
	TaskVerifyRecordCounts  int64 = 5

	TaskCollectMissingFiles int64 = 101
	TaskReviewLoadedData    int64 = 102
	TaskQASignOff           int64 = 103
)

// Definitions: определения встроенных задач в порядке id.
var Definitions = []domain.TaskDefinition{
	{ID: TaskCheckSourceFiles, Name: "check-source-files", Description: "Verify that every expected source file is present", Kind: domain.TaskKindSystem},
	{ID: TaskAnalyzeSourceFiles, Name: "analyze-source-files", Description: "Compute column statistics for every source file", Kind: domain.TaskKindSystem},
	{ID: TaskCreateStagingTables, Name: "create-staging-tables", Description: "Drop and create staging tables from the analysis", Kind: domain.TaskKindSystem},
	{ID: TaskLoadSourceFiles, Name: "load-source-files", Description: "Bulk copy source files into staging tables", Kind: domain.TaskKindSystem},
	{ID: TaskVerifyRecordCounts, Name: "verify-record-counts", Description: "Compare loaded row counts with the analysis", Kind: domain.TaskKindSystem},
	{ID: TaskCollectMissingFiles, Name: "collect-missing-files", Description: "Provide the source files reported missing", Kind: domain.TaskKindUser},
	{ID: TaskReviewLoadedData, Name: "review-loaded-data", Description: "Review staging tables before promotion", Kind: domain.TaskKindUser},
	{ID: TaskQASignOff, Name: "qa-sign-off", Description: "Quality assurance sign-off for the run", Kind: domain.TaskKindUser},
}

// DefaultRootTasks: корневые задачи нового run по умолчанию.
var DefaultRootTasks = []int64{
	TaskCheckSourceFiles,
	TaskAnalyzeSourceFiles,
	TaskCreateStagingTables,
	TaskLoadSourceFiles,
	TaskVerifyRecordCounts,
	TaskReviewLoadedData,
	TaskQASignOff,
}

// Register добавляет SYSTEM-задачи набора в реестр.
func (s *Suite) Register(reg *tasks.Registry) error {
	table := []struct {
		id   int64
		name string
		fn   tasks.SystemFunc
	}{
		{TaskCheckSourceFiles, "check-source-files", s.CheckSourceFiles},
		{TaskAnalyzeSourceFiles, "analyze-source-files", s.AnalyzeSourceFiles},
		{TaskCreateStagingTables, "create-staging-tables", s.CreateStagingTables},
		{TaskLoadSourceFiles, "load-source-files", s.LoadSourceFiles},
		{TaskVerifyRecordCounts, "verify-record-counts", s.VerifyRecordCounts},
	}
	for _, t := range table {
		if err := reg.Register(t.id, t.name, t.fn); err != nil {
			return fmt.Errorf("register %s: %w", t.name, err)
		}
	}
	return nil
}

// DefinitionLister отдаёт определения задач, записанные в БД.
// Реализуется *repo.DefinitionRepo.
type DefinitionLister interface {
	List(ctx context.Context) ([]domain.TaskDefinition, error)
}

// NewRegistry собирает реестр процесса: регистрирует задачи набора и
// сверяет его с определениями из БД. Расхождение (SYSTEM-задача без функции
// или функция без определения) возвращается ошибкой, процесс не стартует.
func (s *Suite) NewRegistry(ctx context.Context, defs DefinitionLister) (*tasks.Registry, error) {
	reg := tasks.NewRegistry()
	if err := s.Register(reg); err != nil {
		return nil, err
	}
	list, err := defs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load task definitions: %w", err)
	}
	if err := reg.Bind(list); err != nil {
		return nil, fmt.Errorf("bind task definitions: %w", err)
	}
	s.logger.Info("task registry bound", "definitions", len(list), "tasks", reg.Count())
	return reg, nil
}
