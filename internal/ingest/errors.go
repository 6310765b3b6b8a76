package ingest

import "errors"

var (
	// ErrNoSourceFiles: для источника не описано ни одного файла.
	ErrNoSourceFiles = errors.New("no source files configured")

	// ErrNoAnalysis: в run нет результатов анализа.
	ErrNoAnalysis = errors.New("no file analysis for run")

	// ErrMissingColumns: в файле нет ожидаемых колонок.
	ErrMissingColumns = errors.New("expected columns missing")

	// ErrCountMismatch: число строк в таблице не совпало с анализом.
	ErrCountMismatch = errors.New("record count mismatch")

	// ErrUnknownSourceFile: анализ ссылается на неизвестный файл.
	ErrUnknownSourceFile = errors.New("unknown source file")
)
