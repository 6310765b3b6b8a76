package domain

import (
	"time"
)

// DataSource: поставщик данных, для которого создаются runs.
type DataSource struct {
	ID int64 `json:"id"`

	// Code: короткий код, используется как имя каталога с файлами.
	Code string `json:"code"`

	Name string `json:"name"`

	// LoadSchema: схема БД, в которую грузятся таблицы источника.
	LoadSchema string `json:"load_schema"`
}

// SourceFile: описание одного ожидаемого файла источника.
//
// Содержит метаданные, нужные загрузчику: имя целевой таблицы,
// ожидаемые колонки, правила разделителей/кавычек, лист книги.
type SourceFile struct {
	ID           int64  `json:"id"`
	DataSourceID int64  `json:"data_source_id"`
	FileName     string `json:"file_name"`
	TableName    string `json:"table_name"`

	// Delimiter и Quote - для delimited-файлов. Пустой Quote означает
	// отсутствие кавычек.
	Delimiter string `json:"delimiter,omitempty"`
	Quote     string `json:"quote,omitempty"`

	HasHeader bool `json:"has_header"`

	// Sheet: лист книги (пусто - все листы).
	Sheet string `json:"sheet,omitempty"`

	// Encoding: кодировка текстовых файлов (по умолчанию utf-8).
	Encoding string `json:"encoding,omitempty"`

	// Columns: ожидаемые колонки.
	Columns []ColumnMeta `json:"columns,omitempty"`
}

// ColumnMeta: ожидаемая колонка файла.
type ColumnMeta struct {
	Name string `json:"name"`

	// Type: метка типа, переносится в результаты анализа.
	Type string `json:"type,omitempty"`

	// Width: ширина поля для fixed-record файлов.
	Width int `json:"width,omitempty"`
}

// FileAnalysis: сохранённый результат анализа одного файла/листа в run.
type FileAnalysis struct {
	ID           int64            `json:"id"`
	RunID        int64            `json:"run_id"`
	SourceFileID int64            `json:"source_file_id"`
	SubTable     string           `json:"sub_table"`
	TableName    string           `json:"table_name"`
	RecordCount  int64            `json:"record_count"`
	Columns      []AnalyzedColumn `json:"columns"`
	Fingerprint  string           `json:"fingerprint,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// AnalyzedColumn: статистика колонки в сохранённом анализе.
type AnalyzedColumn struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Sanitized string `json:"sanitized"`
	Type      string `json:"type,omitempty"`
	MinLen    int    `json:"min_len"`
	MaxLen    int    `json:"max_len"`
}
