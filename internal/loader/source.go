package loader

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// DefaultMaxIdentifierLength: ограничение PostgreSQL на длину идентификатора.
const DefaultMaxIdentifierLength = 63

// ColumnMeta: ожидаемая колонка таблицы.
type ColumnMeta struct {
	Name  string
	Type  string
	Width int
}

// TableMeta: метаданные, по которым читается файл.
type TableMeta struct {
	// Table: имя целевой таблицы.
	Table string

	// Columns: ожидаемые колонки. Для fixed-record задают ширины полей.
	Columns []ColumnMeta

	// Delimiter и Quote - для текстовых файлов. Delimiter = 0 - по расширению,
	// Quote = 0 - без кавычек.
	Delimiter rune
	Quote     rune

	HasHeader bool

	// Sheet: выбранный лист/подтаблица. Пусто - все.
	Sheet string

	// Encoding: имя кодировки (WHATWG), пусто - utf-8.
	Encoding string

	// MaxIdentifierLength: 0 означает DefaultMaxIdentifierLength.
	MaxIdentifierLength int
}

func (m TableMeta) maxIdentLen() int {
	if m.MaxIdentifierLength > 0 {
		return m.MaxIdentifierLength
	}
	return DefaultMaxIdentifierLength
}

// expectedTypes возвращает метки типов из метаданных для n колонок.
func (m TableMeta) expectedTypes(n int) []string {
	types := make([]string, n)
	for i := range types {
		if i < len(m.Columns) {
			types[i] = m.Columns[i].Type
		}
	}
	return types
}

// RecordReader: последовательное чтение записей одной подтаблицы.
type RecordReader interface {
	// Header возвращает имена колонок в исходном виде.
	Header() []string

	// Types возвращает метки типов колонок (переданные или выведенные).
	Types() []string

	// Next возвращает следующую запись или io.EOF.
	Next() ([]string, error)

	Close() error
}

// Source: открытый файл с одной или несколькими подтаблицами.
type Source interface {
	// Tables возвращает имена подтаблиц (листы книги; для остальных
	// форматов: единственное имя).
	Tables() []string

	// Open открывает чтение подтаблицы.
	Open(table string) (RecordReader, error)

	Close() error
}

// Open открывает файл адаптером, соответствующим расширению.
// Путь и формат проверяются до чтения данных.
func Open(path string, meta TableMeta) (Source, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if err := CheckFile(path); err != nil {
		return nil, err
	}

	switch format {
	case FormatDelimited:
		return openDelimited(path, meta)
	case FormatSpreadsheet:
		return openSpreadsheet(path, meta)
	case FormatDBase:
		return openDBase(path, meta)
	case FormatFixed:
		return openFixed(path, meta)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// decodeReader оборачивает r декодером кодировки.
func decodeReader(r io.Reader, name string) (io.Reader, error) {
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return r, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoding, name)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// singleSource: Source с одной подтаблицей (всё, кроме книг).
type singleSource struct {
	name string
	open func() (RecordReader, error)
}

func (s *singleSource) Tables() []string { return []string{s.name} }

func (s *singleSource) Open(table string) (RecordReader, error) {
	if table != "" && table != s.name {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return s.open()
}

func (s *singleSource) Close() error { return nil }

// headerFromMeta строит заголовок из ожидаемых колонок либо COLUMN1..n.
func headerFromMeta(meta TableMeta, n int) []string {
	if len(meta.Columns) > n {
		n = len(meta.Columns)
	}
	header := make([]string, n)
	for i := range header {
		if i < len(meta.Columns) && meta.Columns[i].Name != "" {
			header[i] = meta.Columns[i].Name
		} else {
			header[i] = fmt.Sprintf("COLUMN%d", i+1)
		}
	}
	return header
}
