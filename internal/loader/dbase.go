package loader

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Valentin-Kaiser/go-dbase/dbase"
	"golang.org/x/text/encoding/htmlindex"
)

// dbaseTypes: метки типов для полей dBase.
var dbaseTypes = map[string]string{
	"C": "varchar",
	"M": "text",
	"N": "numeric",
	"F": "numeric",
	"Y": "numeric",
	"B": "numeric",
	"I": "integer",
	"L": "boolean",
	"D": "date",
	"T": "timestamp",
}

func openDBase(path string, meta TableMeta) (Source, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &singleSource{
		name: name,
		open: func() (RecordReader, error) {
			r, err := newDBaseReader(path, meta)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
	}, nil
}

// dbaseReader читает таблицу dBase запись за записью.
// Удалённые записи пропускаются.
type dbaseReader struct {
	table  *dbase.File
	header []string
	types  []string
}

func newDBaseReader(path string, meta TableMeta) (*dbaseReader, error) {
	cfg := &dbase.Config{
		Filename:          path,
		TrimSpaces:        true,
		ReadOnly:          true,
		InterpretCodePage: meta.Encoding == "",
	}
	if meta.Encoding != "" {
		enc, err := htmlindex.Get(meta.Encoding)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEncoding, meta.Encoding)
		}
		cfg.Converter = dbase.NewDefaultConverter(enc)
	}

	table, err := dbase.OpenTable(cfg)
	if err != nil {
		return nil, fmt.Errorf("open dbf %s: %w", path, err)
	}

	cols := table.Columns()
	if len(cols) == 0 {
		table.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoColumns, path)
	}

	r := &dbaseReader{
		table:  table,
		header: make([]string, len(cols)),
		types:  meta.expectedTypes(len(cols)),
	}
	for i, c := range cols {
		r.header[i] = c.Name()
		if r.types[i] == "" {
			r.types[i] = dbaseTypes[c.Type()]
		}
	}

	return r, nil
}

func (r *dbaseReader) Header() []string { return r.header }
func (r *dbaseReader) Types() []string  { return r.types }

func (r *dbaseReader) Next() ([]string, error) {
	for !r.table.EOF() {
		row, err := r.table.Next()
		if err != nil {
			return nil, err
		}
		if row == nil || row.Deleted {
			continue
		}

		values := row.Values()
		rec := make([]string, len(values))
		for i, v := range values {
			rec[i] = dbaseValue(v)
		}
		return rec, nil
	}
	return nil, io.EOF
}

func (r *dbaseReader) Close() error { return r.table.Close() }

// dbaseValue приводит значение поля dBase к строке.
func dbaseValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return normalizeText(t)
	case []byte:
		return normalizeText(string(t))
	case bool:
		return FormatBool(t)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return FormatDate(t)
		}
		return FormatDateTime(t)
	case float64:
		return FormatDecimal(t)
	case float32:
		return FormatDecimal(float64(t))
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}
