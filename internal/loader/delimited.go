package loader

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

func openDelimited(path string, meta TableMeta) (Source, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &singleSource{
		name: name,
		open: func() (RecordReader, error) {
			r, err := newDelimitedReader(path, meta)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
	}, nil
}

// delimitedReader читает текст построчно.
//
// При кавычке '"' используется encoding/csv (поддерживает многострочные
// значения), для прочих кавычек и режима без кавычек - splitLine.
type delimitedReader struct {
	f      *os.File
	csv    *csv.Reader
	lines  *bufio.Scanner
	delim  rune
	quote  rune
	header []string
	types  []string
	// first: первая запись, прочитанная для ширины заголовка.
	first []string
}

func newDelimitedReader(path string, meta TableMeta) (*delimitedReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	src, err := decodeReader(bufio.NewReaderSize(f, 1<<20), meta.Encoding)
	if err != nil {
		f.Close()
		return nil, err
	}

	r := &delimitedReader{
		f:     f,
		delim: meta.Delimiter,
		quote: meta.Quote,
	}
	if r.delim == 0 {
		r.delim = defaultDelimiter(path)
	}

	if r.quote == '"' {
		cr := csv.NewReader(src)
		cr.Comma = r.delim
		cr.LazyQuotes = true
		cr.FieldsPerRecord = -1
		cr.ReuseRecord = false
		r.csv = cr
	} else {
		sc := bufio.NewScanner(src)
		sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
		r.lines = sc
	}

	first, err := r.read()
	switch {
	case errors.Is(err, io.EOF):
		first = nil
	case err != nil:
		f.Close()
		return nil, err
	}

	if meta.HasHeader && first != nil {
		r.header = trimBOM(first)
	} else {
		r.first = first
		r.header = headerFromMeta(meta, len(first))
	}
	if len(r.header) == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoColumns, path)
	}
	r.types = meta.expectedTypes(len(r.header))

	return r, nil
}

func (r *delimitedReader) Header() []string { return r.header }
func (r *delimitedReader) Types() []string  { return r.types }

func (r *delimitedReader) Next() ([]string, error) {
	if r.first != nil {
		rec := r.first
		r.first = nil
		return rec, nil
	}
	return r.read()
}

func (r *delimitedReader) Close() error { return r.f.Close() }

func (r *delimitedReader) read() ([]string, error) {
	if r.csv != nil {
		for {
			rec, err := r.csv.Read()
			if err != nil {
				return nil, err
			}
			if isBlankRecord(rec) {
				continue
			}
			return rec, nil
		}
	}

	for r.lines.Scan() {
		line := strings.TrimRight(r.lines.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		return splitLine(line, r.delim, r.quote), nil
	}
	if err := r.lines.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// splitLine делит строку по delim. Если quote != 0, значения в кавычках
// могут содержать разделитель, удвоенная кавычка - литерал.
func splitLine(line string, delim, quote rune) []string {
	if quote == 0 {
		return strings.Split(line, string(delim))
	}

	var (
		fields  []string
		b       strings.Builder
		inQuote bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case inQuote && c == quote:
			if i+1 < len(runes) && runes[i+1] == quote {
				b.WriteRune(quote)
				i++
			} else {
				inQuote = false
			}
		case inQuote:
			b.WriteRune(c)
		case c == quote:
			inQuote = true
		case c == delim:
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteRune(c)
		}
	}
	return append(fields, b.String())
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func trimBOM(header []string) []string {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header
}
