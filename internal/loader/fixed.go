package loader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

func openFixed(path string, meta TableMeta) (Source, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &singleSource{
		name: name,
		open: func() (RecordReader, error) {
			r, err := newFixedReader(path, meta)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
	}, nil
}

// fixedReader режет строки на поля по позициям.
//
// Границы берутся из ширин колонок (ColumnMeta.Width). Если ширины не
// заданы, они выводятся из заголовка: каждое поле начинается там же,
// где начинается его имя, последнее поле идёт до конца строки.
type fixedReader struct {
	f      *os.File
	lines  *bufio.Scanner
	starts []int
	header []string
	types  []string
}

func newFixedReader(path string, meta TableMeta) (*fixedReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	src, err := decodeReader(f, meta.Encoding)
	if err != nil {
		f.Close()
		return nil, err
	}

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)

	r := &fixedReader{f: f, lines: sc}

	var headerLine string
	if meta.HasHeader {
		line, err := r.nextLine()
		if err != nil && err != io.EOF {
			f.Close()
			return nil, err
		}
		headerLine = line
	}

	if starts, ok := widthsToStarts(meta.Columns); ok {
		r.starts = starts
		if headerLine != "" {
			r.header = sliceFixed([]rune(headerLine), starts)
		} else {
			r.header = headerFromMeta(meta, len(starts))
		}
	} else if headerLine != "" {
		r.starts = inferStarts(headerLine)
		r.header = sliceFixed([]rune(headerLine), r.starts)
	}

	if len(r.starts) == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s has neither column widths nor a header", ErrNoColumns, path)
	}
	r.types = meta.expectedTypes(len(r.header))

	return r, nil
}

func (r *fixedReader) Header() []string { return r.header }
func (r *fixedReader) Types() []string  { return r.types }

func (r *fixedReader) Next() ([]string, error) {
	line, err := r.nextLine()
	if err != nil {
		return nil, err
	}
	return sliceFixed([]rune(line), r.starts), nil
}

func (r *fixedReader) Close() error { return r.f.Close() }

func (r *fixedReader) nextLine() (string, error) {
	for r.lines.Scan() {
		line := strings.TrimRight(r.lines.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		return line, nil
	}
	if err := r.lines.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// widthsToStarts превращает ширины в позиции начала полей.
// Возвращает false, если хотя бы одна ширина не задана.
func widthsToStarts(cols []ColumnMeta) ([]int, bool) {
	if len(cols) == 0 {
		return nil, false
	}
	starts := make([]int, len(cols))
	pos := 0
	for i, c := range cols {
		if c.Width <= 0 {
			return nil, false
		}
		starts[i] = pos
		pos += c.Width
	}
	return starts, true
}

// inferStarts находит позиции, где в заголовке начинаются имена колонок.
func inferStarts(header string) []int {
	var starts []int
	prevSpace := true
	for i, r := range []rune(header) {
		space := unicode.IsSpace(r)
		if !space && prevSpace {
			starts = append(starts, i)
		}
		prevSpace = space
	}
	return starts
}

// sliceFixed режет строку по позициям; каждое поле обрезается от пробелов.
// Последнее поле - до конца строки.
func sliceFixed(line []rune, starts []int) []string {
	out := make([]string, len(starts))
	for i, start := range starts {
		end := len(line)
		if i+1 < len(starts) && starts[i+1] < end {
			end = starts[i+1]
		}
		if start >= end {
			continue
		}
		out[i] = strings.TrimSpace(string(line[start:end]))
	}
	return out
}
