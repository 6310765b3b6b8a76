package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Ingestor/internal/telemetry"
)

// ChunkSize: размер чанка при анализе по умолчанию.
const ChunkSize = 10000

// ColumnStats: статистика одной колонки.
type ColumnStats struct {
	// Index: порядковый номер колонки в файле.
	Index int `json:"index"`

	// Name: имя колонки как в заголовке файла.
	Name string `json:"name"`

	// Sanitized: имя колонки в целевой таблице.
	Sanitized string `json:"sanitized"`

	// Type: переданная или выведенная метка типа.
	Type string `json:"type,omitempty"`

	// MinLen и MaxLen - длины непустых значений в символах.
	MinLen int `json:"min_len"`
	MaxLen int `json:"max_len"`

	// Seen: встречено хотя бы одно непустое значение.
	Seen bool `json:"seen"`
}

// AnalyzeResult: статистика одной подтаблицы файла.
type AnalyzeResult struct {
	Table          string        `json:"table"`
	RecordCount    int64         `json:"record_count"`
	Columns        []ColumnStats `json:"columns"`
	MissingColumns []string      `json:"missing_columns,omitempty"`
	ExtraColumns   []string      `json:"extra_columns,omitempty"`
	Fingerprint    string        `json:"fingerprint,omitempty"`
}

// Merge объединяет два результата.
//
// Счётчики складываются, длины берутся min/max по индексу колонки,
// имя и тип - первые непустые. Операция ассоциативна и коммутативна
// по счётчикам и длинам, поэтому порядок слияния чанков не важен.
func Merge(a, b AnalyzeResult) AnalyzeResult {
	out := AnalyzeResult{
		Table:       a.Table,
		RecordCount: a.RecordCount + b.RecordCount,
		Fingerprint: a.Fingerprint,
	}
	if out.Table == "" {
		out.Table = b.Table
	}
	if out.Fingerprint == "" {
		out.Fingerprint = b.Fingerprint
	}

	n := len(a.Columns)
	if len(b.Columns) > n {
		n = len(b.Columns)
	}
	out.Columns = make([]ColumnStats, n)
	for i := 0; i < n; i++ {
		var x, y ColumnStats
		hasX, hasY := i < len(a.Columns), i < len(b.Columns)
		if hasX {
			x = a.Columns[i]
		}
		if hasY {
			y = b.Columns[i]
		}
		out.Columns[i] = mergeColumn(i, x, y)
	}

	out.MissingColumns = unionStrings(a.MissingColumns, b.MissingColumns)
	out.ExtraColumns = unionStrings(a.ExtraColumns, b.ExtraColumns)

	return out
}

// MergeAll сворачивает результаты слева направо.
func MergeAll(results []AnalyzeResult) AnalyzeResult {
	var out AnalyzeResult
	for _, r := range results {
		out = Merge(out, r)
	}
	return out
}

func mergeColumn(index int, x, y ColumnStats) ColumnStats {
	c := ColumnStats{
		Index:     index,
		Name:      firstNonEmpty(x.Name, y.Name),
		Sanitized: firstNonEmpty(x.Sanitized, y.Sanitized),
		Type:      firstNonEmpty(x.Type, y.Type),
	}
	switch {
	case x.Seen && y.Seen:
		c.Seen = true
		c.MinLen = min(x.MinLen, y.MinLen)
		c.MaxLen = max(x.MaxLen, y.MaxLen)
	case x.Seen:
		c.Seen, c.MinLen, c.MaxLen = true, x.MinLen, x.MaxLen
	case y.Seen:
		c.Seen, c.MinLen, c.MaxLen = true, y.MinLen, y.MaxLen
	}
	return c
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func unionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// chunkStats считает статистику одного чанка записей.
// Поля за пределами width (ширина заголовка) не учитываются: Load их
// тоже отбрасывает, и лишних колонок в staging-таблице не появляется.
func chunkStats(records [][]string, width int) AnalyzeResult {
	res := AnalyzeResult{RecordCount: int64(len(records))}
	for _, rec := range records {
		if len(rec) > width {
			rec = rec[:width]
		}
		for i, v := range rec {
			for len(res.Columns) <= i {
				res.Columns = append(res.Columns, ColumnStats{Index: len(res.Columns)})
			}
			if v == "" {
				continue
			}
			n := utf8.RuneCountInString(v)
			c := &res.Columns[i]
			if !c.Seen {
				c.Seen, c.MinLen, c.MaxLen = true, n, n
				continue
			}
			c.MinLen = min(c.MinLen, n)
			c.MaxLen = max(c.MaxLen, n)
		}
	}
	return res
}

// AnalyzeOptions: параметры анализа.
type AnalyzeOptions struct {
	// ChunkSize: записей в чанке (по умолчанию ChunkSize).
	ChunkSize int

	// Concurrency: параллельно обрабатываемых чанков (по умолчанию GOMAXPROCS).
	Concurrency int

	// SkipFingerprint отключает подсчёт xxh3 по файлу.
	SkipFingerprint bool
}

func (o AnalyzeOptions) withDefaults() AnalyzeOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = ChunkSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.GOMAXPROCS(0)
	}
	return o
}

// Analyze читает файл и возвращает по одному результату на подтаблицу.
//
// Записи читаются последовательно чанками по ChunkSize, статистика чанков
// считается параллельно и сливается через Merge.
func Analyze(ctx context.Context, path string, meta TableMeta, opts AnalyzeOptions) ([]AnalyzeResult, error) {
	opts = opts.withDefaults()

	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	src, err := Open(path, meta)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var fingerprint string
	if !opts.SkipFingerprint {
		if fingerprint, err = Fingerprint(path); err != nil {
			return nil, err
		}
	}

	logger := telemetry.FromContext(ctx).With("path", path, "format", string(format))

	tables := src.Tables()
	results := make([]AnalyzeResult, 0, len(tables))
	for _, table := range tables {
		res, err := analyzeTable(ctx, src, table, meta, opts)
		if err != nil {
			return nil, fmt.Errorf("analyze %s: %w", table, err)
		}
		res.Fingerprint = fingerprint
		telemetry.RecordsAnalyzed.WithLabelValues(string(format)).Add(float64(res.RecordCount))

		logger.Info("table analyzed",
			"table", table,
			"records", res.RecordCount,
			"columns", len(res.Columns),
			"missing", len(res.MissingColumns),
			"extra", len(res.ExtraColumns),
		)
		results = append(results, res)
	}

	return results, nil
}

func analyzeTable(ctx context.Context, src Source, table string, meta TableMeta, opts AnalyzeOptions) (AnalyzeResult, error) {
	rr, err := src.Open(table)
	if err != nil {
		return AnalyzeResult{}, err
	}
	defer rr.Close()

	width := len(rr.Header())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	var (
		mu       sync.Mutex
		partials = make(map[int]AnalyzeResult)
		chunks   int
		readErr  error
	)

	for done := false; !done && gctx.Err() == nil; {
		chunk := make([][]string, 0, opts.ChunkSize)
		for len(chunk) < opts.ChunkSize {
			rec, err := rr.Next()
			if errors.Is(err, io.EOF) {
				done = true
				break
			}
			if err != nil {
				readErr = err
				done = true
				break
			}
			chunk = append(chunk, rec)
		}
		if readErr != nil || len(chunk) == 0 {
			break
		}

		idx := chunks
		chunks++
		g.Go(func() error {
			stats := chunkStats(chunk, width)
			mu.Lock()
			partials[idx] = stats
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return AnalyzeResult{}, err
	}
	if readErr != nil {
		return AnalyzeResult{}, readErr
	}
	if err := ctx.Err(); err != nil {
		return AnalyzeResult{}, err
	}

	res := baseResult(table, rr.Header(), rr.Types())
	for i := 0; i < chunks; i++ {
		res = Merge(res, partials[i])
	}
	finishColumns(&res, meta)

	return res, nil
}

// baseResult: результат без записей, задающий имена и типы колонок.
func baseResult(table string, header, types []string) AnalyzeResult {
	res := AnalyzeResult{
		Table:   table,
		Columns: make([]ColumnStats, len(header)),
	}
	for i, name := range header {
		res.Columns[i] = ColumnStats{Index: i, Name: name}
		if i < len(types) {
			res.Columns[i].Type = types[i]
		}
	}
	return res
}

// finishColumns даёт имена колонкам без заголовка, санирует имена
// и сравнивает их с ожидаемыми колонками.
func finishColumns(res *AnalyzeResult, meta TableMeta) {
	maxLen := meta.maxIdentLen()

	present := make(map[string]bool, len(res.Columns))
	for i := range res.Columns {
		c := &res.Columns[i]
		if c.Name == "" {
			c.Name = fmt.Sprintf("COLUMN%d", i+1)
		}
		c.Sanitized = SanitizeColumnName(c.Name, maxLen)
		present[c.Sanitized] = true
	}

	if len(meta.Columns) == 0 {
		return
	}

	expected := make(map[string]bool, len(meta.Columns))
	var missing []string
	for _, col := range meta.Columns {
		name := SanitizeColumnName(col.Name, maxLen)
		expected[name] = true
		if !present[name] {
			missing = append(missing, name)
		}
	}
	var extra []string
	for _, c := range res.Columns {
		if !expected[c.Sanitized] {
			extra = append(extra, c.Sanitized)
		}
	}
	res.MissingColumns = missing
	res.ExtraColumns = extra
}
