package loader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shaiso/Ingestor/internal/telemetry"
)

// Разделитель и кавычка потока, передаваемого в COPY.
const (
	CopyDelimiter = ','
	CopyQuote     = '"'
)

// progressEvery: как часто логировать ход загрузки (в записях).
const progressEvery = 100000

// Copier: низкоуровневый COPY FROM STDIN.
// Реализуется *pgconn.PgConn.
type Copier interface {
	CopyFrom(ctx context.Context, r io.Reader, sql string) (pgconn.CommandTag, error)
}

// Load передаёт подтаблицу файла в таблицу dest через COPY.
//
// Подтаблица выбирается через meta.Sheet (пусто - первая). Колонки COPY -
// санированные имена заголовка. Запись короче заголовка дополняется NULL,
// длиннее: обрезается. При ошибке таблица остаётся частично
// загруженной: повтор выполняется через пересоздание таблицы.
//
// Внутри процесса Load сам сериализует запись в одну таблицу. Между
// процессами это делает вызывающий: ingest берёт advisory-блокировку
// таблицы в транзакции, через которую идёт COPY.
func Load(ctx context.Context, c Copier, path string, meta TableMeta, dest Destination) (int64, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return 0, err
	}

	src, err := Open(path, meta)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	rr, err := src.Open(meta.Sheet)
	if err != nil {
		return 0, err
	}
	defer rr.Close()

	release, err := lockTable(ctx, dest.String())
	if err != nil {
		return 0, err
	}
	defer release()

	header := rr.Header()
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = SanitizeColumnName(h, meta.maxIdentLen())
	}

	logger := telemetry.FromContext(ctx).With("path", path, "table", dest.String())
	start := time.Now()

	pr, pw := io.Pipe()

	var (
		written  int64
		writeErr error
		wg       sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		written, writeErr = writeRecords(ctx, pw, rr, len(columns), func(n int64) {
			logger.Info("load progress", "records", n, "elapsed", time.Since(start).String())
		})
		pw.CloseWithError(writeErr)
	}()

	tag, copyErr := c.CopyFrom(ctx, pr, CopySQL(dest, columns, CopyDelimiter, CopyQuote))
	// Разблокируем писателя, если COPY завершился раньше
	pr.CloseWithError(errCopyDone)
	wg.Wait()

	if writeErr != nil && !errors.Is(writeErr, errCopyDone) {
		return written, fmt.Errorf("stream %s: %w", path, writeErr)
	}
	if copyErr != nil {
		return written, fmt.Errorf("copy into %s: %w", dest, copyErr)
	}

	rows := tag.RowsAffected()
	telemetry.RecordsLoaded.WithLabelValues(string(format)).Add(float64(rows))
	logger.Info("load finished", "records", rows, "duration", time.Since(start).String())

	return rows, nil
}

var errCopyDone = errors.New("copy finished")

// writeRecords пишет записи в CSV-формате COPY. Пустые значения
// пишутся без кавычек (NULL), остальные - в кавычках.
func writeRecords(ctx context.Context, w io.Writer, rr RecordReader, width int, progress func(int64)) (int64, error) {
	bw := bufio.NewWriterSize(w, 256*1024)
	var n int64

	for {
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}

		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, err
		}

		if err := writeRecord(bw, rec, width); err != nil {
			return n, err
		}
		n++
		if progress != nil && n%progressEvery == 0 {
			progress(n)
		}
	}

	return n, bw.Flush()
}

func writeRecord(w *bufio.Writer, rec []string, width int) error {
	for i := 0; i < width; i++ {
		if i > 0 {
			if _, err := w.WriteRune(CopyDelimiter); err != nil {
				return err
			}
		}
		if i >= len(rec) || rec[i] == "" {
			continue
		}
		if _, err := w.WriteString(quoteValue(rec[i])); err != nil {
			return err
		}
	}
	_, err := w.WriteRune('\n')
	return err
}

func quoteValue(v string) string {
	q := string(CopyQuote)
	return q + strings.ReplaceAll(v, q, q+q) + q
}

// Блокировки таблиц: ключ - schema.table, значение - семафор на 1.
var (
	tableLocksMu sync.Mutex
	tableLocks   = make(map[string]chan struct{})
)

// lockTable захватывает эксклюзивную запись в таблицу.
func lockTable(ctx context.Context, key string) (func(), error) {
	tableLocksMu.Lock()
	sem, ok := tableLocks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		tableLocks[key] = sem
	}
	tableLocksMu.Unlock()

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
