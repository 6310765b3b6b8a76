package scheduler

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// janitorLockKey: ключ advisory lock лидера janitor.
const janitorLockKey int64 = 424242

// Leader: выбор единственного исполнителя в кластере.
type Leader interface {
	// TryAcquire пытается стать лидером (или подтверждает лидерство).
	TryAcquire(ctx context.Context) (bool, error)

	// Release отдаёт лидерство.
	Release(ctx context.Context) error
}

// lockSession: соединение, которое держит session-level блокировку.
// Реализуется *pgxpool.Conn.
type lockSession interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Release()
}

// AdvisoryLeader: лидерство через session-level advisory lock.
//
// Блокировка держится соединением, поэтому оно берётся из пула
// и не возвращается до Release. Обрыв соединения снимает блокировку
// на сервере, так что каждый TryAcquire проверяет сессию пингом и при
// ошибке выбирает лидера заново.
type AdvisoryLeader struct {
	acquire func(ctx context.Context) (lockSession, error)
	key     int64
	conn    lockSession
}

// NewAdvisoryLeader создаёт AdvisoryLeader с ключом janitor.
func NewAdvisoryLeader(pool *pgxpool.Pool) *AdvisoryLeader {
	return &AdvisoryLeader{
		acquire: func(ctx context.Context) (lockSession, error) {
			conn, err := pool.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		key: janitorLockKey,
	}
}

func (l *AdvisoryLeader) TryAcquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		if err := l.conn.Ping(ctx); err == nil {
			return true, nil
		}
		// Сессия потеряна вместе с блокировкой
		l.conn.Release()
		l.conn = nil
	}

	conn, err := l.acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

func (l *AdvisoryLeader) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Release()
		l.conn = nil
	}()
	if _, err := l.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.key); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}
