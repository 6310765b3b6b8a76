package repo

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Общие ошибки репозиториев.
var (
	// ErrNotFound: запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists: запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState: операция невозможна в текущем состоянии.
	ErrInvalidState = errors.New("invalid state")
)

// isUniqueViolation проверяет код ошибки PostgreSQL 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
