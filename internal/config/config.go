// Package config читает настройки процессов из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shaiso/Ingestor/internal/loader"
	"github.com/shaiso/Ingestor/internal/mq"
	"github.com/shaiso/Ingestor/internal/repo"
)

// Config: настройки всех процессов Ingestor.
type Config struct {
	DatabaseURL string
	DBMaxConns  int32
	RabbitMQURL string

	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerDrainTimeout time.Duration
	JobLease           time.Duration
	JobRetention       time.Duration
	JanitorInterval    time.Duration

	DataRoot            string
	MaxIdentifierLength int

	WorkerPort  string
	APIPort     string
	JanitorPort string
}

// Load читает конфигурацию с значениями по умолчанию.
// Некорректные значения собираются в одну ошибку.
func Load() (*Config, error) {
	var errs []error
	env := envReader{errs: &errs}

	cfg := &Config{
		DatabaseURL: env.String("DB_URL", repo.DefaultDSN),
		DBMaxConns:  int32(env.Int("DB_MAX_CONNS", 10)),
		RabbitMQURL: env.String("RABBITMQ_URL", mq.DefaultURL),

		WorkerConcurrency:  env.Int("WORKER_CONCURRENCY", 4),
		WorkerPollInterval: env.Duration("WORKER_POLL_INTERVAL", time.Second),
		WorkerDrainTimeout: env.Duration("WORKER_DRAIN_TIMEOUT", 30*time.Second),
		JobLease:           env.Duration("JOB_LEASE", time.Hour),
		JobRetention:       env.Duration("JOB_RETENTION", 7*24*time.Hour),
		JanitorInterval:    env.Duration("JANITOR_INTERVAL", 30*time.Second),

		DataRoot:            env.String("DATA_ROOT", "data"),
		MaxIdentifierLength: env.Int("MAX_IDENTIFIER_LENGTH", loader.DefaultMaxIdentifierLength),

		WorkerPort:  env.String("WORKER_PORT", "8082"),
		APIPort:     env.String("API_PORT", "8080"),
		JanitorPort: env.String("JANITOR_PORT", "8083"),
	}

	if cfg.WorkerConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", cfg.WorkerConcurrency))
	}
	if cfg.MaxIdentifierLength <= 0 {
		errs = append(errs, fmt.Errorf("MAX_IDENTIFIER_LENGTH must be positive, got %d", cfg.MaxIdentifierLength))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

type envReader struct {
	errs *[]error
}

func (r envReader) String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (r envReader) Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (r envReader) Duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*r.errs = append(*r.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}
