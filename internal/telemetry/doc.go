// Package telemetry содержит общий для процессов Ingestor логгер на slog
// с полями run_id, pipeline_run_task_id и job_id, а также Prometheus метрики
// воркера, API и janitor, которые отдаются на /metrics.
package telemetry
