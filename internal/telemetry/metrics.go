package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики выполнения задач.
var (
	// TaskExecutions: выполнения узлов по типу задачи и исходу.
	TaskExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestor_task_executions_total",
			Help: "Total number of pipeline run task executions",
		},
		[]string{"kind", "outcome"},
	)

	// TaskDuration: длительность выполнения узла.
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingestor_task_duration_seconds",
			Help:    "Pipeline run task execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"kind"},
	)
)

// Метрики очереди.
var (
	// JobsProcessed: обработанные воркером jobs по итоговому статусу.
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestor_jobs_processed_total",
			Help: "Total number of jobs processed by workers",
		},
		[]string{"status"},
	)

	// JobsInFlight: jobs, выполняющиеся в данный момент.
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingestor_jobs_in_flight",
			Help: "Number of jobs currently being executed",
		},
	)

	// JobsRequeued: jobs, возвращённые в очередь после истечения lease.
	JobsRequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingestor_jobs_requeued_total",
			Help: "Total number of running jobs requeued after lease expiry",
		},
	)

	// JobsPurged: jobs, удалённые по retention.
	JobsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingestor_jobs_purged_total",
			Help: "Total number of finished jobs deleted by retention",
		},
	)
)

// Метрики загрузчика.
var (
	// RecordsLoaded: записи, переданные в COPY.
	RecordsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestor_records_loaded_total",
			Help: "Total number of records streamed into destination tables",
		},
		[]string{"format"},
	)

	// RecordsAnalyzed: записи, прочитанные при анализе.
	RecordsAnalyzed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestor_records_analyzed_total",
			Help: "Total number of records read during file analysis",
		},
		[]string{"format"},
	)
)

// Метрики HTTP API.
var (
	// HTTPRequests: запросы к API по маршруту и коду ответа.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestor_api_http_requests_total",
			Help: "Total HTTP requests handled by the API",
		},
		[]string{"route", "status"},
	)
)

// Метрики RabbitMQ.
var (
	// MessagesPublished: уведомления, отправленные в брокер, по типу и исходу.
	MessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestor_mq_messages_published_total",
			Help: "Total wake-up messages published to RabbitMQ",
		},
		[]string{"type", "result"},
	)
)
