// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Очередь jobs живёт в PostgreSQL (scheduled_jobs); RabbitMQ используется
// только для пробуждения воркеров сразу после постановки job в очередь.
// Потерянное уведомление не теряет job: воркер всё равно найдёт его
// при следующем опросе БД.
//
// Структура:
//   - connection.go - соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   - объявление exchange, queue, binding
//   - message.go    - JSON-конверт и payload сообщений
//   - publisher.go  - публикация уведомлений (с таймаутом и метрикой)
//   - consumer.go   - потребление уведомлений
//
// Сообщения:
//   - job.enqueued - job поставлен в очередь (exchange ingestor.jobs,
//     очередь jobs.ready)
package mq
