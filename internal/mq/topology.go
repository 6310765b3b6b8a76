package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange: тип для имени обменника.
type Exchange string

// Queue: тип для имени очереди.
type Queue string

// RoutingKey: тип для ключа маршрутизации.
type RoutingKey string

const (
	ExchangeJobs Exchange = "ingestor.jobs"

	QueueJobsReady Queue = "jobs.ready"

	RoutingKeyEnqueued RoutingKey = "enqueued"
)

// wakeupTTL: время жизни уведомления в очереди (мс). Устаревшее
// уведомление бесполезно: job к этому времени найден опросом.
const wakeupTTL = 10 * 60 * 1000

// SetupTopology объявляет exchange, очередь и привязку. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			string(ExchangeJobs), // name
			"direct",             // type
			true,                 // durable
			false,                // auto-deleted
			false,                // internal
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeJobs, err)
		}

		_, err = ch.QueueDeclare(
			string(QueueJobsReady), // name
			true,                   // durable
			false,                  // delete when unused
			false,                  // exclusive
			false,                  // no-wait
			amqp.Table{"x-message-ttl": int32(wakeupTTL)},
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueJobsReady, err)
		}

		err = ch.QueueBind(
			string(QueueJobsReady),     // queue name
			string(RoutingKeyEnqueued), // routing key
			string(ExchangeJobs),       // exchange
			false,                      // no-wait
			nil,                        // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", QueueJobsReady, ExchangeJobs, err)
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Ingestor RabbitMQ Topology:

    ingestor.jobs (direct)
    └── jobs.ready [routing: enqueued, ttl 10m]
            Consumer: Worker (wake-up only, jobs live in PostgreSQL)
  `
}
