package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Ingestor/internal/domain"
	"github.com/shaiso/Ingestor/internal/telemetry"
)

// publishTimeout ограничивает ожидание брокера: уведомление лишь ускоряет
// воркеры, планирование не должно зависать на нём.
const publishTimeout = 5 * time.Second

// Publisher отправляет уведомления в exchange ingestor.jobs.
// Реализует orchestrator.Notifier.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger.With("component", "mq-publisher")}
}

// PublishJobEnqueued будит воркеры после постановки job.
// Вызывается после commit транзакции планирования.
func (p *Publisher) PublishJobEnqueued(ctx context.Context, job *domain.ScheduledJob) error {
	return p.publish(ctx, ExchangeJobs, RoutingKeyEnqueued, NewJobEnqueuedMessage(job))
}

func (p *Publisher) publish(ctx context.Context, exchange Exchange, key RoutingKey, msg *Message) (err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		telemetry.MessagesPublished.WithLabelValues(string(msg.Type), result).Inc()
	}()

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		pub := amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Type:         string(msg.Type),
			Timestamp:    msg.Timestamp,
			Body:         body,
		}
		if err := ch.PublishWithContext(ctx, string(exchange), string(key), false, false, pub); err != nil {
			return fmt.Errorf("publish %s to %s/%s: %w", msg.Type, exchange, key, err)
		}
		p.logger.Debug("message published", "type", msg.Type, "message_id", msg.ID, "routing_key", key)
		return nil
	})
}
