package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// resubscribeDelay: пауза перед повторной подпиской, если канал
// не открылся, а сигнала о переподключении нет.
const resubscribeDelay = 5 * time.Second

// Handler обрабатывает сообщение. Ошибка приводит к nack
// (см. ConsumerConfig.RequeueOnError).
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery: доставленное сообщение.
type Delivery struct {
	// Message: конверт; Payload содержит json.RawMessage.
	Message Message

	// Raw: исходная AMQP-доставка.
	Raw amqp.Delivery
}

// ConsumerConfig: конфигурация consumer.
type ConsumerConfig struct {
	Queue   string
	Handler Handler

	// Tag: consumer tag в RabbitMQ (обычно id воркера).
	Tag string

	// Prefetch: неподтверждённых сообщений на канал (default: 1).
	Prefetch int

	// Types: принимаемые типы сообщений. Прочие подтверждаются и
	// отбрасываются. Пусто - все.
	Types []MessageType

	// RequeueOnError: возвращать сообщение в очередь при ошибке
	// обработчика. Уведомления о jobs не возвращаются: jobs лежат в БД.
	RequeueOnError bool
}

// Consumer читает очередь на собственном канале и переподписывается
// после потери соединения.
type Consumer struct {
	conn   *Connection
	logger *slog.Logger
	cfg    ConsumerConfig
	types  map[MessageType]bool

	cancel context.CancelFunc
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	var types map[MessageType]bool
	if len(cfg.Types) > 0 {
		types = make(map[MessageType]bool, len(cfg.Types))
		for _, t := range cfg.Types {
			types[t] = true
		}
	}

	return &Consumer{
		conn:   conn,
		logger: logger.With("queue", cfg.Queue),
		cfg:    cfg,
		types:  types,
	}
}

// Start блокируется до отмены ctx или Stop.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	reconnected := c.conn.Reconnected()

	for {
		ch, deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Warn("consumer subscribe failed", "error", err)
		} else {
			c.logger.Info("consumer subscribed", "tag", c.cfg.Tag, "prefetch", c.cfg.Prefetch)
			c.drain(ctx, deliveries)
			ch.Close()
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reconnected:
			c.logger.Info("resubscribing after reconnect")
		case <-time.After(resubscribeDelay):
		}
	}
}

func (c *Consumer) subscribe() (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := c.conn.OpenChannel()
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.cfg.Queue,
		c.cfg.Tag,
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
	}
	return ch, deliveries, nil
}

// drain обрабатывает доставки, пока канал открыт и ctx жив.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				c.logger.Warn("deliveries channel closed")
				return
			}
			c.handle(ctx, raw)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) {
	msg, err := decodeMessage(raw.Body)
	if err != nil {
		c.logger.Error("dropping malformed message", "error", err, "body", string(raw.Body))
		_ = raw.Nack(false, false)
		return
	}

	if c.types != nil && !c.types[msg.Type] {
		c.logger.Warn("dropping message of unexpected type", "message_id", msg.ID, "type", msg.Type)
		_ = raw.Ack(false)
		return
	}

	if err := c.cfg.Handler(ctx, &Delivery{Message: msg, Raw: raw}); err != nil {
		c.logger.Error("handler failed",
			"message_id", msg.ID,
			"type", msg.Type,
			"error", err,
			"requeue", c.cfg.RequeueOnError,
		)
		_ = raw.Nack(false, c.cfg.RequeueOnError)
		return
	}

	_ = raw.Ack(false)
}

// Stop прекращает потребление.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}
