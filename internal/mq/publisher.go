package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в указанный exchange с routing key
// и ждёт подтверждения брокера.
//
// Ошибка означает, что сообщение могло не дойти: вызывающий код
// не должен подтверждать входящее сообщение, породившее эту публикацию.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = p.conn.publish(ctx, string(exchange), string(routingKey), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		Type:         string(msg.Type),
		AppId:        "batchflow",
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s/%s: %w", msg.Type, exchange, routingKey, err)
	}

	p.logger.Debug("published message",
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", msg.ID,
		"type", msg.Type,
	)
	return nil
}

// PublishWorkflowSubmitted сообщает о новом workflow.
// Потребитель: Orchestrator.
func (p *Publisher) PublishWorkflowSubmitted(ctx context.Context, id uuid.UUID) error {
	msg := NewMessage(MessageTypeWorkflowSubmitted, WorkflowSubmittedPayload{WorkflowID: id})
	return p.Publish(ctx, ExchangeWorkflows, RoutingKeySubmitted, msg)
}

// PublishJobReady сообщает, что job готов к запуску.
// Потребитель: система выполнения jobs.
func (p *Publisher) PublishJobReady(ctx context.Context, payload JobReadyPayload) error {
	return p.Publish(ctx, ExchangeJobs, RoutingKeyReady, NewMessage(MessageTypeJobReady, payload))
}

// PublishJobStatus сообщает об изменении статуса job.
// Публикует система выполнения, потребитель: Orchestrator.
func (p *Publisher) PublishJobStatus(ctx context.Context, payload JobStatusPayload) error {
	return p.Publish(ctx, ExchangeJobs, RoutingKeyStatus, NewMessage(MessageTypeJobStatus, payload))
}
