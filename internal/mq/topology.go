package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeWorkflows Exchange = "batchflow.workflows"
	ExchangeJobs      Exchange = "batchflow.jobs"
	ExchangeDLQ       Exchange = "batchflow.dlq"
)

// Queues — имена очередей.
const (
	QueueWorkflowsSubmitted Queue = "workflows.submitted"
	QueueJobsReady          Queue = "jobs.ready"
	QueueJobsStatus         Queue = "jobs.status"
	QueueDLQ                Queue = "dlq.batchflow"
)

// Routing keys.
const (
	RoutingKeySubmitted RoutingKey = "submitted"
	RoutingKeyReady     RoutingKey = "ready"
	RoutingKeyStatus    RoutingKey = "status"
	RoutingKeyDLQ       RoutingKey = "dead"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// topology описывает все объекты RabbitMQ, которые использует Batchflow.
func topology() ([]exchangeDecl, []queueDecl, []bindingDecl) {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQ),
	}

	exchanges := []exchangeDecl{
		{ExchangeWorkflows, "direct"},
		{ExchangeJobs, "direct"},
		{ExchangeDLQ, "direct"},
	}

	queues := []queueDecl{
		// Невалидные спецификации и события уходят в DLQ
		{QueueWorkflowsSubmitted, dlqArgs},
		{QueueJobsStatus, dlqArgs},

		// Потребитель — внешняя система выполнения jobs
		{QueueJobsReady, dlqArgs},

		{QueueDLQ, nil},
	}

	bindings := []bindingDecl{
		{QueueWorkflowsSubmitted, RoutingKeySubmitted, ExchangeWorkflows},
		{QueueJobsReady, RoutingKeyReady, ExchangeJobs},
		{QueueJobsStatus, RoutingKeyStatus, ExchangeJobs},
		{QueueDLQ, RoutingKeyDLQ, ExchangeDLQ},
	}

	return exchanges, queues, bindings
}

// SetupTopology объявляет exchanges, очереди и привязки.
func SetupTopology(ctx context.Context, conn *Connection) error {
	exchanges, queues, bindings := topology()

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges {
			err := ch.ExchangeDeclare(
				string(ex.name), // name
				ex.kind,         // type
				true,            // durable
				false,           // auto-deleted
				false,           // internal
				false,           // no-wait
				nil,             // arguments
			)
			if err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queues {
			_, err := ch.QueueDeclare(
				string(q.name), // name
				true,           // durable
				false,          // delete when unused
				false,          // exclusive
				false,          // no-wait
				q.args,         // arguments
			)
			if err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindings {
			err := ch.QueueBind(
				string(b.queue),      // queue name
				string(b.routingKey), // routing key
				string(b.exchange),   // exchange
				false,                // no-wait
				nil,                  // arguments
			)
			if err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Batchflow RabbitMQ Topology:

    batchflow.workflows (direct)
    └── workflows.submitted [routing: submitted]
            Consumer: Orchestrator

    batchflow.jobs (direct)
    ├── jobs.ready [routing: ready]
    │       Consumer: job execution facility
    └── jobs.status [routing: status]
            Consumer: Orchestrator

    batchflow.dlq (direct)
    └── dlq.batchflow [routing: dead]
            Manual processing
  `
}
