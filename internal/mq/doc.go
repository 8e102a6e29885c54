// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, publisher confirms)
//   - topology.go   — объявление exchanges, queues, bindings
//   - messages.go   — конверт сообщения и payloads
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений, канал на каждого consumer
//
// Типы сообщений:
//   - workflow.submitted — новый workflow ждёт запуска
//   - job.ready          — job готов к запуску
//   - job.status         — система выполнения сообщила новый статус job
//
// Exchanges:
//   - batchflow.workflows — события workflows
//   - batchflow.jobs      — события jobs
//   - batchflow.dlq       — dead letter queue
package mq
