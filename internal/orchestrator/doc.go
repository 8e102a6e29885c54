// Package orchestrator ведёт выполнение workflows.
//
// Orchestrator отвечает за:
//   - Получение новых workflows из очереди RabbitMQ
//   - Сборку DAG по спецификации и сверку состояния с БД
//   - Публикацию готовых jobs для системы выполнения
//   - Применение статусов jobs к engine.Execution
//   - Финализацию workflow (COMPLETED/ABANDONED)
//   - Периодическую сверку PENDING workflows по cron-расписанию
package orchestrator
