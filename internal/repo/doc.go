// Package repo содержит репозитории PostgreSQL.
//
//   - WorkflowRepo  — сохранённые workflows и их статусы
//   - ExecutionRepo — записи о выполнении jobs (источник для сверки)
//
// Схема создаётся EnsureSchema из встроенного schema.sql.
package repo
