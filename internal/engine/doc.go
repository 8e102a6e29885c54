// Package engine содержит модель workflow и движок отслеживания его выполнения.
//
// Включает:
//   - definition.go — JobDefinition и его builder
//   - workflow.go   — неизменяемый DAG jobs и его builder
//   - node.go       — JobNode: представление job внутри workflow
//   - result.go     — ссылки res:// и file://
//   - execution.go  — Execution: статусы jobs, переходы, готовность
//   - snapshot.go   — неизменяемая копия состояния выполнения
//   - parser.go     — JSON-спецификация workflow
//
// Движок не запускает jobs и не выполняет I/O: он принимает события
// об изменении статуса и сообщает, какие jobs стали готовыми.
package engine
