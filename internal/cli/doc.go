// Package cli реализует инструмент командной строки Batchflow.
//
// # Обзор
//
// Команды validate и plan работают локально: разбирают спецификацию
// и строят DAG через internal/engine, ничего не запуская.
// Команды submit, list, status и jobs обращаются к HTTP API оркестратора.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Batchflow API. Инкапсулирует HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8083")
//	wf, err := client.GetWorkflow(id)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: batchflow plan wf.json --json | jq .
//
// ## Commands
//
// Каждая команда создаётся фабричной функцией (NewValidateCmd и т.д.),
// принимающей clientFn и/или outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
