package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrWorkflowNotFound — workflow не найден в БД.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowNotPending — workflow не в статусе PENDING.
	ErrWorkflowNotPending = errors.New("workflow is not in PENDING status")

	// ErrWorkflowNotRunning — workflow не в статусе RUNNING (уже завершён или ещё не взят).
	ErrWorkflowNotRunning = errors.New("workflow is not in RUNNING status")

	// ErrWorkflowAlreadyActive — workflow уже отслеживается.
	ErrWorkflowAlreadyActive = errors.New("workflow already active")

	// ErrInvalidWorkflow — спецификация workflow не собирается в DAG.
	ErrInvalidWorkflow = errors.New("invalid workflow")
)
