package domain

import "fmt"

// JobStatus — статус выполнения одного job в workflow.
//
// Словарь статусов совпадает с тем, что сообщает внешняя система
// выполнения jobs:
//
//	UNKNOWN → STARTING → STARTED → COMPLETED
//	                             ↘ FAILED   (можно перезапустить)
//	                             ↘ STOPPING → STOPPED (можно перезапустить)
//	ABANDONED — финальный статус, перезапуск невозможен.
type JobStatus string

const (
	// JobStatusUnknown — job ещё ни разу не запускался.
	JobStatusUnknown JobStatus = "UNKNOWN"

	// JobStatusStarting — job запускается.
	JobStatusStarting JobStatus = "STARTING"

	// JobStatusStarted — job выполняется.
	JobStatusStarted JobStatus = "STARTED"

	// JobStatusStopping — job останавливается.
	JobStatusStopping JobStatus = "STOPPING"

	// JobStatusStopped — job остановлен.
	JobStatusStopped JobStatus = "STOPPED"

	// JobStatusCompleted — job успешно завершён.
	JobStatusCompleted JobStatus = "COMPLETED"

	// JobStatusFailed — job завершился с ошибкой.
	JobStatusFailed JobStatus = "FAILED"

	// JobStatusAbandoned — job брошен, перезапуск запрещён.
	JobStatusAbandoned JobStatus = "ABANDONED"
)

// JobStatuses — все статусы в порядке жизненного цикла.
var JobStatuses = []JobStatus{
	JobStatusUnknown,
	JobStatusStarting,
	JobStatusStarted,
	JobStatusStopping,
	JobStatusStopped,
	JobStatusCompleted,
	JobStatusFailed,
	JobStatusAbandoned,
}

// IsRestartable возвращает true, если из этого статуса job может стать готовым.
func (s JobStatus) IsRestartable() bool {
	switch s {
	case JobStatusUnknown, JobStatusStopped, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsRunning возвращает true для статусов "в процессе".
func (s JobStatus) IsRunning() bool {
	switch s {
	case JobStatusStarting, JobStatusStarted, JobStatusStopping:
		return true
	default:
		return false
	}
}

// IsTransient возвращает true для промежуточных статусов,
// которым нельзя доверять после аварийного рестарта.
func (s JobStatus) IsTransient() bool {
	return s == JobStatusStarting || s == JobStatusStopping
}

// Settle схлопывает промежуточный статус: STARTING → STARTED, STOPPING → STOPPED.
func (s JobStatus) Settle() JobStatus {
	switch s {
	case JobStatusStarting:
		return JobStatusStarted
	case JobStatusStopping:
		return JobStatusStopped
	default:
		return s
	}
}

// String возвращает строковое представление JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// ParseJobStatus парсит строку в JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	for _, status := range JobStatuses {
		if string(status) == s {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown job status: %q", s)
}

// WorkflowStatus — статус workflow целиком.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ ABANDONED
type WorkflowStatus string

const (
	// WorkflowStatusPending — workflow сохранён, но ещё не взят в работу.
	WorkflowStatusPending WorkflowStatus = "PENDING"

	// WorkflowStatusRunning — workflow отслеживается оркестратором.
	WorkflowStatusRunning WorkflowStatus = "RUNNING"

	// WorkflowStatusCompleted — все jobs завершены.
	WorkflowStatusCompleted WorkflowStatus = "COMPLETED"

	// WorkflowStatusAbandoned — хотя бы один job брошен, завершение невозможно.
	WorkflowStatusAbandoned WorkflowStatus = "ABANDONED"
)

// IsTerminal возвращает true, если статус финальный.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusAbandoned:
		return true
	default:
		return false
	}
}
