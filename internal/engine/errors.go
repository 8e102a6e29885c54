package engine

import (
	"errors"
	"fmt"

	"github.com/shaiso/Batchflow/internal/domain"
	"github.com/shaiso/Batchflow/internal/graph"
)

// Ошибки построения workflow.
var (
	// ErrInvalidName — имя job не соответствует формату.
	ErrInvalidName = errors.New("invalid job name")

	// ErrInvalidPath — путь абсолютный там, где нужен относительный, или наоборот.
	ErrInvalidPath = errors.New("invalid path")

	// ErrInvalidURI — ссылка на вход не разбирается.
	ErrInvalidURI = errors.New("invalid input uri")

	// ErrEmptyWorkflow — workflow не содержит jobs.
	ErrEmptyWorkflow = errors.New("workflow has no jobs")

	// ErrDuplicateName — несколько jobs (или выходов workflow) с одинаковым именем.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrUnknownNode — ссылка на несуществующий job.
	ErrUnknownNode = errors.New("unknown job")

	// ErrUndeclaredOutput — ссылка на выход, который job не объявлял.
	ErrUndeclaredOutput = errors.New("output not declared")

	// ErrEmptyGlob — шаблон не совпал ни с одним выходом зависимости.
	ErrEmptyGlob = errors.New("glob pattern matches no outputs")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = graph.ErrCycleDetected

	// ErrInvalidSpec — спецификация не прошла валидацию.
	ErrInvalidSpec = errors.New("invalid workflow spec")
)

// Ошибки выполнения.
var (
	// ErrIllegalTransition — переход статуса не разрешён таблицей переходов.
	ErrIllegalTransition = errors.New("illegal status transition")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Node    string // имя job, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Node != "" {
		return "job " + e.Node + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(node, field, message string, err error) *ValidationError {
	return &ValidationError{
		Node:    node,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// TransitionError — недопустимый переход статуса job.
//
// Означает рассинхронизацию между движком и системой выполнения.
// Движок не пытается угадать намерение: состояние не меняется,
// а сверку выполняет вызывающий код через Load.
type TransitionError struct {
	Node string
	From domain.JobStatus
	To   domain.JobStatus
}

// Error реализует интерфейс error.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: illegal transition %s -> %s", e.Node, e.From, e.To)
}

// Unwrap возвращает ErrIllegalTransition.
func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// unknownNode формирует ошибку поиска несуществующего job.
func unknownNode(name string) error {
	return fmt.Errorf("%w: %s", ErrUnknownNode, name)
}
