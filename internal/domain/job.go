package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobRef — ссылка на исполняемую единицу работы.
//
// Движок не интерпретирует содержимое: Kind и Spec передаются
// системе выполнения как есть вместе с параметрами и путями.
type JobRef struct {
	// Kind — тип исполнителя (например, "container", "script").
	Kind string `json:"kind,omitempty"`

	// Spec — конфигурация исполнителя.
	Spec map[string]any `json:"spec,omitempty"`
}

// ExecutionRecord — запись о выполнении job во внешней системе.
type ExecutionRecord struct {
	// ID — идентификатор выполнения во внешней системе.
	ID int64 `json:"id"`

	// WorkflowID — workflow, для которого запускался job.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// JobName — имя job (узла workflow).
	JobName string `json:"job_name"`

	// Params — параметры, с которыми запускался job.
	Params map[string]string `json:"params,omitempty"`

	// Status — последний известный статус.
	Status JobStatus `json:"status"`

	// CreatedAt — время появления записи.
	CreatedAt time.Time `json:"created_at"`
}

// Workflow — сохранённый workflow.
type Workflow struct {
	// ID — идентификатор workflow (совпадает с engine.Workflow.ID()).
	ID uuid.UUID `json:"id"`

	// Name — имя из спецификации.
	Name string `json:"name"`

	// Spec — спецификация jobs и их связей.
	Spec WorkflowSpec `json:"spec"`

	// DataRoot — корневой каталог данных.
	DataRoot string `json:"data_root"`

	// Status — статус workflow.
	Status WorkflowStatus `json:"status"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
