package mq

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Batchflow/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeWorkflowSubmitted MessageType = "workflow.submitted"
	MessageTypeJobReady          MessageType = "job.ready"
	MessageTypeJobStatus         MessageType = "job.status"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт конверт с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// WorkflowSubmittedPayload — новый workflow сохранён и ждёт запуска.
type WorkflowSubmittedPayload struct {
	WorkflowID uuid.UUID `json:"workflow_id"`
}

// JobStatusPayload — изменение статуса job от системы выполнения.
type JobStatusPayload struct {
	WorkflowID  uuid.UUID         `json:"workflow_id"`
	JobName     string            `json:"job_name"`
	Status      domain.JobStatus  `json:"status"`
	ExecutionID int64             `json:"execution_id"`
	Params      map[string]string `json:"params,omitempty"`
}

// JobReadyPayload — job готов к запуску.
//
// Содержит всё, что нужно системе выполнения: единицу работы,
// параметры (включая input и workflow.id), пути входов и выходов.
type JobReadyPayload struct {
	WorkflowID uuid.UUID         `json:"workflow_id"`
	JobName    string            `json:"job_name"`
	Job        domain.JobRef     `json:"job"`
	Params     map[string]string `json:"params"`
	Inputs     []string          `json:"inputs"`
	Outputs    []string          `json:"outputs"`
	StagingDir string            `json:"staging_dir"`
	OutputDir  string            `json:"output_dir"`
}
