package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Batchflow/internal/domain"
	"github.com/shaiso/Batchflow/internal/engine"
)

// Workflow DTOs

// SubmitWorkflowRequest — запрос на запуск workflow.
type SubmitWorkflowRequest struct {
	// Spec — спецификация в формате engine.ParseSpec.
	Spec json.RawMessage `json:"spec"`

	// DataRoot — корень каталогов данных (необязательно).
	DataRoot string `json:"data_root,omitempty"`
}

// WorkflowResponse — ответ с workflow.
type WorkflowResponse struct {
	ID         uuid.UUID             `json:"id"`
	Name       string                `json:"name"`
	Status     domain.WorkflowStatus `json:"status"`
	DataRoot   string                `json:"data_root"`
	Jobs       int                   `json:"jobs"`
	CreatedAt  time.Time             `json:"created_at"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`

	// Execution — состояние выполнения, только для активных workflows.
	Execution *engine.SnapshotView `json:"execution,omitempty"`
}

// WorkflowFromDomain конвертирует domain.Workflow в WorkflowResponse.
func WorkflowFromDomain(wf domain.Workflow) WorkflowResponse {
	return WorkflowResponse{
		ID:         wf.ID,
		Name:       wf.Name,
		Status:     wf.Status,
		DataRoot:   wf.DataRoot,
		Jobs:       len(wf.Spec.Jobs),
		CreatedAt:  wf.CreatedAt,
		FinishedAt: wf.FinishedAt,
	}
}
