package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"github.com/shaiso/Batchflow/internal/domain"
	"github.com/shaiso/Batchflow/internal/engine"
	"github.com/shaiso/Batchflow/internal/mq"
)

// WorkflowStore — хранилище workflows (repo.WorkflowRepo).
type WorkflowStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
	ListByStatus(ctx context.Context, status domain.WorkflowStatus, limit int) ([]domain.Workflow, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.WorkflowStatus) error
	Claim(ctx context.Context, id uuid.UUID, from, to domain.WorkflowStatus) error
}

// ExecutionStore — записи о выполнении jobs (repo.ExecutionRepo).
type ExecutionStore interface {
	engine.ExecutionSource
	Record(ctx context.Context, rec *domain.ExecutionRecord) error
}

// Dispatcher передаёт готовые jobs системе выполнения (mq.Publisher).
type Dispatcher interface {
	PublishJobReady(ctx context.Context, payload mq.JobReadyPayload) error
}
