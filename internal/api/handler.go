package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/Batchflow/internal/domain"
	"github.com/shaiso/Batchflow/internal/engine"
)

// WorkflowStore — хранилище workflows (repo.WorkflowRepo).
type WorkflowStore interface {
	Create(ctx context.Context, wf *domain.Workflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
	ListByStatus(ctx context.Context, status domain.WorkflowStatus, limit int) ([]domain.Workflow, error)
}

// Publisher уведомляет оркестратор о новых workflows (mq.Publisher).
type Publisher interface {
	PublishWorkflowSubmitted(ctx context.Context, id uuid.UUID) error
}

// Monitor отдаёт снимки выполняющихся workflows (orchestrator.Orchestrator).
type Monitor interface {
	Snapshot(id uuid.UUID) (*engine.Snapshot, bool)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	workflows   WorkflowStore
	publisher   Publisher
	monitor     Monitor
	dataRoot    string
	strictGlobs bool
	logger      *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Workflows WorkflowStore
	Publisher Publisher
	Monitor   Monitor

	// DataRoot — корень данных для workflows без собственного data_root.
	DataRoot    string
	StrictGlobs bool

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		workflows:   cfg.Workflows,
		publisher:   cfg.Publisher,
		monitor:     cfg.Monitor,
		dataRoot:    cfg.DataRoot,
		strictGlobs: cfg.StrictGlobs,
		logger:      logger,
	}
}
