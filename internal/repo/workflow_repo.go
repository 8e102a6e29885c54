package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Batchflow/internal/domain"
)

const workflowColumns = `id, name, spec, data_root, status, created_at, finished_at`

// WorkflowRepo — репозиторий для работы с workflows.
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

// Create сохраняет новый workflow.
func (r *WorkflowRepo) Create(ctx context.Context, wf *domain.Workflow) error {
	specJSON, err := json.Marshal(wf.Spec)
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = time.Now()
	}
	if wf.Status == "" {
		wf.Status = domain.WorkflowStatusPending
	}

	query := `
		INSERT INTO workflows (id, name, spec, data_root, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		wf.ID,
		wf.Name,
		specJSON,
		wf.DataRoot,
		wf.Status,
		wf.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return requireRows(result, ErrAlreadyExists)
}

// GetByID возвращает workflow по ID.
func (r *WorkflowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`
	return scanWorkflow(r.pool.QueryRow(ctx, query, id))
}

// ListByStatus возвращает workflows в статусе status, старые первыми.
// limit <= 0 — без ограничения.
func (r *WorkflowRepo) ListByStatus(ctx context.Context, status domain.WorkflowStatus, limit int) ([]domain.Workflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT NULLIF($2::int, 0)
	`
	rows, err := r.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []domain.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *wf)
	}
	return workflows, rows.Err()
}

// UpdateStatus меняет статус workflow.
// Для финальных статусов проставляется finished_at.
func (r *WorkflowRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.WorkflowStatus) error {
	query := `
		UPDATE workflows
		SET status = $2,
		    finished_at = CASE WHEN $3 THEN now() ELSE finished_at END
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, status, status.IsTerminal())
	if err != nil {
		return fmt.Errorf("update workflow status: %w", err)
	}
	return requireRows(result, ErrNotFound)
}

// Claim переводит workflow из from в to, если он всё ещё в статусе from.
// Возвращает ErrInvalidState, если статус уже сменил другой процесс.
func (r *WorkflowRepo) Claim(ctx context.Context, id uuid.UUID, from, to domain.WorkflowStatus) error {
	query := `UPDATE workflows SET status = $3 WHERE id = $1 AND status = $2`
	result, err := r.pool.Exec(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("claim workflow: %w", err)
	}
	return requireRows(result, ErrInvalidState)
}

// scanWorkflow сканирует одну строку в Workflow.
func scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var wf domain.Workflow
	var specJSON []byte

	err := row.Scan(
		&wf.ID,
		&wf.Name,
		&specJSON,
		&wf.DataRoot,
		&wf.Status,
		&wf.CreatedAt,
		&wf.FinishedAt,
	)
	if err != nil {
		return nil, scanErr("workflow", err)
	}

	if err := json.Unmarshal(specJSON, &wf.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}
	return &wf, nil
}
